//go:build !windows

package watchdog

import (
	"os"
	"syscall"
)

// deviceInode extracts the device/inode pair used to detect log rotation
// (§3 WatchdogState).
func deviceInode(info os.FileInfo) (device, inode uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Dev), st.Ino
}
