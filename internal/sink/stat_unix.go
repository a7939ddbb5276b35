//go:build !windows

package sink

import (
	"os"
	"syscall"
)

func statDeviceInode(info os.FileInfo) (device, inode uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint64(st.Dev), st.Ino
}
