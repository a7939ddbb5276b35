//go:build windows

package watchdog

import "os"

// deviceInode has no direct Windows analog through os.FileInfo; callers on
// Windows rely on file size monotonicity rather than device/inode rotation
// detection until a Windows-specific file-index lookup is added.
func deviceInode(info os.FileInfo) (device, inode uint64) {
	return 0, uint64(info.ModTime().UnixNano())
}
