//go:build windows

package dsproc

import "syscall"

// newSysProcAttr is a no-op on Windows: there is no POSIX session concept,
// and Console Ctrl handling (spec.md §6) takes the place of SIGINT/SIGTERM.
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// buildArgv omits the wine wrapper on Windows per spec.md §6.
func buildArgv(cfg Config) []string {
	return []string{
		cfg.ExePath,
		"-conf", cfg.ConfigPath,
		"-cmd", cfg.StartScript,
	}
}
