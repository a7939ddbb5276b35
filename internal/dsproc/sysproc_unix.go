//go:build !windows

package dsproc

import "syscall"

// newSysProcAttr puts the child in a new session so that signals delivered
// to this process (SIGINT/SIGTERM during shutdown) do not also reach the
// DS directly; the supervisor asks it to exit explicitly instead
// (spec.md §4.2, §6).
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// buildArgv prepends the wine wrapper unless it is unconfigured, in which
// case ExePath itself becomes argv[0] (an empty WineBinPath must never
// produce an empty argv[0], which exec would reject).
func buildArgv(cfg Config) []string {
	if cfg.WineBinPath == "" {
		return []string{
			cfg.ExePath,
			"-conf", cfg.ConfigPath,
			"-cmd", cfg.StartScript,
		}
	}
	return []string{
		cfg.WineBinPath, cfg.ExePath,
		"-conf", cfg.ConfigPath,
		"-cmd", cfg.StartScript,
	}
}
