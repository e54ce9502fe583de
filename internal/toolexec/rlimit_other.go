//go:build !unix

package toolexec

// RaiseOpenFileLimit is a no-op where RLIMIT_NOFILE does not exist.
func RaiseOpenFileLimit(target uint64) (uint64, error) { return target, nil }
