//go:build unix

package toolexec

import "golang.org/x/sys/unix"

// RaiseOpenFileLimit lifts RLIMIT_NOFILE to min(target, hard limit).
// It is best-effort and returns the resulting soft limit.
func RaiseOpenFileLimit(target uint64) (uint64, error) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, err
	}
	want := target
	if want > lim.Max {
		want = lim.Max
	}
	if lim.Cur >= want {
		return lim.Cur, nil
	}
	lim.Cur = want
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, err
	}
	return want, nil
}
