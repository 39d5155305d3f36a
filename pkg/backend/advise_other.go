//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package backend

// AdviseSequential is a no-op on this platform.
func AdviseSequential(b []byte) error { return nil }
