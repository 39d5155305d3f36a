//go:build linux || darwin || freebsd || netbsd || openbsd

package backend

import "golang.org/x/sys/unix"

// AdviseSequential hints the kernel that b will be read once, front to back.
func AdviseSequential(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Madvise(b, unix.MADV_SEQUENTIAL); err != nil {
		return err
	}
	return unix.Madvise(b, unix.MADV_WILLNEED)
}
