//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package core

func setReuse(fd uintptr) error {
	return nil
}
