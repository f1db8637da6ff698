package runtimebackend

import (
	"os"
	"strconv"
	"syscall"
)

// statInode resolves the inode number of path, used as part of the runtime
// fingerprint so a socket replaced at the same path is still detected as a
// distinct runtime.
func statInode(path string) (string, error) {
	if path == "" {
		return "", os.ErrNotExist
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", os.ErrInvalid
	}
	return strconv.FormatUint(stat.Ino, 10), nil
}
