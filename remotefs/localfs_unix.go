//go:build !windows
// +build !windows

package remotefs

import (
	"os"
	"syscall"
)

// sysOwnership extracts the numeric uid/gid afero's underlying os.FileInfo
// carries on unix platforms.
func sysOwnership(fi os.FileInfo) (uid, gid uint32, ok bool) {
	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}

	return stat.Uid, stat.Gid, true
}
