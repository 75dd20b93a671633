//go:build unix

package hostdir

import (
	"fmt"
	"os"
	"syscall"
)

// verifyTrusted refuses a hosts file that another user owns or that any
// user can write. Group write is allowed so a umask of 002 still works.
func verifyTrusted(info os.FileInfo) error {
	if info.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("hosts file is world writable (%o)", info.Mode().Perm())
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("unable to retrieve file ownership information")
	}
	if int(stat.Uid) != os.Geteuid() {
		return fmt.Errorf("hosts file owner mismatch: expected uid %d, got %d", os.Geteuid(), stat.Uid)
	}
	return nil
}
