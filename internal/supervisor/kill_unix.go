//go:build unix

package supervisor

import (
	"os"

	"golang.org/x/sys/unix"
)

// killTree signals the child's whole process group.
func killTree(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
