package supervisor

import "syscall"

// sysProcAttr puts the child in its own process group so a timeout can
// kill everything the script started.
//
// Pdeathsig is best effort. The kernel ties it to the OS thread that forked
// the child, not to the broker process, so it also fires if that thread
// exits while the child runs, and never reaches grandchildren. The Go
// runtime only retires threads locked by a goroutine that exits without
// unlocking, which nothing here does. Timeouts and shutdown rely on the
// process-group kill instead.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
