package supervisor

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{HideWindow: true}
}

func killTree(p *os.Process) error {
	return p.Kill()
}
