//go:build !windows

package upstream

import "syscall"

const terminateSignal = syscall.SIGTERM

func sendSignal(pid int, sig syscall.Signal) {
	_ = syscall.Kill(pid, sig)
}
