//go:build windows

package upstream

import "os"

const terminateSignal = os.Kill

func sendSignal(pid int, sig os.Signal) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Signal(sig)
	}
}
