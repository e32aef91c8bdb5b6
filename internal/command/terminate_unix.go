//go:build unix

package command

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminate goes through os.Process so a reaped child reports
// os.ErrProcessDone instead of signaling a recycled PID.
func terminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
