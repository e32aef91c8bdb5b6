//go:build !unix

package command

import "os"

// A console child on Windows cannot be sent a graceful stop request by
// another process, so Terminate kills.
func terminate(p *os.Process) error {
	return p.Kill()
}
