//go:build !unix

package command

import "os"

func signalOf(*os.ProcessState) (int, bool) {
	return 0, false
}
