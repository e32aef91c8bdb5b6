//go:build windows

package proxy

import (
	"errors"

	"golang.org/x/sys/windows"
)

// WSAEADDRNOTAVAIL
const errAddrNotAvail = windows.Errno(10049)

func isAddrNotAvailable(err error) bool {
	return errors.Is(err, errAddrNotAvail)
}
