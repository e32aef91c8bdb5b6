//go:build !unix && !windows

package proxy

func isAddrNotAvailable(error) bool { return false }
