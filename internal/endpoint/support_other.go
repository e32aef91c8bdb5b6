//go:build !windows

package endpoint

// PipeSupported is true on platforms with named pipes.
const PipeSupported = false
