// Package ssh tunnels TCP connections through an SSH server using
// "direct-tcpip" channels, the mechanism behind ssh -L and ssh -D.
//
// A [Client] connects lazily on the first DialContext and multiplexes every
// later dial over the same transport. When a channel cannot be opened
// because the transport has died, the client reconnects once and retries.
// Host keys are checked against a known_hosts file with trust on first use;
// see [NewHostKeyCallback].
package ssh
