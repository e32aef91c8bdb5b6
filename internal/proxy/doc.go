// Package proxy implements the pxx forwarding engine.
//
// A [Forwarder] binds the listen side of one endpoint mapping, accepts
// connections, dials the target for each one and relays bytes in both
// directions with [CopyBidirectional]. The relay only sees net.Conn, so TCP,
// Unix socket and named pipe endpoints can be mixed freely; transport kinds
// only matter in [Listen] and the target dial.
package proxy
