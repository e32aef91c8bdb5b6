// Package endpoint parses and resolves the two sides of a pxx proxy mapping.
//
// An [Endpoint] is a tagged value: TCP host:port, Unix socket path, Windows
// named pipe, or a network interface selector (for example the Tailscale
// interface) whose address is looked up lazily when the endpoint is bound or
// dialed. A [Mapping] pairs a listen endpoint with a target endpoint and is
// parsed from the "LISTEN->TARGET" form accepted by --proxy.
package endpoint
