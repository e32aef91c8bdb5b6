// Package dialer opens outbound TCP connections for proxy targets, either
// directly or through an upstream SOCKS5 or SSH server.
//
// Every dial resolves the destination host name afresh; nothing is cached
// between connections.
package dialer
