// Package socks5 implements the client half of a SOCKS5 CONNECT handshake
// (RFC 1928, RFC 1929) on top of the wire types in
// github.com/txthinking/socks5.
//
// It only speaks to an upstream proxy; pxx never serves SOCKS5 itself.
package socks5
