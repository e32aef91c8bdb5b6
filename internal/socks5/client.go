package socks5

import (
	"context"
	"errors"
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

var (
	ErrNoAcceptableMethod = errors.New("socks5: no acceptable authentication method")
	ErrAuthFailed         = errors.New("socks5: authentication failed")
)

// Auth configures optional username/password authentication.
type Auth struct {
	Username string
	Password string
}

// ReplyError is a CONNECT request refused by the proxy.
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	if text, ok := replyText[e.Code]; ok {
		return "socks5: connect refused: " + text
	}
	return fmt.Sprintf("socks5: connect refused: reply code %d", e.Code)
}

// RFC 1928 section 6.
var replyText = map[byte]string{
	0x01: "general server failure",
	0x02: "not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// ClientDial negotiates authentication on conn and asks the proxy to
// CONNECT to address. Cancellation of ctx during the handshake closes conn
// and returns ctx.Err().
func ClientDial(ctx context.Context, conn net.Conn, auth Auth, address string) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	err := negotiate(conn, auth)
	if err == nil {
		err = connect(conn, address)
	}
	if !stop() {
		return ctx.Err()
	}
	return err
}

func negotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5: write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5: read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return fmt.Errorf("%w: proxy requires username/password", ErrNoAcceptableMethod)
		}
		req := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password))
		if _, err := req.WriteTo(conn); err != nil {
			return fmt.Errorf("socks5: write credentials: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("socks5: read auth reply: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return ErrAuthFailed
		}
		return nil
	default:
		return ErrNoAcceptableMethod
	}
}

func connect(conn net.Conn, address string) error {
	atyp, host, port, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("socks5: parse address %q: %w", address, err)
	}
	if atyp == txsocks5.ATYPDomain {
		// ParseAddress prefixes domains with their length byte, which
		// NewRequest adds again.
		host = host[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, host, port).WriteTo(conn); err != nil {
		return fmt.Errorf("socks5: write request: %w", err)
	}
	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("socks5: read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return &ReplyError{Code: rep.Rep}
	}
	return nil
}
