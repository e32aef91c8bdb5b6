package testutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"
)

// GenerateSSHKey returns a fresh ed25519 signer.
func GenerateSSHKey(t *testing.T) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

// SSHTunnelServer is a minimal SSH server that honors direct-tcpip
// channels by dialing the requested destination.
type SSHTunnelServer struct {
	ln       net.Listener
	HostKey  ssh.Signer
	sessions atomic.Int64

	mu    sync.Mutex
	conns []*ssh.ServerConn
}

// StartSSHTunnelServer listens on an ephemeral loopback port and accepts
// password authentication for username/password only.
func StartSSHTunnelServer(t *testing.T, ctx context.Context, username, password string) *SSHTunnelServer {
	t.Helper()

	s := &SSHTunnelServer{HostKey: GenerateSSHKey(t)}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() != username || string(pass) != password {
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(s.HostKey)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s.ln = ln
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(ctx, c, cfg)
		}
	}()
	return s
}

func (s *SSHTunnelServer) Addr() string { return s.ln.Addr().String() }

// Sessions is the number of SSH connections that completed a handshake.
func (s *SSHTunnelServer) Sessions() int64 { return s.sessions.Load() }

// DropAll closes every SSH connection accepted so far.
func (s *SSHTunnelServer) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *SSHTunnelServer) serve(ctx context.Context, c net.Conn, cfg *ssh.ServerConfig) {
	defer c.Close()

	sc, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		return
	}
	s.sessions.Add(1)
	s.mu.Lock()
	s.conns = append(s.conns, sc)
	s.mu.Unlock()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel")
			continue
		}
		var p struct {
			Host       string
			Port       uint32
			OriginHost string
			OriginPort uint32
		}
		if err := ssh.Unmarshal(nc.ExtraData(), &p); err != nil {
			_ = nc.Reject(ssh.Prohibited, "bad payload")
			continue
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port))))
		if err != nil {
			_ = nc.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			_ = dst.Close()
			continue
		}
		go ssh.DiscardRequests(creqs)

		go func() {
			defer dst.Close()
			_, _ = io.Copy(dst, ch)
			if tc, ok := dst.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
		}()
		go func() {
			defer ch.Close()
			_, _ = io.Copy(ch, dst)
			_ = ch.CloseWrite()
		}()
	}
}
