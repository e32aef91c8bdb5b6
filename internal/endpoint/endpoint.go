package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
)

// Kind is the transport tag of an Endpoint.
type Kind int

const (
	KindTCP Kind = iota + 1
	KindUnix
	KindPipe
	KindInterface
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUnix:
		return "unix"
	case KindPipe:
		return "pipe"
	case KindInterface:
		return "interface"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// TailscaleSelector selects the interface holding a Tailscale address.
const TailscaleSelector = "tailscale"

const pipePrefix = `\\.\pipe\`

// Endpoint is one side of a proxy mapping. It is immutable once parsed; the
// only mutable state is the memoized address of an interface endpoint, which
// is private to this instance.
type Endpoint struct {
	kind     Kind
	host     string
	port     uint16
	path     string
	selector string

	mu       sync.Mutex
	resolved string
}

// Parse parses an endpoint:
//
//	unix:///run/app.sock
//	pipe://docker_engine, \\.\pipe\docker_engine   (Windows only)
//	tailscale:8080
//	iface:eth0:8080
//	tcp://localhost:3000, [::]:80, 0.0.0.0:80
func Parse(text string) (*Endpoint, error) {
	s := strings.TrimSpace(text)
	ep, err := parse(s)
	if err != nil {
		return nil, &ParseError{Input: s, Err: err}
	}
	return ep, nil
}

func parse(s string) (*Endpoint, error) {
	if s == "" {
		return nil, ErrEmpty
	}

	if scheme, rest, ok := strings.Cut(s, "://"); ok {
		switch strings.ToLower(scheme) {
		case "tcp":
			return parseTCP(rest)
		case "unix":
			return parseUnix(rest)
		case "pipe":
			return parsePipe(rest)
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownScheme, scheme)
		}
	}

	if strings.HasPrefix(s, pipePrefix) {
		return parsePipe(s)
	}
	if port, ok := strings.CutPrefix(s, TailscaleSelector+":"); ok {
		return parseInterface(TailscaleSelector, port)
	}
	if rest, ok := strings.CutPrefix(s, "iface:"); ok {
		i := strings.LastIndexByte(rest, ':')
		if i < 0 {
			return nil, fmt.Errorf("%w: expected iface:NAME:PORT", ErrInvalidPort)
		}
		return parseInterface(rest[:i], rest[i+1:])
	}
	if PipeSupported && !strings.Contains(s, ":") {
		return parsePipe(s)
	}

	return parseTCP(s)
}

func parseTCP(s string) (*Endpoint, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	p, err := parsePort(port)
	if err != nil {
		return nil, err
	}
	return &Endpoint{kind: KindTCP, host: host, port: p}, nil
}

func parseUnix(path string) (*Endpoint, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: missing socket path", ErrEmpty)
	}
	return &Endpoint{kind: KindUnix, path: path}, nil
}

func parsePipe(name string) (*Endpoint, error) {
	if !PipeSupported {
		return nil, fmt.Errorf("named pipe: %w", ErrUnsupported)
	}
	if strings.TrimPrefix(name, pipePrefix) == "" {
		return nil, fmt.Errorf("%w: missing pipe name", ErrEmpty)
	}
	if !strings.HasPrefix(name, pipePrefix) {
		name = pipePrefix + name
	}
	return &Endpoint{kind: KindPipe, path: name}, nil
}

func parseInterface(selector, port string) (*Endpoint, error) {
	if selector == "" {
		return nil, errors.New("missing interface name")
	}
	p, err := parsePort(port)
	if err != nil {
		return nil, err
	}
	return &Endpoint{kind: KindInterface, selector: selector, port: p}, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidPort, s)
	}
	return uint16(n), nil
}

func (e *Endpoint) Kind() Kind { return e.kind }

// Port is the TCP or interface port.
func (e *Endpoint) Port() uint16 { return e.port }

// Path is the Unix socket path or the full pipe name.
func (e *Endpoint) Path() string { return e.path }

// Selector is the interface selector of an interface endpoint.
func (e *Endpoint) Selector() string { return e.selector }

// Network returns the net package network name used to listen on or dial e.
// Interface endpoints resolve to TCP addresses.
func (e *Endpoint) Network() string {
	switch e.kind {
	case KindUnix:
		return "unix"
	case KindPipe:
		return "pipe"
	default:
		return "tcp"
	}
}

// IsWildcard reports whether e is a TCP endpoint on all interfaces.
func (e *Endpoint) IsWildcard() bool {
	if e.kind != KindTCP {
		return false
	}
	if e.host == "" {
		return true
	}
	addr, err := netip.ParseAddr(e.host)
	return err == nil && addr.IsUnspecified()
}

// String returns the canonical form of e, which Parse accepts.
func (e *Endpoint) String() string {
	switch e.kind {
	case KindTCP:
		return "tcp://" + net.JoinHostPort(e.host, strconv.Itoa(int(e.port)))
	case KindUnix:
		return "unix://" + e.path
	case KindPipe:
		return e.path
	case KindInterface:
		if e.selector == TailscaleSelector {
			return TailscaleSelector + ":" + strconv.Itoa(int(e.port))
		}
		return "iface:" + e.selector + ":" + strconv.Itoa(int(e.port))
	default:
		return e.kind.String()
	}
}

// Resolve returns the address to hand to the net package for e. TCP host
// names are returned unresolved so that DNS is consulted on every dial.
// Interface endpoints are looked up on first use and the result memoized;
// a failed lookup is not memoized and returns ErrInterfaceNotFound.
func (e *Endpoint) Resolve(ctx context.Context) (string, error) {
	switch e.kind {
	case KindTCP:
		return net.JoinHostPort(e.host, strconv.Itoa(int(e.port))), nil
	case KindUnix, KindPipe:
		return e.path, nil
	case KindInterface:
		return e.resolveInterface(ctx)
	default:
		return "", fmt.Errorf("resolve %s: unknown endpoint kind", e.kind)
	}
}

func (e *Endpoint) resolveInterface(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved != "" {
		return e.resolved, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ifaces, err := listInterfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	addr, ok := selectAddr(ifaces, e.selector)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInterfaceNotFound, e.selector)
	}

	e.resolved = net.JoinHostPort(addr.String(), strconv.Itoa(int(e.port)))
	return e.resolved, nil
}
