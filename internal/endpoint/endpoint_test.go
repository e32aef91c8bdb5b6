package endpoint

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		kind     Kind
		host     string
		port     uint16
		path     string
		selector string
		wildcard bool
		wantErr  error
	}{
		{name: "host port", in: "localhost:3000", kind: KindTCP, host: "localhost", port: 3000},
		{name: "tcp scheme", in: "tcp://192.168.0.1:8080", kind: KindTCP, host: "192.168.0.1", port: 8080},
		{name: "scheme case-insensitive", in: "TCP://127.0.0.1:80", kind: KindTCP, host: "127.0.0.1", port: 80},
		{name: "ipv6 wildcard", in: "[::]:80", kind: KindTCP, host: "::", port: 80, wildcard: true},
		{name: "ipv4 wildcard", in: "0.0.0.0:80", kind: KindTCP, host: "0.0.0.0", port: 80, wildcard: true},
		{name: "empty host", in: ":8080", kind: KindTCP, port: 8080, wildcard: true},
		{name: "surrounding spaces", in: "  127.0.0.1:1 ", kind: KindTCP, host: "127.0.0.1", port: 1},
		{name: "unix", in: "unix:///var/run/docker.sock", kind: KindUnix, path: "/var/run/docker.sock"},
		{name: "unix relative", in: "unix://app.sock", kind: KindUnix, path: "app.sock"},
		{name: "tailscale", in: "tailscale:8080", kind: KindInterface, selector: TailscaleSelector, port: 8080},
		{name: "named interface", in: "iface:eth0:22", kind: KindInterface, selector: "eth0", port: 22},
		{name: "interface alias", in: "iface:eth0:1:22", kind: KindInterface, selector: "eth0:1", port: 22},

		{name: "empty", in: "", wantErr: ErrEmpty},
		{name: "unix without path", in: "unix://", wantErr: ErrEmpty},
		{name: "unknown scheme", in: "ftp://example.com:21", wantErr: ErrUnknownScheme},
		{name: "port out of range", in: "localhost:65536", wantErr: ErrInvalidPort},
		{name: "named port", in: "localhost:http", wantErr: ErrInvalidPort},
		{name: "tailscale without port", in: "tailscale:", wantErr: ErrInvalidPort},
		{name: "iface without port", in: "iface:eth0", wantErr: ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ep, err := Parse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v want %v", err, tt.wantErr)
				}
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("expected *ParseError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ep.Kind() != tt.kind || ep.host != tt.host || ep.Port() != tt.port ||
				ep.Path() != tt.path || ep.Selector() != tt.selector {
				t.Fatalf("got kind=%s host=%q port=%d path=%q selector=%q", ep.Kind(), ep.host, ep.Port(), ep.Path(), ep.Selector())
			}
			if ep.IsWildcard() != tt.wildcard {
				t.Fatalf("IsWildcard=%v want %v", ep.IsWildcard(), tt.wildcard)
			}
		})
	}
}

func TestParsePipe(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`\\.\pipe\docker_engine`, "pipe://docker_engine"} {
		ep, err := Parse(in)
		if !PipeSupported {
			if !errors.Is(err, ErrUnsupported) {
				t.Fatalf("%s: err=%v want ErrUnsupported", in, err)
			}
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if ep.Kind() != KindPipe || ep.Path() != `\\.\pipe\docker_engine` {
			t.Fatalf("%s: got kind=%s path=%q", in, ep.Kind(), ep.Path())
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"localhost:3000",
		"[::]:80",
		"[2001:db8::1]:443",
		"unix:///tmp/a b.sock",
		"tailscale:8080",
		"iface:wg0:51820",
	} {
		ep, err := Parse(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		again, err := Parse(ep.String())
		if err != nil {
			t.Fatalf("%s: reparse %q: %v", in, ep.String(), err)
		}
		if again.Kind() != ep.Kind() || again.host != ep.host || again.Port() != ep.Port() ||
			again.Path() != ep.Path() || again.Selector() != ep.Selector() {
			t.Fatalf("%s: round trip %q changed endpoint", in, ep.String())
		}
	}
}

func TestResolveConcrete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"example.com:80", "example.com:80"},
		{"[::]:80", "[::]:80"},
		{"unix:///run/x.sock", "/run/x.sock"},
	}
	for _, tt := range tests {
		ep, err := Parse(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		got, err := ep.Resolve(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Fatalf("Resolve(%s)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestSelectAddr(t *testing.T) {
	t.Parallel()

	ifaces := []hostInterface{
		{Name: "lo", Up: true, Addrs: []netip.Addr{netip.MustParseAddr("127.0.0.1")}},
		{Name: "eth0", Up: true, Addrs: []netip.Addr{
			netip.MustParseAddr("fe80::1"),
			netip.MustParseAddr("2001:db8::5"),
			netip.MustParseAddr("192.0.2.10"),
		}},
		{Name: "wg0", Up: false, Addrs: []netip.Addr{netip.MustParseAddr("10.9.0.1")}},
		{Name: "tailscale0", Up: true, Addrs: []netip.Addr{
			netip.MustParseAddr("fd7a:115c:a1e0::1"),
			netip.MustParseAddr("100.101.102.103"),
		}},
	}

	tests := []struct {
		selector string
		want     string
	}{
		{TailscaleSelector, "100.101.102.103"},
		{"eth0", "192.0.2.10"},
		{"lo", "127.0.0.1"},
		{"wg0", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		got, ok := selectAddr(ifaces, tt.selector)
		if tt.want == "" {
			if ok {
				t.Fatalf("%s: expected no address, got %s", tt.selector, got)
			}
			continue
		}
		if !ok || got.String() != tt.want {
			t.Fatalf("%s: got %s ok=%v want %s", tt.selector, got, ok, tt.want)
		}
	}

	v6only := []hostInterface{{Name: "tailscale0", Up: true, Addrs: []netip.Addr{netip.MustParseAddr("fd7a:115c:a1e0::9")}}}
	if got, ok := selectAddr(v6only, TailscaleSelector); !ok || got.String() != "fd7a:115c:a1e0::9" {
		t.Fatalf("v6 only: got %s ok=%v", got, ok)
	}
}

// Not parallel: swaps the package-level interface lister.
func TestResolveInterfaceMemoized(t *testing.T) {
	calls := 0
	up := false
	orig := listInterfaces
	listInterfaces = func() ([]hostInterface, error) {
		calls++
		if !up {
			return nil, nil
		}
		return []hostInterface{{Name: "tailscale0", Up: true, Addrs: []netip.Addr{netip.MustParseAddr("100.64.1.2")}}}, nil
	}
	t.Cleanup(func() { listInterfaces = orig })

	ep, err := Parse("tailscale:8080")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := ep.Resolve(ctx); !errors.Is(err, ErrInterfaceNotFound) {
		t.Fatalf("err=%v want ErrInterfaceNotFound", err)
	}

	up = true
	got, err := ep.Resolve(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "100.64.1.2:8080" {
		t.Fatalf("got %q", got)
	}
	if _, err := ep.Resolve(ctx); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 interface listings, got %d", calls)
	}

	other, err := Parse("tailscale:8080")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Resolve(ctx); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("memoization leaked across endpoints: %d listings", calls)
	}
}
