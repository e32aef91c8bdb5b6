package ssh

import (
	"bytes"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/die-net/pxx/internal/testutil"
)

type hostKeyUse struct {
	host    string
	key     int
	wantErr bool
}

func remoteFor(t *testing.T, host string) net.Addr {
	t.Helper()

	addr, err := net.ResolveTCPAddr("tcp", host)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

// trustedLogs returns the "trusted new ssh host key" records in out.
func trustedLogs(out string) []string {
	var lines []string
	for line := range strings.Lines(out) {
		if strings.Contains(line, `msg="trusted new ssh host key"`) {
			lines = append(lines, line)
		}
	}
	return lines
}

func knownHostsLines(t *testing.T, path string) int {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // Test path from t.TempDir().
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for line := range strings.Lines(string(data)) {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func TestHostKeyCallbackTrustOnFirstUse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		known       []hostKeyUse
		uses        []hostKeyUse
		wantLines   int
		wantTrusted []hostKeyUse
	}{
		{
			name:        "unknown host trusted and logged",
			uses:        []hostKeyUse{{host: "192.0.2.1:22"}},
			wantLines:   1,
			wantTrusted: []hostKeyUse{{host: "192.0.2.1:22"}},
		},
		{
			name:        "same key again in session is not appended twice",
			uses:        []hostKeyUse{{host: "192.0.2.1:22"}, {host: "192.0.2.1:22"}},
			wantLines:   1,
			wantTrusted: []hostKeyUse{{host: "192.0.2.1:22"}},
		},
		{
			name:        "second key in session rejected",
			uses:        []hostKeyUse{{host: "192.0.2.1:22"}, {host: "192.0.2.1:22", key: 1, wantErr: true}},
			wantLines:   1,
			wantTrusted: []hostKeyUse{{host: "192.0.2.1:22"}},
		},
		{
			name:      "key from file accepted silently",
			known:     []hostKeyUse{{host: "192.0.2.1:22"}},
			uses:      []hostKeyUse{{host: "192.0.2.1:22"}},
			wantLines: 1,
		},
		{
			name:      "key differing from file rejected",
			known:     []hostKeyUse{{host: "192.0.2.1:22"}},
			uses:      []hostKeyUse{{host: "192.0.2.1:22", key: 1, wantErr: true}},
			wantLines: 1,
		},
		{
			name:        "hosts trusted independently",
			uses:        []hostKeyUse{{host: "192.0.2.1:22"}, {host: "192.0.2.2:22", key: 1}},
			wantLines:   2,
			wantTrusted: []hostKeyUse{{host: "192.0.2.1:22"}, {host: "192.0.2.2:22", key: 1}},
		},
		{
			name:        "non-default port is a separate host",
			uses:        []hostKeyUse{{host: "192.0.2.1:22"}, {host: "192.0.2.1:2222", key: 1}},
			wantLines:   2,
			wantTrusted: []hostKeyUse{{host: "192.0.2.1:22"}, {host: "192.0.2.1:2222", key: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			keys := []ssh.Signer{testutil.GenerateSSHKey(t), testutil.GenerateSSHKey(t)}
			path := filepath.Join(t.TempDir(), "known_hosts")

			var seed strings.Builder
			for _, k := range tt.known {
				seed.WriteString(knownhosts.Line([]string{knownhosts.Normalize(k.host)}, keys[k.key].PublicKey()) + "\n")
			}
			if err := os.WriteFile(path, []byte(seed.String()), 0o600); err != nil {
				t.Fatal(err)
			}

			var logs bytes.Buffer
			cb, err := NewHostKeyCallback(path, slog.New(slog.NewTextHandler(&logs, nil)))
			if err != nil {
				t.Fatalf("NewHostKeyCallback: %v", err)
			}

			for i, u := range tt.uses {
				err := cb(u.host, remoteFor(t, u.host), keys[u.key].PublicKey())
				if (err != nil) != u.wantErr {
					t.Fatalf("use %d (%s key %d): err=%v wantErr=%v", i, u.host, u.key, err, u.wantErr)
				}
			}

			if got := knownHostsLines(t, path); got != tt.wantLines {
				t.Errorf("known_hosts has %d lines want %d", got, tt.wantLines)
			}

			trusted := trustedLogs(logs.String())
			if len(trusted) != len(tt.wantTrusted) {
				t.Fatalf("logged %d trusted keys want %d:\n%s", len(trusted), len(tt.wantTrusted), logs.String())
			}
			for i, want := range tt.wantTrusted {
				fp := ssh.FingerprintSHA256(keys[want.key].PublicKey())
				if !strings.Contains(trusted[i], "host="+want.host) || !strings.Contains(trusted[i], "fingerprint="+fp) {
					t.Errorf("log %d = %q want host %s fingerprint %s", i, trusted[i], want.host, fp)
				}
			}
		})
	}
}

func TestHostKeyCallbackPersistsAcrossLoads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "known_hosts")
	key, other := testutil.GenerateSSHKey(t), testutil.GenerateSSHKey(t)
	remote := remoteFor(t, "192.0.2.1:22")

	first, err := NewHostKeyCallback(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := first("192.0.2.1:22", remote, key.PublicKey()); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	second, err := NewHostKeyCallback(path, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if err := second("192.0.2.1:22", remote, key.PublicKey()); err != nil {
		t.Fatalf("reloaded key rejected: %v", err)
	}
	err = second("192.0.2.1:22", remote, other.PublicKey())
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("err=%v want host key mismatch", err)
	}
	if n := len(trustedLogs(logs.String())); n != 0 {
		t.Fatalf("reload logged %d new keys want 0", n)
	}
}

func TestHostKeyCallbackSetup(t *testing.T) {
	t.Parallel()

	t.Run("empty path skips checking", func(t *testing.T) {
		t.Parallel()

		cb, err := NewHostKeyCallback("", nil)
		if err != nil {
			t.Fatal(err)
		}
		key := testutil.GenerateSSHKey(t)
		if err := cb("example.com:22", remoteFor(t, "192.0.2.1:22"), key.PublicKey()); err != nil {
			t.Fatalf("insecure callback rejected a key: %v", err)
		}
	})

	t.Run("creates directory and file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "subdir", "known_hosts")
		if _, err := NewHostKeyCallback(path, nil); err != nil {
			t.Fatal(err)
		}
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatalf("known_hosts not created: %v", err)
		}
		if fi.Mode().Perm() != 0o600 {
			t.Errorf("mode %o want 600", fi.Mode().Perm())
		}
	})
}
