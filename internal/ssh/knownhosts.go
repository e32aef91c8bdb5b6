package ssh

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NewHostKeyCallback verifies host keys against the known_hosts file at
// path, creating the file and its directory if needed. An unknown host is
// trusted on first use and appended to the file. A known host presenting a
// different key is rejected. An empty path disables host key checking.
func NewHostKeyCallback(path string, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // User explicitly disabled host key checking.
	}
	if logger == nil {
		logger = slog.Default()
	}

	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("create known_hosts: %w", err)
	}
	_ = f.Close()

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}

	h := &hostKeys{path: path, check: check, logger: logger}
	return h.verify, nil
}

type hostKeys struct {
	path   string
	check  ssh.HostKeyCallback
	logger *slog.Logger

	mu sync.Mutex
	// added holds keys trusted since the file was loaded, which check
	// does not see, keyed by normalized host.
	added map[string]string
}

func (h *hostKeys) verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	err := h.check(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return err
	}
	if len(keyErr.Want) > 0 {
		return fmt.Errorf("host key mismatch for %s (possible MITM attack): %w", hostname, err)
	}

	host := knownhosts.Normalize(hostname)
	line := knownhosts.Line([]string{host}, key)

	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.added[host]; ok {
		if prev == line {
			return nil
		}
		return fmt.Errorf("host key mismatch for %s (possible MITM attack)", hostname)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // Path is from user config.
	if err != nil {
		return fmt.Errorf("open known_hosts: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write known_hosts: %w", err)
	}
	if h.added == nil {
		h.added = make(map[string]string)
	}
	h.added[host] = line

	h.logger.Info("trusted new ssh host key",
		"host", hostname,
		"type", key.Type(),
		"fingerprint", ssh.FingerprintSHA256(key),
		"known_hosts", h.path,
	)
	return nil
}
