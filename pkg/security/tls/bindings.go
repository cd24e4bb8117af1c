package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// ErrNoBinding is returned from the SNI callback when the presented server
// name has no certificate binding. The handshake fails with a generic alert;
// clients learn nothing about which hostnames are configured.
var ErrNoBinding = errors.New("tls: no certificate binding for server name")

// Binding associates one hostname with its certificate and key files.
type Binding struct {
	Hostname string
	CertFile string
	KeyFile  string
}

// certTable maps lower-cased hostnames to their loaded certificates.
type certTable map[string]*tls.Certificate

// Store holds the certificate bindings for all terminated hostnames.
//
// The loaded table is swapped atomically and wholesale on reload, never
// mutated in place, so in-flight handshakes always observe a complete,
// consistent table. A failed reload keeps the previous table.
type Store struct {
	bindings []Binding
	table    atomic.Pointer[certTable]
	logger   *slog.Logger
}

// NewStore creates a Store for the given bindings. Call Load before serving.
func NewStore(bindings []Binding) *Store {
	return &Store{
		bindings: bindings,
		logger:   slog.Default().With("component", "tls.store"),
	}
}

// Load reads and validates every binding's certificate pair and swaps the
// table in. If any pair fails to load or validate, the swap does not happen
// and the previous table (if any) stays live.
func (s *Store) Load() error {
	table := make(certTable, len(s.bindings))
	for _, b := range s.bindings {
		cert, err := tls.LoadX509KeyPair(b.CertFile, b.KeyFile)
		if err != nil {
			return fmt.Errorf("loading certificate for %q: %w", b.Hostname, err)
		}
		if err := ValidateCertificate(&cert); err != nil {
			return fmt.Errorf("certificate for %q: %w", b.Hostname, err)
		}
		s.logCertificate(b.Hostname, &cert)
		table[strings.ToLower(b.Hostname)] = &cert
	}
	s.table.Store(&table)
	return nil
}

// GetCertificate selects the certificate bound to the client-presented
// server name. It is the tls.Config.GetCertificate callback; the binding
// lookup is a single map read and completes without blocking.
func (s *Store) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	table := s.table.Load()
	if table == nil {
		return nil, ErrNoBinding
	}
	if cert, ok := (*table)[strings.ToLower(hello.ServerName)]; ok {
		return cert, nil
	}
	return nil, ErrNoBinding
}

// Bindings returns the configured bindings.
func (s *Store) Bindings() []Binding {
	return s.bindings
}

// Files returns the set of certificate and key file paths across all
// bindings, for the reload watcher.
func (s *Store) Files() []string {
	files := make([]string, 0, 2*len(s.bindings))
	for _, b := range s.bindings {
		files = append(files, b.CertFile, b.KeyFile)
	}
	return files
}

func (s *Store) logCertificate(hostname string, cert *tls.Certificate) {
	info, err := LeafInfo(cert)
	if err != nil {
		return
	}
	days, warning := CheckCertificateExpiration(info.NotAfter)
	if warning != "" {
		s.logger.Warn("certificate expiring soon",
			"hostname", hostname,
			"subject", info.Subject,
			"expires_in_days", days,
		)
	} else {
		s.logger.Info("certificate loaded",
			"hostname", hostname,
			"subject", info.Subject,
			"issuer", info.Issuer,
			"expires_in_days", days,
		)
	}
}
