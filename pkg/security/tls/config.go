package tls

import (
	"crypto/tls"
	"fmt"

	"mercator-hq/ganymede/pkg/config"
)

// ParseMinVersion maps a configured version string to the crypto/tls
// constant. Versions below 1.2 are not offered at all.
func ParseMinVersion(version string) (uint16, error) {
	switch version {
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min version %q (must be \"1.2\" or \"1.3\")", version)
	}
}

// ParseCipherSuites resolves configured cipher suite names against the
// suites the runtime actually implements and considers secure. Unknown or
// insecure names are a configuration error. An empty list selects Go's
// defaults.
func ParseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}

	byName := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		byName[suite.Name] = suite.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown or insecure cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BuildServerConfig assembles the tls.Config for the encrypted listener:
// SNI-driven certificate selection from the store, validated minimum
// version and cipher suites, and ALPN offering HTTP/2 and HTTP/1.1.
func BuildServerConfig(store *Store, cfg config.TLSConfig) (*tls.Config, error) {
	minVersion, err := ParseMinVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	suites, err := ParseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		GetCertificate: store.GetCertificate,
		MinVersion:     minVersion,
		CipherSuites:   suites,
		NextProtos:     []string{"h2", "http/1.1"},
	}, nil
}
