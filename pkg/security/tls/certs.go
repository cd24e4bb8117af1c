package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// ValidateCertificate checks that a loaded certificate has a parseable,
// currently valid leaf.
func ValidateCertificate(cert *tls.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if len(cert.Certificate) == 0 {
		return fmt.Errorf("certificate chain is empty")
	}

	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	return ValidateX509Certificate(x509Cert)
}

// ValidateX509Certificate validates an x509 certificate's validity window.
func ValidateX509Certificate(cert *x509.Certificate) error {
	now := time.Now()

	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	}

	return nil
}

// CheckCertificateExpiration returns the number of days until expiration and
// a warning string if fewer than 30 remain.
func CheckCertificateExpiration(notAfter time.Time) (daysUntilExpiry int, warning string) {
	daysUntilExpiry = int(time.Until(notAfter).Hours() / 24)
	if daysUntilExpiry < 30 {
		warning = fmt.Sprintf("certificate expires in %d days (on %s)",
			daysUntilExpiry, notAfter.Format("2006-01-02"))
	}
	return daysUntilExpiry, warning
}

// CertificateInfo is human-readable information about a certificate.
type CertificateInfo struct {
	Subject            string
	Issuer             string
	SerialNumber       string
	NotBefore          time.Time
	NotAfter           time.Time
	DNSNames           []string
	SignatureAlgorithm string
	PublicKeyAlgorithm string
}

// LeafInfo extracts information from a loaded certificate's leaf.
func LeafInfo(cert *tls.Certificate) (*CertificateInfo, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("certificate chain is empty")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &CertificateInfo{
		Subject:            x509Cert.Subject.String(),
		Issuer:             x509Cert.Issuer.String(),
		SerialNumber:       fmt.Sprintf("%x", x509Cert.SerialNumber),
		NotBefore:          x509Cert.NotBefore,
		NotAfter:           x509Cert.NotAfter,
		DNSNames:           x509Cert.DNSNames,
		SignatureAlgorithm: x509Cert.SignatureAlgorithm.String(),
		PublicKeyAlgorithm: x509Cert.PublicKeyAlgorithm.String(),
	}, nil
}
