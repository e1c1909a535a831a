// Package identity reads and persists the consumer identity: the
// certificate and key that authenticate this system to the server.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/opmodel/subctl/internal/certificate"
	"github.com/opmodel/subctl/internal/core"
	oerrors "github.com/opmodel/subctl/internal/errors"
)

const (
	certFile = "cert.pem"
	keyFile  = "key.pem"
)

// Identity is the parsed consumer identity.
type Identity struct {
	// UUID is the consumer UUID, taken from the certificate subject CN.
	UUID     string
	Serial   int64
	Validity certificate.DateRange
	CertPEM  string
	KeyPEM   string
}

// Expired reports whether the identity certificate is past its end date.
func (i *Identity) Expired(now time.Time) bool {
	return now.After(i.Validity.End)
}

// Parse builds an Identity from PEM text. The subject CN must be a UUID.
func Parse(certPEM, keyPEM []byte) (*Identity, error) {
	cert, _, err := certificateBlocks(certPEM)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(cert.Subject.CommonName)
	if err != nil {
		return nil, fmt.Errorf("identity subject %q is not a consumer uuid: %w", cert.Subject.CommonName, err)
	}

	var serial int64
	if cert.SerialNumber != nil {
		serial = cert.SerialNumber.Int64()
	}

	return &Identity{
		UUID:     id.String(),
		Serial:   serial,
		Validity: certificate.DateRange{Start: cert.NotBefore, End: cert.NotAfter},
		CertPEM:  string(certPEM),
		KeyPEM:   string(keyPEM),
	}, nil
}

// Store is the consumer certificate directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// CertPath returns the identity certificate path.
func (s *Store) CertPath() string {
	return filepath.Join(s.dir, certFile)
}

// KeyPath returns the identity key path.
func (s *Store) KeyPath() string {
	return filepath.Join(s.dir, keyFile)
}

// Registered reports whether both identity files exist.
func (s *Store) Registered() bool {
	for _, p := range []string{s.CertPath(), s.KeyPath()} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Read loads the identity. Missing files yield ErrNotRegistered.
func (s *Store) Read() (*Identity, error) {
	certPEM, err := os.ReadFile(s.CertPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oerrors.NewNotRegisteredError(s.CertPath())
		}
		return nil, fmt.Errorf("reading identity certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(s.KeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, oerrors.NewNotRegisteredError(s.KeyPath())
		}
		return nil, fmt.Errorf("reading identity key: %w", err)
	}
	return Parse(certPEM, keyPEM)
}

// Write persists an identity certificate issued by the server.
func (s *Store) Write(ic core.IdentityCert) error {
	if _, err := Parse([]byte(ic.Cert), []byte(ic.Key)); err != nil {
		return fmt.Errorf("refusing to write identity: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}
	if err := os.WriteFile(s.KeyPath(), []byte(ic.Key), 0o600); err != nil {
		return fmt.Errorf("writing identity key: %w", err)
	}
	if err := os.WriteFile(s.CertPath(), []byte(ic.Cert), 0o644); err != nil {
		return fmt.Errorf("writing identity certificate: %w", err)
	}
	return nil
}

// Delete removes the identity files. Missing files are fine.
func (s *Store) Delete() error {
	for _, p := range []string{s.CertPath(), s.KeyPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", p, err)
		}
	}
	return nil
}

// Archive moves the identity files below archiveDir and returns the
// destination, or "" when nothing was registered.
func (s *Store) Archive(archiveDir string, now time.Time) (string, error) {
	if !s.Registered() {
		return "", nil
	}
	dst := filepath.Join(archiveDir, "consumer-"+now.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return "", fmt.Errorf("creating archive %s: %w", dst, err)
	}
	for _, name := range []string{certFile, keyFile} {
		if err := os.Rename(filepath.Join(s.dir, name), filepath.Join(dst, name)); err != nil {
			return "", fmt.Errorf("archiving %s: %w", name, err)
		}
	}
	return dst, nil
}
