package certdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/subctl/internal/certificate"
	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/output"
)

// legacyKey is the shared key file written by old clients.
const legacyKey = "key.pem"

// EntitlementDir holds <serial>.pem certificates and <serial>-key.pem keys.
type EntitlementDir struct {
	directory[*certificate.EntitlementCertificate]
}

// NewEntitlementDir returns a directory rooted at path.
func NewEntitlementDir(path string) *EntitlementDir {
	d := &EntitlementDir{}
	d.path = path
	d.parse = func(p string, data []byte) (*certificate.EntitlementCertificate, error) {
		ec, err := certificate.ParseEntitlement(data)
		if err != nil {
			return nil, err
		}
		ec.Path = p
		ec.KeyPath = d.keyPath(ec.Serial)
		return ec, nil
	}
	return d
}

func (d *EntitlementDir) certPath(serial int64) string {
	return filepath.Join(d.path, strconv.FormatInt(serial, 10)+pemSuffix)
}

func (d *EntitlementDir) keyPath(serial int64) string {
	return filepath.Join(d.path, strconv.FormatInt(serial, 10)+"-"+keySuffix)
}

// Serials returns the serial of every listed certificate.
func (d *EntitlementDir) Serials() (sets.Set[int64], error) {
	certs, err := d.List()
	if err != nil {
		return nil, err
	}
	out := sets.New[int64]()
	for _, c := range certs {
		out.Insert(c.Serial)
	}
	return out, nil
}

// Find returns the certificate with serial, or nil.
func (d *EntitlementDir) Find(serial int64) (*certificate.EntitlementCertificate, error) {
	certs, err := d.List()
	if err != nil {
		return nil, err
	}
	for _, c := range certs {
		if c.Serial == serial {
			return c, nil
		}
	}
	return nil, nil
}

// FindAllByProduct returns every certificate granting productID.
func (d *EntitlementDir) FindAllByProduct(productID string) ([]*certificate.EntitlementCertificate, error) {
	certs, err := d.List()
	if err != nil {
		return nil, err
	}
	var out []*certificate.EntitlementCertificate
	for _, c := range certs {
		if c.ProvidesProduct(productID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListValid returns certificates valid now that also have a readable key.
// A certificate with only the legacy shared key.pem gets that key copied
// to its per-serial name.
func (d *EntitlementDir) ListValid() ([]*certificate.EntitlementCertificate, error) {
	return d.listFiltered(func(c *certificate.EntitlementCertificate) bool {
		return d.checkKey(c) && c.Validity.Valid()
	})
}

// ListExpired returns certificates whose validity ended before now.
func (d *EntitlementDir) ListExpired() ([]*certificate.EntitlementCertificate, error) {
	now := time.Now()
	return d.listFiltered(func(c *certificate.EntitlementCertificate) bool {
		return now.After(c.Validity.End)
	})
}

func (d *EntitlementDir) listFiltered(keep func(*certificate.EntitlementCertificate) bool) ([]*certificate.EntitlementCertificate, error) {
	certs, err := d.List()
	if err != nil {
		return nil, err
	}
	var out []*certificate.EntitlementCertificate
	for _, c := range certs {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *EntitlementDir) checkKey(c *certificate.EntitlementCertificate) bool {
	if _, err := os.Stat(c.KeyPath); err == nil {
		return true
	}
	legacy, err := os.ReadFile(filepath.Join(d.path, legacyKey))
	if err != nil {
		return false
	}
	if err := writeAtomic(c.KeyPath, legacy, 0o600); err != nil {
		output.Warn("migrating legacy entitlement key", "serial", c.Serial, "err", err)
	}
	return true
}

// Write persists a certificate bundle as <serial>.pem and <serial>-key.pem.
func (d *EntitlementDir) Write(b core.CertBundle) error {
	if err := d.Create(); err != nil {
		return err
	}
	serial := b.Serial.Serial
	if err := writeAtomic(d.keyPath(serial), []byte(b.Key), 0o600); err != nil {
		return fmt.Errorf("writing key for %d: %w", serial, err)
	}
	if err := writeAtomic(d.certPath(serial), []byte(b.Cert), 0o644); err != nil {
		return fmt.Errorf("writing certificate %d: %w", serial, err)
	}
	d.Refresh()
	return nil
}

// Delete removes the certificate and key for serial. Missing files are fine.
func (d *EntitlementDir) Delete(serial int64) error {
	for _, p := range []string{d.certPath(serial), d.keyPath(serial)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", p, err)
		}
	}
	d.Refresh()
	return nil
}

// Archive moves every certificate and key into a timestamped directory
// below archiveDir and returns that directory. An empty directory is a no-op.
func (d *EntitlementDir) Archive(archiveDir string, now time.Time) (string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", d.path, err)
	}

	dst := filepath.Join(archiveDir, "entitlement-"+now.UTC().Format("20060102T150405Z"))
	moved := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != pemSuffix {
			continue
		}
		if moved == 0 {
			if err := os.MkdirAll(dst, 0o700); err != nil {
				return "", fmt.Errorf("creating archive %s: %w", dst, err)
			}
		}
		if err := os.Rename(filepath.Join(d.path, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return "", fmt.Errorf("archiving %s: %w", e.Name(), err)
		}
		moved++
	}
	d.Refresh()
	if moved == 0 {
		return "", nil
	}
	return dst, nil
}
