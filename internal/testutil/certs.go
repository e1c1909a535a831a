package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/opmodel/subctl/internal/certificate"
)

// CertOptions shapes a generated self-signed certificate.
type CertOptions struct {
	Serial     int64
	CommonName string
	NotBefore  time.Time
	NotAfter   time.Time
	Extensions []pkix.Extension
}

func (o CertOptions) withDefaults() CertOptions {
	if o.Serial == 0 {
		o.Serial = 1
	}
	if o.CommonName == "" {
		o.CommonName = "subctl-test"
	}
	if o.NotBefore.IsZero() {
		o.NotBefore = time.Now().Add(-time.Hour)
	}
	if o.NotAfter.IsZero() {
		o.NotAfter = time.Now().Add(365 * 24 * time.Hour)
	}
	return o
}

// Certificate generates a self-signed certificate and returns its DER bytes
// together with PEM encoded certificate and key.
func Certificate(t *testing.T, opts CertOptions) (der, certPEM, keyPEM []byte) {
	t.Helper()
	opts = opts.withDefaults()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:    big.NewInt(opts.Serial),
		Subject:         pkix.Name{CommonName: opts.CommonName},
		NotBefore:       opts.NotBefore,
		NotAfter:        opts.NotAfter,
		ExtraExtensions: opts.Extensions,
	}
	der, err = x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return der, certPEM, keyPEM
}

// IdentityPEM generates a consumer identity certificate for uuid.
func IdentityPEM(t *testing.T, uuid string, serial int64) (certPEM, keyPEM []byte) {
	t.Helper()
	_, certPEM, keyPEM = Certificate(t, CertOptions{Serial: serial, CommonName: uuid})
	return certPEM, keyPEM
}

// ProductPEM generates a product certificate describing products.
func ProductPEM(t *testing.T, serial int64, products ...certificate.Product) []byte {
	t.Helper()
	exts, err := certificate.ProductExtensions("1.0", products...)
	if err != nil {
		t.Fatalf("building product extensions: %v", err)
	}
	_, certPEM, _ := Certificate(t, CertOptions{Serial: serial, Extensions: exts})
	return certPEM
}

// EntitlementPEM generates an entitlement certificate carrying data.
func EntitlementPEM(t *testing.T, opts CertOptions, data certificate.EntitlementData) (certPEM, keyPEM []byte) {
	t.Helper()
	der, _, keyPEM := Certificate(t, opts)
	certPEM, err := certificate.EncodeEntitlement(der, data)
	if err != nil {
		t.Fatalf("encoding entitlement: %v", err)
	}
	return certPEM, keyPEM
}

// YumContent returns an enabled yum content set requiring tags.
func YumContent(id, label string, tags ...string) certificate.Content {
	return certificate.Content{
		ID:           id,
		Type:         "yum",
		Name:         label + " name",
		Label:        label,
		Vendor:       "Red Hat",
		Path:         "/content/dist/" + label,
		GPGURL:       "file:///etc/pki/rpm-gpg/RPM-GPG-KEY-redhat-release",
		Enabled:      true,
		RequiredTags: tags,
	}
}
