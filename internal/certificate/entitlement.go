package certificate

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zlib"
)

// EntitlementVersion is the payload layout this package reads and writes.
const EntitlementVersion = "3.2"

// maxPayload bounds the decompressed entitlement payload.
const maxPayload = 16 << 20

// Order describes the subscription an entitlement was granted from.
type Order struct {
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	Number     string `json:"number,omitempty"`
	Quantity   int    `json:"quantity"`
	Contract   string `json:"contract,omitempty"`
	Account    string `json:"account,omitempty"`
	StackingID string `json:"stacking_id,omitempty"`
	VirtOnly   bool   `json:"virt_only,omitempty"`
}

// PoolRef identifies the pool backing an entitlement.
type PoolRef struct {
	ID string `json:"id"`
}

// EntitlementData is the JSON document carried, zlib compressed, in the
// ENTITLEMENT DATA block next to the certificate.
type EntitlementData struct {
	Consumer string    `json:"consumer"`
	Quantity int       `json:"quantity"`
	Order    Order     `json:"order"`
	Pool     PoolRef   `json:"pool"`
	Products []Product `json:"products"`
}

// EntitlementCertificate grants a consumer access to content.
type EntitlementCertificate struct {
	Serial   int64
	Version  string
	Validity DateRange
	EntitlementData

	// Path and KeyPath locate the certificate and its key when read from disk.
	Path    string
	KeyPath string
}

// Content returns every content set across all products.
func (c *EntitlementCertificate) Content() []Content {
	var out []Content
	for _, p := range c.Products {
		out = append(out, p.Content...)
	}
	return out
}

// ProvidesProduct reports whether the entitlement covers productID.
func (c *EntitlementCertificate) ProvidesProduct(productID string) bool {
	for _, p := range c.Products {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// ValidOn reports whether the certificate is valid at t.
func (c *EntitlementCertificate) ValidOn(t time.Time) bool {
	return c.Validity.Contains(t)
}

// ParseEntitlement parses a certificate followed by its ENTITLEMENT DATA block.
func ParseEntitlement(data []byte) (*EntitlementCertificate, error) {
	cert, extra, err := blocks(data)
	if err != nil {
		return nil, err
	}

	ec := &EntitlementCertificate{
		Serial:   serial(cert),
		Version:  EntitlementVersion,
		Validity: validity(cert),
	}
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidCertVersion) {
			ec.Version = extensionString(ext.Value)
		}
	}

	raw, ok := extra[blockEntitlementData]
	if !ok {
		return nil, fmt.Errorf("entitlement %d: missing %s block", ec.Serial, blockEntitlementData)
	}
	payload, err := decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("entitlement %d: %w", ec.Serial, err)
	}
	if err := json.Unmarshal(payload, &ec.EntitlementData); err != nil {
		return nil, fmt.Errorf("entitlement %d: decoding payload: %w", ec.Serial, err)
	}
	return ec, nil
}

// EncodeEntitlement renders a DER certificate and its payload in the PEM
// layout ParseEntitlement reads.
func EncodeEntitlement(der []byte, data EntitlementData) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := pem.Encode(&out, &pem.Block{Type: blockCertificate, Bytes: der}); err != nil {
		return nil, err
	}
	if err := pem.Encode(&out, &pem.Block{Type: blockEntitlementData, Bytes: compressed.Bytes()}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("opening payload: %w", err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(io.LimitReader(zr, maxPayload))
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return payload, nil
}
