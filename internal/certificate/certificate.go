// Package certificate parses the three certificate kinds found on an
// entitled host: product certificates, entitlement certificates and the
// consumer identity certificate.
package certificate

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// ErrNoCertificate is returned when input holds no CERTIFICATE PEM block.
var ErrNoCertificate = errors.New("no CERTIFICATE block found")

const (
	blockCertificate     = "CERTIFICATE"
	blockEntitlementData = "ENTITLEMENT DATA"
)

// DateRange is a certificate validity window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range, inclusive.
func (d DateRange) Contains(t time.Time) bool {
	return !t.Before(d.Start) && !t.After(d.End)
}

// Valid reports whether the range contains the current time.
func (d DateRange) Valid() bool {
	return d.Contains(time.Now())
}

// Content is one repository an entitlement grants access to.
type Content struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Name           string   `json:"name"`
	Label          string   `json:"label"`
	Vendor         string   `json:"vendor"`
	Path           string   `json:"path"`
	GPGURL         string   `json:"gpg_url,omitempty"`
	Enabled        bool     `json:"enabled"`
	MetadataExpire int      `json:"metadata_expire,omitempty"`
	RequiredTags   []string `json:"required_tags,omitempty"`
	Arches         []string `json:"arches,omitempty"`
}

// Product describes an engineering product. Product certificates carry
// ProvidedTags; entitlement payloads carry Content.
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Version       string    `json:"version,omitempty"`
	Architectures []string  `json:"architectures,omitempty"`
	ProvidedTags  []string  `json:"provided_tags,omitempty"`
	Content       []Content `json:"content,omitempty"`
}

// blocks splits PEM input into the first certificate and any other blocks.
func blocks(data []byte) (*x509.Certificate, map[string][]byte, error) {
	var cert *x509.Certificate
	extra := make(map[string][]byte)

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == blockCertificate && cert == nil {
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing x509: %w", err)
			}
			cert = c
			continue
		}
		extra[block.Type] = block.Bytes
	}

	if cert == nil {
		return nil, nil, ErrNoCertificate
	}
	return cert, extra, nil
}

func validity(c *x509.Certificate) DateRange {
	return DateRange{Start: c.NotBefore, End: c.NotAfter}
}

func serial(c *x509.Certificate) int64 {
	if c.SerialNumber == nil {
		return 0
	}
	return c.SerialNumber.Int64()
}
