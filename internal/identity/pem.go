package identity

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/opmodel/subctl/internal/certificate"
)

func certificateBlocks(data []byte) (*x509.Certificate, []byte, error) {
	block, rest := pem.Decode(data)
	for block != nil && block.Type != "CERTIFICATE" {
		block, rest = pem.Decode(rest)
	}
	if block == nil {
		return nil, nil, certificate.ErrNoCertificate
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing identity certificate: %w", err)
	}
	return cert, rest, nil
}
