package certificate

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Red Hat OID namespace for product extensions: <root>.<productID>.<field>.
var (
	oidProductRoot  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 2312, 9, 1}
	oidCertVersion  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 2312, 9, 6}
	productFieldMap = map[int]func(*Product, string){
		1: func(p *Product, v string) { p.Name = v },
		2: func(p *Product, v string) { p.Version = v },
		3: func(p *Product, v string) { p.Architectures = splitList(v) },
		4: func(p *Product, v string) { p.ProvidedTags = splitList(v) },
	}
)

// ProductCertificate is an installed product's certificate.
type ProductCertificate struct {
	Serial   int64
	Version  string
	Validity DateRange
	Products []Product

	// Path is the file the certificate was read from, if any.
	Path string
}

// Product returns the first product, which identifies the certificate.
func (c *ProductCertificate) Product() (Product, bool) {
	if len(c.Products) == 0 {
		return Product{}, false
	}
	return c.Products[0], true
}

// ParseProduct parses a PEM encoded product certificate.
func ParseProduct(data []byte) (*ProductCertificate, error) {
	cert, _, err := blocks(data)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Product)
	pc := &ProductCertificate{
		Serial:   serial(cert),
		Validity: validity(cert),
	}

	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidCertVersion) {
			pc.Version = extensionString(ext.Value)
			continue
		}
		id, field, ok := productOID(ext.Id)
		if !ok {
			continue
		}
		set, ok := productFieldMap[field]
		if !ok {
			continue
		}
		p, ok := byID[id]
		if !ok {
			p = &Product{ID: id}
			byID[id] = p
		}
		set(p, extensionString(ext.Value))
	}

	if len(byID) == 0 {
		return nil, fmt.Errorf("certificate %d carries no product extensions", pc.Serial)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pc.Products = append(pc.Products, *byID[id])
	}
	return pc, nil
}

// ProductExtensions builds the x509 extensions that describe p, plus the
// certificate version extension when version is non-empty.
func ProductExtensions(version string, products ...Product) ([]pkix.Extension, error) {
	var exts []pkix.Extension
	add := func(oid asn1.ObjectIdentifier, v string) error {
		raw, err := asn1.MarshalWithParams(v, "utf8")
		if err != nil {
			return err
		}
		exts = append(exts, pkix.Extension{Id: oid, Value: raw})
		return nil
	}

	if version != "" {
		if err := add(oidCertVersion, version); err != nil {
			return nil, err
		}
	}
	for _, p := range products {
		var id int
		if _, err := fmt.Sscanf(p.ID, "%d", &id); err != nil {
			return nil, fmt.Errorf("product id %q is not numeric", p.ID)
		}
		fields := map[int]string{
			1: p.Name,
			2: p.Version,
			3: strings.Join(p.Architectures, ","),
			4: strings.Join(p.ProvidedTags, ","),
		}
		for field := 1; field <= 4; field++ {
			oid := append(append(asn1.ObjectIdentifier{}, oidProductRoot...), id, field)
			if err := add(oid, fields[field]); err != nil {
				return nil, err
			}
		}
	}
	return exts, nil
}

// productOID matches <root>.<id>.<field>.
func productOID(oid asn1.ObjectIdentifier) (string, int, bool) {
	if len(oid) != len(oidProductRoot)+2 {
		return "", 0, false
	}
	for i, v := range oidProductRoot {
		if oid[i] != v {
			return "", 0, false
		}
	}
	return fmt.Sprintf("%d", oid[len(oid)-2]), oid[len(oid)-1], true
}

// extensionString decodes an ASN.1 string value, falling back to the raw bytes.
func extensionString(raw []byte) string {
	var s string
	if _, err := asn1.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidOn reports whether the certificate is valid at t.
func (c *ProductCertificate) ValidOn(t time.Time) bool {
	return c.Validity.Contains(t)
}
