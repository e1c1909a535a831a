package certdir

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/subctl/internal/certificate"
	"github.com/opmodel/subctl/internal/core"
)

// ProductDir holds installed product certificates.
type ProductDir struct {
	directory[*certificate.ProductCertificate]
}

// NewProductDir returns a directory rooted at path.
func NewProductDir(path string) *ProductDir {
	d := &ProductDir{}
	d.path = path
	d.parse = func(p string, data []byte) (*certificate.ProductCertificate, error) {
		pc, err := certificate.ParseProduct(data)
		if err != nil {
			return nil, err
		}
		pc.Path = p
		return pc, nil
	}
	return d
}

// ListValid returns product certificates valid now.
func (d *ProductDir) ListValid() ([]*certificate.ProductCertificate, error) {
	certs, err := d.List()
	if err != nil {
		return nil, err
	}
	var out []*certificate.ProductCertificate
	for _, c := range certs {
		if c.Validity.Valid() {
			out = append(out, c)
		}
	}
	return out, nil
}

// FindByProduct returns the first certificate describing productID, or nil.
func (d *ProductDir) FindByProduct(productID string) (*certificate.ProductCertificate, error) {
	certs, err := d.List()
	if err != nil {
		return nil, err
	}
	for _, c := range certs {
		for _, p := range c.Products {
			if p.ID == productID {
				return c, nil
			}
		}
	}
	return nil, nil
}

// ProvidedTags returns the union of tags provided by valid product certificates.
func (d *ProductDir) ProvidedTags() (sets.Set[string], error) {
	certs, err := d.ListValid()
	if err != nil {
		return nil, err
	}
	tags := sets.New[string]()
	for _, c := range certs {
		for _, p := range c.Products {
			tags.Insert(p.ProvidedTags...)
		}
	}
	return tags, nil
}

// InstalledProductIDs returns the id of every installed product.
func (d *ProductDir) InstalledProductIDs() (sets.Set[string], error) {
	products, err := d.InstalledProducts()
	if err != nil {
		return nil, err
	}
	ids := sets.New[string]()
	for _, p := range products {
		ids.Insert(p.ProductID)
	}
	return ids, nil
}

// InstalledProducts describes every installed product, sorted by id.
// A product appearing in several certificates is reported once.
func (d *ProductDir) InstalledProducts() ([]core.InstalledProduct, error) {
	certs, err := d.List()
	if err != nil {
		return nil, err
	}
	seen := sets.New[string]()
	var out []core.InstalledProduct
	for _, c := range certs {
		for _, p := range c.Products {
			if seen.Has(p.ID) {
				continue
			}
			seen.Insert(p.ID)
			arch := ""
			if len(p.Architectures) > 0 {
				arch = p.Architectures[0]
			}
			out = append(out, core.InstalledProduct{
				ProductID:   p.ID,
				ProductName: p.Name,
				Version:     p.Version,
				Arch:        arch,
			})
		}
	}
	core.SortInstalledProducts(out)
	return out, nil
}
