// Package core defines the records exchanged with the entitlement server.
//
// The server speaks JSON; these types give each payload an explicit shape and
// validate it on decode so the rest of the pipeline never handles raw maps.
package core

import (
	"encoding/json"
	"fmt"
)

// Unlimited is the quantity sentinel the server uses for pools with no cap.
const Unlimited = -1

// Attribute is a name/value pair attached to a pool or its product.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProvidedProduct is a product made available by a pool's subscription.
type ProvidedProduct struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
}

// Pool is a server-side record of entitlements available for a product.
type Pool struct {
	ID                string            `json:"id"`
	ProductID         string            `json:"productId"`
	ProductName       string            `json:"productName"`
	Quantity          int               `json:"quantity"`
	Consumed          int               `json:"consumed"`
	StartDate         Timestamp         `json:"startDate"`
	EndDate           Timestamp         `json:"endDate"`
	ProvidedProducts  []ProvidedProduct `json:"providedProducts"`
	Attributes        []Attribute       `json:"attributes"`
	ProductAttributes []Attribute       `json:"productAttributes"`
	StackID           string            `json:"stackId,omitempty"`
	ContractNumber    string            `json:"contractNumber,omitempty"`
}

// UnmarshalJSON decodes a pool and rejects records missing their identity or
// carrying a quantity below the unlimited sentinel.
func (p *Pool) UnmarshalJSON(data []byte) error {
	type rawPool Pool
	var raw rawPool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pool := Pool(raw)
	if err := pool.Validate(); err != nil {
		return err
	}
	*p = pool
	return nil
}

// Validate checks the fields every pool must carry.
func (p *Pool) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pool: missing id")
	}
	if p.ProductID == "" {
		return fmt.Errorf("pool %s: missing productId", p.ID)
	}
	if p.Quantity < Unlimited {
		return fmt.Errorf("pool %s: invalid quantity %d", p.ID, p.Quantity)
	}
	if p.Consumed < 0 {
		return fmt.Errorf("pool %s: invalid consumed %d", p.ID, p.Consumed)
	}
	return nil
}

// IsUnlimited reports whether the pool has no quantity cap.
func (p *Pool) IsUnlimited() bool {
	return p.Quantity == Unlimited
}

// Attribute returns the value of the named pool attribute.
func (p *Pool) Attribute(name string) (string, bool) {
	return lookupAttribute(p.Attributes, name)
}

// ProductAttribute returns the value of the named product attribute.
func (p *Pool) ProductAttribute(name string) (string, bool) {
	return lookupAttribute(p.ProductAttributes, name)
}

// StackingID returns the stacking id from the product attributes, falling
// back to the top-level stackId field.
func (p *Pool) StackingID() string {
	if v, ok := p.ProductAttribute("stacking_id"); ok {
		return v
	}
	return p.StackID
}

// VirtOnly reports whether the pool is restricted to virtual guests.
func (p *Pool) VirtOnly() bool {
	v, ok := p.Attribute("virt_only")
	return ok && v == "true"
}

// ProvidedIDs returns the ids of all products the pool provides.
func (p *Pool) ProvidedIDs() []string {
	ids := make([]string, 0, len(p.ProvidedProducts))
	for _, prod := range p.ProvidedProducts {
		ids = append(ids, prod.ProductID)
	}
	return ids
}

func lookupAttribute(attrs []Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
