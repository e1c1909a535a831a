package core

// Serial wraps a certificate serial number as the server encodes it.
type Serial struct {
	Serial int64 `json:"serial"`
}

// IdentityCert is the consumer identity certificate as returned by the server.
type IdentityCert struct {
	Key    string `json:"key"`
	Cert   string `json:"cert"`
	Serial Serial `json:"serial"`
}

// Consumer is the server's view of this registered system.
type Consumer struct {
	UUID     string        `json:"uuid"`
	Name     string        `json:"name"`
	Autoheal bool          `json:"autoheal"`
	IDCert   *IdentityCert `json:"idCert,omitempty"`
	Owner    *Owner        `json:"owner,omitempty"`
}

// Owner is the organization a consumer is registered to.
type Owner struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

// CertBundle is an entitlement certificate and its private key as PEM text.
type CertBundle struct {
	Key    string `json:"key"`
	Cert   string `json:"cert"`
	Serial Serial `json:"serial"`
}

// Compliance status values reported by the server.
const (
	ComplianceValid   = "valid"
	ComplianceInvalid = "invalid"
	CompliancePartial = "partial"
)

// Compliance is the server-computed compliance for a point in time.
type Compliance struct {
	Status                     string              `json:"status"`
	Compliant                  bool                `json:"compliant"`
	Date                       Timestamp           `json:"date"`
	CompliantUntil             *Timestamp          `json:"compliantUntil,omitempty"`
	NonCompliantProducts       []string            `json:"nonCompliantProducts"`
	PartiallyCompliantProducts map[string][]string `json:"partiallyCompliantProducts"`
	PartialStacks              map[string][]string `json:"partialStacks"`
	CompliantProducts          map[string][]string `json:"compliantProducts"`
}

// PartiallyValid reports whether the product is only partially covered.
func (c *Compliance) PartiallyValid(productID string) bool {
	if c == nil {
		return false
	}
	_, ok := c.PartiallyCompliantProducts[productID]
	return ok
}

// PartialStack reports whether the stack is only partially covered.
func (c *Compliance) PartialStack(stackID string) bool {
	if c == nil || stackID == "" {
		return false
	}
	_, ok := c.PartialStacks[stackID]
	return ok
}

// IsCompliant reports whether the status is fully valid.
func (c *Compliance) IsCompliant() bool {
	return c != nil && c.Status == ComplianceValid
}
