// Package repofile reads and writes the yum/dnf repository file generated
// from entitlement content.
package repofile

import (
	"strconv"
	"strings"

	"github.com/opmodel/subctl/internal/certificate"
)

// property describes how a repo key is reconciled against a regenerated
// definition. Mutable keys that are already set locally win.
type property struct {
	mutable bool
	def     string
}

var properties = map[string]property{
	"name":            {false, ""},
	"baseurl":         {false, ""},
	"enabled":         {true, "1"},
	"gpgcheck":        {true, "1"},
	"gpgkey":          {false, ""},
	"sslverify":       {true, "1"},
	"sslcacert":       {false, ""},
	"sslclientkey":    {false, ""},
	"sslclientcert":   {false, ""},
	"metadata_expire": {true, ""},
	"ui_repoid_vars":  {false, ""},
}

// defaultedKeys are filled with their default when generation leaves them unset.
var defaultedKeys = []string{"enabled", "gpgcheck", "sslverify"}

// propertyOf returns the rule for key. Unknown keys are mutable.
func propertyOf(key string) property {
	if p, ok := properties[key]; ok {
		return p
	}
	return property{mutable: true}
}

// Repo is one section of the repository file. Keys keep insertion order.
type Repo struct {
	ID     string
	order  []string
	values map[string]string
}

// NewRepo returns an empty repo. Characters yum rejects in ids become '-'.
func NewRepo(id string) *Repo {
	return &Repo{ID: cleanID(id), values: map[string]string{}}
}

func cleanID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Get returns the value for key.
func (r *Repo) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key, or "".
func (r *Repo) Value(key string) string {
	return r.values[key]
}

// Set assigns key, appending it to the key order when new.
func (r *Repo) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.order = append(r.order, key)
	}
	r.values[key] = value
}

// Delete removes key.
func (r *Repo) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in order.
func (r *Repo) Keys() []string {
	return append([]string(nil), r.order...)
}

// Name returns the human readable repo name.
func (r *Repo) Name() string {
	return r.values["name"]
}

// FromContent builds the repo definition for one yum content set of an
// entitlement certificate.
func FromContent(c certificate.Content, ec *certificate.EntitlementCertificate, baseURL, caCert string) *Repo {
	r := NewRepo(c.Label)
	r.Set("name", c.Name)
	if c.Enabled {
		r.Set("enabled", "1")
	} else {
		r.Set("enabled", "0")
	}

	r.Set("baseurl", urlJoin(baseURL, c.Path))
	var vars []string
	for _, part := range strings.Split(r.Value("baseurl"), "/") {
		if strings.HasPrefix(part, "$") {
			vars = append(vars, part[1:])
		}
	}
	if len(vars) > 0 {
		r.Set("ui_repoid_vars", strings.Join(vars, " "))
	}

	if c.GPGURL == "" {
		r.Set("gpgkey", "")
		r.Set("gpgcheck", "0")
	} else {
		r.Set("gpgkey", urlJoin(baseURL, c.GPGURL))
	}

	if ec != nil {
		r.Set("sslclientkey", ec.KeyPath)
		r.Set("sslclientcert", ec.Path)
	}
	r.Set("sslcacert", caCert)
	if c.MetadataExpire > 0 {
		r.Set("metadata_expire", strconv.Itoa(c.MetadataExpire))
	}

	for _, key := range defaultedKeys {
		if _, ok := r.values[key]; !ok {
			r.Set(key, properties[key].def)
		}
	}
	return r
}

// urlJoin joins a content path onto base unless it is already absolute.
func urlJoin(base, path string) string {
	if strings.Contains(path, "://") || base == "" {
		return path
	}
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Update reconciles existing against a freshly generated definition and
// returns the number of keys changed. Mutable keys are only filled when
// missing locally; immutable keys always track fresh and are removed when
// fresh leaves them empty.
func Update(existing, fresh *Repo) int {
	keys := existing.Keys()
	for _, k := range fresh.order {
		if _, ok := existing.values[k]; !ok {
			keys = append(keys, k)
		}
	}

	changes := 0
	for _, key := range keys {
		newVal, hasNew := fresh.values[key]
		oldVal, hasOld := existing.values[key]

		if propertyOf(key).mutable {
			if hasNew && newVal != "" && oldVal == "" {
				existing.Set(key, newVal)
				changes++
			}
			continue
		}

		if !hasNew || strings.TrimSpace(newVal) == "" {
			if hasOld {
				existing.Delete(key)
				changes++
			}
			continue
		}
		if hasOld && oldVal == newVal {
			continue
		}
		existing.Set(key, newVal)
		changes++
	}
	return changes
}
