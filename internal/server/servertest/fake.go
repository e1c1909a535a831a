// Package servertest provides an in-memory server.Server for tests.
package servertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/server"
)

// Method names accepted by Fail.
const (
	MethodGetConsumer             = "GetConsumer"
	MethodGetCertificateSerials   = "GetCertificateSerials"
	MethodGetCertificates         = "GetCertificates"
	MethodSupportsResource        = "SupportsResource"
	MethodUpdateFacts             = "UpdateFacts"
	MethodUpdatePackageProfile    = "UpdatePackageProfile"
	MethodUpdateInstalledProducts = "UpdateInstalledProducts"
	MethodGetCompliance           = "GetCompliance"
	MethodBind                    = "Bind"
	MethodGetOwner                = "GetOwner"
	MethodGetPools                = "GetPools"
)

// Fake is a scriptable server. Zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	consumer  core.Consumer
	owner     core.Owner
	bundles   map[int64]core.CertBundle
	resources map[string]bool
	errs      map[string]error
	calls     []string

	// ComplianceFunc answers GetCompliance. Nil reports valid.
	ComplianceFunc func(on time.Time) *core.Compliance

	// BindFunc runs on Bind, typically issuing new certificates via AddCert.
	BindFunc func(f *Fake, on time.Time)

	// Pools and AllPools answer GetPools without and with ListAll.
	Pools    []core.Pool
	AllPools []core.Pool

	// Recorded uploads.
	Facts             map[string]string
	Packages          []core.Package
	InstalledProducts []core.InstalledProduct
	Binds             []time.Time
	PoolQueries       []server.PoolQuery
}

var _ server.Server = (*Fake)(nil)

// New returns a fake serving consumer uuid with the packages resource.
func New(uuid string) *Fake {
	return &Fake{
		consumer:  core.Consumer{UUID: uuid, Name: "test-system", Autoheal: true},
		owner:     core.Owner{ID: "owner-1", Key: "acme", DisplayName: "ACME"},
		bundles:   map[int64]core.CertBundle{},
		resources: map[string]bool{server.ResourcePackages: true},
		errs:      map[string]error{},
	}
}

// SetConsumer replaces the consumer record.
func (f *Fake) SetConsumer(c core.Consumer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumer = c
}

// SetResource toggles a root resource.
func (f *Fake) SetResource(name string, supported bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[name] = supported
}

// Fail makes method return err until cleared with a nil err.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// AddCert issues a certificate bundle.
func (f *Fake) AddCert(b core.CertBundle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles[b.Serial.Serial] = b
}

// RemoveCert revokes a certificate.
func (f *Fake) RemoveCert(serial int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bundles, serial)
}

// Calls returns the methods invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how often method was invoked.
func (f *Fake) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// enter records the call and returns the scripted error, with f.mu held.
func (f *Fake) enter(method string) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	return f.errs[method]
}

func (f *Fake) GetConsumer(_ context.Context, _ string) (*core.Consumer, error) {
	err := f.enter(MethodGetConsumer)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := f.consumer
	return &c, nil
}

func (f *Fake) GetCertificateSerials(_ context.Context, _ string) ([]int64, error) {
	err := f.enter(MethodGetCertificateSerials)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(f.bundles))
	for s := range f.bundles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *Fake) GetCertificates(_ context.Context, _ string, serials []int64) ([]core.CertBundle, error) {
	err := f.enter(MethodGetCertificates)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []core.CertBundle
	if len(serials) == 0 {
		for _, b := range f.bundles {
			out = append(out, b)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Serial.Serial < out[j].Serial.Serial })
		return out, nil
	}
	for _, s := range serials {
		if b, ok := f.bundles[s]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *Fake) SupportsResource(_ context.Context, resource string) (bool, error) {
	err := f.enter(MethodSupportsResource)
	defer f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.resources[resource], nil
}

func (f *Fake) UpdateFacts(_ context.Context, _ string, facts map[string]string) error {
	err := f.enter(MethodUpdateFacts)
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.Facts = make(map[string]string, len(facts))
	for k, v := range facts {
		f.Facts[k] = v
	}
	return nil
}

func (f *Fake) UpdatePackageProfile(_ context.Context, _ string, pkgs []core.Package) error {
	err := f.enter(MethodUpdatePackageProfile)
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.Packages = append([]core.Package(nil), pkgs...)
	return nil
}

func (f *Fake) UpdateInstalledProducts(_ context.Context, _ string, products []core.InstalledProduct) error {
	err := f.enter(MethodUpdateInstalledProducts)
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.InstalledProducts = append([]core.InstalledProduct(nil), products...)
	return nil
}

func (f *Fake) GetCompliance(_ context.Context, _ string, on time.Time) (*core.Compliance, error) {
	err := f.enter(MethodGetCompliance)
	fn := f.ComplianceFunc
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return &core.Compliance{Status: core.ComplianceValid, Compliant: true, Date: core.NewTimestamp(on)}, nil
	}
	return fn(on), nil
}

func (f *Fake) Bind(_ context.Context, _ string, on time.Time) error {
	err := f.enter(MethodBind)
	if err == nil {
		f.Binds = append(f.Binds, on)
	}
	fn := f.BindFunc
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if fn != nil {
		fn(f, on)
	}
	return nil
}

func (f *Fake) GetOwner(_ context.Context, _ string) (*core.Owner, error) {
	err := f.enter(MethodGetOwner)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	o := f.owner
	return &o, nil
}

func (f *Fake) GetPools(_ context.Context, q server.PoolQuery) ([]core.Pool, error) {
	err := f.enter(MethodGetPools)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.PoolQueries = append(f.PoolQueries, q)
	if q.ListAll {
		return append([]core.Pool(nil), f.AllPools...), nil
	}
	return append([]core.Pool(nil), f.Pools...), nil
}
