package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/output"
)

// Options configures a REST client.
type Options struct {
	// BaseURL is scheme://host:port/prefix.
	BaseURL string

	// CACertDir holds PEM bundles trusted for the server certificate.
	CACertDir string

	// Insecure skips server certificate verification.
	Insecure bool

	// CertFile and KeyFile authenticate as the consumer. Both empty means
	// an anonymous client.
	CertFile string
	KeyFile  string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxTries bounds attempts for transient failures. Zero means 3.
	MaxTries uint
}

// REST talks to the entitlement server over HTTPS.
type REST struct {
	base     *url.URL
	http     *http.Client
	maxTries uint
	backoff  func() backoff.BackOff
	certEnd  time.Time
	now      func() time.Time
}

var _ Server = (*REST)(nil)

// NewREST builds a client. The identity certificate, if configured, is
// loaded once here.
func NewREST(opts Options) (*REST, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.Insecure, //nolint:gosec // operator opt-in
	}
	if opts.CACertDir != "" {
		pool, err := loadCAs(opts.CACertDir)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}

	r := &REST{
		base:     base,
		maxTries: opts.MaxTries,
		backoff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		now:      time.Now,
	}
	if r.maxTries == 0 {
		r.maxTries = 3
	}

	if opts.CertFile != "" || opts.KeyFile != "" {
		pair, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading identity: %w", err)
		}
		if leaf, err := x509.ParseCertificate(pair.Certificate[0]); err == nil {
			r.certEnd = leaf.NotAfter
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	r.http = &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
	}
	return r, nil
}

// WithHTTPClient replaces the transport, for tests.
func (r *REST) WithHTTPClient(c *http.Client) *REST {
	r.http = c
	return r
}

func loadCAs(dir string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.pem"))
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading CA %s: %w", f, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			output.Warn("no certificates found in CA file", "path", f)
		}
	}
	return pool, nil
}

// errorBody is the server's error document.
type errorBody struct {
	DisplayMessage string `json:"displayMessage"`
	DeletedID      string `json:"deletedId"`
}

// do sends one request with retries and decodes a JSON response into out.
func (r *REST) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if !r.certEnd.IsZero() && r.now().After(r.certEnd) {
		return &ExpiredIdentityError{}
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	target := *r.base
	target.Path = r.base.Path + path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	op := func() ([]byte, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), rd)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := r.http.Do(req)
		if err != nil {
			if isExpiredCertError(err) {
				return nil, backoff.Permanent(&ExpiredIdentityError{Cause: err})
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &NetworkError{Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &NetworkError{Err: err}
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}

		mapped := statusError(resp.StatusCode, data)
		var rest *RestError
		if errors.As(mapped, &rest) && rest.Temporary() {
			return nil, mapped
		}
		return nil, backoff.Permanent(mapped)
	}

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.backoff()),
		backoff.WithMaxTries(r.maxTries),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)
	msg := body.DisplayMessage
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}

	switch status {
	case http.StatusGone:
		return &GoneError{DeletedID: body.DeletedID, Message: msg}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Status: status, Message: msg}
	default:
		return &RestError{Status: status, Message: msg}
	}
}

func isExpiredCertError(err error) bool {
	return strings.Contains(err.Error(), "certificate expired") ||
		strings.Contains(err.Error(), "certificate has expired")
}

func consumerPath(uuid string, parts ...string) string {
	return "/" + strings.Join(append([]string{"consumers", url.PathEscape(uuid)}, parts...), "/")
}

// GetConsumer returns the consumer record.
func (r *REST) GetConsumer(ctx context.Context, uuid string) (*core.Consumer, error) {
	var c core.Consumer
	if err := r.do(ctx, http.MethodGet, consumerPath(uuid), nil, nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCertificateSerials lists the serials of the consumer's entitlement certificates.
func (r *REST) GetCertificateSerials(ctx context.Context, uuid string) ([]int64, error) {
	var serials []core.Serial
	if err := r.do(ctx, http.MethodGet, consumerPath(uuid, "certificates", "serials"), nil, nil, &serials); err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(serials))
	for _, s := range serials {
		out = append(out, s.Serial)
	}
	return out, nil
}

// GetCertificates fetches certificate bundles. No serials means all.
func (r *REST) GetCertificates(ctx context.Context, uuid string, serials []int64) ([]core.CertBundle, error) {
	var q url.Values
	if len(serials) > 0 {
		parts := make([]string, len(serials))
		for i, s := range serials {
			parts[i] = strconv.FormatInt(s, 10)
		}
		q = url.Values{"serials": {strings.Join(parts, ",")}}
	}
	var bundles []core.CertBundle
	if err := r.do(ctx, http.MethodGet, consumerPath(uuid, "certificates"), q, nil, &bundles); err != nil {
		return nil, err
	}
	return bundles, nil
}

// SupportsResource reports whether the server root advertises resource.
func (r *REST) SupportsResource(ctx context.Context, resource string) (bool, error) {
	var links []struct {
		Rel string `json:"rel"`
	}
	if err := r.do(ctx, http.MethodGet, "/", nil, nil, &links); err != nil {
		return false, err
	}
	for _, l := range links {
		if l.Rel == resource {
			return true, nil
		}
	}
	return false, nil
}

// UpdateFacts replaces the consumer's facts.
func (r *REST) UpdateFacts(ctx context.Context, uuid string, facts map[string]string) error {
	return r.do(ctx, http.MethodPut, consumerPath(uuid), nil, map[string]interface{}{"facts": facts}, nil)
}

// UpdatePackageProfile replaces the consumer's package profile.
func (r *REST) UpdatePackageProfile(ctx context.Context, uuid string, pkgs []core.Package) error {
	return r.do(ctx, http.MethodPut, consumerPath(uuid, "packages"), nil, pkgs, nil)
}

// UpdateInstalledProducts replaces the consumer's installed products.
func (r *REST) UpdateInstalledProducts(ctx context.Context, uuid string, products []core.InstalledProduct) error {
	body := map[string]interface{}{"installedProducts": products}
	return r.do(ctx, http.MethodPut, consumerPath(uuid), nil, body, nil)
}

// GetCompliance returns the consumer's compliance status on a date.
func (r *REST) GetCompliance(ctx context.Context, uuid string, on time.Time) (*core.Compliance, error) {
	q := url.Values{}
	if !on.IsZero() {
		q.Set("on_date", on.UTC().Format(time.RFC3339))
	}
	var c core.Compliance
	if err := r.do(ctx, http.MethodGet, consumerPath(uuid, "compliance"), q, nil, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Bind requests automatic attachment of subscriptions valid on a date.
func (r *REST) Bind(ctx context.Context, uuid string, on time.Time) error {
	q := url.Values{}
	if !on.IsZero() {
		q.Set("entitle_date", on.UTC().Format(time.RFC3339))
	}
	return r.do(ctx, http.MethodPost, consumerPath(uuid, "entitlements"), q, nil, nil)
}

// GetOwner returns the consumer's owner.
func (r *REST) GetOwner(ctx context.Context, uuid string) (*core.Owner, error) {
	var o core.Owner
	if err := r.do(ctx, http.MethodGet, consumerPath(uuid, "owner"), nil, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetPools lists pools matching q.
func (r *REST) GetPools(ctx context.Context, q PoolQuery) ([]core.Pool, error) {
	values := url.Values{}
	path := "/pools"
	if q.Owner != "" {
		path = "/owners/" + url.PathEscape(q.Owner) + "/pools"
	}
	if q.Consumer != "" {
		values.Set("consumer", q.Consumer)
	}
	if q.ListAll {
		values.Set("listall", "true")
	}
	if !q.ActiveOn.IsZero() {
		values.Set("activeon", q.ActiveOn.UTC().Format(time.RFC3339))
	}
	var pools []core.Pool
	if err := r.do(ctx, http.MethodGet, path, values, nil, &pools); err != nil {
		return nil, err
	}
	return pools, nil
}
