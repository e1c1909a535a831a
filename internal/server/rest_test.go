package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/subctl/internal/core"
	oerrors "github.com/opmodel/subctl/internal/errors"
)

func newTestREST(t *testing.T, h http.HandlerFunc) *REST {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	r, err := NewREST(Options{BaseURL: srv.URL + "/subscription", Timeout: 5 * time.Second})
	require.NoError(t, err)
	r.backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestREST_GetConsumer(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/subscription/consumers/abc", req.URL.Path)
		writeJSON(w, http.StatusOK, core.Consumer{UUID: "abc", Autoheal: true,
			IDCert: &core.IdentityCert{Serial: core.Serial{Serial: 9}}})
	})

	c, err := r.GetConsumer(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", c.UUID)
	assert.True(t, c.Autoheal)
	assert.Equal(t, int64(9), c.IDCert.Serial.Serial)
}

func TestREST_CertificatesAndSerials(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/subscription/consumers/abc/certificates/serials":
			writeJSON(w, http.StatusOK, []core.Serial{{Serial: 1}, {Serial: 2}})
		case "/subscription/consumers/abc/certificates":
			assert.Equal(t, "1,2", req.URL.Query().Get("serials"))
			writeJSON(w, http.StatusOK, []core.CertBundle{{Serial: core.Serial{Serial: 1}}, {Serial: core.Serial{Serial: 2}}})
		default:
			http.NotFound(w, req)
		}
	})

	serials, err := r.GetCertificateSerials(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, serials)

	bundles, err := r.GetCertificates(context.Background(), "abc", serials)
	require.NoError(t, err)
	assert.Len(t, bundles, 2)
}

func TestREST_UpdateFactsSendsBody(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPut, req.Method)
		data, _ := io.ReadAll(req.Body)
		assert.JSONEq(t, `{"facts":{"a":"1"}}`, string(data))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, r.UpdateFacts(context.Background(), "abc", map[string]string{"a": "1"}))
}

func TestREST_SupportsResource(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{{"rel": "packages", "href": "/packages"}})
	})

	ok, err := r.SupportsResource(context.Background(), ResourcePackages)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SupportsResource(context.Background(), "content_overrides")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestREST_GetPoolsQuery(t *testing.T) {
	on := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/subscription/owners/acme/pools", req.URL.Path)
		assert.Equal(t, "true", req.URL.Query().Get("listall"))
		assert.Equal(t, "abc", req.URL.Query().Get("consumer"))
		assert.Equal(t, "2025-06-01T00:00:00Z", req.URL.Query().Get("activeon"))
		writeJSON(w, http.StatusOK, []map[string]interface{}{{"id": "p1", "productId": "SKU1", "quantity": 5}})
	})

	pools, err := r.GetPools(context.Background(), PoolQuery{Consumer: "abc", Owner: "acme", ListAll: true, ActiveOn: on})
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "p1", pools[0].ID)
}

func TestREST_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   interface{}
		check  func(t *testing.T, err error)
	}{
		{"gone", http.StatusGone, map[string]string{"displayMessage": "deleted", "deletedId": "abc"}, func(t *testing.T, err error) {
			var gone *GoneError
			require.ErrorAs(t, err, &gone)
			assert.Equal(t, "abc", gone.DeletedID)
			assert.True(t, IsFatal(err))
		}},
		{"unauthorized", http.StatusUnauthorized, map[string]string{"displayMessage": "nope"}, func(t *testing.T, err error) {
			var auth *AuthError
			require.ErrorAs(t, err, &auth)
			assert.ErrorIs(t, err, oerrors.ErrPermission)
			assert.False(t, IsFatal(err))
		}},
		{"forbidden", http.StatusForbidden, nil, func(t *testing.T, err error) {
			var auth *AuthError
			assert.ErrorAs(t, err, &auth)
		}},
		{"not found", http.StatusNotFound, map[string]string{"displayMessage": "missing"}, func(t *testing.T, err error) {
			var rest *RestError
			require.ErrorAs(t, err, &rest)
			assert.Equal(t, "missing", rest.Message)
			assert.ErrorIs(t, err, oerrors.ErrNotFound)
		}},
		{"bad request", http.StatusBadRequest, map[string]string{"displayMessage": "bad"}, func(t *testing.T, err error) {
			var rest *RestError
			require.ErrorAs(t, err, &rest)
			assert.NotErrorIs(t, err, oerrors.ErrNotFound)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
				atomic.AddInt32(&calls, 1)
				writeJSON(w, tt.status, tt.body)
			})
			_, err := r.GetConsumer(context.Background(), "abc")
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "permanent errors are not retried")
		})
	}
}

func TestREST_RetriesTransient(t *testing.T) {
	var calls int32
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"displayMessage": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, core.Owner{Key: "acme"})
	})

	o, err := r.GetOwner(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "acme", o.Key)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestREST_RetriesExhausted(t *testing.T) {
	var calls int32
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusServiceUnavailable, nil)
	})

	_, err := r.GetOwner(context.Background(), "abc")
	var rest *RestError
	require.ErrorAs(t, err, &rest)
	assert.Equal(t, http.StatusServiceUnavailable, rest.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestREST_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	r, err := NewREST(Options{BaseURL: srv.URL, MaxTries: 1})
	require.NoError(t, err)

	_, err = r.GetConsumer(context.Background(), "abc")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, oerrors.ErrConnectivity)
}

func TestREST_ExpiredIdentity(t *testing.T) {
	r := newTestREST(t, func(w http.ResponseWriter, req *http.Request) {
		t.Fatal("no request expected")
	})
	r.certEnd = time.Now().Add(-time.Hour)

	_, err := r.GetConsumer(context.Background(), "abc")
	var expired *ExpiredIdentityError
	require.True(t, errors.As(err, &expired))
	assert.True(t, IsFatal(err))
}
