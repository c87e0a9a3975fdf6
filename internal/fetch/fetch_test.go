package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHTTP(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"type":"Polygon"}`))
	}))
	defer srv.Close()

	f := New(Options{})
	data, err := f.Fetch(context.Background(), srv.URL+"/boundary.geojson")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"Polygon"}`, string(data))
	assert.Equal(t, "soilgrid/1.0", gotUA)
}

func TestFetchHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "returned 404")
}

func TestFetchHTTPSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	_, err := New(Options{MaxBytes: 1024}).Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "byte limit")
}

func TestFetchHTTPContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Options{}).Fetch(ctx, srv.URL)
	assert.Error(t, err)
}

func TestFetchUnsupportedScheme(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), "gopher://example.com/x")
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestFetchFTPMissingPath(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), "ftp://example.com")
	assert.ErrorContains(t, err, "no path")
}

func TestNewDefaults(t *testing.T) {
	f := New(Options{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, int64(defaultMaxBytes), f.opts.MaxBytes)
	assert.Equal(t, "soilgrid/1.0", f.opts.UserAgent)
}
