package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Download(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "forecast-cli/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("id,stage\nopp-1,Lead\n")) //nolint:errcheck
	}))
	defer ts.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	body, err := f.Download(context.Background(), ts.URL+"/export.csv")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "id,stage\nopp-1,Lead\n", string(data))
}

func TestHTTPFetcher_DownloadToFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload")) //nolint:errcheck
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "export.csv")
	f := NewHTTPFetcher(HTTPOptions{})
	n, err := f.DownloadToFile(context.Background(), ts.URL, path)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer ts.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 2})
	body, err := f.Download(context.Background(), ts.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	assert.EqualValues(t, 2, calls.Load())
}

func TestHTTPFetcher_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	_, err := f.Download(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, "forecast-cli/1.0", f.opts.UserAgent)
	assert.InDelta(t, 20, float64(f.limiter.Limit()), 0.001)
}
