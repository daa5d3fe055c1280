package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"custody/pkg/config"
	"custody/pkg/types"
	"custody/pkg/verifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher(gateways ...string) *Fetcher {
	return NewFetcher(config.FetchConfig{
		Gateways:      gateways,
		MaxSampleSize: 1024,
		Timeout:       2 * time.Second,
	}, zap.NewNop())
}

func TestFetchSample(t *testing.T) {
	content := []byte("sample content served by the gateway")
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/cid-1") {
			http.NotFound(w, r)
			return
		}
		w.Write(content)
	}))
	defer gw.Close()

	f := newTestFetcher(gw.URL)

	data, err := f.FetchSample(context.Background(), "cid-1", 1024)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestFetchSampleValidation(t *testing.T) {
	f := newTestFetcher("http://unused.invalid")

	var inputErr *verifier.InvalidInputError
	_, err := f.FetchSample(context.Background(), "", 64)
	require.ErrorAs(t, err, &inputErr)

	_, err = f.FetchSample(context.Background(), strings.Repeat("x", 200), 64)
	require.ErrorAs(t, err, &inputErr)
}

func TestFetchSampleFailover(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer dead.Close()

	content := []byte("bytes from the second gateway")
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer alive.Close()

	f := newTestFetcher(dead.URL, alive.URL)

	data, err := f.FetchSample(context.Background(), "cid-1", 1024)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestFetchSampleAllGatewaysDown(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer gw.Close()

	f := newTestFetcher(gw.URL)

	var netErr *verifier.NetworkError
	_, err := f.FetchSample(context.Background(), "cid-1", 64)
	require.ErrorAs(t, err, &netErr)
}

func TestIngestAndRegister(t *testing.T) {
	content := []byte("content to be chunked and committed for later challenges")
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer gw.Close()

	f := newTestFetcher(gw.URL)
	engine := verifier.New(zap.NewNop())

	chunks, err := f.IngestAndRegister(context.Background(), engine, "cid-1", 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), chunks)

	// The content is now challengeable.
	challenge, err := engine.GenerateChallenge("cid-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, types.AlgSHA256Chunks, challenge.CommitmentAlg)
	assert.Equal(t, uint32(16), challenge.SampleSize)
}
