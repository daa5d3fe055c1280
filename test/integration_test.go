package test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody/pkg/chunker"
	"custody/pkg/config"
	"custody/pkg/fetch"
	"custody/pkg/server"
	"custody/pkg/types"
	"custody/pkg/verifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestEndToEndVerificationFlow walks the full owner/verifier/provider
// loop over the HTTP façade: commit a file, request a challenge, answer
// it with sampled bytes, and read back the metrics.
func TestEndToEndVerificationFlow(t *testing.T) {
	logger := zap.NewNop()
	engine := verifier.New(logger)
	srv := server.New(engine, nil, config.ServerConfig{Address: ":0"}, logger)
	api := httptest.NewServer(srv.Handler())
	defer api.Close()

	fileData := []byte("the quick brown fox jumps over the lazy dog, many times over")
	const chunkSize = 16
	ck := chunker.New(chunkSize)

	// Owner registers commitments.
	leaves := ck.LeafHashes(fileData)
	hashes := make([]string, len(leaves))
	for i, leaf := range leaves {
		hashes[i] = hex.EncodeToString(leaf[:])
	}
	post(t, api.URL+"/v1/commitments/chunks", map[string]interface{}{
		"file_id":     "fox",
		"chunk_size":  chunkSize,
		"leaf_hashes": hashes,
	}, http.StatusCreated, nil)

	// Verifier issues a challenge.
	var challenge types.StorageChallenge
	post(t, api.URL+"/v1/challenges", map[string]string{
		"file_id":  "fox",
		"provider": "provider-1",
	}, http.StatusCreated, &challenge)
	require.Less(t, challenge.ChunkIndex, uint64(len(leaves)))

	// Provider answers with the sampled bytes.
	proofData, err := ck.Chunk(fileData, challenge.ChunkIndex)
	require.NoError(t, err)

	var verdict struct {
		Verified bool `json:"verified"`
	}
	post(t, api.URL+"/v1/proofs", map[string]interface{}{
		"challenge_id": challenge.ID,
		"file_id":      "fox",
		"provider":     "provider-1",
		"timestamp":    time.Now(),
		"proof_data":   proofData,
	}, http.StatusOK, &verdict)
	assert.True(t, verdict.Verified)

	// Wrong bytes of the right length are rejected, still HTTP 200.
	post(t, api.URL+"/v1/proofs", map[string]interface{}{
		"challenge_id": challenge.ID,
		"file_id":      "fox",
		"provider":     "provider-1",
		"timestamp":    time.Now(),
		"proof_data":   bytes.Repeat([]byte("Z"), chunkSize),
	}, http.StatusOK, &verdict)
	assert.False(t, verdict.Verified)

	var m types.VerificationMetrics
	get(t, api.URL+"/v1/metrics", &m)
	assert.Equal(t, uint64(1), m.TotalChallenges)
	assert.Equal(t, uint64(1), m.SuccessfulProofs)
	assert.Equal(t, uint64(1), m.FailedProofs)
}

// TestGatewayIngestToChallenge covers the gateway path: content ingested
// through the server's ingest endpoint lands in the serving engine, so a
// later challenge against the same server finds the commitments.
func TestGatewayIngestToChallenge(t *testing.T) {
	logger := zap.NewNop()
	content := []byte("remote object served by the content gateway for ingestion")

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer gateway.Close()

	engine := verifier.New(logger)
	fetcher := fetch.NewFetcher(config.FetchConfig{
		Gateways:      []string{gateway.URL},
		MaxSampleSize: 8192,
		Timeout:       2 * time.Second,
	}, logger)
	srv := server.New(engine, fetcher, config.ServerConfig{Address: ":0"}, logger)
	api := httptest.NewServer(srv.Handler())
	defer api.Close()

	var ingested struct {
		FileID string `json:"file_id"`
		Chunks uint64 `json:"chunks"`
	}
	post(t, api.URL+"/v1/ingest", map[string]interface{}{
		"content_id": "remote-cid",
		"chunk_size": 16,
	}, http.StatusCreated, &ingested)
	assert.Equal(t, "remote-cid", ingested.FileID)
	assert.NotZero(t, ingested.Chunks)

	var challenge types.StorageChallenge
	post(t, api.URL+"/v1/challenges", map[string]string{
		"file_id":  "remote-cid",
		"provider": "provider-1",
	}, http.StatusCreated, &challenge)

	sample, err := fetcher.FetchSample(context.Background(), "remote-cid", len(content))
	require.NoError(t, err)

	proofData, err := chunker.New(16).Chunk(sample, challenge.ChunkIndex)
	require.NoError(t, err)

	verified, err := engine.VerifyProof(types.StorageProof{
		ChallengeID: challenge.ID,
		FileID:      "remote-cid",
		Provider:    "provider-1",
		Timestamp:   time.Now(),
		ProofData:   proofData,
	})
	require.NoError(t, err)
	assert.True(t, verified)
}

func post(t *testing.T, url string, payload interface{}, wantStatus int, out interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func get(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
