package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"custody/pkg/types"
	"custody/pkg/verifier"

	"go.uber.org/zap"
)

type registerChunksRequest struct {
	FileID     string   `json:"file_id"`
	ChunkSize  uint32   `json:"chunk_size"`
	LeafHashes []string `json:"leaf_hashes"`
}

type registerMerkleRequest struct {
	FileID      string `json:"file_id"`
	Root        string `json:"root"`
	ChunkSize   uint32 `json:"chunk_size"`
	TotalChunks uint64 `json:"total_chunks"`
}

type challengeRequest struct {
	FileID   string `json:"file_id"`
	Provider string `json:"provider"`
}

type proofRequest struct {
	ChallengeID string    `json:"challenge_id"`
	FileID      string    `json:"file_id"`
	Provider    string    `json:"provider"`
	Timestamp   time.Time `json:"timestamp"`
	ProofData   []byte    `json:"proof_data"`
	MerkleProof []string  `json:"merkle_proof,omitempty"`
	Signature   string    `json:"signature,omitempty"`
}

type ingestRequest struct {
	ContentID string `json:"content_id"`
	ChunkSize uint32 `json:"chunk_size,omitempty"`
}

type verdictResponse struct {
	Verified bool `json:"verified"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRegisterChunks(w http.ResponseWriter, r *http.Request) {
	var req registerChunksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	leaves := make([][types.HashSize]byte, 0, len(req.LeafHashes))
	for _, h := range req.LeafHashes {
		leaf, ok := decodeHash(h)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "leaf hashes must be 32-byte hex strings"})
			return
		}
		leaves = append(leaves, leaf)
	}

	if err := s.engine.RegisterChunkHashes(types.FileID(req.FileID), req.ChunkSize, leaves); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"chunks": len(leaves)})
}

func (s *Server) handleRegisterMerkle(w http.ResponseWriter, r *http.Request) {
	var req registerMerkleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	root, ok := decodeHash(req.Root)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "root must be a 32-byte hex string"})
		return
	}

	if err := s.engine.RegisterMerkleRoot(types.FileID(req.FileID), root, req.ChunkSize, req.TotalChunks); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"total_chunks": req.TotalChunks})
}

func (s *Server) handleGenerateChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	challenge, err := s.engine.GenerateChallenge(types.FileID(req.FileID), types.ProviderID(req.Provider))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	var req proofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	verified, err := s.engine.VerifyProof(types.StorageProof{
		ChallengeID: types.ChallengeID(req.ChallengeID),
		FileID:      types.FileID(req.FileID),
		Provider:    types.ProviderID(req.Provider),
		Timestamp:   req.Timestamp,
		ProofData:   req.ProofData,
		MerkleProof: req.MerkleProof,
		Signature:   req.Signature,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	// A failed proof is a normal outcome, not an error status.
	writeJSON(w, http.StatusOK, verdictResponse{Verified: verified})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ingest is not configured"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.ContentID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "content_id is required"})
		return
	}

	chunks, err := s.ingester.IngestAndRegister(r.Context(), s.engine, req.ContentID, req.ChunkSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"file_id": req.ContentID,
		"chunks":  chunks,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetMetrics())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps engine errors onto HTTP status codes: rate limiting to
// 429, bad input to 400, unknown challenges to 404, authentication to 401,
// fetch failures to 502/504, and cryptographic violations to 500 since
// those are not the caller's fault.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		rateErr     *verifier.RateLimitError
		inputErr    *verifier.InvalidInputError
		notFoundErr *verifier.ChallengeNotFoundError
		cryptoErr   *verifier.CryptographicError
		netErr      *verifier.NetworkError
		timeoutErr  *verifier.TimeoutError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &rateErr):
		status = http.StatusTooManyRequests
	case errors.As(err, &inputErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &cryptoErr):
		status = http.StatusInternalServerError
	case errors.As(err, &netErr):
		status = http.StatusBadGateway
	case errors.As(err, &timeoutErr):
		status = http.StatusGatewayTimeout
	case errors.Is(err, verifier.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeHash(s string) ([types.HashSize]byte, bool) {
	var out [types.HashSize]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != types.HashSize {
		return out, false
	}
	copy(out[:], raw)
	return out, true
}
