package types

import "time"

type FileID string
type ProviderID string
type ChallengeID string

// CommitmentAlg names the commitment scheme a file was registered under.
type CommitmentAlg string

const (
	AlgSHA256Chunks CommitmentAlg = "sha256_chunks"
	AlgMerkleSHA256 CommitmentAlg = "merkle_sha256"
)

// HashSize is the length of every leaf, root and sibling hash in bytes.
const HashSize = 32

// StorageChallenge names one chunk a provider must produce, with an expiry
// and a unique replay beacon. The commitment algorithm is captured at
// issuance so verification stays self-describing even if the file's
// commitment is later replaced.
type StorageChallenge struct {
	ID            ChallengeID   `json:"id"`
	FileID        FileID        `json:"file_id"`
	Provider      ProviderID    `json:"provider"`
	Nonce         uint64        `json:"nonce"`
	Timestamp     time.Time     `json:"timestamp"`
	Expiry        time.Time     `json:"expiry"`
	Beacon        string        `json:"beacon"`
	Difficulty    uint8         `json:"difficulty"`
	ChallengeData []byte        `json:"challenge_data"`
	SampleOffset  uint64        `json:"sample_offset"`
	SampleSize    uint32        `json:"sample_size"`
	ChunkIndex    uint64        `json:"chunk_index"`
	CommitmentAlg CommitmentAlg `json:"commitment_alg"`
}

// StorageProof is a provider's answer to a challenge: the sampled chunk
// bytes, plus an optional Merkle path (hex sibling hashes, leaf to root)
// and an optional provider signature.
type StorageProof struct {
	ChallengeID ChallengeID `json:"challenge_id"`
	FileID      FileID      `json:"file_id"`
	Provider    ProviderID  `json:"provider"`
	Timestamp   time.Time   `json:"timestamp"`
	ProofData   []byte      `json:"proof_data"`
	MerkleProof []string    `json:"merkle_proof,omitempty"`
	Signature   string      `json:"signature,omitempty"`
}

// VerificationMetrics is a point-in-time snapshot of engine counters.
type VerificationMetrics struct {
	TotalChallenges       uint64    `json:"total_challenges"`
	SuccessfulProofs      uint64    `json:"successful_proofs"`
	FailedProofs          uint64    `json:"failed_proofs"`
	ExpiredChallenges     uint64    `json:"expired_challenges"`
	RateLimitedRequests   uint64    `json:"rate_limited_requests"`
	AverageResponseTimeMs float64   `json:"average_response_time_ms"`
	LastReset             time.Time `json:"last_reset"`
}

// SuccessRate is successful proofs over total challenges, 0 when no
// challenges have been issued.
func (m VerificationMetrics) SuccessRate() float64 {
	if m.TotalChallenges == 0 {
		return 0.0
	}
	return float64(m.SuccessfulProofs) / float64(m.TotalChallenges)
}
