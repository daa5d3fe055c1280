package verifier

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"custody/pkg/types"

	"go.uber.org/zap"
)

const (
	challengeTTL       = 30 * time.Minute
	clockSkewTolerance = 5 * time.Minute

	maxFileIDLen   = 256
	maxProviderLen = 64

	// Lazy cleanup thresholds. Every call that touches the registry or
	// ledger does bounded cleanup work once these sizes are crossed, so
	// memory stays bounded without a background scheduler.
	challengeEvictThreshold = 1000
	beaconSweepThreshold    = 10000
	beaconCleanupThreshold  = 5000
	beaconMaxAge            = time.Hour

	beaconDomainSeparator = "custody-v1"
)

// SignatureVerifier checks a provider's signature over the sampled proof
// bytes. The engine ships without one installed; until a real
// implementation is plugged in, signatures are accepted unchecked and
// SignatureVerificationEnabled reports false so callers do not build
// trust decisions on the placeholder.
type SignatureVerifier interface {
	VerifySignature(signature string, proofData []byte, provider types.ProviderID) (bool, error)
}

// StorageVerifier is the proof-of-custody engine: it issues replay-protected
// chunk challenges against registered file commitments and verifies the
// sampled bytes a provider returns. Each internal structure sits behind its
// own lock and no code path holds two of them at once.
type StorageVerifier struct {
	cfg    RateLimitConfig
	logger *zap.Logger

	commitments   *CommitmentStore
	commitmentsMu sync.RWMutex

	// Outstanding challenges keyed by challenge ID
	challenges  map[types.ChallengeID]types.StorageChallenge
	challengeMu sync.Mutex

	// Issued replay beacons with their mint timestamps
	beacons  map[string]time.Time
	beaconMu sync.Mutex

	// Per-provider request windows
	trackers  map[types.ProviderID]*requestTracker
	trackerMu sync.Mutex

	metrics   metricsState
	metricsMu sync.Mutex

	sigVerifier SignatureVerifier
	sigMu       sync.RWMutex

	now func() time.Time
}

func New(logger *zap.Logger) *StorageVerifier {
	return NewWithConfig(DefaultRateLimitConfig(), logger)
}

func NewWithConfig(cfg RateLimitConfig, logger *zap.Logger) *StorageVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageVerifier{
		cfg:         cfg,
		logger:      logger,
		commitments: NewCommitmentStore(),
		challenges:  make(map[types.ChallengeID]types.StorageChallenge),
		beacons:     make(map[string]time.Time),
		trackers:    make(map[types.ProviderID]*requestTracker),
		now:         time.Now,
	}
}

// SetSignatureVerifier installs a real provider-signature check. Safe to
// call while proofs are being verified.
func (v *StorageVerifier) SetSignatureVerifier(sv SignatureVerifier) {
	v.sigMu.Lock()
	v.sigVerifier = sv
	v.sigMu.Unlock()
}

// SignatureVerificationEnabled reports whether proofs carrying a signature
// are actually authenticated rather than waved through.
func (v *StorageVerifier) SignatureVerificationEnabled() bool {
	v.sigMu.RLock()
	defer v.sigMu.RUnlock()
	return v.sigVerifier != nil
}

// RegisterChunkHashes registers (or wholesale replaces) a chunk-hash
// commitment for a file.
func (v *StorageVerifier) RegisterChunkHashes(fileID types.FileID, chunkSize uint32, leafHashes [][types.HashSize]byte) error {
	if fileID == "" {
		return &InvalidInputError{Field: "file_id", Reason: "cannot be empty"}
	}
	if chunkSize == 0 {
		return &InvalidInputError{Field: "chunk_size", Reason: "must be positive"}
	}
	if len(leafHashes) == 0 {
		return &InvalidInputError{Field: "leaf_hashes", Reason: "cannot be empty"}
	}

	v.commitmentsMu.Lock()
	v.commitments.RegisterChunkHashes(fileID, chunkSize, leafHashes)
	v.commitmentsMu.Unlock()

	v.logger.Info("registered chunk commitments",
		zap.String("file_id", string(fileID)),
		zap.Int("chunks", len(leafHashes)),
		zap.Uint32("chunk_size", chunkSize))
	return nil
}

// RegisterMerkleRoot registers (or wholesale replaces) a Merkle-root
// commitment for a file.
func (v *StorageVerifier) RegisterMerkleRoot(fileID types.FileID, root [types.HashSize]byte, chunkSize uint32, totalChunks uint64) error {
	if fileID == "" {
		return &InvalidInputError{Field: "file_id", Reason: "cannot be empty"}
	}
	if chunkSize == 0 {
		return &InvalidInputError{Field: "chunk_size", Reason: "must be positive"}
	}
	if totalChunks == 0 {
		return &InvalidInputError{Field: "total_chunks", Reason: "must be positive"}
	}

	v.commitmentsMu.Lock()
	v.commitments.RegisterMerkleRoot(fileID, root, chunkSize, totalChunks)
	v.commitmentsMu.Unlock()

	v.logger.Info("registered merkle root",
		zap.String("file_id", string(fileID)),
		zap.Uint64("total_chunks", totalChunks))
	return nil
}

// GenerateChallenge mints a challenge naming one random committed chunk of
// fileID that provider must produce. The caller is rate limited per
// provider, and every challenge carries a unique replay beacon.
func (v *StorageVerifier) GenerateChallenge(fileID types.FileID, provider types.ProviderID) (types.StorageChallenge, error) {
	start := v.now()

	if fileID == "" || provider == "" {
		return types.StorageChallenge{}, &InvalidInputError{Field: "file_id or provider", Reason: "cannot be empty"}
	}
	if len(fileID) > maxFileIDLen || len(provider) > maxProviderLen {
		return types.StorageChallenge{}, &InvalidInputError{Field: "file_id or provider", Reason: "too long"}
	}

	v.commitmentsMu.RLock()
	meta, ok := v.commitments.Meta(fileID)
	v.commitmentsMu.RUnlock()
	if !ok {
		return types.StorageChallenge{}, &InvalidInputError{
			Field:  "file_id",
			Reason: "no commitment registered for file_id, register file commitments first",
		}
	}

	if !v.admitRequest(provider, start) {
		v.metricsMu.Lock()
		v.metrics.RateLimitedRequests++
		v.metricsMu.Unlock()
		return types.StorageChallenge{}, &RateLimitError{
			Limit:  v.cfg.MaxRequestsPerMinute,
			Window: "minute",
		}
	}

	salt, err := randomSalt()
	if err != nil {
		return types.StorageChallenge{}, &CryptographicError{Reason: fmt.Sprintf("entropy source failed: %v", err)}
	}
	chunkIndex, err := randomChunkIndex(meta.TotalChunks)
	if err != nil {
		return types.StorageChallenge{}, &CryptographicError{Reason: fmt.Sprintf("entropy source failed: %v", err)}
	}
	challengeData := make([]byte, 32)
	if _, err := rand.Read(challengeData); err != nil {
		return types.StorageChallenge{}, &CryptographicError{Reason: fmt.Sprintf("entropy source failed: %v", err)}
	}

	beacon := computeBeacon(fileID, provider, start, salt)
	if err := v.trackBeacon(beacon, start); err != nil {
		return types.StorageChallenge{}, err
	}

	challenge := types.StorageChallenge{
		ID:            challengeID(fileID, start),
		FileID:        fileID,
		Provider:      provider,
		Nonce:         salt,
		Timestamp:     start,
		Expiry:        start.Add(challengeTTL),
		Beacon:        beacon,
		Difficulty:    v.challengeDifficulty(provider),
		ChallengeData: challengeData,
		SampleOffset:  chunkIndex * uint64(meta.ChunkSize),
		SampleSize:    meta.ChunkSize,
		ChunkIndex:    chunkIndex,
		CommitmentAlg: meta.Alg,
	}

	v.challengeMu.Lock()
	v.challenges[challenge.ID] = challenge
	if len(v.challenges) > challengeEvictThreshold {
		for id, c := range v.challenges {
			if !start.Before(c.Expiry) {
				delete(v.challenges, id)
			}
		}
	}
	v.challengeMu.Unlock()

	v.metricsMu.Lock()
	v.metrics.resetIfNeeded(start)
	v.metrics.TotalChallenges++
	v.metricsMu.Unlock()

	v.logger.Info("generated challenge",
		zap.String("challenge_id", string(challenge.ID)),
		zap.String("provider", string(provider)),
		zap.String("file_id", string(fileID)),
		zap.Uint64("chunk_index", chunkIndex))

	return challenge, nil
}

// VerifyProof checks a provider's proof against its challenge and returns
// the verdict. A failed proof (wrong bytes, expired challenge, mismatched
// metadata, malformed Merkle path) is a normal negative outcome and comes
// back as (false, nil); hard protocol violations come back as errors.
func (v *StorageVerifier) VerifyProof(proof types.StorageProof) (bool, error) {
	start := v.now()

	if proof.ChallengeID == "" || proof.FileID == "" || proof.Provider == "" {
		return false, &InvalidInputError{Field: "proof fields", Reason: "cannot be empty"}
	}

	v.challengeMu.Lock()
	challenge, ok := v.challenges[proof.ChallengeID]
	v.challengeMu.Unlock()
	if !ok {
		return false, &ChallengeNotFoundError{ChallengeID: proof.ChallengeID}
	}

	if proof.FileID != challenge.FileID || proof.Provider != challenge.Provider {
		v.metricsMu.Lock()
		v.metrics.FailedProofs++
		v.metricsMu.Unlock()
		return false, nil
	}

	if start.After(challenge.Expiry) {
		v.metricsMu.Lock()
		v.metrics.ExpiredChallenges++
		v.metricsMu.Unlock()
		return false, nil
	}

	// Allow a little clock skew, but a proof dated before its challenge or
	// well into the future is a protocol violation, not a soft failure.
	if proof.Timestamp.Before(challenge.Timestamp) || proof.Timestamp.After(start.Add(clockSkewTolerance)) {
		return false, &CryptographicError{Reason: "invalid proof timestamp"}
	}

	valid, err := v.verifyCryptographicProof(proof, challenge)
	if err != nil {
		return false, err
	}

	v.metricsMu.Lock()
	v.metrics.observeLatency(v.now().Sub(start))
	if valid {
		v.metrics.SuccessfulProofs++
	} else {
		v.metrics.FailedProofs++
	}
	v.metricsMu.Unlock()

	if valid {
		v.logger.Info("proof verified",
			zap.String("challenge_id", string(proof.ChallengeID)),
			zap.String("provider", string(proof.Provider)))
	} else {
		v.logger.Warn("proof verification failed",
			zap.String("challenge_id", string(proof.ChallengeID)),
			zap.String("provider", string(proof.Provider)))
	}

	return valid, nil
}

func (v *StorageVerifier) verifyCryptographicProof(proof types.StorageProof, challenge types.StorageChallenge) (bool, error) {
	if len(proof.ProofData) == 0 {
		return false, &CryptographicError{Reason: "proof data cannot be empty"}
	}
	if len(proof.ProofData) != int(challenge.SampleSize) {
		return false, &CryptographicError{Reason: fmt.Sprintf(
			"proof data size %d does not match expected %d", len(proof.ProofData), challenge.SampleSize)}
	}

	computedLeaf := sha256.Sum256(proof.ProofData)

	switch challenge.CommitmentAlg {
	case types.AlgSHA256Chunks:
		v.commitmentsMu.RLock()
		expectedLeaf, ok := v.commitments.ExpectedLeaf(challenge.FileID, challenge.ChunkIndex)
		v.commitmentsMu.RUnlock()
		if !ok {
			// The commitment existed at issuance; losing it between then and
			// now means the store was tampered with.
			return false, &CryptographicError{Reason: fmt.Sprintf(
				"missing chunk commitment for file %s chunk %d", challenge.FileID, challenge.ChunkIndex)}
		}
		if computedLeaf != expectedLeaf {
			v.logger.Debug("leaf hash mismatch",
				zap.String("file_id", string(challenge.FileID)),
				zap.Uint64("chunk_index", challenge.ChunkIndex),
				zap.String("computed", hex.EncodeToString(computedLeaf[:])),
				zap.String("expected", hex.EncodeToString(expectedLeaf[:])))
			return false, nil
		}

	case types.AlgMerkleSHA256:
		// Merkle commitments store no per-chunk leaves; the sampled bytes are
		// verified structurally against the root.
		if len(proof.MerkleProof) == 0 {
			return false, &CryptographicError{Reason: fmt.Sprintf(
				"merkle path required for file %s", challenge.FileID)}
		}
		if !v.verifyMerklePath(proof.MerkleProof, computedLeaf, challenge.FileID) {
			return false, nil
		}

	default:
		return false, &CryptographicError{Reason: fmt.Sprintf(
			"unknown commitment algorithm %q", challenge.CommitmentAlg)}
	}

	if proof.Signature != "" {
		ok, err := v.checkProviderSignature(proof.Signature, proof.ProofData, proof.Provider)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// verifyMerklePath folds the supplied sibling hashes over the leaf and
// compares the result to the stored root. The fold is
// H = SHA256(H ‖ sibling) at every step: sibling position is not bound,
// which is weaker than a standard Merkle proof and cannot distinguish some
// structurally different trees. Malformed hex or a wrong-length sibling is
// a routine negative verdict, not an error.
func (v *StorageVerifier) verifyMerklePath(path []string, leaf [types.HashSize]byte, fileID types.FileID) bool {
	v.commitmentsMu.RLock()
	meta, ok := v.commitments.Meta(fileID)
	v.commitmentsMu.RUnlock()
	if !ok {
		v.logger.Debug("no commitment metadata for file", zap.String("file_id", string(fileID)))
		return false
	}
	if meta.Alg != types.AlgMerkleSHA256 {
		v.logger.Debug("file does not use merkle commitment", zap.String("file_id", string(fileID)))
		return false
	}

	current := leaf
	for _, elem := range path {
		siblingBytes, err := hex.DecodeString(strings.TrimPrefix(elem, "0x"))
		if err != nil {
			v.logger.Debug("invalid hex in merkle path", zap.String("element", elem))
			return false
		}
		if len(siblingBytes) != types.HashSize {
			v.logger.Debug("invalid merkle path element length", zap.Int("bytes", len(siblingBytes)))
			return false
		}

		h := sha256.New()
		h.Write(current[:])
		h.Write(siblingBytes)
		copy(current[:], h.Sum(nil))
	}

	if current != meta.Root {
		v.logger.Debug("merkle path does not reach root",
			zap.String("file_id", string(fileID)),
			zap.String("computed", hex.EncodeToString(current[:])),
			zap.String("expected", hex.EncodeToString(meta.Root[:])))
		return false
	}
	return true
}

func (v *StorageVerifier) checkProviderSignature(signature string, proofData []byte, provider types.ProviderID) (bool, error) {
	v.sigMu.RLock()
	sv := v.sigVerifier
	v.sigMu.RUnlock()

	if sv == nil {
		// Placeholder until a real SignatureVerifier is installed; see
		// SignatureVerificationEnabled.
		v.logger.Debug("provider signature accepted unchecked", zap.String("provider", string(provider)))
		return true, nil
	}
	return sv.VerifySignature(signature, proofData, provider)
}

// admitRequest checks and records one request in the provider's rate
// windows. Check and record happen under a single lock acquisition so
// admission order matches call order within a window.
func (v *StorageVerifier) admitRequest(provider types.ProviderID, now time.Time) bool {
	v.trackerMu.Lock()
	defer v.trackerMu.Unlock()

	tracker, ok := v.trackers[provider]
	if !ok {
		tracker = newRequestTracker(now)
		v.trackers[provider] = tracker
	}
	if !tracker.canMakeRequest(now, v.cfg) {
		return false
	}
	tracker.recordRequest(now)
	return true
}

// trackBeacon records a freshly minted beacon, failing hard on collision.
// A collision means either a broken entropy source or a deliberate replay
// and must not be silently retried.
func (v *StorageVerifier) trackBeacon(beacon string, now time.Time) error {
	v.beaconMu.Lock()
	defer v.beaconMu.Unlock()

	if _, exists := v.beacons[beacon]; exists {
		return &CryptographicError{Reason: "beacon collision detected"}
	}
	v.beacons[beacon] = now

	if len(v.beacons) > beaconSweepThreshold {
		v.sweepBeaconsLocked(now)
	}
	return nil
}

// sweepBeaconsLocked drops beacons older than beaconMaxAge. Caller holds
// beaconMu.
func (v *StorageVerifier) sweepBeaconsLocked(now time.Time) {
	for b, minted := range v.beacons {
		if now.Sub(minted) >= beaconMaxAge {
			delete(v.beacons, b)
		}
	}
}

// GetMetrics returns a snapshot of the engine counters.
func (v *StorageVerifier) GetMetrics() types.VerificationMetrics {
	v.metricsMu.Lock()
	defer v.metricsMu.Unlock()
	return v.metrics.VerificationMetrics
}

// ResetMetrics zeroes all counters immediately.
func (v *StorageVerifier) ResetMetrics() {
	v.metricsMu.Lock()
	defer v.metricsMu.Unlock()
	v.metrics.VerificationMetrics = types.VerificationMetrics{LastReset: v.now()}
}

// CleanupExpired drops expired challenges, sweeps old beacons once the
// ledger is large, and trims every provider's rate windows. Safe to call
// from a periodic loop or opportunistically; every step is idempotent and
// bounded.
func (v *StorageVerifier) CleanupExpired() {
	now := v.now()

	v.challengeMu.Lock()
	for id, c := range v.challenges {
		if !now.Before(c.Expiry) {
			delete(v.challenges, id)
		}
	}
	v.challengeMu.Unlock()

	v.beaconMu.Lock()
	if len(v.beacons) > beaconCleanupThreshold {
		v.sweepBeaconsLocked(now)
	}
	v.beaconMu.Unlock()

	v.trackerMu.Lock()
	for _, tracker := range v.trackers {
		tracker.cleanup(now)
	}
	v.trackerMu.Unlock()
}

// challengeDifficulty could weight challenges by provider history; for now
// every challenge is difficulty 1.
func (v *StorageVerifier) challengeDifficulty(_ types.ProviderID) uint8 {
	return 1
}

// computeBeacon derives the replay token from the challenge parameters,
// the fresh salt, and a domain separator.
func computeBeacon(fileID types.FileID, provider types.ProviderID, ts time.Time, salt uint64) string {
	var buf [8]byte
	h := sha256.New()
	h.Write([]byte(fileID))
	h.Write([]byte(provider))
	binary.LittleEndian.PutUint64(buf[:], uint64(ts.Unix()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], salt)
	h.Write(buf[:])
	h.Write([]byte(beaconDomainSeparator))
	return hex.EncodeToString(h.Sum(nil))
}

// challengeID builds a registry key from a file-ID prefix and the issuance
// time. Uniqueness here is best-effort; the beacon carries the replay
// property.
func challengeID(fileID types.FileID, ts time.Time) types.ChallengeID {
	prefix := []rune(string(fileID))
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return types.ChallengeID(fmt.Sprintf("chall_%s_%x", string(prefix), ts.UnixNano()))
}

func randomSalt() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func randomChunkIndex(totalChunks uint64) (uint64, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(totalChunks))
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}
