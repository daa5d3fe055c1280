package verifier

import "custody/pkg/types"

// CommitmentMeta describes how a file was committed: which scheme, the
// chunk geometry, and for Merkle commitments the 32-byte root.
type CommitmentMeta struct {
	Alg         types.CommitmentAlg
	ChunkSize   uint32
	TotalChunks uint64
	Root        [types.HashSize]byte // only set for AlgMerkleSHA256
}

type leafKey struct {
	fileID types.FileID
	index  uint64
}

// CommitmentStore holds per-file integrity commitments: either a flat
// ordered list of per-chunk SHA-256 leaf hashes or a Merkle root plus
// chunk geometry. Pure data and lookup, no I/O. Not safe for concurrent
// use on its own; the verifier guards it with a lock.
type CommitmentStore struct {
	leaves map[leafKey][types.HashSize]byte
	meta   map[types.FileID]CommitmentMeta
}

func NewCommitmentStore() *CommitmentStore {
	return &CommitmentStore{
		leaves: make(map[leafKey][types.HashSize]byte),
		meta:   make(map[types.FileID]CommitmentMeta),
	}
}

// RegisterChunkHashes replaces any existing commitment for fileID with an
// ordered list of per-chunk leaf hashes. Chunk index is implicit in list
// order.
func (cs *CommitmentStore) RegisterChunkHashes(fileID types.FileID, chunkSize uint32, leafHashes [][types.HashSize]byte) {
	cs.dropLeaves(fileID)
	cs.meta[fileID] = CommitmentMeta{
		Alg:         types.AlgSHA256Chunks,
		ChunkSize:   chunkSize,
		TotalChunks: uint64(len(leafHashes)),
	}
	for i, h := range leafHashes {
		cs.leaves[leafKey{fileID: fileID, index: uint64(i)}] = h
	}
}

// RegisterMerkleRoot replaces any existing commitment for fileID with a
// Merkle root commitment.
func (cs *CommitmentStore) RegisterMerkleRoot(fileID types.FileID, root [types.HashSize]byte, chunkSize uint32, totalChunks uint64) {
	cs.dropLeaves(fileID)
	cs.meta[fileID] = CommitmentMeta{
		Alg:         types.AlgMerkleSHA256,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Root:        root,
	}
}

// Meta returns the commitment metadata for a file, if any.
func (cs *CommitmentStore) Meta(fileID types.FileID) (CommitmentMeta, bool) {
	m, ok := cs.meta[fileID]
	return m, ok
}

// ExpectedLeaf returns the committed leaf hash for one chunk. Only
// meaningful for chunk-hash commitments; Merkle-root commitments are
// verified structurally and have no stored leaves.
func (cs *CommitmentStore) ExpectedLeaf(fileID types.FileID, chunkIndex uint64) ([types.HashSize]byte, bool) {
	h, ok := cs.leaves[leafKey{fileID: fileID, index: chunkIndex}]
	return h, ok
}

// dropLeaves removes the stored leaves of a prior chunk-hash commitment
// so re-registration replaces state wholesale.
func (cs *CommitmentStore) dropLeaves(fileID types.FileID) {
	old, ok := cs.meta[fileID]
	if !ok || old.Alg != types.AlgSHA256Chunks {
		return
	}
	for i := uint64(0); i < old.TotalChunks; i++ {
		delete(cs.leaves, leafKey{fileID: fileID, index: i})
	}
}
