package verifier

import (
	"crypto/sha256"
	"testing"

	"custody/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitmentStoreChunkHashes(t *testing.T) {
	cs := NewCommitmentStore()

	leaves := [][types.HashSize]byte{
		sha256.Sum256([]byte("one")),
		sha256.Sum256([]byte("two")),
	}
	cs.RegisterChunkHashes("f1", 4, leaves)

	meta, ok := cs.Meta("f1")
	require.True(t, ok)
	assert.Equal(t, types.AlgSHA256Chunks, meta.Alg)
	assert.Equal(t, uint32(4), meta.ChunkSize)
	assert.Equal(t, uint64(2), meta.TotalChunks)

	leaf, ok := cs.ExpectedLeaf("f1", 1)
	require.True(t, ok)
	assert.Equal(t, leaves[1], leaf)

	_, ok = cs.ExpectedLeaf("f1", 2)
	assert.False(t, ok)
	_, ok = cs.ExpectedLeaf("other", 0)
	assert.False(t, ok)
}

func TestCommitmentStoreReplacement(t *testing.T) {
	cs := NewCommitmentStore()

	leaves := [][types.HashSize]byte{
		sha256.Sum256([]byte("one")),
		sha256.Sum256([]byte("two")),
		sha256.Sum256([]byte("three")),
	}
	cs.RegisterChunkHashes("f1", 4, leaves)

	// Re-registering with a Merkle root replaces the commitment wholesale,
	// including the stored leaves.
	root := sha256.Sum256([]byte("root"))
	cs.RegisterMerkleRoot("f1", root, 8, 10)

	meta, ok := cs.Meta("f1")
	require.True(t, ok)
	assert.Equal(t, types.AlgMerkleSHA256, meta.Alg)
	assert.Equal(t, root, meta.Root)
	assert.Equal(t, uint64(10), meta.TotalChunks)

	_, ok = cs.ExpectedLeaf("f1", 0)
	assert.False(t, ok, "old leaves must not survive replacement")

	// And back again.
	cs.RegisterChunkHashes("f1", 4, leaves[:1])
	meta, ok = cs.Meta("f1")
	require.True(t, ok)
	assert.Equal(t, uint64(1), meta.TotalChunks)
}

func TestCommitmentStoreUnknownFile(t *testing.T) {
	cs := NewCommitmentStore()
	_, ok := cs.Meta("missing")
	assert.False(t, ok)
}
