package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"custody/pkg/types"
)

const (
	// DefaultChunkSize keeps samples small enough to return inline over
	// the gateway fetch path.
	DefaultChunkSize = 4096

	MinChunkSize = 16
	MaxChunkSize = 4 * 1024 * 1024
)

// Chunker splits file bytes into fixed-size chunks and hashes them into
// commitment leaves. The final chunk is zero-padded to the full chunk
// size, so every committed leaf and every challenged sample is exactly
// one chunk long.
type Chunker struct {
	chunkSize uint32
}

func New(chunkSize uint32) *Chunker {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{chunkSize: chunkSize}
}

func (c *Chunker) ChunkSize() uint32 {
	return c.chunkSize
}

// Split divides data into chunks of the configured size, zero-padding
// the final chunk.
func (c *Chunker) Split(data []byte) [][]byte {
	size := int(c.chunkSize)
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for offset := 0; offset < len(data); offset += size {
		chunk := make([]byte, size)
		copy(chunk, data[offset:])
		chunks = append(chunks, chunk)
	}
	return chunks
}

// LeafHashes returns the ordered SHA-256 leaf hashes of data's chunks.
func (c *Chunker) LeafHashes(data []byte) [][types.HashSize]byte {
	chunks := c.Split(data)
	leaves := make([][types.HashSize]byte, len(chunks))
	for i, chunk := range chunks {
		leaves[i] = sha256.Sum256(chunk)
	}
	return leaves
}

// Chunk returns the bytes of one chunk (zero-padded if it is the final
// one), the unit a provider must produce when challenged on that index.
func (c *Chunker) Chunk(data []byte, index uint64) ([]byte, error) {
	offset := index * uint64(c.chunkSize)
	if offset >= uint64(len(data)) {
		return nil, fmt.Errorf("chunk index %d out of range for %d bytes", index, len(data))
	}
	chunk := make([]byte, c.chunkSize)
	copy(chunk, data[offset:])
	return chunk, nil
}

// Tree is a SHA-256 Merkle tree over commitment leaves. When a level has
// an odd node count the last node is paired with itself. Parent =
// SHA256(left ‖ right).
type Tree struct {
	// levels[0] holds the leaves, the last level holds the root.
	levels [][][types.HashSize]byte
}

func BuildTree(leaves [][types.HashSize]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build tree with no leaves")
	}

	levels := [][][types.HashSize]byte{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([][types.HashSize]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			left := current[i]
			right := left
			if i+1 < len(current) {
				right = current[i+1]
			}
			h := sha256.New()
			h.Write(left[:])
			h.Write(right[:])
			var parent [types.HashSize]byte
			copy(parent[:], h.Sum(nil))
			next = append(next, parent)
		}
		levels = append(levels, next)
		current = next
	}
	return &Tree{levels: levels}, nil
}

func (t *Tree) Root() [types.HashSize]byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

func (t *Tree) NumLeaves() uint64 {
	return uint64(len(t.levels[0]))
}

// Path returns the hex-encoded sibling hashes from the given leaf up to
// the root. The verifier folds these as H = SHA256(H ‖ sibling) without
// binding sibling position, so a path only reproduces the root when the
// walked node is the left child at every level (always true for leaf 0).
func (t *Tree) Path(index uint64) ([]string, error) {
	if index >= t.NumLeaves() {
		return nil, fmt.Errorf("leaf index %d out of range for %d leaves", index, t.NumLeaves())
	}

	path := make([]string, 0, len(t.levels)-1)
	idx := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= uint64(len(level)) {
			sibling = idx // odd level, node paired with itself
		}
		h := level[sibling]
		path = append(path, hex.EncodeToString(h[:]))
		idx /= 2
	}
	return path, nil
}
