package metrics

import (
	"testing"

	"custody/pkg/chunker"
	"custody/pkg/verifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorSnapshotsEngine(t *testing.T) {
	engine := verifier.New(zap.NewNop())

	data := []byte("test data")
	ck := chunker.New(4)
	require.NoError(t, engine.RegisterChunkHashes("f1", 4, ck.LeafHashes(data)))

	_, err := engine.GenerateChallenge("f1", "p1")
	require.NoError(t, err)

	reg := NewRegistry(engine)
	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64, len(families))
	for _, mf := range families {
		require.Len(t, mf.GetMetric(), 1)
		m := mf.GetMetric()[0]
		if m.GetCounter() != nil {
			values[mf.GetName()] = m.GetCounter().GetValue()
		} else {
			values[mf.GetName()] = m.GetGauge().GetValue()
		}
	}

	assert.Equal(t, 1.0, values["custody_challenges_total"])
	assert.Equal(t, 0.0, values["custody_proofs_verified_total"])
	assert.Equal(t, 0.0, values["custody_rate_limited_requests_total"])
	assert.Contains(t, values, "custody_proof_success_rate")
	assert.Contains(t, values, "custody_verify_response_time_ms")
}
