package audit

import (
	"testing"
	"time"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestComputeEventHash_Deterministic(t *testing.T) {
	aggID := uuid.MustParse("d2b2a9c1-5f1e-4ad6-9b8c-0f3f2b1a4c5d")
	ts := time.Date(2024, 3, 9, 12, 30, 45, 123456000, time.UTC)

	h1 := ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCreated, `{"amount":"10.0000"}`, ts)
	h2 := ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCreated, `{"amount":"10.0000"}`, ts)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded SHA-256
}

// A timestamptz scanned back from Postgres may carry the server's local
// location rather than UTC. The hash must cover the instant, not the zone,
// or verification diverges from the hash computed at append time.
func TestComputeEventHash_TimezoneIndependent(t *testing.T) {
	aggID := uuid.New()
	utc := time.Date(2026, 8, 29, 12, 0, 0, 123456000, time.UTC)
	local := utc.In(time.FixedZone("CET", 3600))

	h1 := ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCreated, `{}`, utc)
	h2 := ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCreated, `{}`, local)

	assert.Equal(t, h1, h2)
}

func TestComputeEventHash_SensitiveToEveryInput(t *testing.T) {
	aggID := uuid.New()
	ts := time.Now().UTC().Truncate(time.Microsecond)
	base := ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCreated, `{}`, ts)

	assert.NotEqual(t, base, ComputeEventHash("deadbeef", aggID, domain.EventTransferCreated, `{}`, ts))
	assert.NotEqual(t, base, ComputeEventHash(domain.GenesisHash, uuid.New(), domain.EventTransferCreated, `{}`, ts))
	assert.NotEqual(t, base, ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCompleted, `{}`, ts))
	assert.NotEqual(t, base, ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCreated, `{"x":1}`, ts))
	assert.NotEqual(t, base, ComputeEventHash(domain.GenesisHash, aggID, domain.EventTransferCreated, `{}`, ts.Add(time.Microsecond)))
}
