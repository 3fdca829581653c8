package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUntilNextMidnightUTC(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Minute, untilNextMidnightUTC(now))

	noon := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 12*time.Hour, untilNextMidnightUTC(noon))
}
