package pipeline

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	log.SetOutput(io.Discard)
}

func uintPtr(v uint64) *uint64 {
	return &v
}

func TestValidateNonce(t *testing.T) {
	t.Run("first nonce on a fresh chain", func(t *testing.T) {
		assert.Equal(t, NonceSuccess, ValidateNonce(nil, 0, false))
	})

	t.Run("fresh chain starting above zero", func(t *testing.T) {
		assert.Equal(t, NonceMissed, ValidateNonce(nil, 1, false))
	})

	t.Run("replayed high-water-mark", func(t *testing.T) {
		assert.Equal(t, NonceMissed, ValidateNonce(uintPtr(5), 5, false))
	})

	t.Run("already persisted nonce", func(t *testing.T) {
		assert.Equal(t, NonceDuplicated, ValidateNonce(uintPtr(5), 6, true))
	})

	t.Run("next contiguous nonce", func(t *testing.T) {
		assert.Equal(t, NonceSuccess, ValidateNonce(uintPtr(5), 6, false))
	})

	t.Run("gap in sequence", func(t *testing.T) {
		assert.Equal(t, NonceMissed, ValidateNonce(uintPtr(5), 7, false))
	})

	t.Run("exists wins over gap", func(t *testing.T) {
		assert.Equal(t, NonceDuplicated, ValidateNonce(uintPtr(5), 3, true))
	})
}

func TestNonceValidationResultString(t *testing.T) {
	assert.Equal(t, "SUCCESS", NonceSuccess.String())
	assert.Equal(t, "DUPLICATED_NONCE", NonceDuplicated.String())
	assert.Equal(t, "MISSED_NONCE", NonceMissed.String())
}

func TestNonceTracker(t *testing.T) {
	t.Run("empty tracker returns nil", func(t *testing.T) {
		tracker := NewNonceTracker()
		assert.Nil(t, tracker.Max(1))
	})

	t.Run("set and read back", func(t *testing.T) {
		tracker := NewNonceTracker()
		tracker.Set(1, 5)
		max := tracker.Max(1)
		assert.NotNil(t, max)
		assert.Equal(t, uint64(5), *max)
		assert.Nil(t, tracker.Max(2))
	})

	t.Run("max returns a copy", func(t *testing.T) {
		tracker := NewNonceTracker()
		tracker.Set(1, 5)
		max := tracker.Max(1)
		*max = 99
		assert.Equal(t, uint64(5), *tracker.Max(1))
	})

	t.Run("bump only moves forward", func(t *testing.T) {
		tracker := NewNonceTracker()
		tracker.Bump(1, 5)
		assert.Equal(t, uint64(5), *tracker.Max(1))

		tracker.Bump(1, 3)
		assert.Equal(t, uint64(5), *tracker.Max(1))

		tracker.Bump(1, 6)
		assert.Equal(t, uint64(6), *tracker.Max(1))
	})
}
