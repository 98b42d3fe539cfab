package chains

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	log.SetOutput(io.Discard)
}

func TestScanLocksTryLock(t *testing.T) {
	locks := NewScanLocks()

	assert.True(t, locks.TryLock(1))
	assert.True(t, locks.IsLocked(1))

	// a second trigger for a held chain is dropped
	assert.False(t, locks.TryLock(1))

	// other chains are unaffected
	assert.True(t, locks.TryLock(137))

	locks.Unlock(1)
	assert.False(t, locks.IsLocked(1))
	assert.True(t, locks.TryLock(1))
}

func TestScanLocksPause(t *testing.T) {
	locks := NewScanLocks()

	locks.Pause(1)
	assert.True(t, locks.IsPaused(1))
	assert.False(t, locks.TryLock(1))
	assert.False(t, locks.IsLocked(1))

	locks.Resume(1)
	assert.False(t, locks.IsPaused(1))
	assert.True(t, locks.TryLock(1))
}

func TestScanLocksPauseWhileHeld(t *testing.T) {
	locks := NewScanLocks()

	assert.True(t, locks.TryLock(1))
	locks.Pause(1)

	// the in-flight scan finishes and unlocks, but no new scan may start
	locks.Unlock(1)
	assert.False(t, locks.TryLock(1))
}
