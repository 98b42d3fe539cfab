package pipeline

import (
	"sync"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/models"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

type NonceValidationResult int

const (
	NonceSuccess NonceValidationResult = iota
	NonceDuplicated
	NonceMissed
)

func (r NonceValidationResult) String() string {
	switch r {
	case NonceSuccess:
		return "SUCCESS"
	case NonceDuplicated:
		return "DUPLICATED_NONCE"
	case NonceMissed:
		return "MISSED_NONCE"
	default:
		return "UNKNOWN"
	}
}

// ValidateNonce checks an incoming sequence number against the highest
// accepted one. Nonces must be contiguous starting at zero per source chain;
// a replay or a skip is a hard anomaly, never auto-corrected.
func ValidateNonce(dbMax *uint64, nonce uint64, exists bool) NonceValidationResult {
	if exists {
		return NonceDuplicated
	}
	if dbMax == nil {
		if nonce != 0 {
			return NonceMissed
		}
		return NonceSuccess
	}
	if nonce != *dbMax+1 {
		return NonceMissed
	}
	return NonceSuccess
}

// NonceTracker holds the per source chain high-water-mark of the last
// accepted nonce. It is written only from within a chain's exclusive scan
// window.
type NonceTracker struct {
	mu  sync.RWMutex
	max map[uint64]*uint64
}

func NewNonceTracker() *NonceTracker {
	return &NonceTracker{
		max: make(map[uint64]*uint64),
	}
}

// Max returns the high-water-mark for a chain, or nil if no nonce has been
// accepted yet.
func (t *NonceTracker) Max(chainId uint64) *uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	max, ok := t.max[chainId]
	if !ok || max == nil {
		return nil
	}
	value := *max
	return &value
}

// Set records an accepted nonce as the new high-water-mark.
func (t *NonceTracker) Set(chainId uint64, nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value := nonce
	t.max[chainId] = &value
}

// Bump records a nonce only if it is above the current high-water-mark.
func (t *NonceTracker) Bump(chainId uint64, nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	max, ok := t.max[chainId]
	if ok && max != nil && *max >= nonce {
		return
	}
	value := nonce
	t.max[chainId] = &value
}

// Rehydrate reloads the high-water-mark for a chain from storage, scoped to
// the submissions already certified by the persisted cursor.
func (t *NonceTracker) Rehydrate(chainId uint64, cursorFilter bson.M) error {
	filter := bson.M{"chain_from": chainId}
	for key, value := range cursorFilter {
		filter[key] = value
	}

	var submissions []models.Submission
	err := app.DB.FindManySorted(models.CollectionSubmissions, filter, bson.M{"nonce": -1}, 0, 1, &submissions)
	if err != nil {
		return err
	}
	if len(submissions) == 0 {
		log.Debug("[NONCE] No persisted submissions for chain ", chainId)
		return nil
	}

	t.Set(chainId, submissions[0].Nonce)
	log.Info("[NONCE] Rehydrated chain ", chainId, " max nonce: ", submissions[0].Nonce)
	return nil
}
