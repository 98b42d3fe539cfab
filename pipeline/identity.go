package pipeline

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/debridge-finance/oracle-node/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

// ComputeSubmissionID recomputes the canonical submission identifier from raw
// fields. Variable-length parts are hashed before packing so every field
// occupies a fixed slot; auto-params only contribute when present, matching
// events emitted by pre-auto-params contract versions.
func ComputeSubmissionID(debridgeId common.Hash, chainFrom uint64, chainTo uint64, amount *big.Int, receiver []byte, nonce uint64, autoParams []byte) common.Hash {
	packed := make([]byte, 0, 32*6)
	packed = append(packed, debridgeId.Bytes()...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(chainFrom)).Bytes()...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(chainTo)).Bytes()...)
	packed = append(packed, common.BigToHash(amount).Bytes()...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(nonce)).Bytes()...)
	packed = append(packed, crypto.Keccak256(receiver)...)
	if len(autoParams) > 0 {
		packed = append(packed, crypto.Keccak256(autoParams)...)
	}
	return crypto.Keccak256Hash(packed)
}

type IdentityResult struct {
	Ok           bool
	CalculatedId string
}

// IdentityValidator recomputes submission ids from stored raw fields to catch
// corrupted or forged event data, and tracks consecutive failures per source
// chain to decide when to escalate.
type IdentityValidator struct {
	grandfathered map[string]struct{}

	mu       sync.Mutex
	failures map[uint64]int
}

// NewIdentityValidator builds a validator around an injected allow-list of
// historically known-good submission ids.
func NewIdentityValidator(grandfathered []string) *IdentityValidator {
	set := make(map[string]struct{}, len(grandfathered))
	for _, id := range grandfathered {
		set[id] = struct{}{}
	}
	return &IdentityValidator{
		grandfathered: set,
		failures:      make(map[uint64]int),
	}
}

// Validate compares the claimed submission id against the one recomputed from
// the submission's own stored raw event. Grandfathered ids short-circuit to
// success and reset the chain's failure counter.
func (v *IdentityValidator) Validate(submission models.Submission) IdentityResult {
	if _, ok := v.grandfathered[submission.SubmissionId]; ok {
		v.reset(submission.ChainFrom)
		return IdentityResult{Ok: true}
	}

	calculated, err := v.recompute(submission)
	if err != nil {
		log.Error("[IDENTITY] Error recomputing submission id ", submission.SubmissionId, ": ", err)
		v.bump(submission.ChainFrom)
		return IdentityResult{Ok: false}
	}

	if calculated.Hex() != submission.SubmissionId {
		v.bump(submission.ChainFrom)
		return IdentityResult{Ok: false, CalculatedId: calculated.Hex()}
	}

	v.reset(submission.ChainFrom)
	return IdentityResult{Ok: true}
}

func (v *IdentityValidator) recompute(submission models.Submission) (common.Hash, error) {
	var raw models.RawSentEvent
	if err := json.Unmarshal([]byte(submission.RawEvent), &raw); err != nil {
		return common.Hash{}, fmt.Errorf("invalid raw event: %w", err)
	}

	amount, ok := new(big.Int).SetString(submission.Amount, 10)
	if !ok {
		return common.Hash{}, fmt.Errorf("invalid amount %q", submission.Amount)
	}
	receiver, err := hexutil.Decode(submission.ReceiverAddr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid receiver %q: %w", submission.ReceiverAddr, err)
	}
	var autoParams []byte
	if raw.AutoParams != "" {
		autoParams, err = hexutil.Decode(raw.AutoParams)
		if err != nil {
			return common.Hash{}, fmt.Errorf("invalid auto params: %w", err)
		}
	}

	return ComputeSubmissionID(
		common.HexToHash(submission.DebridgeId),
		submission.ChainFrom,
		submission.ChainTo,
		amount,
		receiver,
		submission.Nonce,
		autoParams,
	), nil
}

// Failures returns the consecutive failure count for a chain.
func (v *IdentityValidator) Failures(chainId uint64) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failures[chainId]
}

func (v *IdentityValidator) bump(chainId uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[chainId]++
}

func (v *IdentityValidator) reset(chainId uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[chainId] = 0
}
