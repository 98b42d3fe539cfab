package pipeline

import (
	"errors"
	"fmt"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/models"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type ProcessStatus int

const (
	ProcessSuccess ProcessStatus = iota
	ProcessErrorNonceValidation
	ProcessErrorSubmissionValidation
)

func (s ProcessStatus) String() string {
	switch s {
	case ProcessSuccess:
		return "SUCCESS"
	case ProcessErrorNonceValidation:
		return "ERROR_NONCE_VALIDATION"
	case ProcessErrorSubmissionValidation:
		return "ERROR_SUBMISSION_VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// ProcessResult reports how far a batch got. BlockOrNonceToOverwrite is the
// last known-good cursor position; nil means the very first event already
// failed and the cursor must not move at all.
type ProcessResult struct {
	Status                  ProcessStatus
	BlockOrNonceToOverwrite *int64
}

// Escalator is the boundary to the components that act on data-integrity
// faults: the coordination API, the per-chain pause flags and the provider
// health flags.
type Escalator interface {
	NotifyError(message string)
	PauseChain(chainId uint64)
	MarkProviderSuspect(chainId uint64)
}

// Processor is the ingestion pipeline: it validates and persists a batch of
// submissions in on-chain emission order.
type Processor struct {
	nonces      *NonceTracker
	identity    *IdentityValidator
	escalator   Escalator
	maxAttempts func(chainId uint64) int
}

func NewProcessor(nonces *NonceTracker, identity *IdentityValidator, escalator Escalator, maxAttempts func(chainId uint64) int) *Processor {
	return &Processor{
		nonces:      nonces,
		identity:    identity,
		escalator:   escalator,
		maxAttempts: maxAttempts,
	}
}

// Process ingests submissions in batch order. positionOf extracts the cursor
// position a submission certifies (block number on EVM chains, nonce on
// Solana). A non-nil error means a storage fault or a missing monitoring
// event pairing; the caller must not advance the cursor past the returned
// position in any case.
func (p *Processor) Process(chainId uint64, submissions []models.Submission, events map[string]models.MonitoringEvent, positionOf func(models.Submission) int64) (ProcessResult, error) {
	var lastGood *int64

	for _, submission := range submissions {
		existing, found, err := p.findExisting(submission.SubmissionId)
		if err != nil {
			return ProcessResult{Status: ProcessSuccess, BlockOrNonceToOverwrite: lastGood}, err
		}

		if found {
			// Overlapping scan windows re-deliver known submissions; refresh
			// the high-water-mark from the stored record and move on.
			p.nonces.Bump(chainId, existing.Nonce)
			if event, ok := events[submission.SubmissionId]; ok {
				if err := app.DB.SaveMonitoringEvent(event); err != nil {
					return ProcessResult{Status: ProcessSuccess, BlockOrNonceToOverwrite: lastGood}, err
				}
			}
			position := positionOf(submission)
			lastGood = &position
			continue
		}

		nonceExists, err := p.nonceExists(chainId, submission.Nonce)
		if err != nil {
			return ProcessResult{Status: ProcessSuccess, BlockOrNonceToOverwrite: lastGood}, err
		}

		nonceResult := ValidateNonce(p.nonces.Max(chainId), submission.Nonce, nonceExists)
		if nonceResult != NonceSuccess {
			p.escalateNonce(chainId, submission, nonceResult)
			return ProcessResult{Status: ProcessErrorNonceValidation, BlockOrNonceToOverwrite: lastGood}, nil
		}

		identityResult := p.identity.Validate(submission)
		if !identityResult.Ok {
			p.escalateIdentity(chainId, submission, identityResult)
			return ProcessResult{Status: ProcessErrorSubmissionValidation, BlockOrNonceToOverwrite: lastGood}, nil
		}

		event, ok := events[submission.SubmissionId]
		if !ok {
			// Balance reconciliation depends on the pairing; a submission
			// without its monitoring event is itself an anomaly.
			return ProcessResult{Status: ProcessSuccess, BlockOrNonceToOverwrite: lastGood},
				fmt.Errorf("no monitoring event for submission %s nonce %d", submission.SubmissionId, submission.Nonce)
		}

		if err := app.DB.SaveSubmissionWithEvent(submission, &event); err != nil {
			return ProcessResult{Status: ProcessSuccess, BlockOrNonceToOverwrite: lastGood}, err
		}

		log.Info("[PROCESSOR] Stored submission ", submission.SubmissionId, " chain ", chainId, " nonce ", submission.Nonce)

		p.nonces.Set(chainId, submission.Nonce)
		position := positionOf(submission)
		lastGood = &position
	}

	return ProcessResult{Status: ProcessSuccess, BlockOrNonceToOverwrite: lastGood}, nil
}

func (p *Processor) findExisting(submissionId string) (models.Submission, bool, error) {
	var existing models.Submission
	err := app.DB.FindOne(models.CollectionSubmissions, bson.M{"submission_id": submissionId}, &existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Submission{}, false, nil
		}
		return models.Submission{}, false, err
	}
	return existing, true, nil
}

func (p *Processor) nonceExists(chainId uint64, nonce uint64) (bool, error) {
	var existing models.Submission
	err := app.DB.FindOne(models.CollectionSubmissions, bson.M{"chain_from": chainId, "nonce": nonce}, &existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Processor) escalateNonce(chainId uint64, submission models.Submission, result NonceValidationResult) {
	message := fmt.Sprintf(
		"nonce validation failed on chain %d: submission %s nonce %d: %s",
		chainId, submission.SubmissionId, submission.Nonce, result,
	)
	log.Error("[PROCESSOR] ", message)
	p.escalator.NotifyError(message)
	p.escalator.PauseChain(chainId)
}

func (p *Processor) escalateIdentity(chainId uint64, submission models.Submission, result IdentityResult) {
	message := fmt.Sprintf(
		"submission id validation failed on chain %d: submission %s nonce %d, calculated %s",
		chainId, submission.SubmissionId, submission.Nonce, result.CalculatedId,
	)
	log.Error("[PROCESSOR] ", message)

	p.escalator.MarkProviderSuspect(chainId)
	p.escalator.NotifyError(message)

	failures := p.identity.Failures(chainId)
	if failures > p.maxAttempts(chainId) {
		p.escalator.NotifyError(fmt.Sprintf(
			"chain %d paused after %d consecutive submission id validation failures", chainId, failures,
		))
		p.escalator.PauseChain(chainId)
	}
}
