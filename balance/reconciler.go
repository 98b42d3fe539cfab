package balance

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/evm"
	"github.com/debridge-finance/oracle-node/models"
)

const (
	ReconcilerName = "balance reconciler"
)

// Escalator is the boundary to the components that act on a failed
// reconciliation: the coordination API and the per-chain pause flags.
type Escalator interface {
	NotifyError(message string)
	PauseChain(chainId uint64)
}

// ReconcilerService cross-checks every pending submission against the
// independently reported monitoring feed, maintaining a derived balance
// sheet per (asset, chain) as it goes.
type ReconcilerService struct {
	wg       *sync.WaitGroup
	stop     chan bool
	interval time.Duration

	pageSize  int64
	escalator Escalator

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func (x *ReconcilerService) Start() {
	log.Info("[BALANCE RECONCILER] Starting service")
	stop := false
	for !stop {
		log.Debug("[BALANCE RECONCILER] Starting reconciliation run")

		x.ReconcileSubmissions()
		x.UpdateHealth()

		log.Debug("[BALANCE RECONCILER] Finished reconciliation run, Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Info("[BALANCE RECONCILER] Stopped service")
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *ReconcilerService) Stop() {
	log.Debug("[BALANCE RECONCILER] Stopping service")
	x.stop <- true
}

func (x *ReconcilerService) Health() models.ServiceHealth {
	x.healthMu.RLock()
	defer x.healthMu.RUnlock()
	return x.health
}

func (x *ReconcilerService) UpdateHealth() {
	x.healthMu.Lock()
	defer x.healthMu.Unlock()

	lastSyncTime := time.Now()
	x.health = models.ServiceHealth{
		Name:         ReconcilerName,
		LastSyncTime: lastSyncTime,
		NextSyncTime: lastSyncTime.Add(x.interval),
		Healthy:      true,
	}
}

// pendingFilter matches submissions not yet in a terminal validation state.
// FAILED and ON_HOLD submissions are re-examined on every run.
func pendingFilter() bson.M {
	return bson.M{"balance_validation_status": bson.M{
		"$nin": []string{models.BalanceStatusCompleted, models.BalanceStatusError},
	}}
}

// ReconcileSubmissions runs one scheduled pass over every asset with
// pending submissions. A failure inside one asset's batch aborts that
// asset only; the remaining submissions are retried on the next run.
func (x *ReconcilerService) ReconcileSubmissions() {
	ids, err := app.DB.Distinct(models.CollectionSubmissions, "debridge_id", pendingFilter())
	if err != nil {
		log.Error("[BALANCE RECONCILER] Error listing pending assets: ", err)
		return
	}

	for _, id := range ids {
		debridgeId, ok := id.(string)
		if !ok {
			continue
		}
		if err := x.reconcileAsset(debridgeId); err != nil {
			log.Error("[BALANCE RECONCILER] Error reconciling asset ", debridgeId, ": ", err)
		}
	}
}

func (x *ReconcilerService) reconcileAsset(debridgeId string) error {
	filter := pendingFilter()
	filter["debridge_id"] = debridgeId
	sort := bson.D{{Key: "nonce", Value: 1}, {Key: "created_at", Value: 1}}

	for skip := int64(0); ; skip += x.pageSize {
		var submissions []models.Submission
		if err := app.DB.FindManySorted(models.CollectionSubmissions, filter, sort, skip, x.pageSize, &submissions); err != nil {
			return fmt.Errorf("error paging submissions: %w", err)
		}
		if len(submissions) == 0 {
			return nil
		}

		for _, submission := range submissions {
			if err := x.reconcileSubmission(submission); err != nil {
				// a concurrent path may have put the submission on hold;
				// those are skipped, anything else aborts this asset
				var current models.Submission
				findErr := app.DB.FindOne(models.CollectionSubmissions, bson.M{"submission_id": submission.SubmissionId}, &current)
				if findErr == nil && current.BalanceStatus == models.BalanceStatusOnHold {
					log.Warn("[BALANCE RECONCILER] Skipping on-hold submission ", submission.SubmissionId)
					continue
				}
				return err
			}
		}

		if int64(len(submissions)) < x.pageSize {
			return nil
		}
	}
}

func (x *ReconcilerService) reconcileSubmission(submission models.Submission) error {
	token, err := x.loadToken(submission.DebridgeId)
	if err != nil {
		return err
	}

	submission, err = x.backfillDerivedFields(submission, token)
	if err != nil {
		return err
	}

	sender, err := x.loadBalance(submission.DebridgeId, submission.ChainFrom)
	if err != nil {
		return err
	}
	receiver, err := x.loadBalance(submission.DebridgeId, submission.ChainTo)
	if err != nil {
		return err
	}

	delta, err := x.transferDelta(submission)
	if err != nil {
		return err
	}

	senderAmount, err := parseAmount(sender.Amount)
	if err != nil {
		return fmt.Errorf("invalid sender balance for %s on chain %d: %w", submission.DebridgeId, submission.ChainFrom, err)
	}
	receiverAmount, err := parseAmount(receiver.Amount)
	if err != nil {
		return fmt.Errorf("invalid receiver balance for %s on chain %d: %w", submission.DebridgeId, submission.ChainTo, err)
	}

	returnToNative := submission.ChainTo == token.NativeChainId

	switch submission.TransferType {
	case models.TransferTypeSent:
		senderAmount.Add(senderAmount, delta)
		receiverAmount.Add(receiverAmount, delta)

	case models.TransferTypeBurn:
		if returnToNative {
			senderAmount.Sub(senderAmount, delta)
			receiverAmount.Sub(receiverAmount, delta)
		} else {
			senderAmount.Add(senderAmount, delta)
			receiverAmount.Sub(receiverAmount, delta)
		}

	default:
		return nil
	}

	sender.Amount = senderAmount.String()
	receiver.Amount = receiverAmount.String()
	balances := []models.BalanceSheetEntry{sender, receiver}

	monitoring, err := x.loadMonitoringEvent(submission.SubmissionId)
	if err != nil {
		return err
	}
	locked, err := parseAmount(monitoring.LockedOrMintedAmount)
	if err != nil {
		return fmt.Errorf("invalid lockedOrMintedAmount for %s: %w", submission.SubmissionId, err)
	}
	totalSupply, err := parseAmount(monitoring.TotalSupply)
	if err != nil {
		return fmt.Errorf("invalid totalSupply for %s: %w", submission.SubmissionId, err)
	}

	if submission.TransferType == models.TransferTypeBurn {
		if senderAmount.Sign() < 0 || receiverAmount.Sign() < 0 {
			return x.validate(submission, balances, fmt.Sprintf(
				"negative balance after burn: sender %s, receiver %s", sender.Amount, receiver.Amount,
			))
		}
		if locked.Cmp(senderAmount) != 0 {
			return x.validate(submission, balances, fmt.Sprintf(
				"lockedOrMintedAmount %s does not match sender balance %s after burn", monitoring.LockedOrMintedAmount, sender.Amount,
			))
		}
	}

	return x.compareBalance(submission, token, balances, senderAmount, locked, totalSupply, returnToNative)
}

// compareBalance classifies the submission against the monitoring feed. The
// non-de-asset branch marks the submission COMPLETED and still falls through
// to the remaining checks, which may overwrite the outcome; the last write
// wins, which mirrors the contract's observed behavior.
func (x *ReconcilerService) compareBalance(
	submission models.Submission,
	token models.Token,
	balances []models.BalanceSheetEntry,
	senderAmount *big.Int,
	locked *big.Int,
	totalSupply *big.Int,
	returnToNative bool,
) error {
	status := ""
	reason := ""

	isDeAssetTransfer := submission.ChainFrom != token.NativeChainId
	if !isDeAssetTransfer {
		status = models.BalanceStatusCompleted
	}

	if returnToNative {
		if locked.Cmp(senderAmount) < 0 {
			return x.validate(submission, balances, fmt.Sprintf(
				"lockedOrMintedAmount %s less than sender balance %s", locked, senderAmount,
			))
		}
		status = models.BalanceStatusCompleted
	} else {
		if locked.Cmp(senderAmount) > 0 {
			return x.validate(submission, balances, fmt.Sprintf(
				"lockedOrMintedAmount %s greater than sender balance %s", locked, senderAmount,
			))
		}
		if locked.Cmp(totalSupply) == 0 {
			status = models.BalanceStatusCompleted
		} else {
			status = models.BalanceStatusFailed
			reason = fmt.Sprintf("lockedOrMintedAmount %s does not equal totalSupply %s", locked, totalSupply)
		}
	}

	if status == models.BalanceStatusCompleted {
		log.Info("[BALANCE RECONCILER] Completed submission ", submission.SubmissionId, " nonce ", submission.Nonce)
	} else {
		log.Warn("[BALANCE RECONCILER] Submission ", submission.SubmissionId, " nonce ", submission.Nonce, " failed: ", reason)
	}
	return app.DB.CommitBalanceValidation(submission.SubmissionId, status, reason, balances)
}

// validate escalates a reconciliation mismatch. The failure branch is
// currently unconditional; the hold branch stays until the hold policy is
// decided.
func (x *ReconcilerService) validate(submission models.Submission, balances []models.BalanceSheetEntry, reason string) error {
	var chain models.SupportedChain
	if err := app.DB.FindOne(models.CollectionSupportedChains, bson.M{"chain_id": submission.ChainTo}, &chain); err != nil {
		log.Warn("[BALANCE RECONCILER] No supported chain record for destination ", submission.ChainTo, ": ", err)
	}

	requiresFailure := true
	if requiresFailure {
		if err := app.DB.CommitBalanceValidation(submission.SubmissionId, models.BalanceStatusError, reason, balances); err != nil {
			return fmt.Errorf("error committing failed validation: %w", err)
		}

		message := fmt.Sprintf(
			"balance validation failed: submission %s nonce %d chain %d: %s",
			submission.SubmissionId, submission.Nonce, submission.ChainFrom, reason,
		)
		log.Error("[BALANCE RECONCILER] ", message)
		x.escalator.NotifyError(message)
		x.escalator.PauseChain(submission.ChainFrom)
		return errors.New(message)
	}

	if err := app.DB.CommitBalanceValidation(submission.SubmissionId, models.BalanceStatusOnHold, reason, balances); err != nil {
		return fmt.Errorf("error committing hold: %w", err)
	}
	return fmt.Errorf("submission %s on hold: %s", submission.SubmissionId, reason)
}

// backfillDerivedFields resolves the transfer type and execution fee from
// the persisted raw event when ingestion could not: the asset's native
// chain may not have been known at that point.
func (x *ReconcilerService) backfillDerivedFields(submission models.Submission, token models.Token) (models.Submission, error) {
	if submission.TransferType != models.TransferTypeUnknown && submission.ExecutionFee != "" {
		return submission, nil
	}

	update := bson.M{}

	if submission.TransferType == models.TransferTypeUnknown {
		transferType := models.TransferTypeBurn
		if token.NativeChainId == submission.ChainFrom {
			transferType = models.TransferTypeSent
		}
		submission.TransferType = transferType
		update["transfer_type"] = transferType
	}

	if submission.ExecutionFee == "" {
		var raw models.RawSentEvent
		if err := json.Unmarshal([]byte(submission.RawEvent), &raw); err != nil {
			return submission, fmt.Errorf("invalid raw event for %s: %w", submission.SubmissionId, err)
		}
		if raw.AutoParams != "" {
			autoParams, err := hexutil.Decode(raw.AutoParams)
			if err != nil {
				return submission, fmt.Errorf("invalid auto params for %s: %w", submission.SubmissionId, err)
			}
			fee, err := evm.DecodeExecutionFee(autoParams)
			if err != nil {
				return submission, fmt.Errorf("error decoding execution fee for %s: %w", submission.SubmissionId, err)
			}
			if fee != nil {
				submission.ExecutionFee = fee.String()
				update["execution_fee"] = submission.ExecutionFee
			}
		}
	}

	if len(update) == 0 {
		return submission, nil
	}
	update["updated_at"] = time.Now()
	err := app.DB.UpdateOne(models.CollectionSubmissions, bson.M{"submission_id": submission.SubmissionId}, bson.M{"$set": update})
	return submission, err
}

// transferDelta is the amount a transfer moves: amount plus execution fee.
func (x *ReconcilerService) transferDelta(submission models.Submission) (*big.Int, error) {
	amount, err := parseAmount(submission.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for %s: %w", submission.SubmissionId, err)
	}
	if submission.ExecutionFee != "" {
		fee, err := parseAmount(submission.ExecutionFee)
		if err != nil {
			return nil, fmt.Errorf("invalid execution fee for %s: %w", submission.SubmissionId, err)
		}
		amount.Add(amount, fee)
	}
	return amount, nil
}

func (x *ReconcilerService) loadToken(debridgeId string) (models.Token, error) {
	var token models.Token
	err := app.DB.FindOne(models.CollectionTokens, bson.M{"debridge_id": debridgeId}, &token)
	if err != nil {
		return token, fmt.Errorf("no token record for asset %s: %w", debridgeId, err)
	}
	return token, nil
}

func (x *ReconcilerService) loadBalance(debridgeId string, chainId uint64) (models.BalanceSheetEntry, error) {
	var entry models.BalanceSheetEntry
	err := app.DB.FindOne(models.CollectionBalances, bson.M{"debridge_id": debridgeId, "chain_id": chainId}, &entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.BalanceSheetEntry{
				DebridgeId: debridgeId,
				ChainId:    chainId,
				Amount:     "0",
			}, nil
		}
		return entry, err
	}
	return entry, nil
}

func (x *ReconcilerService) loadMonitoringEvent(submissionId string) (models.MonitoringEvent, error) {
	var event models.MonitoringEvent
	err := app.DB.FindOne(models.CollectionMonitoringEvents, bson.M{"submission_id": submissionId}, &event)
	if err != nil {
		return event, fmt.Errorf("no monitoring event for submission %s: %w", submissionId, err)
	}
	return event, nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	return value, nil
}

// NewReconcilerService initializes the balance reconciliation engine.
func NewReconcilerService(wg *sync.WaitGroup, config models.BalanceConfig, escalator Escalator) models.Service {
	log.Debug("[BALANCE RECONCILER] Initializing service")

	x := &ReconcilerService{
		wg:        wg,
		stop:      make(chan bool),
		interval:  time.Duration(config.IntervalMillis) * time.Millisecond,
		pageSize:  config.PageSize,
		escalator: escalator,
	}

	x.UpdateHealth()

	log.Info("[BALANCE RECONCILER] Initialized service")
	return x
}
