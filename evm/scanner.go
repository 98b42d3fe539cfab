package evm

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/chains"
	"github.com/debridge-finance/oracle-node/models"
	"github.com/debridge-finance/oracle-node/pipeline"
)

const (
	ScannerName = "evm scanner"
)

// ScanService drives batched retrieval of new bridge events for one EVM
// chain, advancing the persisted cursor only on verified success.
type ScanService struct {
	wg       *sync.WaitGroup
	stop     chan bool
	interval time.Duration

	config    models.ChainConfig
	client    Client
	processor *pipeline.Processor
	nonces    *pipeline.NonceTracker
	locks     *chains.ScanLocks

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func (x *ScanService) Start() {
	log.Info("[EVM SCANNER] Starting service for chain ", x.config.ChainId)
	stop := false
	for !stop {
		log.Debug("[EVM SCANNER] Starting sync for chain ", x.config.ChainId)

		if err := x.ScanNewBlocks(); err != nil {
			log.Error("[EVM SCANNER] Error scanning chain ", x.config.ChainId, ": ", err)
		}

		x.UpdateHealth()

		log.Debug("[EVM SCANNER] Finished sync for chain ", x.config.ChainId, ", Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Info("[EVM SCANNER] Stopped service for chain ", x.config.ChainId)
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *ScanService) Stop() {
	log.Debug("[EVM SCANNER] Stopping service for chain ", x.config.ChainId)
	x.stop <- true
}

func (x *ScanService) Health() models.ServiceHealth {
	x.healthMu.RLock()
	defer x.healthMu.RUnlock()
	return x.health
}

func (x *ScanService) UpdateHealth() {
	cursor := ""
	if chain, err := x.loadCursor(); err == nil {
		cursor = strconv.FormatInt(chain.LatestBlock, 10)
	}

	x.healthMu.Lock()
	defer x.healthMu.Unlock()

	lastSyncTime := time.Now()
	x.health = models.ServiceHealth{
		Name:         ScannerName,
		ChainID:      x.config.ChainId,
		LastSyncTime: lastSyncTime,
		NextSyncTime: lastSyncTime.Add(x.interval),
		Cursor:       cursor,
		Healthy:      !x.locks.IsPaused(x.config.ChainId),
	}
}

func (x *ScanService) loadCursor() (models.SupportedChain, error) {
	var chain models.SupportedChain
	err := app.DB.FindOne(models.CollectionSupportedChains, bson.M{"chain_id": x.config.ChainId}, &chain)
	return chain, err
}

// seedCursor creates the supported chain record on first run.
func (x *ScanService) seedCursor() error {
	_, err := x.loadCursor()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	chain := models.SupportedChain{
		ChainId:     x.config.ChainId,
		Network:     x.config.Network,
		LatestBlock: x.config.FirstStartBlock,
		UpdatedAt:   time.Now(),
	}
	log.Info("[EVM SCANNER] Seeding cursor for chain ", x.config.ChainId, " at block ", x.config.FirstStartBlock)
	return app.DB.InsertOne(models.CollectionSupportedChains, chain)
}

// advanceCursor moves the persisted cursor forward; it never moves back.
func (x *ScanService) advanceCursor(block int64, blockTime uint64) error {
	filter := bson.M{"chain_id": x.config.ChainId, "latest_block": bson.M{"$lt": block}}
	update := bson.M{"$set": bson.M{
		"latest_block":      block,
		"last_tx_timestamp": int64(blockTime),
		"updated_at":        time.Now(),
	}}
	return app.DB.UpdateOne(models.CollectionSupportedChains, filter, update)
}

// ScanNewBlocks runs one scheduled scan: resolve the confirmed tip, then walk
// the window between the persisted cursor and the tip. Overlapping triggers
// for the same chain are dropped by the scan lock.
func (x *ScanService) ScanNewBlocks() error {
	if !x.locks.TryLock(x.config.ChainId) {
		return nil
	}
	defer x.locks.Unlock(x.config.ChainId)

	tip, err := x.client.GetBlockNumber()
	if err != nil {
		return fmt.Errorf("error getting block number: %w", err)
	}
	toBlock := int64(tip) - x.config.BlockConfirmation
	if toBlock <= 0 {
		return nil
	}

	chain, err := x.loadCursor()
	if err != nil {
		return fmt.Errorf("error loading cursor: %w", err)
	}
	fromBlock := chain.LatestBlock
	if fromBlock == 0 {
		fromBlock = toBlock - 1
	}
	if fromBlock >= toBlock {
		log.Debug("[EVM SCANNER] No new blocks for chain ", x.config.ChainId)
		return nil
	}

	return x.scanRange(fromBlock, toBlock, chain.LatestBlock)
}

// Rescan re-processes an explicit block range. Ranges at or above the
// configured max block range are rejected rather than doing unbounded work.
func (x *ScanService) Rescan(fromBlock int64, toBlock int64) error {
	if toBlock-fromBlock >= x.config.MaxBlockRange {
		return fmt.Errorf("rescan range [%d, %d) exceeds max block range %d", fromBlock, toBlock, x.config.MaxBlockRange)
	}
	if fromBlock >= toBlock {
		return fmt.Errorf("invalid rescan range [%d, %d)", fromBlock, toBlock)
	}

	if !x.locks.TryLock(x.config.ChainId) {
		return fmt.Errorf("chain %d is busy or paused", x.config.ChainId)
	}
	defer x.locks.Unlock(x.config.ChainId)

	lockId, err := app.DB.XLock(fmt.Sprintf("rescan/%d", x.config.ChainId))
	if err != nil {
		return fmt.Errorf("error locking rescan resource: %w", err)
	}
	defer func() {
		if err := app.DB.Unlock(lockId); err != nil {
			log.Error("[EVM SCANNER] Error unlocking rescan resource: ", err)
		}
	}()

	log.Info("[EVM SCANNER] Manual rescan of chain ", x.config.ChainId, " blocks [", fromBlock, ", ", toBlock, ")")
	return x.processWindow(fromBlock, toBlock, -1)
}

func (x *ScanService) scanRange(fromBlock int64, toBlock int64, persistedCursor int64) error {
	for start := fromBlock; start < toBlock; {
		end := start + x.config.MaxBlockRange
		if end > toBlock {
			end = toBlock
		}

		// an already-persisted window end means a re-triggered scan
		if end == persistedCursor {
			start = end
			continue
		}

		if err := x.processWindow(start, end, end); err != nil {
			return err
		}
		start = end
	}
	return nil
}

// processWindow fetches both event kinds for [fromBlock, toBlock) and hands
// them to the ingestion pipeline. cursorOnSuccess < 0 leaves the cursor alone
// (manual rescans).
func (x *ScanService) processWindow(fromBlock int64, toBlock int64, cursorOnSuccess int64) error {
	chainId := x.config.ChainId

	sents, err := x.client.GetSentEvents(fromBlock, toBlock-1)
	if err != nil {
		return fmt.Errorf("error fetching sent events [%d, %d): %w", fromBlock, toBlock, err)
	}

	blockTime, err := x.client.GetBlockTimestamp(toBlock - 1)
	if err != nil {
		return fmt.Errorf("error fetching block timestamp %d: %w", toBlock-1, err)
	}

	if len(sents) == 0 {
		log.Debug("[EVM SCANNER] No events for chain ", chainId, " in [", fromBlock, ", ", toBlock, ")")
		if cursorOnSuccess >= 0 {
			return x.advanceCursor(cursorOnSuccess, blockTime)
		}
		return nil
	}

	monitorings, err := x.client.GetMonitoringEvents(fromBlock, toBlock-1)
	if err != nil {
		return fmt.Errorf("error fetching monitoring events [%d, %d): %w", fromBlock, toBlock, err)
	}

	submissions := make([]models.Submission, 0, len(sents))
	for _, event := range sents {
		submission, err := CreateSubmission(event, chainId, int64(blockTime))
		if err != nil {
			return fmt.Errorf("error transforming sent event: %w", err)
		}
		submissions = append(submissions, submission)
	}

	events := make(map[string]models.MonitoringEvent, len(monitorings))
	for _, event := range monitorings {
		monitoring, err := CreateMonitoringEvent(event)
		if err != nil {
			return fmt.Errorf("error transforming monitoring event: %w", err)
		}
		events[monitoring.SubmissionId] = monitoring
	}

	result, processErr := x.processor.Process(chainId, submissions, events, func(s models.Submission) int64 {
		return s.BlockNumber
	})

	if result.Status == pipeline.ProcessSuccess && processErr == nil {
		if cursorOnSuccess >= 0 {
			return x.advanceCursor(cursorOnSuccess, blockTime)
		}
		return nil
	}

	// partial progress: move the cursor only to the last known-good position
	if result.BlockOrNonceToOverwrite != nil && cursorOnSuccess >= 0 {
		if err := x.advanceCursor(*result.BlockOrNonceToOverwrite, blockTime); err != nil {
			log.Error("[EVM SCANNER] Error persisting partial cursor for chain ", chainId, ": ", err)
		}
	}
	if processErr != nil {
		return fmt.Errorf("error processing batch [%d, %d): %w", fromBlock, toBlock, processErr)
	}
	return fmt.Errorf("batch [%d, %d) aborted: %s", fromBlock, toBlock, result.Status)
}

// NewScanService initializes the scanner for one EVM chain, seeding the
// cursor and rehydrating the nonce high-water-mark.
func NewScanService(wg *sync.WaitGroup, config models.ChainConfig, client Client, processor *pipeline.Processor, nonces *pipeline.NonceTracker, locks *chains.ScanLocks) models.Service {
	log.Debug("[EVM SCANNER] Initializing scanner for chain ", config.ChainId)

	x := &ScanService{
		wg:        wg,
		stop:      make(chan bool),
		interval:  time.Duration(config.IntervalMillis) * time.Millisecond,
		config:    config,
		client:    client,
		processor: processor,
		nonces:    nonces,
		locks:     locks,
	}

	if err := x.seedCursor(); err != nil {
		log.Fatal("[EVM SCANNER] Error seeding cursor for chain ", config.ChainId, ": ", err)
	}

	chain, err := x.loadCursor()
	if err != nil {
		log.Fatal("[EVM SCANNER] Error loading cursor for chain ", config.ChainId, ": ", err)
	}
	if err := nonces.Rehydrate(config.ChainId, bson.M{"block_number": bson.M{"$lte": chain.LatestBlock}}); err != nil {
		log.Fatal("[EVM SCANNER] Error rehydrating nonces for chain ", config.ChainId, ": ", err)
	}

	x.UpdateHealth()

	log.Info("[EVM SCANNER] Initialized scanner for chain ", config.ChainId)
	return x
}
