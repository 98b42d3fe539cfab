package solana

import (
	"errors"
	"fmt"
	"sort"
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
	ScannerName = "solana scanner"
)

// ScanService ingests bridge events from Solana. Until the chain record is
// marked fully synced it backfills historical transactions through signature
// paging; after that it drains the live websocket stream on every tick.
type ScanService struct {
	wg       *sync.WaitGroup
	stop     chan bool
	interval time.Duration

	config    models.ChainConfig
	client    Client
	stream    *EventStream
	processor *pipeline.Processor
	nonces    *pipeline.NonceTracker
	locks     *chains.ScanLocks

	streamStarted  bool
	lastGeneration uint64

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func (x *ScanService) Start() {
	log.Info("[SOLANA SCANNER] Starting service for chain ", x.config.ChainId)
	stop := false
	for !stop {
		log.Debug("[SOLANA SCANNER] Starting sync for chain ", x.config.ChainId)

		if err := x.SyncTxs(); err != nil {
			log.Error("[SOLANA SCANNER] Error syncing chain ", x.config.ChainId, ": ", err)
		}

		x.UpdateHealth()

		log.Debug("[SOLANA SCANNER] Finished sync for chain ", x.config.ChainId, ", Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			if x.streamStarted {
				x.stream.Stop()
			}
			log.Info("[SOLANA SCANNER] Stopped service for chain ", x.config.ChainId)
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *ScanService) Stop() {
	log.Debug("[SOLANA SCANNER] Stopping service for chain ", x.config.ChainId)
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
		cursor = strconv.FormatUint(chain.LatestNonce, 10)
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

func (x *ScanService) seedCursor() error {
	_, err := x.loadCursor()
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	chain := models.SupportedChain{
		ChainId:   x.config.ChainId,
		Network:   x.config.Network,
		UpdatedAt: time.Now(),
	}
	log.Info("[SOLANA SCANNER] Seeding cursor for chain ", x.config.ChainId)
	return app.DB.InsertOne(models.CollectionSupportedChains, chain)
}

// advanceCursor moves the nonce cursor forward; it never moves back.
func (x *ScanService) advanceCursor(nonce uint64, slot uint64, signature string, blockTime int64) error {
	filter := bson.M{"chain_id": x.config.ChainId, "latest_nonce": bson.M{"$lte": nonce}}
	update := bson.M{"$set": bson.M{
		"latest_nonce":                 nonce,
		"last_transaction_slot_number": slot,
		"latest_solana_transaction":    signature,
		"last_tx_timestamp":            blockTime,
		"updated_at":                   time.Now(),
	}}
	return app.DB.UpdateOne(models.CollectionSupportedChains, filter, update)
}

// SyncTxs runs one scheduled sync. Overlapping triggers for the chain are
// dropped by the scan lock.
func (x *ScanService) SyncTxs() error {
	if !x.locks.TryLock(x.config.ChainId) {
		return nil
	}
	defer x.locks.Unlock(x.config.ChainId)

	chain, err := x.loadCursor()
	if err != nil {
		return fmt.Errorf("error loading cursor: %w", err)
	}

	if !chain.FullSync {
		return x.Backfill(chain)
	}
	return x.SyncStream(chain)
}

// Backfill pages through the program's historical signatures until the walk
// is exhausted, then replays every event oldest-to-newest by nonce through
// the ingestion pipeline. The earliest seen signature is persisted as the
// walk progresses so a restarted backfill continues the walk downward from
// where it left off instead of re-paging from the tip; a second pass then
// covers whatever arrived above the resumed walk. Ingestion is idempotent,
// so an interrupted replay is simply repeated on the next tick.
func (x *ScanService) Backfill(chain models.SupportedChain) error {
	logger := log.WithFields(log.Fields{"module": "solana", "chain_id": x.config.ChainId})
	logger.Info("[SOLANA SCANNER] Backfilling history")

	signatures, err := x.collectSignatures(chain.EarliestSolanaTransaction, chain.LatestSolanaTransaction, true)
	if err != nil {
		return err
	}
	if chain.EarliestSolanaTransaction != "" {
		newer, err := x.collectSignatures("", chain.EarliestSolanaTransaction, false)
		if err != nil {
			return err
		}
		signatures = append(signatures, newer...)
	}

	if len(signatures) == 0 {
		logger.Info("[SOLANA SCANNER] No history to backfill; switching to live stream")
		return x.markFullSync()
	}

	buffered, err := x.fetchEvents(signatures)
	if err != nil {
		return err
	}

	if err := x.processBuffered(buffered, 0); err != nil {
		return err
	}

	logger.Info("[SOLANA SCANNER] Backfill complete; switching to live stream")
	return x.markFullSync()
}

// collectSignatures walks a signature range newest-to-oldest. before seeds
// the walk below an already-covered range; until bounds it above the
// persisted cursor. persistProgress records the deepest signature reached
// so an interrupted walk resumes instead of restarting from the tip.
func (x *ScanService) collectSignatures(before string, until string, persistProgress bool) ([]SignatureInfo, error) {
	var signatures []SignatureInfo
	for {
		page, err := x.client.GetSignatures(before, until, x.config.BackfillPageSize)
		if err != nil {
			return nil, fmt.Errorf("error paging signatures: %w", err)
		}
		if len(page) == 0 {
			return signatures, nil
		}

		for _, info := range page {
			if !info.Err {
				signatures = append(signatures, info)
			}
		}

		before = page[len(page)-1].Signature
		if persistProgress {
			if err := x.persistEarliest(before); err != nil {
				return nil, fmt.Errorf("error persisting earliest transaction: %w", err)
			}
		}
	}
}

// fetchEvents resolves each signature's bridge events, pairing monitoring
// events with their sends, in chain order.
func (x *ScanService) fetchEvents(signatures []SignatureInfo) ([]BufferedEvent, error) {
	// pages arrive newest first; replay in chain order
	sort.Slice(signatures, func(i, j int) bool {
		return signatures[i].Slot < signatures[j].Slot
	})

	buffered := make([]BufferedEvent, 0, len(signatures))
	for _, info := range signatures {
		sends, monitorings, err := x.client.GetTransactionEvents(info.Signature)
		if err != nil {
			return nil, fmt.Errorf("error fetching events for %s: %w", info.Signature, err)
		}
		monitoringById := make(map[[32]byte]*MonitoringEvent, len(monitorings))
		for i := range monitorings {
			monitoringById[monitorings[i].SubmissionId] = &monitorings[i]
		}
		for _, send := range sends {
			buffered = append(buffered, BufferedEvent{
				Send:       send,
				Monitoring: monitoringById[send.SubmissionId],
				BlockTime:  info.BlockTime,
			})
		}
	}
	return buffered, nil
}

// SyncStream drains the live event buffer and replays it through the
// ingestion pipeline. On a failed chunk the buffer is discarded and the
// stream forced onto a fresh subscription, so the next drain re-delivers
// from clean state.
func (x *ScanService) SyncStream(chain models.SupportedChain) error {
	if !x.streamStarted {
		x.stream.Start()
		x.streamStarted = true
	}

	// every subscription is live-only; after each (re)connect, page the
	// signatures above the persisted cursor so events emitted while no
	// subscription was up are ingested instead of lost
	if gen := x.stream.Generation(); gen != x.lastGeneration {
		if err := x.replayGap(chain); err != nil {
			return err
		}
		x.lastGeneration = gen

		reloaded, err := x.loadCursor()
		if err != nil {
			return fmt.Errorf("error reloading cursor: %w", err)
		}
		chain = reloaded
	}

	// heartbeat slots move the slot cursor even when no events arrive
	if slot := x.stream.LastSlot(); slot > chain.LastTransactionSlotNumber {
		update := bson.M{"$set": bson.M{
			"last_transaction_slot_number": slot,
			"updated_at":                   time.Now(),
		}}
		filter := bson.M{"chain_id": x.config.ChainId, "last_transaction_slot_number": bson.M{"$lt": slot}}
		if err := app.DB.UpdateOne(models.CollectionSupportedChains, filter, update); err != nil {
			log.Error("[SOLANA SCANNER] Error persisting heartbeat slot: ", err)
		}
	}

	buffered := x.stream.Drain()
	if len(buffered) == 0 {
		return nil
	}

	// stale re-deliveries below the cursor carry nothing new
	fresh := buffered[:0]
	for _, event := range buffered {
		if event.Send.Nonce >= chain.LatestNonce {
			fresh = append(fresh, event)
		}
	}

	if err := x.processBuffered(fresh, chain.LatestNonce); err != nil {
		x.stream.Reset()
		return err
	}
	return nil
}

// replayGap re-pages everything newer than the persisted cursor through the
// ingestion pipeline. Signatures at or below the cursor are excluded by the
// until bound; anything re-delivered is deduplicated downstream.
func (x *ScanService) replayGap(chain models.SupportedChain) error {
	signatures, err := x.collectSignatures("", chain.LatestSolanaTransaction, false)
	if err != nil {
		return err
	}
	if len(signatures) == 0 {
		return nil
	}

	log.Info("[SOLANA SCANNER] Replaying ", len(signatures), " transactions missed while resubscribing")

	buffered, err := x.fetchEvents(signatures)
	if err != nil {
		return err
	}
	return x.processBuffered(buffered, chain.LatestNonce)
}

// processBuffered replays buffered events nonce-ascending through the
// pipeline in sync chunks, advancing the cursor after each good chunk.
func (x *ScanService) processBuffered(buffered []BufferedEvent, cursorNonce uint64) error {
	if len(buffered) == 0 {
		return nil
	}

	sort.Slice(buffered, func(i, j int) bool {
		return buffered[i].Send.Nonce < buffered[j].Send.Nonce
	})

	chunkSize := x.config.SyncChunkSize
	if chunkSize <= 0 {
		chunkSize = len(buffered)
	}

	for start := 0; start < len(buffered); start += chunkSize {
		end := start + chunkSize
		if end > len(buffered) {
			end = len(buffered)
		}
		if err := x.processChunk(buffered[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (x *ScanService) processChunk(chunk []BufferedEvent) error {
	submissions := make([]models.Submission, 0, len(chunk))
	events := make(map[string]models.MonitoringEvent, len(chunk))
	bySubmission := make(map[string]BufferedEvent, len(chunk))
	blockTimes := make(map[string]int64, len(chunk))
	timesBySlot := make(map[uint64]int64)

	for _, event := range chunk {
		blockTime := x.resolveBlockTime(event, timesBySlot)
		submission, err := CreateSubmission(event.Send, blockTime)
		if err != nil {
			return fmt.Errorf("error transforming send event: %w", err)
		}
		submissions = append(submissions, submission)
		bySubmission[submission.SubmissionId] = event
		blockTimes[submission.SubmissionId] = blockTime

		if event.Monitoring != nil {
			monitoring, err := CreateMonitoringEvent(*event.Monitoring)
			if err != nil {
				return fmt.Errorf("error transforming monitoring event: %w", err)
			}
			events[monitoring.SubmissionId] = monitoring
		}
	}

	result, processErr := x.processor.Process(x.config.ChainId, submissions, events, func(s models.Submission) int64 {
		return int64(s.Nonce)
	})

	if result.Status == pipeline.ProcessSuccess && processErr == nil {
		last := submissions[len(submissions)-1]
		event := bySubmission[last.SubmissionId]
		if err := x.advanceCursor(event.Send.Nonce, event.Send.Slot, event.Send.Signature, blockTimes[last.SubmissionId]); err != nil {
			return fmt.Errorf("error advancing cursor: %w", err)
		}
		return nil
	}

	// partial progress: move the cursor only to the last known-good nonce
	if result.BlockOrNonceToOverwrite != nil {
		lastGood := uint64(*result.BlockOrNonceToOverwrite)
		for _, submission := range submissions {
			if submission.Nonce != lastGood {
				continue
			}
			event := bySubmission[submission.SubmissionId]
			if err := x.advanceCursor(lastGood, event.Send.Slot, event.Send.Signature, blockTimes[submission.SubmissionId]); err != nil {
				log.Error("[SOLANA SCANNER] Error persisting partial cursor: ", err)
			}
			break
		}
	}
	if processErr != nil {
		return fmt.Errorf("error processing chunk: %w", processErr)
	}
	return fmt.Errorf("chunk aborted: %s", result.Status)
}

// resolveBlockTime returns an event's block timestamp. Backfilled events
// carry it from the signature listing; streamed events need a lookup by
// slot, cached per chunk. A failed lookup falls back to the receive time
// rather than zeroing the timestamp.
func (x *ScanService) resolveBlockTime(event BufferedEvent, timesBySlot map[uint64]int64) int64 {
	if event.BlockTime != 0 {
		return event.BlockTime
	}
	if blockTime, ok := timesBySlot[event.Send.Slot]; ok {
		return blockTime
	}
	blockTime, err := x.client.GetBlockTime(event.Send.Slot)
	if err != nil || blockTime == 0 {
		log.Warn("[SOLANA SCANNER] Error resolving block time for slot ", event.Send.Slot, ": ", err)
		blockTime = time.Now().Unix()
	}
	timesBySlot[event.Send.Slot] = blockTime
	return blockTime
}

func (x *ScanService) persistEarliest(signature string) error {
	update := bson.M{"$set": bson.M{
		"earliest_solana_transaction": signature,
		"updated_at":                  time.Now(),
	}}
	return app.DB.UpdateOne(models.CollectionSupportedChains, bson.M{"chain_id": x.config.ChainId}, update)
}

func (x *ScanService) markFullSync() error {
	update := bson.M{"$set": bson.M{
		"full_sync":  true,
		"updated_at": time.Now(),
	}}
	return app.DB.UpdateOne(models.CollectionSupportedChains, bson.M{"chain_id": x.config.ChainId}, update)
}

// NewScanService initializes the Solana scanner, seeding the cursor and
// rehydrating the nonce high-water-mark.
func NewScanService(wg *sync.WaitGroup, config models.ChainConfig, client Client, stream *EventStream, processor *pipeline.Processor, nonces *pipeline.NonceTracker, locks *chains.ScanLocks) models.Service {
	log.Debug("[SOLANA SCANNER] Initializing scanner for chain ", config.ChainId)

	x := &ScanService{
		wg:        wg,
		stop:      make(chan bool),
		interval:  time.Duration(config.IntervalMillis) * time.Millisecond,
		config:    config,
		client:    client,
		stream:    stream,
		processor: processor,
		nonces:    nonces,
		locks:     locks,
	}

	if err := x.seedCursor(); err != nil {
		log.Fatal("[SOLANA SCANNER] Error seeding cursor for chain ", config.ChainId, ": ", err)
	}

	if err := nonces.Rehydrate(config.ChainId, bson.M{}); err != nil {
		log.Fatal("[SOLANA SCANNER] Error rehydrating nonces for chain ", config.ChainId, ": ", err)
	}

	x.UpdateHealth()

	log.Info("[SOLANA SCANNER] Initialized scanner for chain ", config.ChainId)
	return x
}
