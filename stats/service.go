package stats

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/coordinator"
	"github.com/debridge-finance/oracle-node/models"
)

const (
	StatsName = "statistics"
)

// StatsService ships per-chain scan progress to the coordination API.
type StatsService struct {
	wg       *sync.WaitGroup
	stop     chan bool
	interval time.Duration

	coordinator coordinator.Client

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func (x *StatsService) Start() {
	log.Info("[STATS] Starting service")
	stop := false
	for !stop {
		log.Debug("[STATS] Starting stats run")

		x.UploadProgress()
		x.UpdateHealth()

		log.Debug("[STATS] Finished stats run, Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Info("[STATS] Stopped service")
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *StatsService) Stop() {
	log.Debug("[STATS] Stopping service")
	x.stop <- true
}

func (x *StatsService) Health() models.ServiceHealth {
	x.healthMu.RLock()
	defer x.healthMu.RUnlock()
	return x.health
}

func (x *StatsService) UpdateHealth() {
	x.healthMu.Lock()
	defer x.healthMu.Unlock()

	lastSyncTime := time.Now()
	x.health = models.ServiceHealth{
		Name:         StatsName,
		LastSyncTime: lastSyncTime,
		NextSyncTime: lastSyncTime.Add(x.interval),
		Healthy:      true,
	}
}

func (x *StatsService) UploadProgress() {
	var supportedChains []models.SupportedChain
	if err := app.DB.FindMany(models.CollectionSupportedChains, bson.M{}, &supportedChains); err != nil {
		log.Error("[STATS] Error loading chain cursors: ", err)
		return
	}

	progress := make([]models.ProgressInfo, 0, len(supportedChains))
	for _, chain := range supportedChains {
		progress = append(progress, models.ProgressInfo{
			ChainId:         chain.ChainId,
			LatestBlock:     chain.LatestBlock,
			LatestNonce:     chain.LatestNonce,
			LastTxTimestamp: chain.LastTxTimestamp,
		})
	}

	if err := x.coordinator.UploadStatistic(progress); err != nil {
		log.Error("[STATS] Error uploading progress: ", err)
	}
}

// NewStatsService initializes the statistics service.
func NewStatsService(wg *sync.WaitGroup, config models.ServiceConfig, coordinatorClient coordinator.Client) models.Service {
	if !config.Enabled {
		log.Debug("[STATS] Service disabled")
		return models.NewEmptyService(wg)
	}

	log.Debug("[STATS] Initializing service")

	x := &StatsService{
		wg:          wg,
		stop:        make(chan bool),
		interval:    time.Duration(config.IntervalMillis) * time.Millisecond,
		coordinator: coordinatorClient,
	}

	x.UpdateHealth()

	log.Info("[STATS] Initialized service")
	return x
}
