package signer

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/common"
	"github.com/debridge-finance/oracle-node/models"
)

const (
	SignerName = "submission signer"
)

// SignerService signs newly ingested submissions with the oracle's key so
// downstream consumers can verify this oracle attested to the transfer.
type SignerService struct {
	wg       *sync.WaitGroup
	stop     chan bool
	interval time.Duration

	signer common.Signer

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func (x *SignerService) Start() {
	log.Info("[SIGNER] Starting service")
	stop := false
	for !stop {
		log.Debug("[SIGNER] Starting sign run")

		x.SignSubmissions()
		x.UpdateHealth()

		log.Debug("[SIGNER] Finished sign run, Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Info("[SIGNER] Stopped service")
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *SignerService) Stop() {
	log.Debug("[SIGNER] Stopping service")
	x.stop <- true
}

func (x *SignerService) Health() models.ServiceHealth {
	x.healthMu.RLock()
	defer x.healthMu.RUnlock()
	return x.health
}

func (x *SignerService) UpdateHealth() {
	x.healthMu.Lock()
	defer x.healthMu.Unlock()

	lastSyncTime := time.Now()
	x.health = models.ServiceHealth{
		Name:         SignerName,
		LastSyncTime: lastSyncTime,
		NextSyncTime: lastSyncTime.Add(x.interval),
		Healthy:      true,
	}
}

// SignSubmissions signs every submission still in the NEW signing state.
// An undecodable submission id is marked ERROR; transient signing faults
// leave the submission NEW for the next run.
func (x *SignerService) SignSubmissions() {
	var submissions []models.Submission
	if err := app.DB.FindMany(models.CollectionSubmissions, bson.M{"status": models.SubmissionStatusNew}, &submissions); err != nil {
		log.Error("[SIGNER] Error finding submissions to sign: ", err)
		return
	}

	for _, submission := range submissions {
		idBytes, err := hexutil.Decode(submission.SubmissionId)
		if err != nil {
			log.Error("[SIGNER] Invalid submission id ", submission.SubmissionId, ": ", err)
			x.markStatus(submission, models.SubmissionStatusError)
			continue
		}

		signature, err := x.signer.EthSign(idBytes)
		if err != nil {
			log.Error("[SIGNER] Error signing submission ", submission.SubmissionId, ": ", err)
			continue
		}

		update := bson.M{"$set": bson.M{
			"signature":  hexutil.Encode(signature),
			"status":     models.SubmissionStatusSigned,
			"updated_at": time.Now(),
		}}
		filter := bson.M{"submission_id": submission.SubmissionId, "status": models.SubmissionStatusNew}
		if err := app.DB.UpdateOne(models.CollectionSubmissions, filter, update); err != nil {
			log.Error("[SIGNER] Error persisting signature for ", submission.SubmissionId, ": ", err)
			continue
		}
		log.Info("[SIGNER] Signed submission ", submission.SubmissionId, " nonce ", submission.Nonce)
	}
}

func (x *SignerService) markStatus(submission models.Submission, status string) {
	update := bson.M{"$set": bson.M{"status": status, "updated_at": time.Now()}}
	if err := app.DB.UpdateOne(models.CollectionSubmissions, bson.M{"submission_id": submission.SubmissionId}, update); err != nil {
		log.Error("[SIGNER] Error marking submission ", submission.SubmissionId, " ", status, ": ", err)
	}
}

// NewSignerService initializes the signing service with the configured key
// backend.
func NewSignerService(wg *sync.WaitGroup, config models.ServiceConfig, signer common.Signer) models.Service {
	if !config.Enabled {
		log.Debug("[SIGNER] Service disabled")
		return models.NewEmptyService(wg)
	}

	log.Debug("[SIGNER] Initializing service")

	x := &SignerService{
		wg:       wg,
		stop:     make(chan bool),
		interval: time.Duration(config.IntervalMillis) * time.Millisecond,
		signer:   signer,
	}

	x.UpdateHealth()

	log.Info("[SIGNER] Initialized service with signer ", signer.EthAddress().Hex())
	return x
}
