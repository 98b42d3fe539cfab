package uploader

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/bundlr"
	"github.com/debridge-finance/oracle-node/coordinator"
	"github.com/debridge-finance/oracle-node/models"
)

const (
	UploaderName = "submission uploader"
)

// UploaderService publishes signed confirmations: the payload goes to the
// content-addressed store and the confirmation row to the coordination API.
// The two destinations advance independent status fields.
type UploaderService struct {
	wg       *sync.WaitGroup
	stop     chan bool
	interval time.Duration

	store       bundlr.Client
	coordinator coordinator.Client

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func (x *UploaderService) Start() {
	log.Info("[UPLOADER] Starting service")
	stop := false
	for !stop {
		log.Debug("[UPLOADER] Starting upload run")

		x.UploadSubmissions()
		x.UpdateHealth()

		log.Debug("[UPLOADER] Finished upload run, Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Info("[UPLOADER] Stopped service")
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *UploaderService) Stop() {
	log.Debug("[UPLOADER] Stopping service")
	x.stop <- true
}

func (x *UploaderService) Health() models.ServiceHealth {
	x.healthMu.RLock()
	defer x.healthMu.RUnlock()
	return x.health
}

func (x *UploaderService) UpdateHealth() {
	x.healthMu.Lock()
	defer x.healthMu.Unlock()

	lastSyncTime := time.Now()
	x.health = models.ServiceHealth{
		Name:         UploaderName,
		LastSyncTime: lastSyncTime,
		NextSyncTime: lastSyncTime.Add(x.interval),
		Healthy:      true,
	}
}

// UploadSubmissions pushes every signed submission whose upload stages are
// still pending. Transport failures leave the stage NEW for the next run.
func (x *UploaderService) UploadSubmissions() {
	filter := bson.M{
		"status": models.SubmissionStatusSigned,
		"$or": []bson.M{
			{"bundlr_status": models.UploadStatusNew},
			{"ipfs_status": models.UploadStatusNew},
			{"api_status": models.UploadStatusNew},
		},
	}
	var submissions []models.Submission
	if err := app.DB.FindMany(models.CollectionSubmissions, filter, &submissions); err != nil {
		log.Error("[UPLOADER] Error finding submissions to upload: ", err)
		return
	}

	for _, submission := range submissions {
		if submission.BundlrStatus == models.UploadStatusNew || submission.IpfsStatus == models.UploadStatusNew {
			x.uploadToStore(submission)
		}
		if submission.ApiStatus == models.UploadStatusNew {
			x.uploadToApi(submission)
		}
	}
}

func (x *UploaderService) uploadToStore(submission models.Submission) {
	if !x.store.Configured() {
		return
	}

	payload, err := json.Marshal(submission)
	if err != nil {
		log.Error("[UPLOADER] Error marshaling submission ", submission.SubmissionId, ": ", err)
		x.markUploadStages(submission, models.UploadStatusError, "")
		return
	}

	tags := []bundlr.Tag{
		{Name: "submission-id", Value: submission.SubmissionId},
		{Name: "chain-from", Value: strconv.FormatUint(submission.ChainFrom, 10)},
		{Name: "nonce", Value: strconv.FormatUint(submission.Nonce, 10)},
	}
	txId, err := x.store.Upload(payload, tags)
	if err != nil {
		log.Error("[UPLOADER] Error uploading submission ", submission.SubmissionId, ": ", err)
		return
	}

	x.markUploadStages(submission, models.UploadStatusUploaded, txId)
	log.Info("[UPLOADER] Uploaded submission ", submission.SubmissionId, " as ", txId)
}

func (x *UploaderService) markUploadStages(submission models.Submission, status string, txId string) {
	set := bson.M{
		"bundlr_status": status,
		"ipfs_status":   status,
		"updated_at":    time.Now(),
	}
	if txId != "" {
		set["external_id"] = txId
	}
	update := bson.M{"$set": set}
	if err := app.DB.UpdateOne(models.CollectionSubmissions, bson.M{"submission_id": submission.SubmissionId}, update); err != nil {
		log.Error("[UPLOADER] Error persisting upload status for ", submission.SubmissionId, ": ", err)
	}
}

func (x *UploaderService) uploadToApi(submission models.Submission) {
	if err := x.coordinator.UploadToApi([]models.Submission{submission}); err != nil {
		log.Error("[UPLOADER] Error pushing submission ", submission.SubmissionId, " to coordination API: ", err)
		return
	}

	update := bson.M{"$set": bson.M{
		"api_status": models.UploadStatusUploaded,
		"updated_at": time.Now(),
	}}
	if err := app.DB.UpdateOne(models.CollectionSubmissions, bson.M{"submission_id": submission.SubmissionId}, update); err != nil {
		log.Error("[UPLOADER] Error persisting api status for ", submission.SubmissionId, ": ", err)
	}
}

// NewUploaderService initializes the upload service.
func NewUploaderService(wg *sync.WaitGroup, config models.ServiceConfig, store bundlr.Client, coordinatorClient coordinator.Client) models.Service {
	if !config.Enabled {
		log.Debug("[UPLOADER] Service disabled")
		return models.NewEmptyService(wg)
	}

	log.Debug("[UPLOADER] Initializing service")

	x := &UploaderService{
		wg:          wg,
		stop:        make(chan bool),
		interval:    time.Duration(config.IntervalMillis) * time.Millisecond,
		store:       store,
		coordinator: coordinatorClient,
	}

	x.UpdateHealth()

	log.Info("[UPLOADER] Initialized service")
	return x
}
