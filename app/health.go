package app

import (
	"os"
	"sync"
	"time"

	"github.com/debridge-finance/oracle-node/models"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const HealthServiceName = "health"

type HealthService struct {
	wg            *sync.WaitGroup
	stop          chan bool
	interval      time.Duration
	oracleId      string
	hostname      string
	signerAddress string
	services      []models.Service
}

func (x *HealthService) Start() {
	log.Info("[HEALTH] Starting service")
	stop := false
	for !stop {
		log.Debug("[HEALTH] Starting health sync")

		x.PostHealth()

		log.Debug("[HEALTH] Finished health sync, Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Info("[HEALTH] Stopped service")
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *HealthService) Stop() {
	log.Debug("[HEALTH] Stopping service")
	x.stop <- true
}

func (x *HealthService) Health() models.ServiceHealth {
	return models.ServiceHealth{
		Name:         HealthServiceName,
		LastSyncTime: time.Now(),
		NextSyncTime: time.Now().Add(x.interval),
		Healthy:      true,
	}
}

func (x *HealthService) SetServices(services []models.Service) {
	x.services = services
}

func (x *HealthService) PostHealth() bool {
	log.Debug("[HEALTH] Posting health")

	serviceHealths := []models.ServiceHealth{}
	healthy := true
	for _, service := range x.services {
		health := service.Health()
		if health.Name == models.EmptyServiceName {
			continue
		}
		healthy = healthy && health.Healthy
		serviceHealths = append(serviceHealths, health)
	}

	filter := bson.M{"oracle_id": x.oracleId, "hostname": x.hostname}
	onInsert := bson.M{"oracle_id": x.oracleId, "hostname": x.hostname, "created_at": time.Now()}
	update := bson.M{
		"$set": bson.M{
			"signer_address":  x.signerAddress,
			"healthy":         healthy,
			"service_healths": serviceHealths,
			"updated_at":      time.Now(),
		},
		"$setOnInsert": onInsert,
	}

	if err := DB.UpsertOne(models.CollectionHealthChecks, filter, update); err != nil {
		log.Error("[HEALTH] Error posting health: ", err)
		return false
	}
	return true
}

func (x *HealthService) FindLastHealth() (models.Health, error) {
	var health models.Health
	filter := bson.M{"oracle_id": x.oracleId, "hostname": x.hostname}
	err := DB.FindOne(models.CollectionHealthChecks, filter, &health)
	return health, err
}

// ReportLastHealth surfaces the previous run's recorded state on boot: an
// unhealthy shutdown or a changed signer address both need operator
// attention before this run's signatures are trusted.
func (x *HealthService) ReportLastHealth() {
	last, err := x.FindLastHealth()
	if err != nil {
		log.Warn("[HEALTH] No previous health record found: ", err)
		return
	}

	log.Info("[HEALTH] Previous run updated at ", last.UpdatedAt, ", healthy: ", last.Healthy)
	if !last.Healthy {
		log.Warn("[HEALTH] Previous run shut down with unhealthy services")
		for _, service := range last.ServiceHealths {
			if !service.Healthy {
				log.Warn("[HEALTH] Previously unhealthy service: ", service.Name, " chain ", service.ChainID, " cursor ", service.Cursor)
			}
		}
	}
	if last.SignerAddress != "" && last.SignerAddress != x.signerAddress {
		log.Warn("[HEALTH] Signer address changed from ", last.SignerAddress, " to ", x.signerAddress)
	}
}

func NewHealthCheck(wg *sync.WaitGroup, signerAddress string) *HealthService {
	log.Debug("[HEALTH] Initializing health")

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatal("[HEALTH] Error getting hostname: ", err)
	}

	x := &HealthService{
		wg:            wg,
		stop:          make(chan bool),
		interval:      time.Duration(Config.HealthCheck.IntervalMillis) * time.Millisecond,
		oracleId:      Config.HealthCheck.OracleId,
		hostname:      hostname,
		signerAddress: signerAddress,
	}

	log.Info("[HEALTH] Initialized health")

	return x
}
