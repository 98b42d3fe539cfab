package assets

import (
	"errors"
	"fmt"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/evm"
	"github.com/debridge-finance/oracle-node/models"
)

const (
	WorkerName = "assets worker"
)

// AssetsService resolves the native chain and ERC20 metadata of every asset
// referenced by pending submissions, building the token records that balance
// reconciliation classifies transfers with.
type AssetsService struct {
	wg       *sync.WaitGroup
	stop     chan bool
	interval time.Duration

	clients map[uint64]evm.Client

	healthMu sync.RWMutex
	health   models.ServiceHealth
}

func (x *AssetsService) Start() {
	log.Info("[ASSETS] Starting service")
	stop := false
	for !stop {
		log.Debug("[ASSETS] Starting assets run")

		x.ResolveAssets()
		x.UpdateHealth()

		log.Debug("[ASSETS] Finished assets run, Sleeping for ", x.interval)

		select {
		case <-x.stop:
			stop = true
			log.Info("[ASSETS] Stopped service")
		case <-time.After(x.interval):
		}
	}
	x.wg.Done()
}

func (x *AssetsService) Stop() {
	log.Debug("[ASSETS] Stopping service")
	x.stop <- true
}

func (x *AssetsService) Health() models.ServiceHealth {
	x.healthMu.RLock()
	defer x.healthMu.RUnlock()
	return x.health
}

func (x *AssetsService) UpdateHealth() {
	x.healthMu.Lock()
	defer x.healthMu.Unlock()

	lastSyncTime := time.Now()
	x.health = models.ServiceHealth{
		Name:         WorkerName,
		LastSyncTime: lastSyncTime,
		NextSyncTime: lastSyncTime.Add(x.interval),
		Healthy:      true,
	}
}

// ResolveAssets processes every asset referenced by submissions still in
// the NEW assets state. Unresolvable assets stay pending and are retried
// on the next run.
func (x *AssetsService) ResolveAssets() {
	ids, err := app.DB.Distinct(models.CollectionSubmissions, "debridge_id", bson.M{"assets_status": models.AssetsStatusNew})
	if err != nil {
		log.Error("[ASSETS] Error listing pending assets: ", err)
		return
	}

	for _, id := range ids {
		debridgeId, ok := id.(string)
		if !ok {
			continue
		}
		if err := x.resolveAsset(debridgeId); err != nil {
			log.Error("[ASSETS] Error resolving asset ", debridgeId, ": ", err)
			continue
		}
		x.markResolved(debridgeId)
	}
}

func (x *AssetsService) resolveAsset(debridgeId string) error {
	var existing models.Token
	err := app.DB.FindOne(models.CollectionTokens, bson.M{"debridge_id": debridgeId}, &existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	info, err := x.lookupDebridge(debridgeId)
	if err != nil {
		return err
	}

	token := models.Token{
		DebridgeId:    debridgeId,
		NativeChainId: info.NativeChainId,
		TokenAddress:  ethcommon.Bytes2Hex(info.NativeTokenAddress),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	// metadata is only reachable when the native chain is one of ours
	if client, ok := x.clients[info.NativeChainId]; ok && len(info.NativeTokenAddress) == ethcommon.AddressLength {
		metadata, err := client.GetTokenMetadata(ethcommon.BytesToAddress(info.NativeTokenAddress))
		if err != nil {
			log.Warn("[ASSETS] Error fetching metadata for asset ", debridgeId, ": ", err)
		} else {
			token.Name = metadata.Name
			token.Symbol = metadata.Symbol
			token.Decimals = metadata.Decimals
		}
	}

	if err := app.DB.UpsertOne(models.CollectionTokens, bson.M{"debridge_id": debridgeId}, bson.M{"$set": token}); err != nil {
		return fmt.Errorf("error upserting token record: %w", err)
	}
	log.Info("[ASSETS] Resolved asset ", debridgeId, " native chain ", info.NativeChainId, " symbol ", token.Symbol)
	return nil
}

// lookupDebridge asks each configured EVM chain's bridge contract for the
// asset registration; the first chain that knows the asset wins.
func (x *AssetsService) lookupDebridge(debridgeId string) (evm.DebridgeInfo, error) {
	var lastErr error
	for chainId, client := range x.clients {
		info, err := client.GetDebridgeInfo(ethcommon.HexToHash(debridgeId))
		if err != nil {
			lastErr = fmt.Errorf("chain %d: %w", chainId, err)
			continue
		}
		if info.NativeChainId != 0 {
			return info, nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("asset not registered on any configured chain")
	}
	return evm.DebridgeInfo{}, lastErr
}

func (x *AssetsService) markResolved(debridgeId string) {
	filter := bson.M{"debridge_id": debridgeId, "assets_status": models.AssetsStatusNew}
	update := bson.M{"$set": bson.M{
		"assets_status": models.AssetsStatusCreated,
		"updated_at":    time.Now(),
	}}

	var submissions []models.Submission
	if err := app.DB.FindMany(models.CollectionSubmissions, filter, &submissions); err != nil {
		log.Error("[ASSETS] Error finding submissions for asset ", debridgeId, ": ", err)
		return
	}
	for _, submission := range submissions {
		if err := app.DB.UpdateOne(models.CollectionSubmissions, bson.M{"submission_id": submission.SubmissionId}, update); err != nil {
			log.Error("[ASSETS] Error marking submission ", submission.SubmissionId, ": ", err)
		}
	}
}

// NewAssetsService initializes the assets worker over the configured EVM
// clients.
func NewAssetsService(wg *sync.WaitGroup, config models.ServiceConfig, clients map[uint64]evm.Client) models.Service {
	if !config.Enabled {
		log.Debug("[ASSETS] Service disabled")
		return models.NewEmptyService(wg)
	}

	log.Debug("[ASSETS] Initializing service")

	x := &AssetsService{
		wg:       wg,
		stop:     make(chan bool),
		interval: time.Duration(config.IntervalMillis) * time.Millisecond,
		clients:  clients,
	}

	x.UpdateHealth()

	log.Info("[ASSETS] Initialized service")
	return x
}
