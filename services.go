package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/assets"
	"github.com/debridge-finance/oracle-node/balance"
	"github.com/debridge-finance/oracle-node/bundlr"
	"github.com/debridge-finance/oracle-node/chains"
	"github.com/debridge-finance/oracle-node/common"
	"github.com/debridge-finance/oracle-node/coordinator"
	"github.com/debridge-finance/oracle-node/evm"
	"github.com/debridge-finance/oracle-node/models"
	"github.com/debridge-finance/oracle-node/pipeline"
	"github.com/debridge-finance/oracle-node/signer"
	"github.com/debridge-finance/oracle-node/solana"
	"github.com/debridge-finance/oracle-node/stats"
	"github.com/debridge-finance/oracle-node/uploader"
)

// Oracle holds every running service plus the shared state their wiring
// depends on.
type Oracle struct {
	wg       *sync.WaitGroup
	services []models.Service
	health   *app.HealthService

	locks    *chains.ScanLocks
	scanners map[uint64]*evm.ScanService
	signer   common.Signer
}

// oracleEscalator routes data-integrity faults to the coordination API, the
// per-chain pause flags and the provider health flags.
type oracleEscalator struct {
	locks       *chains.ScanLocks
	clients     map[uint64]evm.Client
	coordinator coordinator.Client
}

var _ pipeline.Escalator = &oracleEscalator{}
var _ balance.Escalator = &oracleEscalator{}

func (e *oracleEscalator) NotifyError(message string) {
	e.coordinator.NotifyError(message)
}

func (e *oracleEscalator) PauseChain(chainId uint64) {
	log.Warn("[ORACLE] Pausing chain ", chainId)
	e.locks.Pause(chainId)
}

func (e *oracleEscalator) MarkProviderSuspect(chainId uint64) {
	if client, ok := e.clients[chainId]; ok {
		client.Providers().MarkLastUsedSuspect()
	}
}

// loadGrandfathered reads the allow-list of historically pre-validated
// submission ids, a JSON array of hex strings. No file configured means an
// empty list.
func loadGrandfathered(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading grandfathered file %q: %w", path, err)
	}
	var ids []string
	if err := json.Unmarshal(bz, &ids); err != nil {
		return nil, fmt.Errorf("error parsing grandfathered file %q: %w", path, err)
	}
	return ids, nil
}

// CreateOracle wires every service from config: one scanner per chain, the
// shared ingestion pipeline, and the downstream signing, upload, assets,
// statistics, reconciliation and health services.
func CreateOracle() *Oracle {
	wg := &sync.WaitGroup{}

	oracleSigner, err := common.CreateSigner(app.Config.Signer)
	if err != nil {
		log.Fatal("[ORACLE] Error creating signer: ", err)
	}
	log.Info("[ORACLE] Signer address: ", oracleSigner.EthAddress().Hex())

	grandfathered, err := loadGrandfathered(app.Config.GrandfatheredFile)
	if err != nil {
		log.Fatal("[ORACLE] ", err)
	}

	registry := chains.NewRegistry(app.Config.Chains)
	locks := chains.NewScanLocks()
	nonces := pipeline.NewNonceTracker()
	identity := pipeline.NewIdentityValidator(grandfathered)
	coordinatorClient := coordinator.NewClient(app.Config.Coordinator)
	store := bundlr.NewClient(app.Config.Bundlr)

	evmClients := make(map[uint64]evm.Client)
	for _, chainId := range registry.ChainIDs() {
		config, _ := registry.Get(chainId)
		if config.Type != models.ChainTypeEVM {
			continue
		}
		client := evm.NewClient(config)
		client.ValidateNetwork()
		evmClients[chainId] = client
	}

	escalator := &oracleEscalator{
		locks:       locks,
		clients:     evmClients,
		coordinator: coordinatorClient,
	}

	maxAttempts := func(chainId uint64) int {
		if config, ok := registry.Get(chainId); ok && config.MaxValidationAttempts > 0 {
			return config.MaxValidationAttempts
		}
		return 1
	}
	processor := pipeline.NewProcessor(nonces, identity, escalator, maxAttempts)

	var services []models.Service
	scanners := make(map[uint64]*evm.ScanService)

	for _, chainId := range registry.ChainIDs() {
		config, _ := registry.Get(chainId)

		switch config.Type {
		case models.ChainTypeEVM:
			service := evm.NewScanService(wg, config, evmClients[chainId], processor, nonces, locks)
			scanners[chainId] = service.(*evm.ScanService)
			services = append(services, service)

		case models.ChainTypeSolana:
			client, err := solana.NewClient(config)
			if err != nil {
				log.Fatal("[ORACLE] Error creating solana client: ", err)
			}
			stream, err := solana.NewEventStream(config)
			if err != nil {
				log.Fatal("[ORACLE] Error creating solana stream: ", err)
			}
			services = append(services, solana.NewScanService(wg, config, client, stream, processor, nonces, locks))
		}
	}

	services = append(services,
		signer.NewSignerService(wg, app.Config.SubmissionSigner, oracleSigner),
		uploader.NewUploaderService(wg, app.Config.SubmissionUploader, store, coordinatorClient),
		assets.NewAssetsService(wg, app.Config.AssetsWorker, evmClients),
		stats.NewStatsService(wg, app.Config.Statistics, coordinatorClient),
	)
	if app.Config.BalanceReconciler.Enabled {
		services = append(services, balance.NewReconcilerService(wg, app.Config.BalanceReconciler, escalator))
	}

	health := app.NewHealthCheck(wg, oracleSigner.EthAddress().Hex())
	health.SetServices(services)
	if app.Config.HealthCheck.ReadLastHealth {
		health.ReportLastHealth()
	}

	return &Oracle{
		wg:       wg,
		services: services,
		health:   health,
		locks:    locks,
		scanners: scanners,
		signer:   oracleSigner,
	}
}

func (o *Oracle) Start() {
	o.wg.Add(len(o.services) + 1)
	for _, service := range o.services {
		go service.Start()
	}
	go o.health.Start()
}

func (o *Oracle) Stop() {
	for _, service := range o.services {
		service.Stop()
	}
	o.health.Stop()
	o.wg.Wait()
	o.signer.Destroy()
}

// Rescan re-processes a block range on one EVM chain, for the external
// operations surface.
func (o *Oracle) Rescan(chainId uint64, fromBlock int64, toBlock int64) error {
	scanner, ok := o.scanners[chainId]
	if !ok {
		return fmt.Errorf("no scanner for chain %d", chainId)
	}
	return scanner.Rescan(fromBlock, toBlock)
}
