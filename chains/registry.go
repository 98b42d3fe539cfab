package chains

import (
	"github.com/debridge-finance/oracle-node/models"
	log "github.com/sirupsen/logrus"
)

// Registry is the immutable-after-load mapping from chain id to chain
// configuration. Per-provider mutable health state lives in the evm package.
type Registry struct {
	configs map[uint64]models.ChainConfig
	order   []uint64
}

// NewRegistry builds the registry from static configuration. It terminates the
// process on invalid or duplicate chain entries.
func NewRegistry(configs []models.ChainConfig) *Registry {
	r := &Registry{
		configs: make(map[uint64]models.ChainConfig, len(configs)),
	}
	for _, config := range configs {
		if _, ok := r.configs[config.ChainId]; ok {
			log.Fatalf("[CHAINS] Duplicate chain id %d in config", config.ChainId)
		}
		if config.Type != models.ChainTypeSolana && config.FirstStartBlock == 0 {
			log.Fatalf("[CHAINS] Chain %d: first_start_block is required for non-solana chains", config.ChainId)
		}
		r.configs[config.ChainId] = config
		r.order = append(r.order, config.ChainId)
	}
	return r
}

// Get returns the configuration for a chain id.
func (r *Registry) Get(chainId uint64) (models.ChainConfig, bool) {
	config, ok := r.configs[chainId]
	return config, ok
}

// ChainIDs returns all configured chain ids in config order.
func (r *Registry) ChainIDs() []uint64 {
	ids := make([]uint64, len(r.order))
	copy(ids, r.order)
	return ids
}
