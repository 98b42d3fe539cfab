package app

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/debridge-finance/oracle-node/models"
	"gopkg.in/yaml.v2"
)

var (
	Config models.Config
)

func InitConfig(configFile string, envFile string) {
	var yamlFile, err = os.ReadFile(configFile)
	if err != nil {
		log.Fatalf("[CONFIG] Error reading config file %q: %s", configFile, err.Error())
	}
	err = yaml.Unmarshal(yamlFile, &Config)
	if err != nil {
		log.Fatalf("[CONFIG] Error unmarshalling config file %q: %s", configFile, err.Error())
	}
	readConfigFromENV(envFile)
	readKeysFromGSM()
	validateConfig()
}

func validateConfig() {
	log.Debug("[CONFIG] Validating config")
	if Config.MongoDB.URI == "" {
		log.Fatal("[CONFIG] MongoDB.URI is required")
	}
	if Config.MongoDB.Database == "" {
		log.Fatal("[CONFIG] MongoDB.Database is required")
	}
	if Config.MongoDB.TimeoutMillis == 0 {
		log.Fatal("[CONFIG] MongoDB.TimeoutMillis is required")
	}
	if len(Config.Chains) == 0 {
		log.Fatal("[CONFIG] At least one chain is required")
	}
	for _, chain := range Config.Chains {
		validateChainConfig(chain)
	}
	signers := 0
	if Config.Signer.PrivateKey != "" {
		signers++
	}
	if Config.Signer.Mnemonic != "" {
		signers++
	}
	if Config.Signer.GcpKmsKeyName != "" {
		signers++
	}
	if signers != 1 {
		log.Fatal("[CONFIG] Exactly one of Signer.PrivateKey, Signer.Mnemonic and Signer.GcpKmsKeyName is required")
	}
	log.Debug("[CONFIG] Config validated")
}

// validateChainConfig terminates the process on configuration faults; running
// a scanner against a misconfigured chain is never safe.
func validateChainConfig(chain models.ChainConfig) {
	if chain.ChainId == 0 {
		log.Fatal("[CONFIG] Chain id is required")
	}
	if chain.Network == "" {
		log.Fatalf("[CONFIG] Chain %d: network name is required", chain.ChainId)
	}
	if chain.IntervalMillis <= 0 {
		log.Fatalf("[CONFIG] Chain %d: interval_ms is required", chain.ChainId)
	}
	switch chain.Type {
	case models.ChainTypeEVM:
		if len(chain.Providers) == 0 {
			log.Fatalf("[CONFIG] Chain %d: at least one provider is required", chain.ChainId)
		}
		if chain.DebridgeAddress == "" {
			log.Fatalf("[CONFIG] Chain %d: debridge_address is required", chain.ChainId)
		}
		if chain.FirstStartBlock == 0 {
			log.Fatalf("[CONFIG] Chain %d: first_start_block is required", chain.ChainId)
		}
		if chain.BlockConfirmation < 1 {
			log.Fatalf("[CONFIG] Chain %d: block_confirmation must be at least 1", chain.ChainId)
		}
		if chain.MaxBlockRange < 1 {
			log.Fatalf("[CONFIG] Chain %d: max_block_range must be at least 1", chain.ChainId)
		}
	case models.ChainTypeSolana:
		if chain.RPCURL == "" {
			log.Fatalf("[CONFIG] Chain %d: rpc_url is required", chain.ChainId)
		}
		if chain.WSURL == "" {
			log.Fatalf("[CONFIG] Chain %d: ws_url is required", chain.ChainId)
		}
		if chain.ProgramAddress == "" {
			log.Fatalf("[CONFIG] Chain %d: program_address is required", chain.ChainId)
		}
	default:
		log.Fatalf("[CONFIG] Chain %d: unknown chain type %q", chain.ChainId, chain.Type)
	}
}
