package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"

	"github.com/debridge-finance/oracle-node/models"
)

type Client interface {
	ChainId() uint64
	GetBlockNumber() (uint64, error)
	GetBlockTimestamp(blockNumber int64) (uint64, error)
	GetSentEvents(fromBlock int64, toBlock int64) ([]SentEvent, error)
	GetMonitoringEvents(fromBlock int64, toBlock int64) ([]MonitoringSendEvent, error)
	GetDebridgeInfo(debridgeId common.Hash) (DebridgeInfo, error)
	GetTokenMetadata(tokenAddress common.Address) (TokenMetadata, error)
	Providers() *ProviderSet
	ValidateNetwork()
}

type DebridgeInfo struct {
	NativeChainId      uint64
	NativeTokenAddress []byte
}

type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

type evmClient struct {
	chainId     uint64
	gateAddress common.Address
	timeout     time.Duration
	providers   *ProviderSet

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

func NewClient(config models.ChainConfig) Client {
	return &evmClient{
		chainId:     config.ChainId,
		gateAddress: common.HexToAddress(config.DebridgeAddress),
		timeout:     time.Duration(config.RPCTimeoutMillis) * time.Millisecond,
		providers:   NewProviderSet(config.ChainId, config.Providers),
		clients:     make(map[string]*ethclient.Client),
	}
}

func (c *evmClient) ChainId() uint64 {
	return c.chainId
}

func (c *evmClient) Providers() *ProviderSet {
	return c.providers
}

func (c *evmClient) dial(provider *Provider) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[provider.RPCURL]; ok {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var opts []rpc.ClientOption
	if auth := c.providers.AuthHeader(provider); auth != "" {
		opts = append(opts, rpc.WithHeader("Authorization", auth))
	}
	rpcClient, err := rpc.DialOptions(ctx, provider.RPCURL, opts...)
	if err != nil {
		return nil, err
	}

	client := ethclient.NewClient(rpcClient)
	c.clients[provider.RPCURL] = client
	return client, nil
}

// withProvider runs a call against the first healthy provider: not-failed
// providers first, then failed ones so a recovered endpoint is picked back
// up. Each attempt is preceded by a cheap liveness probe, and an endpoint
// that has never been identity-validated is checked against the chain id
// reported by the bridge contract; a mismatch is a fatal misconfiguration.
func (c *evmClient) withProvider(call func(client *ethclient.Client) error) error {
	candidates := c.providers.Candidates()
	if len(candidates) == 0 {
		return fmt.Errorf("no providers configured for chain %d", c.chainId)
	}

	var lastErr error
	for _, provider := range candidates {
		client, err := c.dial(provider)
		if err != nil {
			log.Warn("[EVM] Error dialing provider ", provider.RPCURL, ": ", err)
			c.providers.SetStatus(provider, false)
			lastErr = err
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		_, err = client.BlockNumber(ctx)
		cancel()
		if err != nil {
			log.Warn("[EVM] Liveness probe failed for provider ", provider.RPCURL, ": ", err)
			c.providers.SetStatus(provider, false)
			lastErr = err
			continue
		}
		c.providers.SetStatus(provider, true)

		if !c.providers.IsValid(provider) {
			chainId, err := c.bridgeChainId(client)
			if err != nil {
				log.Warn("[EVM] Identity check failed for provider ", provider.RPCURL, ": ", err)
				c.providers.SetStatus(provider, false)
				lastErr = err
				continue
			}
			if chainId != c.chainId {
				log.Fatalf("[EVM] Chain id mismatch for provider %s: config %d, contract %d", provider.RPCURL, c.chainId, chainId)
			}
			c.providers.SetValidationStatus(provider, true)
		}

		c.providers.setLastUsed(provider)

		if err := call(client); err != nil {
			log.Warn("[EVM] Call failed on provider ", provider.RPCURL, ": ", err)
			c.providers.SetStatus(provider, false)
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("all providers failed for chain %d: %w", c.chainId, lastErr)
}

// ValidateNetwork probes every configured provider once at startup so that
// identity mismatches surface before any scan runs.
func (c *evmClient) ValidateNetwork() {
	err := c.withProvider(func(client *ethclient.Client) error {
		return nil
	})
	if err != nil {
		log.Warn("[EVM] No healthy provider for chain ", c.chainId, " at startup: ", err)
	}
}

func (c *evmClient) bridgeChainId(client *ethclient.Client) (uint64, error) {
	data, err := gateABI.Pack("getChainId")
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &c.gateAddress, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	values, err := gateABI.Unpack("getChainId", result)
	if err != nil {
		return 0, err
	}
	chainId, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected getChainId result")
	}
	return chainId.Uint64(), nil
}

func (c *evmClient) GetBlockNumber() (uint64, error) {
	var blockNumber uint64
	err := c.withProvider(func(client *ethclient.Client) error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		var err error
		blockNumber, err = client.BlockNumber(ctx)
		return err
	})
	return blockNumber, err
}

func (c *evmClient) GetBlockTimestamp(blockNumber int64) (uint64, error) {
	var timestamp uint64
	err := c.withProvider(func(client *ethclient.Client) error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		header, err := client.HeaderByNumber(ctx, big.NewInt(blockNumber))
		if err != nil {
			return err
		}
		timestamp = header.Time
		return nil
	})
	return timestamp, err
}

func (c *evmClient) filterLogs(fromBlock int64, toBlock int64, topic [32]byte) ([]types.Log, error) {
	var logs []types.Log
	err := c.withProvider(func(client *ethclient.Client) error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		var err error
		logs, err = client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: big.NewInt(fromBlock),
			ToBlock:   big.NewInt(toBlock),
			Addresses: []common.Address{c.gateAddress},
			Topics:    [][]common.Hash{{topic}},
		})
		return err
	})
	return logs, err
}

func (c *evmClient) GetSentEvents(fromBlock int64, toBlock int64) ([]SentEvent, error) {
	logs, err := c.filterLogs(fromBlock, toBlock, sentTopic)
	if err != nil {
		return nil, err
	}
	events := make([]SentEvent, 0, len(logs))
	for _, vLog := range logs {
		event, err := unpackSentEvent(vLog)
		if err != nil {
			return nil, fmt.Errorf("error unpacking sent event in tx %s: %w", vLog.TxHash, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *evmClient) GetMonitoringEvents(fromBlock int64, toBlock int64) ([]MonitoringSendEvent, error) {
	logs, err := c.filterLogs(fromBlock, toBlock, monitoringTopic)
	if err != nil {
		return nil, err
	}
	events := make([]MonitoringSendEvent, 0, len(logs))
	for _, vLog := range logs {
		event, err := unpackMonitoringEvent(vLog)
		if err != nil {
			return nil, fmt.Errorf("error unpacking monitoring event in tx %s: %w", vLog.TxHash, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (c *evmClient) GetDebridgeInfo(debridgeId common.Hash) (DebridgeInfo, error) {
	var info DebridgeInfo
	err := c.withProvider(func(client *ethclient.Client) error {
		data, err := gateABI.Pack("getDebridge", debridgeId)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		result, err := client.CallContract(ctx, ethereum.CallMsg{To: &c.gateAddress, Data: data}, nil)
		if err != nil {
			return err
		}
		values, err := gateABI.Unpack("getDebridge", result)
		if err != nil {
			return err
		}
		nativeChainId, ok := values[0].(*big.Int)
		if !ok {
			return fmt.Errorf("unexpected getDebridge result")
		}
		nativeTokenAddress, ok := values[1].([]byte)
		if !ok {
			return fmt.Errorf("unexpected getDebridge result")
		}
		info = DebridgeInfo{
			NativeChainId:      nativeChainId.Uint64(),
			NativeTokenAddress: nativeTokenAddress,
		}
		return nil
	})
	return info, err
}

func (c *evmClient) GetTokenMetadata(tokenAddress common.Address) (TokenMetadata, error) {
	var metadata TokenMetadata
	err := c.withProvider(func(client *ethclient.Client) error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		call := func(method string) ([]interface{}, error) {
			data, err := tokenABI.Pack(method)
			if err != nil {
				return nil, err
			}
			result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
			if err != nil {
				return nil, err
			}
			return tokenABI.Unpack(method, result)
		}

		name, err := call("name")
		if err != nil {
			return err
		}
		symbol, err := call("symbol")
		if err != nil {
			return err
		}
		decimals, err := call("decimals")
		if err != nil {
			return err
		}

		metadata = TokenMetadata{
			Name:     name[0].(string),
			Symbol:   symbol[0].(string),
			Decimals: decimals[0].(uint8),
		}
		return nil
	})
	return metadata, err
}
