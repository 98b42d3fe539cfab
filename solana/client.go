package solana

import (
	"context"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"

	"github.com/debridge-finance/oracle-node/models"
)

// Client reads bridge events from a Solana RPC node.
type Client interface {
	GetLatestSlot() (uint64, error)
	GetBlockTime(slot uint64) (int64, error)
	GetSignatures(before string, until string, limit int) ([]SignatureInfo, error)
	GetTransactionEvents(signature string) ([]SendEvent, []MonitoringEvent, error)
	ValidateNetwork() error
}

// SignatureInfo is one entry of a signatures-for-address page,
// newest first.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Err       bool
}

type solanaClient struct {
	config  models.ChainConfig
	program solanago.PublicKey
	client  *rpc.Client
	timeout time.Duration
}

// NewClient connects to the configured RPC endpoint and validates it
// serves the expected network.
func NewClient(config models.ChainConfig) (Client, error) {
	program, err := solanago.PublicKeyFromBase58(config.ProgramAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid program address %q: %w", config.ProgramAddress, err)
	}
	c := &solanaClient{
		config:  config,
		program: program,
		client:  rpc.New(config.RPCURL),
		timeout: time.Duration(config.RPCTimeoutMillis) * time.Millisecond,
	}
	if err := c.ValidateNetwork(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *solanaClient) GetLatestSlot() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.client.GetSlot(ctx, rpc.CommitmentFinalized)
}

func (c *solanaClient) GetBlockTime(slot uint64) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	blockTime, err := c.client.GetBlockTime(ctx, slot)
	if err != nil {
		return 0, fmt.Errorf("error fetching block time for slot %d: %w", slot, err)
	}
	if blockTime == nil {
		return 0, nil
	}
	return blockTime.Time().Unix(), nil
}

func (c *solanaClient) GetSignatures(before string, until string, limit int) ([]SignatureInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	}
	if before != "" {
		sig, err := solanago.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("invalid before signature %q: %w", before, err)
		}
		opts.Before = sig
	}
	if until != "" {
		sig, err := solanago.SignatureFromBase58(until)
		if err != nil {
			return nil, fmt.Errorf("invalid until signature %q: %w", until, err)
		}
		opts.Until = sig
	}

	results, err := c.client.GetSignaturesForAddressWithOpts(ctx, c.program, opts)
	if err != nil {
		return nil, fmt.Errorf("error fetching signatures for %s: %w", c.program, err)
	}

	infos := make([]SignatureInfo, 0, len(results))
	for _, result := range results {
		info := SignatureInfo{
			Signature: result.Signature.String(),
			Slot:      result.Slot,
			Err:       result.Err != nil,
		}
		if result.BlockTime != nil {
			info.BlockTime = result.BlockTime.Time().Unix()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *solanaClient) GetTransactionEvents(signature string) ([]SendEvent, []MonitoringEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	tx, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error fetching transaction %s: %w", signature, err)
	}
	if tx.Meta == nil {
		return nil, nil, nil
	}
	if tx.Meta.Err != nil {
		// failed transactions emit no bridge events
		return nil, nil, nil
	}
	return ParseLogs(tx.Meta.LogMessages, tx.Slot, signature)
}

func (c *solanaClient) ValidateNetwork() error {
	logger := log.WithFields(log.Fields{"module": "solana", "chain_id": SolanaChainId})
	logger.Debugf("Validating network")

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if _, err := c.client.GetHealth(ctx); err != nil {
		return fmt.Errorf("error validating solana rpc health: %w", err)
	}
	slot, err := c.client.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("error validating solana rpc slot: %w", err)
	}
	logger.WithField("slot", slot).Debugf("Validated network")
	return nil
}
