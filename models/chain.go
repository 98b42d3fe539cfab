package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionSupportedChains = "supported_chains"
)

// SupportedChain is the persisted scan cursor per chain. LatestBlock is the
// EVM cursor; LatestNonce, LastTransactionSlotNumber and LatestSolanaTransaction
// make up the Solana cursor. Cursors only move forward.
type SupportedChain struct {
	Id      *primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	ChainId uint64              `bson:"chain_id" json:"chain_id"`
	Network string              `bson:"network" json:"network"`

	LatestBlock int64 `bson:"latest_block" json:"latest_block"`

	LatestNonce               uint64 `bson:"latest_nonce" json:"latest_nonce"`
	LastTransactionSlotNumber uint64 `bson:"last_transaction_slot_number" json:"last_transaction_slot_number"`
	LatestSolanaTransaction   string `bson:"latest_solana_transaction" json:"latest_solana_transaction"`
	EarliestSolanaTransaction string `bson:"earliest_solana_transaction" json:"earliest_solana_transaction"`
	FullSync                  bool   `bson:"full_sync" json:"full_sync"`

	LastTxTimestamp int64     `bson:"last_tx_timestamp" json:"last_tx_timestamp"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

// ProgressInfo is the per chain scan progress row shipped to the coordination
// API by the statistics service.
type ProgressInfo struct {
	ChainId         uint64 `json:"chainId"`
	LatestBlock     int64  `json:"latestBlock"`
	LatestNonce     uint64 `json:"latestNonce"`
	LastTxTimestamp int64  `json:"lastTxTimestamp"`
}
