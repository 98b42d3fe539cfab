package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionBalances = "balances"
)

// BalanceSheetEntry is the derived running balance per (asset, chain). The
// amount is a signed arbitrary precision integer encoded as a decimal string;
// it may go negative transiently but a negative settled balance is a
// synchronization fault.
type BalanceSheetEntry struct {
	Id         *primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	DebridgeId string              `bson:"debridge_id" json:"debridge_id"`
	ChainId    uint64              `bson:"chain_id" json:"chain_id"`
	Amount     string              `bson:"amount" json:"amount"`
	UpdatedAt  time.Time           `bson:"updated_at" json:"updated_at"`
}
