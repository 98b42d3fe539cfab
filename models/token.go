package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionTokens = "tokens"
)

// Token is the resolved metadata for a bridged asset, keyed by debridge id.
// NativeChainId is the chain the asset was originally issued on and drives
// the SENT vs BURN classification during reconciliation.
type Token struct {
	Id            *primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	DebridgeId    string              `bson:"debridge_id" json:"debridge_id"`
	NativeChainId uint64              `bson:"native_chain_id" json:"native_chain_id"`
	TokenAddress  string              `bson:"token_address" json:"token_address"`
	Name          string              `bson:"name" json:"name"`
	Symbol        string              `bson:"symbol" json:"symbol"`
	Decimals      uint8               `bson:"decimals" json:"decimals"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updated_at"`
}
