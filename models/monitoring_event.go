package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionMonitoringEvents = "monitoring_events"
)

// MonitoringEvent is the independently reported locked/minted snapshot paired
// one to one with a submission. Created once, never updated.
type MonitoringEvent struct {
	Id                   *primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	SubmissionId         string              `bson:"submission_id" json:"submission_id"`
	Nonce                uint64              `bson:"nonce" json:"nonce"`
	LockedOrMintedAmount string              `bson:"locked_or_minted_amount" json:"locked_or_minted_amount"`
	TotalSupply          string              `bson:"total_supply" json:"total_supply"`
	RawEvent             string              `bson:"raw_event" json:"raw_event"`
	CreatedAt            time.Time           `bson:"created_at" json:"created_at"`
}
