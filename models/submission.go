package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CollectionSubmissions = "submissions"
)

// types of signing status
const (
	SubmissionStatusNew    = "NEW"
	SubmissionStatusSigned = "SIGNED"
	SubmissionStatusError  = "ERROR"
)

// types of upload status, shared by the ipfs, api and bundlr pipelines
const (
	UploadStatusNew      = "NEW"
	UploadStatusUploaded = "UPLOADED"
	UploadStatusError    = "ERROR"
)

// types of assets status
const (
	AssetsStatusNew     = "NEW"
	AssetsStatusCreated = "CREATED"
	AssetsStatusError   = "ERROR"
)

// types of balance validation status; COMPLETED and ERROR are terminal,
// FAILED submissions are re-examined on the next reconciliation run
const (
	BalanceStatusNew       = "NEW"
	BalanceStatusCompleted = "COMPLETED"
	BalanceStatusError     = "ERROR"
	BalanceStatusOnHold    = "ON_HOLD"
	BalanceStatusFailed    = "FAILED"
)

// types of transfers; unknown until the asset's native chain is resolved
const (
	TransferTypeUnknown = ""
	TransferTypeSent    = "SENT"
	TransferTypeBurn    = "BURN"
)

type Submission struct {
	Id           *primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	SubmissionId string              `bson:"submission_id" json:"submission_id"`
	TxHash       string              `bson:"tx_hash" json:"tx_hash"`
	ChainFrom    uint64              `bson:"chain_from" json:"chain_from"`
	ChainTo      uint64              `bson:"chain_to" json:"chain_to"`
	DebridgeId   string              `bson:"debridge_id" json:"debridge_id"`
	ReceiverAddr string              `bson:"receiver_addr" json:"receiver_addr"`
	Amount       string              `bson:"amount" json:"amount"`
	ExecutionFee string              `bson:"execution_fee,omitempty" json:"execution_fee,omitempty"`
	Nonce        uint64              `bson:"nonce" json:"nonce"`
	TransferType string              `bson:"transfer_type" json:"transfer_type"`
	RawEvent     string              `bson:"raw_event" json:"raw_event"`
	BlockNumber  int64               `bson:"block_number" json:"block_number"`
	BlockTime    int64               `bson:"block_time" json:"block_time"`
	Signature    string              `bson:"signature,omitempty" json:"signature,omitempty"`
	ExternalId   string              `bson:"external_id,omitempty" json:"external_id,omitempty"`

	Status        string `bson:"status" json:"status"`
	IpfsStatus    string `bson:"ipfs_status" json:"ipfs_status"`
	ApiStatus     string `bson:"api_status" json:"api_status"`
	BundlrStatus  string `bson:"bundlr_status" json:"bundlr_status"`
	AssetsStatus  string `bson:"assets_status" json:"assets_status"`
	BalanceStatus string `bson:"balance_validation_status" json:"balance_validation_status"`
	BalanceReason string `bson:"balance_validation_reason,omitempty" json:"balance_validation_reason,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RawSentEvent is the serialized original event stored on each submission so
// that derived fields can be recomputed after ingestion. Byte fields are hex
// encoded with a 0x prefix.
type RawSentEvent struct {
	SubmissionId string `json:"submission_id"`
	DebridgeId   string `json:"debridge_id"`
	Amount       string `json:"amount"`
	Receiver     string `json:"receiver"`
	Nonce        uint64 `json:"nonce"`
	ChainIdFrom  uint64 `json:"chain_id_from"`
	ChainIdTo    uint64 `json:"chain_id_to"`
	AutoParams   string `json:"auto_params,omitempty"`
	NativeSender string `json:"native_sender,omitempty"`
}
