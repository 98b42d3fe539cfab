package solana

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/debridge-finance/oracle-node/models"
)

// CreateSubmission maps a decoded Solana send event into a submission
// record. Solana events carry the asset's native chain id, so the
// transfer type is resolved here: locked native assets are SENT,
// everything else is a BURN of a wrapped representation.
func CreateSubmission(event SendEvent, blockTime int64) (models.Submission, error) {
	transferType := models.TransferTypeBurn
	if event.NativeChainId == SolanaChainId {
		transferType = models.TransferTypeSent
	}

	raw := models.RawSentEvent{
		SubmissionId: hexutil.Encode(event.SubmissionId[:]),
		DebridgeId:   hexutil.Encode(event.DebridgeId[:]),
		Amount:       event.Amount.String(),
		Receiver:     hexutil.Encode(event.Receiver),
		Nonce:        event.Nonce,
		ChainIdFrom:  SolanaChainId,
		ChainIdTo:    event.ChainIdTo,
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return models.Submission{}, err
	}

	submission := models.Submission{
		SubmissionId: hexutil.Encode(event.SubmissionId[:]),
		TxHash:       event.Signature,
		ChainFrom:    SolanaChainId,
		ChainTo:      event.ChainIdTo,
		DebridgeId:   hexutil.Encode(event.DebridgeId[:]),
		ReceiverAddr: hexutil.Encode(event.Receiver),
		Amount:       event.Amount.String(),
		Nonce:        event.Nonce,
		TransferType: transferType,
		RawEvent:     string(rawJSON),
		BlockNumber:  int64(event.Slot),
		BlockTime:    blockTime,

		Status:        models.SubmissionStatusNew,
		IpfsStatus:    models.UploadStatusNew,
		ApiStatus:     models.UploadStatusNew,
		BundlrStatus:  models.UploadStatusNew,
		AssetsStatus:  models.AssetsStatusNew,
		BalanceStatus: models.BalanceStatusNew,

		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if event.ExecutionFee != nil && event.ExecutionFee.Sign() != 0 {
		submission.ExecutionFee = event.ExecutionFee.String()
	}
	return submission, nil
}

// CreateMonitoringEvent maps a decoded Solana monitoring event into its
// persisted shape.
func CreateMonitoringEvent(event MonitoringEvent) (models.MonitoringEvent, error) {
	rawJSON, err := json.Marshal(map[string]interface{}{
		"submission_id":           hexutil.Encode(event.SubmissionId[:]),
		"nonce":                   event.Nonce,
		"locked_or_minted_amount": event.LockedOrMintedAmount.String(),
		"total_supply":            event.TotalSupply.String(),
		"tx_hash":                 event.Signature,
	})
	if err != nil {
		return models.MonitoringEvent{}, err
	}

	return models.MonitoringEvent{
		SubmissionId:         hexutil.Encode(event.SubmissionId[:]),
		Nonce:                event.Nonce,
		LockedOrMintedAmount: event.LockedOrMintedAmount.String(),
		TotalSupply:          event.TotalSupply.String(),
		RawEvent:             string(rawJSON),
		CreatedAt:            time.Now(),
	}, nil
}
