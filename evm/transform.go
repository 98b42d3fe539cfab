package evm

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/debridge-finance/oracle-node/models"
)

var autoParamsArguments abi.Arguments

func init() {
	uint256Type, _ := abi.NewType("uint256", "", nil)
	bytesType, _ := abi.NewType("bytes", "", nil)
	autoParamsArguments = abi.Arguments{
		{Name: "executionFee", Type: uint256Type},
		{Name: "flags", Type: uint256Type},
		{Name: "fallbackAddress", Type: bytesType},
		{Name: "data", Type: bytesType},
	}
}

// DecodeExecutionFee extracts the execution fee from the ABI-encoded
// auto-params sub-structure. Events from older contract versions carry no
// auto-params at all; the fee is then undefined rather than zero.
func DecodeExecutionFee(autoParams []byte) (*big.Int, error) {
	if len(autoParams) == 0 {
		return nil, nil
	}
	values, err := autoParamsArguments.Unpack(autoParams)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// CreateSubmission maps a decoded Sent log into a submission record. The
// transfer type stays unknown until the asset's native chain is resolved.
// A missing chainIdFrom in the payload defaults to the scanned chain id.
func CreateSubmission(event SentEvent, scannedChainId uint64, blockTime int64) (models.Submission, error) {
	chainFrom := scannedChainId
	if event.ChainIdFrom != nil && event.ChainIdFrom.Sign() != 0 {
		chainFrom = event.ChainIdFrom.Uint64()
	}

	raw := models.RawSentEvent{
		SubmissionId: hexutil.Encode(event.SubmissionId[:]),
		DebridgeId:   hexutil.Encode(event.DebridgeId[:]),
		Amount:       event.Amount.String(),
		Receiver:     hexutil.Encode(event.Receiver),
		Nonce:        event.Nonce.Uint64(),
		ChainIdFrom:  chainFrom,
		ChainIdTo:    event.ChainIdTo.Uint64(),
	}
	if len(event.AutoParams) > 0 {
		raw.AutoParams = hexutil.Encode(event.AutoParams)
	}
	if len(event.NativeSender) > 0 {
		raw.NativeSender = hexutil.Encode(event.NativeSender)
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return models.Submission{}, err
	}

	executionFee, err := DecodeExecutionFee(event.AutoParams)
	if err != nil {
		return models.Submission{}, err
	}

	submission := models.Submission{
		SubmissionId: hexutil.Encode(event.SubmissionId[:]),
		TxHash:       event.Raw.TxHash.Hex(),
		ChainFrom:    chainFrom,
		ChainTo:      event.ChainIdTo.Uint64(),
		DebridgeId:   hexutil.Encode(event.DebridgeId[:]),
		ReceiverAddr: hexutil.Encode(event.Receiver),
		Amount:       event.Amount.String(),
		Nonce:        event.Nonce.Uint64(),
		TransferType: models.TransferTypeUnknown,
		RawEvent:     string(rawJSON),
		BlockNumber:  int64(event.Raw.BlockNumber),
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
	if executionFee != nil {
		submission.ExecutionFee = executionFee.String()
	}
	return submission, nil
}

// CreateMonitoringEvent maps a decoded MonitoringSendEvent log into its
// persisted shape.
func CreateMonitoringEvent(event MonitoringSendEvent) (models.MonitoringEvent, error) {
	rawJSON, err := json.Marshal(map[string]interface{}{
		"submission_id":           hexutil.Encode(event.SubmissionId[:]),
		"nonce":                   event.Nonce.Uint64(),
		"locked_or_minted_amount": event.LockedOrMintedAmount.String(),
		"total_supply":            event.TotalSupply.String(),
		"tx_hash":                 event.Raw.TxHash.Hex(),
	})
	if err != nil {
		return models.MonitoringEvent{}, err
	}

	return models.MonitoringEvent{
		SubmissionId:         hexutil.Encode(event.SubmissionId[:]),
		Nonce:                event.Nonce.Uint64(),
		LockedOrMintedAmount: event.LockedOrMintedAmount.String(),
		TotalSupply:          event.TotalSupply.String(),
		RawEvent:             string(rawJSON),
		CreatedAt:            time.Now(),
	}, nil
}
