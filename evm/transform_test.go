package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/debridge-finance/oracle-node/models"
)

func fixedBytes(fill byte) [32]byte {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	return b
}

func packAutoParams(t *testing.T, executionFee *big.Int) []byte {
	t.Helper()
	packed, err := autoParamsArguments.Pack(executionFee, big.NewInt(0), []byte{0x01}, []byte{})
	assert.Nil(t, err)
	return packed
}

func testSentEvent() SentEvent {
	return SentEvent{
		SubmissionId: fixedBytes(0x11),
		DebridgeId:   fixedBytes(0x22),
		Amount:       big.NewInt(1000000),
		Receiver:     common.HexToAddress("0xabc0000000000000000000000000000000000def").Bytes(),
		Nonce:        big.NewInt(9),
		ChainIdFrom:  big.NewInt(1),
		ChainIdTo:    big.NewInt(137),
		Raw: types.Log{
			TxHash:      common.HexToHash("0xbeef"),
			BlockNumber: 150,
		},
	}
}

func TestDecodeExecutionFee(t *testing.T) {
	fee, err := DecodeExecutionFee(nil)
	assert.Nil(t, err)
	assert.Nil(t, fee)

	fee, err = DecodeExecutionFee(packAutoParams(t, big.NewInt(25)))
	assert.Nil(t, err)
	assert.Equal(t, "25", fee.String())

	_, err = DecodeExecutionFee([]byte{0x01, 0x02})
	assert.NotNil(t, err)
}

func TestCreateSubmission(t *testing.T) {
	submission, err := CreateSubmission(testSentEvent(), 1, 1700000000)

	assert.Nil(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111111111111111111111111111", submission.SubmissionId)
	assert.Equal(t, uint64(1), submission.ChainFrom)
	assert.Equal(t, uint64(137), submission.ChainTo)
	assert.Equal(t, "1000000", submission.Amount)
	assert.Equal(t, uint64(9), submission.Nonce)
	assert.Equal(t, int64(150), submission.BlockNumber)
	assert.Equal(t, int64(1700000000), submission.BlockTime)
	// native chain unknown at ingestion time
	assert.Equal(t, models.TransferTypeUnknown, submission.TransferType)
	assert.Equal(t, "", submission.ExecutionFee)
	assert.Equal(t, models.SubmissionStatusNew, submission.Status)
	assert.Equal(t, models.BalanceStatusNew, submission.BalanceStatus)
}

func TestCreateSubmissionWithAutoParams(t *testing.T) {
	event := testSentEvent()
	event.AutoParams = packAutoParams(t, big.NewInt(25))

	submission, err := CreateSubmission(event, 1, 1700000000)

	assert.Nil(t, err)
	assert.Equal(t, "25", submission.ExecutionFee)
	assert.Contains(t, submission.RawEvent, "auto_params")
}

func TestCreateSubmissionDefaultsChainFrom(t *testing.T) {
	event := testSentEvent()
	event.ChainIdFrom = big.NewInt(0)

	submission, err := CreateSubmission(event, 42, 1700000000)

	assert.Nil(t, err)
	assert.Equal(t, uint64(42), submission.ChainFrom)
}

func TestCreateMonitoringEvent(t *testing.T) {
	monitoring, err := CreateMonitoringEvent(MonitoringSendEvent{
		SubmissionId:         fixedBytes(0x11),
		Nonce:                big.NewInt(9),
		LockedOrMintedAmount: big.NewInt(1000025),
		TotalSupply:          big.NewInt(1000025),
		Raw:                  types.Log{TxHash: common.HexToHash("0xbeef")},
	})

	assert.Nil(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111111111111111111111111111", monitoring.SubmissionId)
	assert.Equal(t, uint64(9), monitoring.Nonce)
	assert.Equal(t, "1000025", monitoring.LockedOrMintedAmount)
	assert.Equal(t, "1000025", monitoring.TotalSupply)
}
