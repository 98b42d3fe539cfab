package balance

import (
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/app/mocks"
	"github.com/debridge-finance/oracle-node/models"
)

func init() {
	log.SetOutput(io.Discard)
}

type mockEscalator struct {
	mock.Mock
}

func (m *mockEscalator) NotifyError(message string) {
	m.Called(message)
}

func (m *mockEscalator) PauseChain(chainId uint64) {
	m.Called(chainId)
}

func newMockEscalator(t *testing.T) *mockEscalator {
	m := &mockEscalator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func newTestReconciler(escalator Escalator) *ReconcilerService {
	return &ReconcilerService{
		wg:        &sync.WaitGroup{},
		stop:      make(chan bool),
		interval:  time.Minute,
		pageSize:  100,
		escalator: escalator,
	}
}

func expectToken(mockDB *mocks.MockDatabase, token models.Token) {
	mockDB.On("FindOne", models.CollectionTokens, bson.M{"debridge_id": token.DebridgeId}, mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(2).(*models.Token)) = token
		}).
		Return(nil)
}

func expectBalance(mockDB *mocks.MockDatabase, entry models.BalanceSheetEntry) {
	mockDB.On("FindOne", models.CollectionBalances, bson.M{"debridge_id": entry.DebridgeId, "chain_id": entry.ChainId}, mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(2).(*models.BalanceSheetEntry)) = entry
		}).
		Return(nil)
}

func expectMonitoringEvent(mockDB *mocks.MockDatabase, event models.MonitoringEvent) {
	mockDB.On("FindOne", models.CollectionMonitoringEvents, bson.M{"submission_id": event.SubmissionId}, mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(2).(*models.MonitoringEvent)) = event
		}).
		Return(nil)
}

func TestReconcileSentCompletion(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	x := newTestReconciler(escalator)

	token := models.Token{DebridgeId: "0xaa", NativeChainId: 1}
	submission := models.Submission{
		SubmissionId: "0x01",
		DebridgeId:   "0xaa",
		ChainFrom:    1,
		ChainTo:      137,
		Nonce:        0,
		Amount:       "1000",
		ExecutionFee: "10",
		TransferType: models.TransferTypeSent,
	}

	expectToken(mockDB, token)
	mockDB.On("FindOne", models.CollectionBalances, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	expectMonitoringEvent(mockDB, models.MonitoringEvent{
		SubmissionId:         "0x01",
		LockedOrMintedAmount: "1010",
		TotalSupply:          "1010",
	})

	var committed []models.BalanceSheetEntry
	mockDB.On("CommitBalanceValidation", "0x01", models.BalanceStatusCompleted, "", mock.Anything).
		Run(func(args mock.Arguments) {
			committed = args.Get(3).([]models.BalanceSheetEntry)
		}).
		Return(nil)

	err := x.reconcileSubmission(submission)

	assert.Nil(t, err)
	assert.Len(t, committed, 2)
	assert.Equal(t, "1010", committed[0].Amount)
	assert.Equal(t, uint64(1), committed[0].ChainId)
	assert.Equal(t, "1010", committed[1].Amount)
	assert.Equal(t, uint64(137), committed[1].ChainId)
}

func TestReconcileBurnReturnToNativeCompletion(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	x := newTestReconciler(escalator)

	token := models.Token{DebridgeId: "0xaa", NativeChainId: 1}
	submission := models.Submission{
		SubmissionId: "0x02",
		DebridgeId:   "0xaa",
		ChainFrom:    137,
		ChainTo:      1,
		Nonce:        4,
		Amount:       "1000",
		ExecutionFee: "5",
		TransferType: models.TransferTypeBurn,
	}

	expectToken(mockDB, token)
	expectBalance(mockDB, models.BalanceSheetEntry{DebridgeId: "0xaa", ChainId: 137, Amount: "2000"})
	expectBalance(mockDB, models.BalanceSheetEntry{DebridgeId: "0xaa", ChainId: 1, Amount: "2000"})
	expectMonitoringEvent(mockDB, models.MonitoringEvent{
		SubmissionId:         "0x02",
		LockedOrMintedAmount: "995",
		TotalSupply:          "995",
	})

	var committed []models.BalanceSheetEntry
	mockDB.On("CommitBalanceValidation", "0x02", models.BalanceStatusCompleted, "", mock.Anything).
		Run(func(args mock.Arguments) {
			committed = args.Get(3).([]models.BalanceSheetEntry)
		}).
		Return(nil)

	err := x.reconcileSubmission(submission)

	assert.Nil(t, err)
	assert.Len(t, committed, 2)
	// both sides decrease when the asset returns to its native chain
	assert.Equal(t, "995", committed[0].Amount)
	assert.Equal(t, "995", committed[1].Amount)
}

func TestReconcileBurnNegativeBalanceEscalates(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	x := newTestReconciler(escalator)

	token := models.Token{DebridgeId: "0xaa", NativeChainId: 1}
	submission := models.Submission{
		SubmissionId: "0x03",
		DebridgeId:   "0xaa",
		ChainFrom:    137,
		ChainTo:      56,
		Nonce:        7,
		Amount:       "1000",
		ExecutionFee: "10",
		TransferType: models.TransferTypeBurn,
	}

	expectToken(mockDB, token)
	// no prior balances: the receiver side goes negative immediately
	mockDB.On("FindOne", models.CollectionBalances, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	expectMonitoringEvent(mockDB, models.MonitoringEvent{
		SubmissionId:         "0x03",
		LockedOrMintedAmount: "1010",
		TotalSupply:          "1010",
	})
	mockDB.On("FindOne", models.CollectionSupportedChains, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	mockDB.On("CommitBalanceValidation", "0x03", models.BalanceStatusError, mock.Anything, mock.Anything).Return(nil).Once()
	escalator.On("NotifyError", mock.Anything).Once()
	escalator.On("PauseChain", uint64(137)).Once()

	err := x.reconcileSubmission(submission)

	assert.NotNil(t, err)
}

func TestReconcileBurnLockedMismatchEscalates(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	x := newTestReconciler(escalator)

	token := models.Token{DebridgeId: "0xaa", NativeChainId: 1}
	submission := models.Submission{
		SubmissionId: "0x04",
		DebridgeId:   "0xaa",
		ChainFrom:    137,
		ChainTo:      1,
		Nonce:        8,
		Amount:       "1000",
		ExecutionFee: "5",
		TransferType: models.TransferTypeBurn,
	}

	expectToken(mockDB, token)
	expectBalance(mockDB, models.BalanceSheetEntry{DebridgeId: "0xaa", ChainId: 137, Amount: "2000"})
	expectBalance(mockDB, models.BalanceSheetEntry{DebridgeId: "0xaa", ChainId: 1, Amount: "2000"})
	expectMonitoringEvent(mockDB, models.MonitoringEvent{
		SubmissionId:         "0x04",
		LockedOrMintedAmount: "994",
		TotalSupply:          "994",
	})
	mockDB.On("FindOne", models.CollectionSupportedChains, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	mockDB.On("CommitBalanceValidation", "0x04", models.BalanceStatusError, mock.Anything, mock.Anything).Return(nil).Once()
	escalator.On("NotifyError", mock.Anything).Once()
	escalator.On("PauseChain", uint64(137)).Once()

	err := x.reconcileSubmission(submission)

	assert.NotNil(t, err)
}

func TestBackfillDerivedFields(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	x := newTestReconciler(newMockEscalator(t))

	token := models.Token{DebridgeId: "0xaa", NativeChainId: 1}
	submission := models.Submission{
		SubmissionId: "0x05",
		DebridgeId:   "0xaa",
		ChainFrom:    1,
		ChainTo:      137,
		RawEvent:     `{"auto_params":""}`,
	}

	mockDB.On("UpdateOne", models.CollectionSubmissions, bson.M{"submission_id": "0x05"}, mock.Anything).Return(nil).Once()

	updated, err := x.backfillDerivedFields(submission, token)

	assert.Nil(t, err)
	assert.Equal(t, models.TransferTypeSent, updated.TransferType)
	assert.Equal(t, "", updated.ExecutionFee)
}

func TestParseAmount(t *testing.T) {
	value, err := parseAmount("")
	assert.Nil(t, err)
	assert.Equal(t, "0", value.String())

	value, err = parseAmount("123456789012345678901234567890")
	assert.Nil(t, err)
	assert.Equal(t, "123456789012345678901234567890", value.String())

	_, err = parseAmount("0x10")
	assert.NotNil(t, err)
}
