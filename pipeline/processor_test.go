package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/app/mocks"
	"github.com/debridge-finance/oracle-node/models"
)

type mockEscalator struct {
	mock.Mock
}

func (m *mockEscalator) NotifyError(message string) {
	m.Called(message)
}

func (m *mockEscalator) PauseChain(chainId uint64) {
	m.Called(chainId)
}

func (m *mockEscalator) MarkProviderSuspect(chainId uint64) {
	m.Called(chainId)
}

func newMockEscalator(t *testing.T) *mockEscalator {
	m := &mockEscalator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func positionByBlock(s models.Submission) int64 {
	return s.BlockNumber
}

func testBatch(t *testing.T, chainId uint64, nonces []uint64) ([]models.Submission, map[string]models.MonitoringEvent) {
	t.Helper()

	submissions := make([]models.Submission, 0, len(nonces))
	events := make(map[string]models.MonitoringEvent, len(nonces))
	for _, nonce := range nonces {
		submission := testSubmission(t, chainId, nonce)
		submissions = append(submissions, submission)
		events[submission.SubmissionId] = models.MonitoringEvent{
			SubmissionId:         submission.SubmissionId,
			Nonce:                nonce,
			LockedOrMintedAmount: "1000000",
			TotalSupply:          "1000000",
			CreatedAt:            time.Now(),
		}
	}
	return submissions, events
}

func TestProcessorFullBatch(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	nonces := NewNonceTracker()
	processor := NewProcessor(nonces, NewIdentityValidator(nil), escalator, func(uint64) int { return 2 })

	submissions, events := testBatch(t, 1, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	mockDB.On("FindOne", models.CollectionSubmissions, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	mockDB.On("SaveSubmissionWithEvent", mock.Anything, mock.Anything).Return(nil).Times(10)

	result, err := processor.Process(1, submissions, events, positionByBlock)

	assert.Nil(t, err)
	assert.Equal(t, ProcessSuccess, result.Status)
	assert.NotNil(t, result.BlockOrNonceToOverwrite)
	assert.Equal(t, int64(109), *result.BlockOrNonceToOverwrite)
	assert.Equal(t, uint64(9), *nonces.Max(1))
}

func TestProcessorNonceGap(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	nonces := NewNonceTracker()
	processor := NewProcessor(nonces, NewIdentityValidator(nil), escalator, func(uint64) int { return 2 })

	// nonce 5 replaced with 7
	submissions, events := testBatch(t, 1, []uint64{0, 1, 2, 3, 4, 7, 6, 8, 9})

	mockDB.On("FindOne", models.CollectionSubmissions, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	mockDB.On("SaveSubmissionWithEvent", mock.Anything, mock.Anything).Return(nil).Times(5)
	escalator.On("NotifyError", mock.Anything).Once()
	escalator.On("PauseChain", uint64(1)).Once()

	result, err := processor.Process(1, submissions, events, positionByBlock)

	assert.Nil(t, err)
	assert.Equal(t, ProcessErrorNonceValidation, result.Status)
	assert.NotNil(t, result.BlockOrNonceToOverwrite)
	assert.Equal(t, int64(104), *result.BlockOrNonceToOverwrite)
	assert.Equal(t, uint64(4), *nonces.Max(1))
}

func TestProcessorGapOnFirstSubmission(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	nonces := NewNonceTracker()
	processor := NewProcessor(nonces, NewIdentityValidator(nil), escalator, func(uint64) int { return 2 })

	submissions, events := testBatch(t, 1, []uint64{3})

	mockDB.On("FindOne", models.CollectionSubmissions, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	escalator.On("NotifyError", mock.Anything).Once()
	escalator.On("PauseChain", uint64(1)).Once()

	result, err := processor.Process(1, submissions, events, positionByBlock)

	assert.Nil(t, err)
	assert.Equal(t, ProcessErrorNonceValidation, result.Status)
	// the very first submission failed, the cursor must not move at all
	assert.Nil(t, result.BlockOrNonceToOverwrite)
}

func TestProcessorIdempotentRerun(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	nonces := NewNonceTracker()
	nonces.Set(1, 9)
	processor := NewProcessor(nonces, NewIdentityValidator(nil), escalator, func(uint64) int { return 2 })

	submissions, events := testBatch(t, 1, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	stored := make(map[string]models.Submission, len(submissions))
	for _, submission := range submissions {
		stored[submission.SubmissionId] = submission
	}

	mockDB.On("FindOne", models.CollectionSubmissions, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			filter := args.Get(1).(bson.M)
			id := filter["submission_id"].(string)
			*(args.Get(2).(*models.Submission)) = stored[id]
		}).
		Return(nil)
	mockDB.On("SaveMonitoringEvent", mock.Anything).Return(nil).Times(10)

	result, err := processor.Process(1, submissions, events, positionByBlock)

	assert.Nil(t, err)
	assert.Equal(t, ProcessSuccess, result.Status)
	assert.NotNil(t, result.BlockOrNonceToOverwrite)
	assert.Equal(t, int64(109), *result.BlockOrNonceToOverwrite)
	// the high-water-mark is unchanged by re-delivery
	assert.Equal(t, uint64(9), *nonces.Max(1))
}

func TestProcessorIdentityMismatch(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	nonces := NewNonceTracker()
	processor := NewProcessor(nonces, NewIdentityValidator(nil), escalator, func(uint64) int { return 2 })

	submissions, events := testBatch(t, 1, []uint64{0, 1})
	submissions[1].Amount = "999999999"

	mockDB.On("FindOne", models.CollectionSubmissions, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	mockDB.On("SaveSubmissionWithEvent", mock.Anything, mock.Anything).Return(nil).Once()
	escalator.On("MarkProviderSuspect", uint64(1)).Once()
	escalator.On("NotifyError", mock.Anything).Once()

	result, err := processor.Process(1, submissions, events, positionByBlock)

	assert.Nil(t, err)
	assert.Equal(t, ProcessErrorSubmissionValidation, result.Status)
	assert.NotNil(t, result.BlockOrNonceToOverwrite)
	assert.Equal(t, int64(100), *result.BlockOrNonceToOverwrite)
}

func TestProcessorIdentityFailuresPauseChain(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	nonces := NewNonceTracker()
	identity := NewIdentityValidator(nil)
	processor := NewProcessor(nonces, identity, escalator, func(uint64) int { return 1 })

	mockDB.On("FindOne", models.CollectionSubmissions, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)
	escalator.On("MarkProviderSuspect", uint64(1)).Twice()
	escalator.On("NotifyError", mock.Anything).Times(3)
	escalator.On("PauseChain", uint64(1)).Once()

	bad := testSubmission(t, 1, 0)
	bad.Amount = "999999999"
	events := map[string]models.MonitoringEvent{bad.SubmissionId: {SubmissionId: bad.SubmissionId}}

	// first failure stays under the threshold, the second crosses it
	result, err := processor.Process(1, []models.Submission{bad}, events, positionByBlock)
	assert.Nil(t, err)
	assert.Equal(t, ProcessErrorSubmissionValidation, result.Status)

	result, err = processor.Process(1, []models.Submission{bad}, events, positionByBlock)
	assert.Nil(t, err)
	assert.Equal(t, ProcessErrorSubmissionValidation, result.Status)
	assert.Equal(t, 2, identity.Failures(1))
}

func TestProcessorMissingMonitoringEvent(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	escalator := newMockEscalator(t)
	nonces := NewNonceTracker()
	processor := NewProcessor(nonces, NewIdentityValidator(nil), escalator, func(uint64) int { return 2 })

	submissions, _ := testBatch(t, 1, []uint64{0})

	mockDB.On("FindOne", models.CollectionSubmissions, mock.Anything, mock.Anything).Return(mongo.ErrNoDocuments)

	result, err := processor.Process(1, submissions, map[string]models.MonitoringEvent{}, positionByBlock)

	assert.NotNil(t, err)
	assert.Equal(t, ProcessSuccess, result.Status)
	assert.Nil(t, result.BlockOrNonceToOverwrite)
}
