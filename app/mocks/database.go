// Code generated manually for tests; mirrors the app.Database interface.
package mocks

import (
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/debridge-finance/oracle-node/models"
)

type MockDatabase struct {
	mock.Mock
}

func NewMockDatabase(t *testing.T) *MockDatabase {
	m := &MockDatabase{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockDatabase) Connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) SetupLockers() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) SetupIndexes() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) InsertOne(collection string, data interface{}) error {
	args := m.Called(collection, data)
	return args.Error(0)
}

func (m *MockDatabase) FindOne(collection string, filter interface{}, result interface{}) error {
	args := m.Called(collection, filter, result)
	return args.Error(0)
}

func (m *MockDatabase) FindMany(collection string, filter interface{}, result interface{}) error {
	args := m.Called(collection, filter, result)
	return args.Error(0)
}

func (m *MockDatabase) FindManySorted(collection string, filter interface{}, sort interface{}, skip int64, limit int64, result interface{}) error {
	args := m.Called(collection, filter, sort, skip, limit, result)
	return args.Error(0)
}

func (m *MockDatabase) Distinct(collection string, field string, filter interface{}) ([]interface{}, error) {
	args := m.Called(collection, field, filter)
	var values []interface{}
	if args.Get(0) != nil {
		values = args.Get(0).([]interface{})
	}
	return values, args.Error(1)
}

func (m *MockDatabase) UpdateOne(collection string, filter interface{}, update interface{}) error {
	args := m.Called(collection, filter, update)
	return args.Error(0)
}

func (m *MockDatabase) UpsertOne(collection string, filter interface{}, update interface{}) error {
	args := m.Called(collection, filter, update)
	return args.Error(0)
}

func (m *MockDatabase) SaveSubmissionWithEvent(submission models.Submission, event *models.MonitoringEvent) error {
	args := m.Called(submission, event)
	return args.Error(0)
}

func (m *MockDatabase) SaveMonitoringEvent(event models.MonitoringEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockDatabase) CommitBalanceValidation(submissionId string, status string, reason string, balances []models.BalanceSheetEntry) error {
	args := m.Called(submissionId, status, reason, balances)
	return args.Error(0)
}

func (m *MockDatabase) XLock(resourceId string) (string, error) {
	args := m.Called(resourceId)
	return args.String(0), args.Error(1)
}

func (m *MockDatabase) Unlock(lockId string) error {
	args := m.Called(lockId)
	return args.Error(0)
}
