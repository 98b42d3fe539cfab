package evm

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/debridge-finance/oracle-node/app"
	"github.com/debridge-finance/oracle-node/app/mocks"
	"github.com/debridge-finance/oracle-node/chains"
	"github.com/debridge-finance/oracle-node/models"
)

func init() {
	log.SetOutput(io.Discard)
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ChainId() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

func (m *mockClient) GetBlockNumber() (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockClient) GetBlockTimestamp(blockNumber int64) (uint64, error) {
	args := m.Called(blockNumber)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockClient) GetSentEvents(fromBlock int64, toBlock int64) ([]SentEvent, error) {
	args := m.Called(fromBlock, toBlock)
	return args.Get(0).([]SentEvent), args.Error(1)
}

func (m *mockClient) GetMonitoringEvents(fromBlock int64, toBlock int64) ([]MonitoringSendEvent, error) {
	args := m.Called(fromBlock, toBlock)
	return args.Get(0).([]MonitoringSendEvent), args.Error(1)
}

func (m *mockClient) GetDebridgeInfo(debridgeId common.Hash) (DebridgeInfo, error) {
	args := m.Called(debridgeId)
	return args.Get(0).(DebridgeInfo), args.Error(1)
}

func (m *mockClient) GetTokenMetadata(tokenAddress common.Address) (TokenMetadata, error) {
	args := m.Called(tokenAddress)
	return args.Get(0).(TokenMetadata), args.Error(1)
}

func (m *mockClient) Providers() *ProviderSet {
	args := m.Called()
	return args.Get(0).(*ProviderSet)
}

func (m *mockClient) ValidateNetwork() {
	m.Called()
}

func newMockClient(t *testing.T) *mockClient {
	m := &mockClient{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func newTestScanService(client Client, config models.ChainConfig, locks *chains.ScanLocks) *ScanService {
	return &ScanService{
		wg:       &sync.WaitGroup{},
		stop:     make(chan bool),
		interval: time.Minute,
		config:   config,
		client:   client,
		locks:    locks,
	}
}

func testChainConfig() models.ChainConfig {
	return models.ChainConfig{
		ChainId:           1,
		Network:           "mainnet",
		BlockConfirmation: 1,
		MaxBlockRange:     5000,
	}
}

func TestScanNewBlocksZeroEvents(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	client := newMockClient(t)
	x := newTestScanService(client, testChainConfig(), chains.NewScanLocks())

	client.On("GetBlockNumber").Return(uint64(151), nil)
	mockDB.On("FindOne", models.CollectionSupportedChains, bson.M{"chain_id": uint64(1)}, mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(2).(*models.SupportedChain)) = models.SupportedChain{ChainId: 1, LatestBlock: 100}
		}).
		Return(nil)
	// the confirmed tip is 151-1=150, one window [100, 150)
	client.On("GetSentEvents", int64(100), int64(149)).Return([]SentEvent{}, nil)
	client.On("GetBlockTimestamp", int64(149)).Return(uint64(1700000000), nil)
	mockDB.On("UpdateOne",
		models.CollectionSupportedChains,
		bson.M{"chain_id": uint64(1), "latest_block": bson.M{"$lt": int64(150)}},
		mock.Anything,
	).Return(nil).Once()

	err := x.ScanNewBlocks()

	assert.Nil(t, err)
}

func TestScanNewBlocksWindowing(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	client := newMockClient(t)
	config := testChainConfig()
	config.MaxBlockRange = 50
	x := newTestScanService(client, config, chains.NewScanLocks())

	client.On("GetBlockNumber").Return(uint64(221), nil)
	mockDB.On("FindOne", models.CollectionSupportedChains, bson.M{"chain_id": uint64(1)}, mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(2).(*models.SupportedChain)) = models.SupportedChain{ChainId: 1, LatestBlock: 100}
		}).
		Return(nil)
	// [100, 220) splits into [100,150) [150,200) [200,220)
	client.On("GetSentEvents", int64(100), int64(149)).Return([]SentEvent{}, nil)
	client.On("GetSentEvents", int64(150), int64(199)).Return([]SentEvent{}, nil)
	client.On("GetSentEvents", int64(200), int64(219)).Return([]SentEvent{}, nil)
	client.On("GetBlockTimestamp", int64(149)).Return(uint64(1700000000), nil)
	client.On("GetBlockTimestamp", int64(199)).Return(uint64(1700000600), nil)
	client.On("GetBlockTimestamp", int64(219)).Return(uint64(1700000840), nil)
	mockDB.On("UpdateOne", models.CollectionSupportedChains, mock.Anything, mock.Anything).Return(nil).Times(3)

	err := x.ScanNewBlocks()

	assert.Nil(t, err)
}

func TestScanNewBlocksPausedChain(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	client := newMockClient(t)
	locks := chains.NewScanLocks()
	locks.Pause(1)
	x := newTestScanService(client, testChainConfig(), locks)

	// no client or database expectations: a paused chain must not scan
	err := x.ScanNewBlocks()

	assert.Nil(t, err)
}

func TestScanNewBlocksCursorAtTip(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	client := newMockClient(t)
	x := newTestScanService(client, testChainConfig(), chains.NewScanLocks())

	client.On("GetBlockNumber").Return(uint64(151), nil)
	mockDB.On("FindOne", models.CollectionSupportedChains, bson.M{"chain_id": uint64(1)}, mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(2).(*models.SupportedChain)) = models.SupportedChain{ChainId: 1, LatestBlock: 150}
		}).
		Return(nil)

	err := x.ScanNewBlocks()

	assert.Nil(t, err)
	assert.False(t, x.locks.IsLocked(1))
}

func TestRescanRejectsOversizedRange(t *testing.T) {
	mockDB := mocks.NewMockDatabase(t)
	app.DB = mockDB
	client := newMockClient(t)
	x := newTestScanService(client, testChainConfig(), chains.NewScanLocks())

	err := x.Rescan(0, 6000)
	assert.NotNil(t, err)

	err = x.Rescan(10, 5)
	assert.NotNil(t, err)

	// neither attempt may leave the scan lock held
	assert.False(t, x.locks.IsLocked(1))
}
