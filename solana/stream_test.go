package solana

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/stretchr/testify/assert"
)

func TestStreamStateString(t *testing.T) {
	assert.Equal(t, "CONNECTING", StreamConnecting.String())
	assert.Equal(t, "STREAMING", StreamStreaming.String())
	assert.Equal(t, "RECONNECTING", StreamReconnecting.String())
	assert.Equal(t, "UNKNOWN", StreamState(42).String())
}

func TestStreamBufferLogs(t *testing.T) {
	s := &EventStream{
		reset: make(chan bool, 1),
		stop:  make(chan bool, 1),
	}

	submissionId := fixedBytes(0x11)
	var result ws.LogResult
	result.Context.Slot = 5000
	result.Value.Logs = []string{
		encodeSendEvent(submissionId, fixedBytes(0x22), SolanaChainId, 137, big.NewInt(1000000), big.NewInt(25), 9, []byte{0xde, 0xad}),
		encodeMonitoringEvent(submissionId, 9, big.NewInt(1000025), big.NewInt(1000025)),
	}

	s.bufferLogs(&result)

	buffered := s.Drain()
	assert.Len(t, buffered, 1)
	assert.Equal(t, uint64(9), buffered[0].Send.Nonce)
	assert.NotNil(t, buffered[0].Monitoring)
	assert.Equal(t, "1000025", buffered[0].Monitoring.LockedOrMintedAmount.String())

	// draining empties the buffer
	assert.Empty(t, s.Drain())
}

func TestStreamBufferLogsWithoutMonitoring(t *testing.T) {
	s := &EventStream{
		reset: make(chan bool, 1),
		stop:  make(chan bool, 1),
	}

	var result ws.LogResult
	result.Context.Slot = 5001
	result.Value.Logs = []string{
		encodeSendEvent(fixedBytes(0x33), fixedBytes(0x22), 1, 137, big.NewInt(5), big.NewInt(0), 0, []byte{0x01}),
	}

	s.bufferLogs(&result)

	buffered := s.Drain()
	assert.Len(t, buffered, 1)
	assert.Nil(t, buffered[0].Monitoring)
}

func TestStreamReset(t *testing.T) {
	s := &EventStream{
		reset:  make(chan bool, 1),
		stop:   make(chan bool, 1),
		buffer: []BufferedEvent{{}},
	}

	s.Reset()

	assert.Empty(t, s.Drain())
	select {
	case <-s.reset:
	default:
		t.Fatal("reset signal not queued")
	}

	// a second reset with the signal already queued must not block
	s.Reset()
	s.Reset()
}
