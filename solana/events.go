package solana

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
)

// SolanaChainId is the chain id the bridge assigns to Solana.
const SolanaChainId uint64 = 7565164

const programDataPrefix = "Program data: "

// discriminators of the bridge program's anchor events
var (
	sendEventDiscriminator       = []byte{0x73, 0x65, 0x6e, 0x64, 0x65, 0x76, 0x74, 0x31}
	monitoringEventDiscriminator = []byte{0x6d, 0x6f, 0x6e, 0x65, 0x76, 0x74, 0x30, 0x31}
)

// SendEvent is the decoded bridge send event. Multi-byte integers are
// big-endian on the wire.
type SendEvent struct {
	SubmissionId  [32]byte
	DebridgeId    [32]byte
	NativeChainId uint64
	ChainIdTo     uint64
	Amount        *big.Int
	ExecutionFee  *big.Int
	Nonce         uint64
	Receiver      []byte

	Slot      uint64
	Signature string
}

// MonitoringEvent is the decoded locked/minted snapshot event.
type MonitoringEvent struct {
	SubmissionId         [32]byte
	Nonce                uint64
	LockedOrMintedAmount *big.Int
	TotalSupply          *big.Int

	Slot      uint64
	Signature string
}

type eventReader struct {
	data []byte
	off  int
}

func (r *eventReader) bytes(n int) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, fmt.Errorf("truncated event: need %d bytes at offset %d, have %d", n, r.off, len(r.data))
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *eventReader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *eventReader) uint256() (*big.Int, error) {
	b, err := r.bytes(32)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

func decodeSendEvent(data []byte) (SendEvent, error) {
	r := &eventReader{data: data, off: len(sendEventDiscriminator)}
	var event SendEvent

	submissionId, err := r.bytes(32)
	if err != nil {
		return event, err
	}
	copy(event.SubmissionId[:], submissionId)

	debridgeId, err := r.bytes(32)
	if err != nil {
		return event, err
	}
	copy(event.DebridgeId[:], debridgeId)

	if event.NativeChainId, err = r.uint64(); err != nil {
		return event, err
	}
	if event.ChainIdTo, err = r.uint64(); err != nil {
		return event, err
	}
	if event.Amount, err = r.uint256(); err != nil {
		return event, err
	}
	if event.ExecutionFee, err = r.uint256(); err != nil {
		return event, err
	}
	if event.Nonce, err = r.uint64(); err != nil {
		return event, err
	}

	lenBytes, err := r.bytes(4)
	if err != nil {
		return event, err
	}
	receiver, err := r.bytes(int(binary.BigEndian.Uint32(lenBytes)))
	if err != nil {
		return event, err
	}
	event.Receiver = append([]byte{}, receiver...)

	return event, nil
}

func decodeMonitoringEvent(data []byte) (MonitoringEvent, error) {
	r := &eventReader{data: data, off: len(monitoringEventDiscriminator)}
	var event MonitoringEvent

	submissionId, err := r.bytes(32)
	if err != nil {
		return event, err
	}
	copy(event.SubmissionId[:], submissionId)

	if event.Nonce, err = r.uint64(); err != nil {
		return event, err
	}
	if event.LockedOrMintedAmount, err = r.uint256(); err != nil {
		return event, err
	}
	if event.TotalSupply, err = r.uint256(); err != nil {
		return event, err
	}
	return event, nil
}

// ParseLogs extracts bridge events from a transaction's log messages.
func ParseLogs(logs []string, slot uint64, signature string) ([]SendEvent, []MonitoringEvent, error) {
	var sends []SendEvent
	var monitorings []MonitoringEvent

	for _, line := range logs {
		if !strings.HasPrefix(line, programDataPrefix) {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
		if err != nil {
			continue
		}
		if len(data) < 8 {
			continue
		}

		switch {
		case bytes.Equal(data[:8], sendEventDiscriminator):
			event, err := decodeSendEvent(data)
			if err != nil {
				return nil, nil, fmt.Errorf("error decoding send event in tx %s: %w", signature, err)
			}
			event.Slot = slot
			event.Signature = signature
			sends = append(sends, event)
		case bytes.Equal(data[:8], monitoringEventDiscriminator):
			event, err := decodeMonitoringEvent(data)
			if err != nil {
				return nil, nil, fmt.Errorf("error decoding monitoring event in tx %s: %w", signature, err)
			}
			event.Slot = slot
			event.Signature = signature
			monitorings = append(monitorings, event)
		}
	}

	return sends, monitorings, nil
}
