package solana

import (
	"encoding/base64"
	"encoding/binary"
	"io"
	"math/big"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	log.SetOutput(io.Discard)
}

func appendUint64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

func appendUint256(b []byte, v *big.Int) []byte {
	var word [32]byte
	v.FillBytes(word[:])
	return append(b, word[:]...)
}

func fixedBytes(fill byte) [32]byte {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	return b
}

func encodeSendEvent(submissionId, debridgeId [32]byte, nativeChainId, chainIdTo uint64, amount, executionFee *big.Int, nonce uint64, receiver []byte) string {
	data := append([]byte{}, sendEventDiscriminator...)
	data = append(data, submissionId[:]...)
	data = append(data, debridgeId[:]...)
	data = appendUint64(data, nativeChainId)
	data = appendUint64(data, chainIdTo)
	data = appendUint256(data, amount)
	data = appendUint256(data, executionFee)
	data = appendUint64(data, nonce)
	data = binary.BigEndian.AppendUint32(data, uint32(len(receiver)))
	data = append(data, receiver...)
	return programDataPrefix + base64.StdEncoding.EncodeToString(data)
}

func encodeMonitoringEvent(submissionId [32]byte, nonce uint64, locked, totalSupply *big.Int) string {
	data := append([]byte{}, monitoringEventDiscriminator...)
	data = append(data, submissionId[:]...)
	data = appendUint64(data, nonce)
	data = appendUint256(data, locked)
	data = appendUint256(data, totalSupply)
	return programDataPrefix + base64.StdEncoding.EncodeToString(data)
}

func TestParseLogs(t *testing.T) {
	submissionId := fixedBytes(0x11)
	debridgeId := fixedBytes(0x22)
	receiver := []byte{0xde, 0xad, 0xbe, 0xef}

	logs := []string{
		"Program 4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM invoke [1]",
		encodeSendEvent(submissionId, debridgeId, SolanaChainId, 137, big.NewInt(1000000), big.NewInt(25), 9, receiver),
		"Program log: Instruction: Send",
		encodeMonitoringEvent(submissionId, 9, big.NewInt(1000025), big.NewInt(1000025)),
		"Program 4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM success",
	}

	sends, monitorings, err := ParseLogs(logs, 5000, "sig1")

	assert.Nil(t, err)
	assert.Len(t, sends, 1)
	assert.Len(t, monitorings, 1)

	send := sends[0]
	assert.Equal(t, submissionId, send.SubmissionId)
	assert.Equal(t, debridgeId, send.DebridgeId)
	assert.Equal(t, SolanaChainId, send.NativeChainId)
	assert.Equal(t, uint64(137), send.ChainIdTo)
	assert.Equal(t, "1000000", send.Amount.String())
	assert.Equal(t, "25", send.ExecutionFee.String())
	assert.Equal(t, uint64(9), send.Nonce)
	assert.Equal(t, receiver, send.Receiver)
	assert.Equal(t, uint64(5000), send.Slot)
	assert.Equal(t, "sig1", send.Signature)

	monitoring := monitorings[0]
	assert.Equal(t, submissionId, monitoring.SubmissionId)
	assert.Equal(t, uint64(9), monitoring.Nonce)
	assert.Equal(t, "1000025", monitoring.LockedOrMintedAmount.String())
	assert.Equal(t, "1000025", monitoring.TotalSupply.String())
}

func TestParseLogsIgnoresForeignData(t *testing.T) {
	// well-formed base64 but an unknown discriminator
	foreign := programDataPrefix + base64.StdEncoding.EncodeToString([]byte("othrevt9payloadpayload"))
	// not base64 at all
	garbage := programDataPrefix + "!!not-base64!!"

	sends, monitorings, err := ParseLogs([]string{foreign, garbage, "Program log: hello"}, 1, "sig2")

	assert.Nil(t, err)
	assert.Empty(t, sends)
	assert.Empty(t, monitorings)
}

func TestParseLogsTruncatedEvent(t *testing.T) {
	data := append([]byte{}, sendEventDiscriminator...)
	data = append(data, 0x01, 0x02, 0x03)
	line := programDataPrefix + base64.StdEncoding.EncodeToString(data)

	_, _, err := ParseLogs([]string{line}, 1, "sig3")

	assert.NotNil(t, err)
}

func TestParseLogsReceiverLengthBeyondPayload(t *testing.T) {
	submissionId := fixedBytes(0x01)
	data := append([]byte{}, sendEventDiscriminator...)
	data = append(data, submissionId[:]...)
	data = append(data, submissionId[:]...)
	data = appendUint64(data, SolanaChainId)
	data = appendUint64(data, 137)
	data = appendUint256(data, big.NewInt(1))
	data = appendUint256(data, big.NewInt(0))
	data = appendUint64(data, 0)
	data = binary.BigEndian.AppendUint32(data, 1024)

	_, _, err := ParseLogs([]string{programDataPrefix + base64.StdEncoding.EncodeToString(data)}, 1, "sig4")

	assert.NotNil(t, err)
}
