package common

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

const testPrivateKeyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewPrivateKeySigner(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKeyHex)
	assert.Nil(t, err)
	assert.NotEqual(t, "0x0000000000000000000000000000000000000000", signer.EthAddress().Hex())
	assert.Len(t, signer.PublicKey(), 33)

	// with and without the 0x prefix
	same, err := NewPrivateKeySigner(testPrivateKeyHex[2:])
	assert.Nil(t, err)
	assert.Equal(t, signer.EthAddress(), same.EthAddress())

	_, err = NewPrivateKeySigner("not-a-key")
	assert.NotNil(t, err)
}

func TestEthSignRecoverable(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKeyHex)
	assert.Nil(t, err)

	digest, err := hexutil.Decode("0x1111111111111111111111111111111111111111111111111111111111111111")
	assert.Nil(t, err)

	signature, err := signer.EthSign(digest)
	assert.Nil(t, err)
	assert.Len(t, signature, 65)
	assert.True(t, signature[64] == 27 || signature[64] == 28)

	// normalize v back for ecrecover
	recoverable := append([]byte{}, signature...)
	recoverable[64] -= 27
	pubKey, err := crypto.SigToPub(digest, recoverable)
	assert.Nil(t, err)
	assert.Equal(t, signer.EthAddress(), crypto.PubkeyToAddress(*pubKey))
}

func TestEthSignHashesLongPayloads(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKeyHex)
	assert.Nil(t, err)

	payload := []byte("an arbitrary payload longer than thirty-two bytes of data")
	signature, err := signer.EthSign(payload)
	assert.Nil(t, err)

	digest := crypto.Keccak256(payload)
	direct, err := signer.EthSign(digest)
	assert.Nil(t, err)
	assert.Equal(t, direct, signature)
}
