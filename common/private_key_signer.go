package common

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	dcrecSecp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Struct Definition
type PrivateKeySigner struct {
	ethAddress common.Address
	ethPrivKey *ecdsa.PrivateKey
	pubKey     *dcrecSecp256k1.PublicKey
}

var _ Signer = &PrivateKeySigner{}

// Constructor Function
func NewPrivateKeySigner(privateKeyHex string) (*PrivateKeySigner, error) {
	ethPrivKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKeyECDSA, _ := ethPrivKey.Public().(*ecdsa.PublicKey)
	ethAddress := crypto.PubkeyToAddress(*publicKeyECDSA)

	pubKey, err := dcrecSecp256k1.ParsePubKey(crypto.FromECDSAPub(publicKeyECDSA))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &PrivateKeySigner{
		ethPrivKey: ethPrivKey,
		ethAddress: ethAddress,
		pubKey:     pubKey,
	}, nil
}

// Destructor Function
func (s *PrivateKeySigner) Destroy() {
	// nothing to do
}

// Method Implementations
func (s *PrivateKeySigner) EthSign(data []byte) ([]byte, error) {
	return ethSignWithKey(data, s.ethPrivKey)
}

func (s *PrivateKeySigner) EthAddress() common.Address {
	return s.ethAddress
}

func (s *PrivateKeySigner) PublicKey() []byte {
	return s.pubKey.SerializeCompressed()
}

func ethSignWithKey(data []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := data
	if len(digest) != 32 {
		digest = crypto.Keccak256(data)
	}
	hash := common.BytesToHash(digest)
	signature, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, err
	}

	if signature[64] == 0 || signature[64] == 1 {
		signature[64] += 27
	}

	return signature, nil
}
