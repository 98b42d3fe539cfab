package common

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/debridge-finance/oracle-node/models"
)

// Interface Definition
type Signer interface {
	EthSign(data []byte) ([]byte, error)
	EthAddress() common.Address
	PublicKey() []byte
	Destroy()
}

// CreateSigner selects the signing backend from config: a raw hex private
// key, a BIP39 mnemonic, or a GCP KMS key resource name.
func CreateSigner(config models.SignerConfig) (Signer, error) {
	backends := 0
	if config.PrivateKey != "" {
		backends++
	}
	if config.Mnemonic != "" {
		backends++
	}
	if config.GcpKmsKeyName != "" {
		backends++
	}
	if backends != 1 {
		return nil, fmt.Errorf("exactly one of PrivateKey, Mnemonic and GcpKmsKeyName must be set")
	}

	if config.PrivateKey != "" {
		return NewPrivateKeySigner(config.PrivateKey)
	}
	if config.Mnemonic != "" {
		return NewMnemonicSigner(config.Mnemonic)
	}
	return NewGcpKmsSigner(config.GcpKmsKeyName)
}
