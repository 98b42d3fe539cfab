package common

import (
	"crypto/ecdsa"
	"fmt"

	bip39 "github.com/cosmos/go-bip39"
	dcrecSecp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

const ethDerivationPath = "m/44'/60'/0'/0/0"

// Struct Definition
type MnemonicSigner struct {
	ethAddress common.Address
	ethPrivKey *ecdsa.PrivateKey
	pubKey     *dcrecSecp256k1.PublicKey
}

var _ Signer = &MnemonicSigner{}

// Constructor Function
func NewMnemonicSigner(mnemonic string) (*MnemonicSigner, error) {
	ethPrivKey, err := EthereumPrivateKeyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to create ethereum private key: %w", err)
	}

	publicKeyECDSA, _ := ethPrivKey.Public().(*ecdsa.PublicKey) // impossible to get an error since the private key is not nil

	ethAddress := crypto.PubkeyToAddress(*publicKeyECDSA)

	pubKey, err := dcrecSecp256k1.ParsePubKey(crypto.FromECDSAPub(publicKeyECDSA))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &MnemonicSigner{
		ethPrivKey: ethPrivKey,
		ethAddress: ethAddress,
		pubKey:     pubKey,
	}, nil
}

// Destructor Function
func (s *MnemonicSigner) Destroy() {
	// nothing to do
}

// Method Implementations
func (s *MnemonicSigner) EthSign(data []byte) ([]byte, error) {
	return ethSignWithKey(data, s.ethPrivKey)
}

func (s *MnemonicSigner) EthAddress() common.Address {
	return s.ethAddress
}

func (s *MnemonicSigner) PublicKey() []byte {
	return s.pubKey.SerializeCompressed()
}

func EthereumPrivateKeyFromMnemonic(mnemonic string) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	path := hdwallet.MustParseDerivationPath(ethDerivationPath)
	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, err
	}

	return wallet.PrivateKey(account)
}
