package evm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

const debridgeGateABI = `[
	{"type":"event","name":"Sent","anonymous":false,"inputs":[
		{"name":"submissionId","type":"bytes32","indexed":false},
		{"name":"debridgeId","type":"bytes32","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"receiver","type":"bytes","indexed":false},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"chainIdFrom","type":"uint256","indexed":false},
		{"name":"chainIdTo","type":"uint256","indexed":false},
		{"name":"autoParams","type":"bytes","indexed":false},
		{"name":"nativeSender","type":"bytes","indexed":false}]},
	{"type":"event","name":"MonitoringSendEvent","anonymous":false,"inputs":[
		{"name":"submissionId","type":"bytes32","indexed":false},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"lockedOrMintedAmount","type":"uint256","indexed":false},
		{"name":"totalSupply","type":"uint256","indexed":false}]},
	{"type":"function","name":"getChainId","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getDebridge","stateMutability":"view",
		"inputs":[{"name":"debridgeId","type":"bytes32"}],
		"outputs":[{"name":"nativeChainId","type":"uint256"},{"name":"nativeTokenAddress","type":"bytes"}]}
]`

const erc20ABI = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	gateABI  abi.ABI
	tokenABI abi.ABI

	sentTopic       [32]byte
	monitoringTopic [32]byte
)

func init() {
	var err error
	gateABI, err = abi.JSON(strings.NewReader(debridgeGateABI))
	if err != nil {
		log.Fatal("[EVM] Error parsing debridge gate abi: ", err)
	}
	tokenABI, err = abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		log.Fatal("[EVM] Error parsing erc20 abi: ", err)
	}
	sentTopic = gateABI.Events["Sent"].ID
	monitoringTopic = gateABI.Events["MonitoringSendEvent"].ID
}

// SentEvent is the decoded primary transfer event.
type SentEvent struct {
	SubmissionId [32]byte
	DebridgeId   [32]byte
	Amount       *big.Int
	Receiver     []byte
	Nonce        *big.Int
	ChainIdFrom  *big.Int
	ChainIdTo    *big.Int
	AutoParams   []byte
	NativeSender []byte

	Raw types.Log
}

// MonitoringSendEvent is the decoded locked/minted snapshot event.
type MonitoringSendEvent struct {
	SubmissionId         [32]byte
	Nonce                *big.Int
	LockedOrMintedAmount *big.Int
	TotalSupply          *big.Int

	Raw types.Log
}

func unpackSentEvent(vLog types.Log) (SentEvent, error) {
	var event SentEvent
	err := gateABI.UnpackIntoInterface(&event, "Sent", vLog.Data)
	if err != nil {
		return SentEvent{}, err
	}
	event.Raw = vLog
	return event, nil
}

func unpackMonitoringEvent(vLog types.Log) (MonitoringSendEvent, error) {
	var event MonitoringSendEvent
	err := gateABI.UnpackIntoInterface(&event, "MonitoringSendEvent", vLog.Data)
	if err != nil {
		return MonitoringSendEvent{}, err
	}
	event.Raw = vLog
	return event, nil
}
