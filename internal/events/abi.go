package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Event names emitted by the engines.
const (
	EventMint            = "Mint"
	EventBurn            = "Burn"
	EventSwap            = "Swap"
	EventSync            = "Sync"
	EventRegisteredTrade = "RegisteredTrade"
	EventChequeCashed    = "ChequeCashed"
)

const engineABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "actor", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountBase", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amountQuote", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "Mint",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "actor", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountBase", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amountQuote", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "Burn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "actor", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "assetIn", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountIn", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "assetOut", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountOut", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "recipient", "type": "address"}
    ],
    "name": "Swap",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "reserveBase", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "reserveQuote", "type": "uint256"}
    ],
    "name": "Sync",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "spent", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "bought", "type": "uint256"}
    ],
    "name": "RegisteredTrade",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "spender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "fee", "type": "uint256"}
    ],
    "name": "ChequeCashed",
    "type": "event"
  }
]`

var (
	engineABI     abi.ABI
	engineABIOnce sync.Once
	engineABIErr  error
)

// EngineABI returns the parsed event ABI shared by the pool, fund and cheque desk.
func EngineABI() (abi.ABI, error) {
	engineABIOnce.Do(func() {
		engineABI, engineABIErr = abi.JSON(strings.NewReader(engineABIJSON))
	})
	return engineABI, engineABIErr
}
