package events

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"dexFund/internal/model"
)

// MetaCache maps emitter addresses to engine metadata.
type MetaCache struct {
	mu    sync.RWMutex
	items map[common.Address]model.EngineMeta
}

func NewMetaCache() *MetaCache {
	return &MetaCache{items: make(map[common.Address]model.EngineMeta)}
}

func (c *MetaCache) Get(address common.Address) (model.EngineMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.items[address]
	return meta, ok
}

func (c *MetaCache) Set(address common.Address, meta model.EngineMeta) {
	c.mu.Lock()
	c.items[address] = meta
	c.mu.Unlock()
}

// Decoder turns journal records back into typed events.
type Decoder struct {
	engineABI   abi.ABI
	topicToName map[string]string
	meta        *MetaCache
}

// NewDecoder builds a decoder. meta may be nil.
func NewDecoder(meta *MetaCache) (*Decoder, error) {
	engineABI, err := EngineABI()
	if err != nil {
		return nil, err
	}
	topicToName := make(map[string]string, len(engineABI.Events))
	for name, event := range engineABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}
	return &Decoder{engineABI: engineABI, topicToName: topicToName, meta: meta}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}

	event := d.engineABI.Events[name]
	topics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}

	var decoded interface{}
	switch name {
	case EventMint, EventBurn:
		decoded, err = decodeLiquidity(name, topics, values)
	case EventSwap:
		decoded, err = decodeSwap(topics, values)
	case EventSync:
		decoded, err = decodeSync(values)
	case EventRegisteredTrade:
		decoded, err = decodeRegisteredTrade(values)
	case EventChequeCashed:
		decoded, err = decodeChequeCashed(topics, values)
	default:
		err = fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}

	typed := &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}
	if d.meta != nil {
		if meta, ok := d.meta.Get(common.HexToAddress(log.Address)); ok {
			typed.Engine = &meta
		}
	}
	return typed, nil
}

func decodeLiquidity(name string, topics []common.Hash, values []interface{}) (interface{}, error) {
	if len(topics) != 1 || len(values) != 3 {
		return nil, fmt.Errorf("unexpected %s layout: %d topics, %d values", name, len(topics), len(values))
	}
	amounts, err := bigStrings(values)
	if err != nil {
		return nil, err
	}
	actor := common.BytesToAddress(topics[0].Bytes()).Hex()
	if name == EventMint {
		return model.MintEventData{Actor: actor, AmountBase: amounts[0], AmountQuote: amounts[1], Shares: amounts[2]}, nil
	}
	return model.BurnEventData{Actor: actor, AmountBase: amounts[0], AmountQuote: amounts[1], Shares: amounts[2]}, nil
}

func decodeSwap(topics []common.Hash, values []interface{}) (model.SwapEventData, error) {
	if len(topics) != 2 || len(values) != 4 {
		return model.SwapEventData{}, fmt.Errorf("unexpected swap layout: %d topics, %d values", len(topics), len(values))
	}
	assetIn, err := asAddress(values[0])
	if err != nil {
		return model.SwapEventData{}, err
	}
	amountIn, err := asBigInt(values[1])
	if err != nil {
		return model.SwapEventData{}, err
	}
	assetOut, err := asAddress(values[2])
	if err != nil {
		return model.SwapEventData{}, err
	}
	amountOut, err := asBigInt(values[3])
	if err != nil {
		return model.SwapEventData{}, err
	}
	return model.SwapEventData{
		Actor:     common.BytesToAddress(topics[0].Bytes()).Hex(),
		AssetIn:   assetIn.Hex(),
		AmountIn:  amountIn.String(),
		AssetOut:  assetOut.Hex(),
		AmountOut: amountOut.String(),
		Recipient: common.BytesToAddress(topics[1].Bytes()).Hex(),
	}, nil
}

func decodeSync(values []interface{}) (model.SyncEventData, error) {
	amounts, err := bigStrings(values)
	if err != nil {
		return model.SyncEventData{}, err
	}
	if len(amounts) != 2 {
		return model.SyncEventData{}, fmt.Errorf("unexpected sync values: %d", len(amounts))
	}
	return model.SyncEventData{ReserveBase: amounts[0], ReserveQuote: amounts[1]}, nil
}

func decodeRegisteredTrade(values []interface{}) (model.RegisteredTradeEventData, error) {
	amounts, err := bigStrings(values)
	if err != nil {
		return model.RegisteredTradeEventData{}, err
	}
	if len(amounts) != 2 {
		return model.RegisteredTradeEventData{}, fmt.Errorf("unexpected trade values: %d", len(amounts))
	}
	return model.RegisteredTradeEventData{Spent: amounts[0], Bought: amounts[1]}, nil
}

func decodeChequeCashed(topics []common.Hash, values []interface{}) (model.ChequeCashedEventData, error) {
	if len(topics) != 2 {
		return model.ChequeCashedEventData{}, fmt.Errorf("unexpected cheque topics: %d", len(topics))
	}
	amounts, err := bigStrings(values)
	if err != nil {
		return model.ChequeCashedEventData{}, err
	}
	if len(amounts) != 2 {
		return model.ChequeCashedEventData{}, fmt.Errorf("unexpected cheque values: %d", len(amounts))
	}
	return model.ChequeCashedEventData{
		Owner:   common.BytesToAddress(topics[0].Bytes()).Hex(),
		Spender: common.BytesToAddress(topics[1].Bytes()).Hex(),
		Value:   amounts[0],
		Fee:     amounts[1],
	}, nil
}

func bigStrings(values []interface{}) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, value := range values {
		v, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out = append(out, v.String())
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
