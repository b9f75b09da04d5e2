package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"dexFund/internal/model"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds  uint64
	FeePerThousand uint64
}

// Aggregator buckets pool events into fixed windows per engine. Events from
// unknown emitters or other engine kinds are ignored.
type Aggregator struct {
	cfg     Config
	windows map[windowKey]*Accumulator
}

type windowKey struct {
	engine string
	start  uint64
}

func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.WindowSeconds == 0 {
		return nil, fmt.Errorf("window must be greater than zero")
	}
	return &Aggregator{cfg: cfg, windows: make(map[windowKey]*Accumulator)}, nil
}

// Add folds one decoded event into its window.
func (a *Aggregator) Add(event *model.TypedEvent) error {
	if event == nil || event.Engine == nil || event.Engine.Kind != "pool" {
		return nil
	}
	start := event.Timestamp - event.Timestamp%a.cfg.WindowSeconds
	key := windowKey{engine: strings.ToLower(event.Address), start: start}
	acc, ok := a.windows[key]
	if !ok {
		acc = NewAccumulator(event, start, start+a.cfg.WindowSeconds)
		a.windows[key] = acc
	}
	if err := acc.AddEvent(event, a.cfg.FeePerThousand); err != nil {
		return fmt.Errorf("window %d %s: %w", start, event.Address, err)
	}
	return nil
}

// Windows returns every window ordered by engine and start.
func (a *Aggregator) Windows() []model.WindowMetrics {
	keys := make([]windowKey, 0, len(a.windows))
	for k := range a.windows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].engine != keys[j].engine {
			return keys[i].engine < keys[j].engine
		}
		return keys[i].start < keys[j].start
	})
	out := make([]model.WindowMetrics, 0, len(keys))
	for _, k := range keys {
		out = append(out, a.windows[k].Metrics())
	}
	return out
}
