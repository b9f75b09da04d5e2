// Package metrics exposes Prometheus collectors for engine calls.
package metrics

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Operations     *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	Reserves       *prometheus.GaugeVec
	JournalFlushes *prometheus.CounterVec
}

// New builds the collectors and registers them with reg. A nil reg skips
// registration.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "dexfund"
	}
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine entry point calls by outcome",
		}, []string{"engine", "op", "status"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rejections_total",
			Help:      "Rejected engine calls by error class",
		}, []string{"engine", "op", "reason"}),
		Reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reserve",
			Help:      "Last synced reserve per engine and side",
		}, []string{"engine", "side"}),
		JournalFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "flushes_total",
			Help:      "Journal flushes to the configured sink by outcome",
		}, []string{"status"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.Operations, err = register(reg, m.Operations); err != nil {
		return nil, err
	}
	if m.Rejections, err = register(reg, m.Rejections); err != nil {
		return nil, err
	}
	if m.Reserves, err = register(reg, m.Reserves); err != nil {
		return nil, err
	}
	if m.JournalFlushes, err = register(reg, m.JournalFlushes); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the already registered collector when c is a duplicate.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe counts an engine call. reason classifies rejections and is only
// used when err is non-nil.
func (m *Metrics) Observe(engine, op string, err error, reason string) {
	if m == nil {
		return
	}
	if err == nil {
		m.Operations.WithLabelValues(engine, op, "ok").Inc()
		return
	}
	m.Operations.WithLabelValues(engine, op, "error").Inc()
	if reason == "" {
		reason = "other"
	}
	m.Rejections.WithLabelValues(engine, op, reason).Inc()
}

// SetReserves publishes an engine's reserves as float gauges.
func (m *Metrics) SetReserves(engine string, base, quote *uint256.Int) {
	if m == nil {
		return
	}
	m.Reserves.WithLabelValues(engine, "base").Set(toFloat(base))
	m.Reserves.WithLabelValues(engine, "quote").Set(toFloat(quote))
}

// ObserveFlush counts a journal flush.
func (m *Metrics) ObserveFlush(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JournalFlushes.WithLabelValues(status).Inc()
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	if v.IsUint64() {
		return float64(v.Uint64())
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
