package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "DEXFUND"

// SimulateConfig holds configuration values for the simulate command.
type SimulateConfig struct {
	In                   string
	Out                  string
	Append               bool
	PgDSN                string
	PgTimeout            time.Duration
	RunName              string
	FlushEvery           int
	MaxRetries           int
	RetryBackoff         time.Duration
	StopOnError          bool
	ChainID              uint64
	StartTime            uint64
	BaseSymbol           string
	QuoteSymbol          string
	FeeMultiplier        uint64
	MinLiquidity         string
	MaxLiquidity         string
	ChequeFeePerThousand uint64
	DeadlineWindow       uint64
	MetricsOut           string
	LogLevel             string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v := newViper()

	v.SetDefault("out", "./data/events.jsonl")
	v.SetDefault("append", false)
	v.SetDefault("pg-timeout", 10*time.Second)
	v.SetDefault("run-name", "default")
	v.SetDefault("flush-every", 100)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("chain-id", uint64(56))
	v.SetDefault("start-time", uint64(1_700_000_000))
	v.SetDefault("base-symbol", "WBNB")
	v.SetDefault("quote-symbol", "ADNS")
	v.SetDefault("fee-multiplier", uint64(997))
	v.SetDefault("cheque-fee", uint64(10))
	v.SetDefault("deadline-window", uint64(300))
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		In:                   v.GetString("in"),
		Out:                  v.GetString("out"),
		Append:               v.GetBool("append"),
		PgDSN:                v.GetString("pg-dsn"),
		PgTimeout:            v.GetDuration("pg-timeout"),
		RunName:              v.GetString("run-name"),
		FlushEvery:           v.GetInt("flush-every"),
		MaxRetries:           v.GetInt("max-retries"),
		RetryBackoff:         v.GetDuration("retry-backoff"),
		StopOnError:          v.GetBool("stop-on-error"),
		ChainID:              v.GetUint64("chain-id"),
		StartTime:            v.GetUint64("start-time"),
		BaseSymbol:           v.GetString("base-symbol"),
		QuoteSymbol:          v.GetString("quote-symbol"),
		FeeMultiplier:        v.GetUint64("fee-multiplier"),
		MinLiquidity:         v.GetString("min-liquidity"),
		MaxLiquidity:         v.GetString("max-liquidity"),
		ChequeFeePerThousand: v.GetUint64("cheque-fee"),
		DeadlineWindow:       v.GetUint64("deadline-window"),
		MetricsOut:           v.GetString("metrics-out"),
		LogLevel:             v.GetString("log-level"),
	}

	return cfg, nil
}

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	ReserveIn     string
	ReserveOut    string
	Amount        string
	FeeMultiplier uint64
	Decimals      int32
	ExactOut      bool
	LogLevel      string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v := newViper()

	v.SetDefault("fee-multiplier", uint64(997))
	v.SetDefault("decimals", 18)
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		ReserveIn:     v.GetString("reserve-in"),
		ReserveOut:    v.GetString("reserve-out"),
		Amount:        v.GetString("amount"),
		FeeMultiplier: v.GetUint64("fee-multiplier"),
		Decimals:      v.GetInt32("decimals"),
		ExactOut:      v.GetBool("exact-out"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}
	return nil
}
