package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	In         string
	Out        string
	Errors     string
	LogLevel   string
	EngineKind map[string]string
	EngineBase map[string]string

	Window         uint64
	WindowsOut     string
	FeePerThousand uint64
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
// engine-kind maps emitter addresses to an engine kind (pool, fund, cheque);
// engine-base maps pool addresses to their base asset for window volumes.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v := newViper()

	v.SetDefault("out", "./data/typed_events.jsonl")
	v.SetDefault("errors", "./data/decode_errors.jsonl")
	v.SetDefault("log-level", "info")
	v.SetDefault("windows-out", "./data/windows.jsonl")
	v.SetDefault("fee-per-thousand", 3)

	if err := read(v, cfgFile, flags); err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		In:         v.GetString("in"),
		Out:        v.GetString("out"),
		Errors:     v.GetString("errors"),
		LogLevel:   v.GetString("log-level"),
		EngineKind: getStringMap(v, "engine-kind"),
		EngineBase: getStringMap(v, "engine-base"),

		Window:         v.GetUint64("window"),
		WindowsOut:     v.GetString("windows-out"),
		FeePerThousand: v.GetUint64("fee-per-thousand"),
	}
	if cfg.FeePerThousand > 1000 {
		return DecodeConfig{}, fmt.Errorf("fee-per-thousand must be at most 1000")
	}

	return cfg, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
