// Package appconfig loads the engine's static defaults (segment
// duration, fingerprint threshold, worker count, cache directory
// override) from an optional TOML file plus environment variables.
// This is distinct from internal/ledger's SQLite-backed run history:
// one is read-mostly process configuration, the other is write-mostly
// batch history.
package appconfig

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults holds the engine-wide defaults a batch run falls back to
// when the CLI/bridge caller does not override them explicitly.
type Defaults struct {
	SegmentDurationSec   float64 `koanf:"segment_duration_sec"`
	FingerprintThreshold float64 `koanf:"fingerprint_threshold"`
	Workers              int     `koanf:"workers"`
	CacheDir             string  `koanf:"cache_dir"`
}

const envPrefix = "AUDIOSYNC_"

// Load reads engine defaults from (in increasing priority) built-in
// defaults, an optional TOML file at path (skipped silently if path is
// empty or the file does not exist), and AUDIOSYNC_*-prefixed
// environment variables. A .env file in the working directory, if
// present, is loaded into the process environment first so its values
// participate in the env provider pass.
func Load(path string) (Defaults, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	k := koanf.New(".")

	defaults := map[string]any{
		"segment_duration_sec":  300.0,
		"fingerprint_threshold": 0.7,
		"workers":               0, // 0 means "runtime.GOMAXPROCS(0)"
		"cache_dir":             "",
	}
	if err := k.Load(confMapProvider(defaults), nil); err != nil {
		return Defaults{}, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			// A missing or unreadable file is not fatal: engine defaults
			// plus environment still apply.
			_ = err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Defaults{}, err
	}

	var d Defaults
	if err := k.Unmarshal("", &d); err != nil {
		return Defaults{}, err
	}
	return d, nil
}

// confMapProvider adapts a plain map into koanf's Provider interface
// without pulling in the confmap sub-package as a separate import.
type mapProvider map[string]any

func confMapProvider(m map[string]any) mapProvider { return mapProvider(m) }

func (m mapProvider) ReadBytes() ([]byte, error) { return nil, nil }

func (m mapProvider) Read() (map[string]any, error) { return map[string]any(m), nil }
