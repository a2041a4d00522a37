// Package config loads the postsd configuration.
//
// Settings come from a JSON file,
// then from POSTS_* environment variables,
// which may themselves come from .env files.
// The content and ledger sections are maps with a "type" key,
// handed as-is to the content and ledger registries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// DefaultFile is the config file postsd reads when none is named.
const DefaultFile = "postsd.json"

// Config is the postsd configuration.
type Config struct {
	Listen string `json:"listen"`

	// Content configures the content store.
	Content map[string]interface{} `json:"content"`

	// Ledger configures the ledger.
	// A nil Ledger, or one with type "none", runs the service in content-only mode.
	Ledger map[string]interface{} `json:"ledger"`

	FinalityTimeout Duration `json:"finality_timeout"`
	FetchTimeout    Duration `json:"fetch_timeout"`
	MaxInFlight     int      `json:"max_in_flight"`
	CacheSize       int      `json:"cache_size"`

	// ConnectTimeout bounds the retries of an unreachable ledger at startup.
	// Zero means a single attempt.
	ConnectTimeout Duration `json:"connect_timeout"`

	CORSOrigins []string `json:"cors_origins"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`
}

// Default is the configuration of a local development setup:
// an IPFS node and an Ethereum node on their usual ports.
func Default() *Config {
	return &Config{
		Listen: ":3001",
		Content: map[string]interface{}{
			"type": "ipfs",
			"url":  "http://127.0.0.1:5001",
		},
		Ledger: map[string]interface{}{
			"type": "eth",
			"url":  "http://127.0.0.1:8545",
			"info": "contract-info.json",
		},
		FinalityTimeout: Duration{60 * time.Second},
		FetchTimeout:    Duration{5 * time.Second},
		ConnectTimeout:  Duration{30 * time.Second},
		MaxInFlight:     8,
		LogLevel:        "info",
	}
}

// Duration is a time.Duration written in JSON as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler.
// It also accepts a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parsing duration %q", v)
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
	default:
		return fmt.Errorf("bad duration %s", b)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads the config file at path over the defaults
// and applies environment overrides.
// A missing file at DefaultFile is not an error.
func Load(path string) (*Config, error) {
	conf := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case os.IsNotExist(err) && filepath.Clean(path) == DefaultFile:
		case err != nil:
			return nil, errors.Wrapf(err, "opening config file %s", path)
		default:
			defer f.Close()
			content, ledger := conf.Content, conf.Ledger
			conf.Content, conf.Ledger = nil, nil
			if err := json.NewDecoder(f).Decode(conf); err != nil {
				return nil, errors.Wrapf(err, "decoding config file %s", path)
			}
			if conf.Content == nil {
				conf.Content = content
			}
			if conf.Ledger == nil {
				conf.Ledger = ledger
			}
		}
	}

	if err := conf.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return conf, conf.Validate()
}

// ApplyEnv overrides conf from POSTS_* variables found by lookup.
func (conf *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("POSTS_LISTEN"); ok {
		conf.Listen = v
	}
	if v, ok := lookup("POSTS_CONTENT_TYPE"); ok {
		conf.Content = map[string]interface{}{"type": v}
	}
	if v, ok := lookup("POSTS_IPFS_URL"); ok {
		conf.setContent("url", v)
	}
	if v, ok := lookup("POSTS_CONTENT_DSN"); ok {
		conf.setContent("conn", v)
	}
	if v, ok := lookup("POSTS_CONTENT_ROOT"); ok {
		conf.setContent("root", v)
	}
	if v, ok := lookup("POSTS_LEDGER_TYPE"); ok {
		if v == "" || v == "none" {
			conf.Ledger = nil
		} else {
			conf.Ledger = map[string]interface{}{"type": v}
		}
	}
	if v, ok := lookup("POSTS_LEDGER_URL"); ok {
		conf.setLedger("url", v)
	}
	if v, ok := lookup("POSTS_LEDGER_KEY"); ok {
		conf.setLedger("key", v)
	}
	if v, ok := lookup("POSTS_LEDGER_INFO"); ok {
		conf.setLedger("info", v)
	}
	if v, ok := lookup("POSTS_FINALITY_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parsing POSTS_FINALITY_TIMEOUT")
		}
		conf.FinalityTimeout = Duration{d}
	}
	if v, ok := lookup("POSTS_FETCH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parsing POSTS_FETCH_TIMEOUT")
		}
		conf.FetchTimeout = Duration{d}
	}
	if v, ok := lookup("POSTS_CONNECT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parsing POSTS_CONNECT_TIMEOUT")
		}
		conf.ConnectTimeout = Duration{d}
	}
	if v, ok := lookup("POSTS_MAX_IN_FLIGHT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parsing POSTS_MAX_IN_FLIGHT")
		}
		conf.MaxInFlight = n
	}
	if v, ok := lookup("POSTS_LOG_LEVEL"); ok {
		conf.LogLevel = v
	}
	if v, ok := lookup("POSTS_LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "parsing POSTS_LOG_JSON")
		}
		conf.LogJSON = b
	}
	return nil
}

func (conf *Config) setContent(key, val string) {
	if conf.Content == nil {
		conf.Content = make(map[string]interface{})
	}
	conf.Content[key] = val
}

func (conf *Config) setLedger(key, val string) {
	if conf.Ledger == nil {
		return
	}
	conf.Ledger[key] = val
}

// LedgerEnabled tells whether a ledger is configured.
func (conf *Config) LedgerEnabled() bool {
	if conf.Ledger == nil {
		return false
	}
	typ, _ := conf.Ledger["type"].(string)
	return typ != "" && typ != "none"
}

// Validate checks conf for missing or out-of-range settings.
func (conf *Config) Validate() error {
	if typ, _ := conf.Content["type"].(string); typ == "" {
		return errors.New(`content section missing "type"`)
	}
	if conf.MaxInFlight < 0 {
		return fmt.Errorf("max_in_flight %d is negative", conf.MaxInFlight)
	}
	if conf.FinalityTimeout.Duration < 0 || conf.FetchTimeout.Duration < 0 || conf.ConnectTimeout.Duration < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// LoadDotEnv loads .env files from dir into the environment,
// without overriding variables that are already set.
// Earlier files take precedence:
// .env.<POSTS_ENV>.local, .env.local, .env.<POSTS_ENV>, .env.
// POSTS_ENV defaults to "development".
// Missing files are skipped.
func LoadDotEnv(dir string) error {
	env := os.Getenv("POSTS_ENV")
	if env == "" {
		env = "development"
	}
	for _, name := range []string{".env." + env + ".local", ".env.local", ".env." + env, ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "loading %s", path)
		}
	}
	return nil
}
