/*
File Name:  Config.go

Configuration for the crawl engine and the reference orchestrator
built on top of it. Loading follows the teacher's pattern: an embedded
default is used when the file is missing or empty, otherwise the file
on disk is parsed as YAML.
*/

package core

import (
	_ "embed" // required for embedding the default config
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the current library version.
const Version = "0.1"

//go:embed "Config Default.yaml"
var defaultConfig []byte

// Config holds every parameter the external orchestrator supplies to
// a crawl, plus the settings for this repo's reference
// implementations of the external collaborators (store, geoip,
// seeds, webapi). The core crawl engine itself only consumes
// MaxNodes/MaxConcurrent/Timeout/NetworkMagic; the rest configures
// the concrete Sink/Geolocator/SeedSource/webapi wiring in cmd/crawld.
type Config struct {
	LogFile string `yaml:"LogFile"`

	MaxNodes      int           `yaml:"MaxNodes"`
	MaxConcurrent int           `yaml:"MaxConcurrent"`
	Timeout       time.Duration `yaml:"Timeout"`
	NetworkMagic  string        `yaml:"NetworkMagic"` // "mainnet", "testnet", or "regtest"

	SeedDNS      []string `yaml:"SeedDNS"`
	SeedSnapshot string   `yaml:"SeedSnapshot"` // optional HTTP endpoint, empty disables it

	StorePath    string `yaml:"StorePath"`
	GeoIPDBPath  string `yaml:"GeoIPDBPath"`
	IdentityPath string `yaml:"IdentityPath"`
	BatchPath    string `yaml:"BatchPath"` // signed batch envelope, rewritten after every crawl
	StaticDir    string `yaml:"StaticDir"` // served at /files/ by the webapi's local file server

	WebapiListen []string `yaml:"WebapiListen"`
}

// LoadConfig reads the YAML configuration file at filename. If the
// file does not exist or is empty, the embedded default is used
// instead. The returned status is one of the ExitX constants; only
// ExitSuccess indicates the config is usable.
func LoadConfig(filename string) (cfg *Config, status int, err error) {
	var data []byte

	stats, statErr := os.Stat(filename)
	switch {
	case statErr != nil && os.IsNotExist(statErr):
		data = defaultConfig
	case statErr != nil:
		return nil, ExitErrorConfigAccess, statErr
	case stats.Size() == 0:
		data = defaultConfig
	default:
		if data, err = os.ReadFile(filename); err != nil {
			return nil, ExitErrorConfigRead, err
		}
	}

	cfg = &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, ExitErrorConfigParse, err
	}

	cfg.applyDefaults()

	return cfg, ExitSuccess, nil
}

// applyDefaults fills in zero-valued fields with the spec's stated
// defaults (spec.md §4.2/§4.3).
func (cfg *Config) applyDefaults() {
	if cfg.MaxNodes == 0 {
		cfg.MaxNodes = 1000
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.NetworkMagic == "" {
		cfg.NetworkMagic = "mainnet"
	}
	if cfg.BatchPath == "" {
		cfg.BatchPath = "batch.json"
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "static"
	}
}

// Save writes cfg back to filename as YAML, mirroring the teacher's
// saveConfig. It is exposed for cmd/crawld's config-init path.
func (cfg *Config) Save(filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
