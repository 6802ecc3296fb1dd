package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `json:"log_level" yaml:"log_level"`
	Backend  BackendConfig  `json:"backend" yaml:"backend"`
	Regions  []string       `json:"regions" yaml:"regions"`
	Airlines []string       `json:"airlines" yaml:"airlines"`
	Classify ClassifyConfig `json:"classify" yaml:"classify"`
	Feed     FeedConfig     `json:"feed" yaml:"feed"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	API      APIConfig      `json:"api" yaml:"api"`
}

type BackendConfig struct {
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	ProbeRegion  string        `json:"probe_region" yaml:"probe_region"`
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
}

// ClassifyConfig carries every band and anomaly threshold. Band edges and
// anomaly bounds are separate rule sets over the same raw fields, not a
// layered refinement of one set, so each is configured on its own.
type ClassifyConfig struct {
	Altitude AltitudeBandsConfig    `json:"altitude" yaml:"altitude"`
	Speed    SpeedBandsConfig       `json:"speed" yaml:"speed"`
	Trend    TrendConfig            `json:"trend" yaml:"trend"`
	Anomaly  AnomalyThresholdConfig `json:"anomaly" yaml:"anomaly"`
}

// AltitudeBandsConfig holds half-open band ceilings in feet, evaluated low
// to high: the first ceiling above the truncated value names the band.
type AltitudeBandsConfig struct {
	LowCeiling        float64 `json:"low_ceiling" yaml:"low_ceiling"`
	TransitionCeiling float64 `json:"transition_ceiling" yaml:"transition_ceiling"`
	CruiseCeiling     float64 `json:"cruise_ceiling" yaml:"cruise_ceiling"`
	HighCeiling       float64 `json:"high_ceiling" yaml:"high_ceiling"`
}

type SpeedBandsConfig struct {
	SlowCeiling   float64 `json:"slow_ceiling" yaml:"slow_ceiling"`
	NormalCeiling float64 `json:"normal_ceiling" yaml:"normal_ceiling"`
	FastCeiling   float64 `json:"fast_ceiling" yaml:"fast_ceiling"`
}

type TrendConfig struct {
	// Rate is the ft/min magnitude above which a climb or descent is shown.
	Rate float64 `json:"rate" yaml:"rate"`
}

type AnomalyThresholdConfig struct {
	AltitudeHigh float64 `json:"altitude_high" yaml:"altitude_high"`
	AltitudeLow  float64 `json:"altitude_low" yaml:"altitude_low"`
	SpeedHigh    float64 `json:"speed_high" yaml:"speed_high"`
	SpeedLow     float64 `json:"speed_low" yaml:"speed_low"`
	VerticalRate float64 `json:"vertical_rate" yaml:"vertical_rate"`
}

type FeedConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// Wildcard is the airline filter sentinel matching every callsign.
const Wildcard = "ALL"

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Backend: BackendConfig{
			BaseURL:      "http://localhost:8000",
			ProbeRegion:  "region1",
			ProbeTimeout: 2 * time.Second,
			FetchTimeout: 5 * time.Second,
		},
		Regions:  []string{"region1", "region2", "region3", "region4"},
		Airlines: []string{Wildcard, "QTR", "PIA", "THY", "DLH", "BAW", "UAE", "AIC", "ROT", "WZZ"},
		Classify: ClassifyConfig{
			Altitude: AltitudeBandsConfig{
				LowCeiling:        10000,
				TransitionCeiling: 18000,
				CruiseCeiling:     35000,
				HighCeiling:       45000,
			},
			Speed: SpeedBandsConfig{
				SlowCeiling:   200,
				NormalCeiling: 300,
				FastCeiling:   450,
			},
			Trend: TrendConfig{Rate: 500},
			Anomaly: AnomalyThresholdConfig{
				AltitudeHigh: 40000,
				AltitudeLow:  10000,
				SpeedHigh:    500,
				SpeedLow:     200,
				VerticalRate: 2000,
			},
		},
		Feed:    FeedConfig{Kafka: KafkaConfig{Enabled: false}},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:airwatch.db?_pragma=busy_timeout(5000)"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = def.Backend.BaseURL
	}
	if cfg.Backend.ProbeTimeout <= 0 {
		cfg.Backend.ProbeTimeout = def.Backend.ProbeTimeout
	}
	if cfg.Backend.FetchTimeout <= 0 {
		cfg.Backend.FetchTimeout = def.Backend.FetchTimeout
	}
	if len(cfg.Regions) == 0 {
		cfg.Regions = def.Regions
	}
	if cfg.Backend.ProbeRegion == "" {
		cfg.Backend.ProbeRegion = cfg.Regions[0]
	}
	if len(cfg.Airlines) == 0 {
		cfg.Airlines = def.Airlines
	}
	z := ClassifyConfig{}
	if cfg.Classify.Altitude == z.Altitude {
		cfg.Classify.Altitude = def.Classify.Altitude
	}
	if cfg.Classify.Speed == z.Speed {
		cfg.Classify.Speed = def.Classify.Speed
	}
	if cfg.Classify.Trend.Rate <= 0 {
		cfg.Classify.Trend.Rate = def.Classify.Trend.Rate
	}
	if cfg.Classify.Anomaly == z.Anomaly {
		cfg.Classify.Anomaly = def.Classify.Anomaly
	}
}

func Validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if !containsFold(cfg.Regions, cfg.Backend.ProbeRegion) {
		return fmt.Errorf("backend.probe_region %q is not in regions", cfg.Backend.ProbeRegion)
	}
	for _, code := range cfg.Airlines {
		c := strings.TrimSpace(code)
		if c == "" {
			return errors.New("airlines contains an empty code")
		}
		if !strings.EqualFold(c, Wildcard) && len(c) != 3 {
			return fmt.Errorf("airline code %q must be 3 letters or the %s wildcard", code, Wildcard)
		}
	}
	alt := cfg.Classify.Altitude
	if !(alt.LowCeiling < alt.TransitionCeiling && alt.TransitionCeiling < alt.CruiseCeiling && alt.CruiseCeiling < alt.HighCeiling) {
		return errors.New("classify.altitude ceilings must be strictly increasing")
	}
	spd := cfg.Classify.Speed
	if !(spd.SlowCeiling < spd.NormalCeiling && spd.NormalCeiling < spd.FastCeiling) {
		return errors.New("classify.speed ceilings must be strictly increasing")
	}
	an := cfg.Classify.Anomaly
	if an.AltitudeLow >= an.AltitudeHigh {
		return errors.New("classify.anomaly.altitude_low must be below altitude_high")
	}
	if an.SpeedLow >= an.SpeedHigh {
		return errors.New("classify.anomaly.speed_low must be below speed_high")
	}
	if an.VerticalRate <= 0 {
		return errors.New("classify.anomaly.vertical_rate must be > 0")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Feed.Kafka.Enabled {
		if len(cfg.Feed.Kafka.Brokers) == 0 || cfg.Feed.Kafka.Topic == "" || cfg.Feed.Kafka.GroupID == "" {
			return errors.New("feed.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Enabled && cfg.Storage.Driver == "" {
		return errors.New("storage.driver required when storage.enabled is true")
	}
	return nil
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file. Reload and
// Watch are no-ops for it.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
