package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the configuration of a namespace cache process.
type Config struct {
	// Log related config.
	Log log.Config `toml:"log" json:"log"`

	Cache  CacheConfig  `toml:"cache" json:"cache"`
	Stress StressConfig `toml:"stress" json:"stress"`

	// For all warnings during parsing.
	WarningMsgs []string `toml:"-" json:"-"`

	logger   *zap.Logger
	logProps *log.ZapProperties
}

// CacheConfig configures the namespace cache and its prune worker.
type CacheConfig struct {
	// Busy iterations of the lock before the goroutine yields the processor.
	SpinsBeforeYield int `toml:"spins-before-yield" json:"spins-before-yield"`
	// Degree of the btrees backing the cache state.
	BTreeDegree int `toml:"btree-degree" json:"btree-degree"`
	// Publish cache sizes and commit latencies to prometheus.
	EnableMetrics bool `toml:"enable-metrics" json:"enable-metrics"`
	// Number of heights the prune worker can queue.
	PruneQueueCapacity int `toml:"prune-queue-capacity" json:"prune-queue-capacity"`
}

// StressConfig configures the concurrency stress harness.
type StressConfig struct {
	Readers         int      `toml:"readers" json:"readers"`
	Roots           int      `toml:"roots" json:"roots"`
	ChildrenPerRoot int      `toml:"children-per-root" json:"children-per-root"`
	Heights         uint64   `toml:"heights" json:"heights"`
	RenewInterval   uint64   `toml:"renew-interval" json:"renew-interval"`
	Lifetime        uint64   `toml:"lifetime" json:"lifetime"`
	Seed            int64    `toml:"seed" json:"seed"`
	Duration        Duration `toml:"duration" json:"duration"`
	// BlocksPerSecond throttles the writer, 0 means unlimited.
	BlocksPerSecond float64  `toml:"blocks-per-second" json:"blocks-per-second"`
}

const (
	defaultSpinsBeforeYield   = 64
	defaultBTreeDegree        = 32
	defaultPruneQueueCapacity = 128

	defaultReaders         = 4
	defaultRoots           = 64
	defaultChildrenPerRoot = 4
	defaultHeights         = 1000
	defaultRenewInterval   = 7
	defaultLifetime        = 20
	defaultDuration        = 10 * time.Second

	defaultLogLevel = "info"
)

// NewDefaultConfig returns the configuration used by the stress command when no file is given.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Log.Level = getLogLevel()
	cfg.Cache = CacheConfig{
		SpinsBeforeYield:   defaultSpinsBeforeYield,
		BTreeDegree:        defaultBTreeDegree,
		EnableMetrics:      true,
		PruneQueueCapacity: defaultPruneQueueCapacity,
	}
	cfg.Stress = StressConfig{
		Readers:         defaultReaders,
		Roots:           defaultRoots,
		ChildrenPerRoot: defaultChildrenPerRoot,
		Heights:         defaultHeights,
		RenewInterval:   defaultRenewInterval,
		Lifetime:        defaultLifetime,
		Seed:            1,
		Duration:        NewDuration(defaultDuration),
	}
	return cfg
}

// NewTestConfig returns a small configuration for unit tests.
func NewTestConfig() *Config {
	cfg := &Config{}
	cfg.Log.Level = getLogLevel()
	cfg.Cache = CacheConfig{
		SpinsBeforeYield:   8,
		BTreeDegree:        4,
		EnableMetrics:      false,
		PruneQueueCapacity: 16,
	}
	cfg.Stress = StressConfig{
		Readers:         4,
		Roots:           8,
		ChildrenPerRoot: 3,
		Heights:         60,
		RenewInterval:   3,
		Lifetime:        8,
		Seed:            1,
		Duration:        NewDuration(5 * time.Second),
	}
	return cfg
}

func getLogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		return l
	}
	return defaultLogLevel
}

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustInt(v *int, defValue int) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustUint64(v *uint64, defValue uint64) {
	if *v == 0 {
		*v = defValue
	}
}

func adjustDuration(v *Duration, defValue time.Duration) {
	if v.Duration == 0 {
		v.Duration = defValue
	}
}

// LoadFromFile decodes path into a new config and fills in defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := cfg.configFromFile(path)
	if err != nil {
		return nil, err
	}
	if err = cfg.Adjust(meta); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configFromFile loads config from file.
func (c *Config) configFromFile(path string) (*toml.MetaData, error) {
	meta, err := toml.DecodeFile(path, c)
	return &meta, errors.WithStack(err)
}

// Utility to test if a configuration is defined.
type configMetaData struct {
	meta *toml.MetaData
	path []string
}

func newConfigMetadata(meta *toml.MetaData) *configMetaData {
	return &configMetaData{meta: meta}
}

func (m *configMetaData) IsDefined(key string) bool {
	if m.meta == nil {
		return false
	}
	keys := append([]string(nil), m.path...)
	keys = append(keys, key)
	return m.meta.IsDefined(keys...)
}

func (m *configMetaData) Child(path ...string) *configMetaData {
	newPath := append([]string(nil), m.path...)
	newPath = append(newPath, path...)
	return &configMetaData{
		meta: m.meta,
		path: newPath,
	}
}

func (m *configMetaData) CheckUndecoded() error {
	if m.meta == nil {
		return nil
	}
	undecoded := m.meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	errInfo := "Config contains undefined item: "
	for _, key := range undecoded {
		errInfo += key.String() + ", "
	}
	return errors.New(errInfo[:len(errInfo)-2])
}

// Adjust fills every field left undefined with its default value.
func (c *Config) Adjust(meta *toml.MetaData) error {
	configMetaData := newConfigMetadata(meta)
	if err := configMetaData.CheckUndecoded(); err != nil {
		c.WarningMsgs = append(c.WarningMsgs, err.Error())
	}

	adjustString(&c.Log.Level, getLogLevel())
	c.Cache.adjust(configMetaData.Child("cache"))
	c.Stress.adjust()
	return c.Validate()
}

func (c *CacheConfig) adjust(meta *configMetaData) {
	adjustInt(&c.SpinsBeforeYield, defaultSpinsBeforeYield)
	adjustInt(&c.BTreeDegree, defaultBTreeDegree)
	adjustInt(&c.PruneQueueCapacity, defaultPruneQueueCapacity)
	if !meta.IsDefined("enable-metrics") {
		c.EnableMetrics = true
	}
}

func (c *StressConfig) adjust() {
	adjustInt(&c.Readers, defaultReaders)
	adjustInt(&c.Roots, defaultRoots)
	adjustInt(&c.ChildrenPerRoot, defaultChildrenPerRoot)
	adjustUint64(&c.Heights, defaultHeights)
	adjustUint64(&c.RenewInterval, defaultRenewInterval)
	adjustUint64(&c.Lifetime, defaultLifetime)
	adjustDuration(&c.Duration, defaultDuration)
}

// Validate is used to validate if some configurations are right.
func (c *Config) Validate() error {
	if c.Cache.SpinsBeforeYield <= 0 {
		return errors.Errorf("spins-before-yield must be greater than 0, got %d", c.Cache.SpinsBeforeYield)
	}
	if c.Cache.BTreeDegree < 2 {
		return errors.Errorf("btree-degree must be at least 2, got %d", c.Cache.BTreeDegree)
	}
	if c.Cache.PruneQueueCapacity <= 0 {
		return errors.Errorf("prune-queue-capacity must be greater than 0, got %d", c.Cache.PruneQueueCapacity)
	}
	if c.Stress.Readers <= 0 || c.Stress.Roots <= 0 {
		return errors.New("stress readers and roots must be greater than 0")
	}
	if c.Stress.ChildrenPerRoot < 0 {
		return errors.Errorf("children-per-root must not be negative, got %d", c.Stress.ChildrenPerRoot)
	}
	if c.Stress.Lifetime <= c.Stress.RenewInterval {
		return errors.Errorf("lifetime %d must be greater than renew-interval %d", c.Stress.Lifetime, c.Stress.RenewInterval)
	}
	if c.Stress.BlocksPerSecond < 0 {
		return errors.Errorf("blocks-per-second must not be negative, got %v", c.Stress.BlocksPerSecond)
	}
	return nil
}

func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "<nil>"
	}
	return string(data)
}

// SetupLogger setup the logger.
func (c *Config) SetupLogger() error {
	lg, p, err := log.InitLogger(&c.Log, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return err
	}
	c.logger = lg
	c.logProps = p
	return nil
}

// GetZapLogger gets the created zap logger.
func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

// GetZapLogProperties gets properties of the zap logger.
func (c *Config) GetZapLogProperties() *log.ZapProperties {
	return c.logProps
}

// Duration is a time.Duration that is written as a string such as "10s" in toml and json.
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalJSON returns the duration as a JSON string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, d.String())), nil
}

// UnmarshalText parses a TOML string into a duration.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.WithStack(err)
}
