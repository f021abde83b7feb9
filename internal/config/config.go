package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config carries the service's ambient stack settings: where durable crawl
// state lives, how workers fetch and retry, and the local-mode/rendering
// endpoint split the coordinator needs to build resource URLs. Fields are
// unexported with a builder/getter surface in this service's configuration
// style, so every field is validated once at Build() rather than read
// raw from a struct literal scattered across the service.
type Config struct {
	//===============
	// Storage
	//===============
	// Directory the badger-backed kvstore persists crawl state under.
	dataDir string

	//===============
	// Fetch
	//===============
	// Base request timeout before per-request wait_after_load is added.
	timeout time.Duration
	// User agent sent on both page fetches and robots.txt fetches.
	userAgent string
	// Rendering service base URL; empty routes every fetch through the
	// direct HTTP fetcher.
	renderingServiceURL string
	// localMode selects the http vs https scheme for resource URLs
	// returned from crawl submission.
	localMode bool

	//===============
	// Concurrency & politeness
	//===============
	// Maximum number of fetches in flight across the whole worker pool.
	concurrentRequests int
	// Minimum, fixed waiting time enforced between two requests to the
	// same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	jitter time.Duration
	// Controls the random number generator used for jitter/backoff.
	randomSeed int64
	// Per-tenant in-flight job count above which Priority Policy demotes.
	tenantLoadThreshold int

	//===============
	// Retry / backoff
	//===============
	maxAttempt             int
	backoffInitialDuration time.Duration
	backoffMultiplier      float64
	backoffMaxDuration     time.Duration

	//===============
	// Local debugging output
	//===============
	// Root directory the optional local artifact sink writes Documents
	// to. Empty disables the sink.
	outputDir string
	dryRun    bool
}

type configDTO struct {
	DataDir                string        `json:"dataDir,omitempty"`
	Timeout                time.Duration `json:"timeout,omitempty"`
	UserAgent              string        `json:"userAgent,omitempty"`
	RenderingServiceURL    string        `json:"renderingServiceUrl,omitempty"`
	LocalMode              bool          `json:"localMode,omitempty"`
	ConcurrentRequests     int           `json:"concurrentRequests,omitempty"`
	BaseDelay              time.Duration `json:"baseDelay,omitempty"`
	Jitter                 time.Duration `json:"jitter,omitempty"`
	RandomSeed             int64         `json:"randomSeed,omitempty"`
	TenantLoadThreshold    int           `json:"tenantLoadThreshold,omitempty"`
	MaxAttempt             int           `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64       `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration `json:"backoffMaxDuration,omitempty"`
	OutputDir              string        `json:"outputDir,omitempty"`
	DryRun                 bool          `json:"dryRun,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg, err := WithDefault().Build()
	if err != nil {
		return Config{}, err
	}

	if dto.DataDir != "" {
		cfg.dataDir = dto.DataDir
	}
	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.RenderingServiceURL != "" {
		cfg.renderingServiceURL = dto.RenderingServiceURL
	}
	cfg.localMode = dto.LocalMode
	if dto.ConcurrentRequests != 0 {
		cfg.concurrentRequests = dto.ConcurrentRequests
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.TenantLoadThreshold != 0 {
		cfg.tenantLoadThreshold = dto.TenantLoadThreshold
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	cfg.dryRun = dto.DryRun

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}

	var dto configDTO
	if err := json.Unmarshal(content, &dto); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	return newConfigFromDTO(dto)
}

// WithDefault returns a Config with every field set to its production
// default.
func WithDefault() *Config {
	return &Config{
		dataDir:                "./data/crawlsvc",
		timeout:                30 * time.Second,
		userAgent:              "crawlsvc/1.0",
		renderingServiceURL:    "",
		localMode:              false,
		concurrentRequests:     20,
		baseDelay:              time.Second,
		jitter:                 250 * time.Millisecond,
		randomSeed:             time.Now().UnixNano(),
		tenantLoadThreshold:    50,
		maxAttempt:             3,
		backoffInitialDuration: time.Second,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     30 * time.Second,
		outputDir:              "",
		dryRun:                 false,
	}
}

func (c *Config) WithDataDir(dir string) *Config         { c.dataDir = dir; return c }
func (c *Config) WithTimeout(d time.Duration) *Config    { c.timeout = d; return c }
func (c *Config) WithUserAgent(agent string) *Config     { c.userAgent = agent; return c }
func (c *Config) WithRenderingServiceURL(u string) *Config {
	c.renderingServiceURL = u
	return c
}
func (c *Config) WithLocalMode(v bool) *Config { c.localMode = v; return c }
func (c *Config) WithConcurrentRequests(n int) *Config {
	c.concurrentRequests = n
	return c
}
func (c *Config) WithBaseDelay(d time.Duration) *Config { c.baseDelay = d; return c }
func (c *Config) WithJitter(d time.Duration) *Config    { c.jitter = d; return c }
func (c *Config) WithRandomSeed(seed int64) *Config     { c.randomSeed = seed; return c }
func (c *Config) WithTenantLoadThreshold(n int) *Config {
	c.tenantLoadThreshold = n
	return c
}
func (c *Config) WithMaxAttempt(n int) *Config { c.maxAttempt = n; return c }
func (c *Config) WithBackoffInitialDuration(d time.Duration) *Config {
	c.backoffInitialDuration = d
	return c
}
func (c *Config) WithBackoffMultiplier(m float64) *Config { c.backoffMultiplier = m; return c }
func (c *Config) WithBackoffMaxDuration(d time.Duration) *Config {
	c.backoffMaxDuration = d
	return c
}
func (c *Config) WithOutputDir(dir string) *Config { c.outputDir = dir; return c }
func (c *Config) WithDryRun(v bool) *Config        { c.dryRun = v; return c }

func (c *Config) Build() (Config, error) {
	if c.concurrentRequests <= 0 {
		return Config{}, fmt.Errorf("%w: concurrentRequests must be > 0", ErrInvalidConfig)
	}
	if c.maxAttempt <= 0 {
		return Config{}, fmt.Errorf("%w: maxAttempt must be > 0", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) DataDir() string                       { return c.dataDir }
func (c Config) Timeout() time.Duration                { return c.timeout }
func (c Config) UserAgent() string                     { return c.userAgent }
func (c Config) RenderingServiceURL() string            { return c.renderingServiceURL }
func (c Config) LocalMode() bool                        { return c.localMode }
func (c Config) ConcurrentRequests() int                { return c.concurrentRequests }
func (c Config) BaseDelay() time.Duration               { return c.baseDelay }
func (c Config) Jitter() time.Duration                  { return c.jitter }
func (c Config) RandomSeed() int64                      { return c.randomSeed }
func (c Config) TenantLoadThreshold() int               { return c.tenantLoadThreshold }
func (c Config) MaxAttempt() int                        { return c.maxAttempt }
func (c Config) BackoffInitialDuration() time.Duration  { return c.backoffInitialDuration }
func (c Config) BackoffMultiplier() float64             { return c.backoffMultiplier }
func (c Config) BackoffMaxDuration() time.Duration      { return c.backoffMaxDuration }
func (c Config) OutputDir() string                      { return c.outputDir }
func (c Config) DryRun() bool                           { return c.dryRun }
