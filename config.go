package gridline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable that overrides a profile's API
// key. Only the key can be overridden from the environment.
const EnvAPIKey = "GRIDLINE_API_KEY"

var (
	// ErrConfigNotFound reports a missing config file.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid reports a config or profile that fails validation.
	ErrConfigInvalid = errors.New("config is invalid")

	// ErrProfileNotFound reports a profile name with no entry.
	ErrProfileNotFound = errors.New("profile not found")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Profile holds the connection settings for one platform environment.
type Profile struct {
	// Endpoint is the base URL of the platform API.
	Endpoint string `yaml:"endpoint" validate:"required,url"`

	// APIKey authenticates every request. EnvAPIKey overrides it when set.
	APIKey string `yaml:"apiKey" validate:"required"`

	// RequestTimeoutSeconds bounds each API request. Zero means the
	// client default.
	RequestTimeoutSeconds int `yaml:"requestTimeoutSeconds" validate:"min=0"`

	// DownloadConcurrency bounds parallel asset downloads. Zero means
	// the loader default.
	DownloadConcurrency int `yaml:"downloadConcurrency" validate:"min=0"`
}

// Validate checks the profile against its field constraints.
func (p *Profile) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrConfigInvalid, strings.Join(parts, "; "))
}

// RequestTimeout returns the configured per-request timeout, or zero
// when the profile leaves it to the client default.
func (p *Profile) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// Config is a named set of profiles, normally loaded from a YAML file.
type Config struct {
	// CurrentProfile names the profile used when the caller does not
	// pick one.
	CurrentProfile string `yaml:"currentProfile"`

	Profiles map[string]*Profile `yaml:"profiles"`
}

// DefaultConfigPath returns the conventional config file location,
// <user config dir>/gridline/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "gridline", "config.yaml"), nil
}

// LoadConfig reads and parses a config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrConfigNotFound, path)
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML config document.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return &c, nil
}

// Profile resolves a profile by name, applies the EnvAPIKey override and
// validates the result. An empty name picks CurrentProfile, or the only
// profile when exactly one exists. The returned profile is a copy.
func (c *Config) Profile(name string) (*Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	if name == "" && len(c.Profiles) == 1 {
		for only := range c.Profiles {
			name = only
		}
	}
	entry, ok := c.Profiles[name]
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	p := *entry
	if key := os.Getenv(EnvAPIKey); key != "" {
		p.APIKey = key
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	return &p, nil
}
