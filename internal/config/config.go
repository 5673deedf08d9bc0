// Package config loads the resolver's JSON configuration file and watches
// it for changes, publishing each successfully parsed revision as an
// immutable snapshot.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Strategy is the resolve_strategy tag: either plain recursive resolution
// or forwarding every query to one fixed upstream.
type Strategy struct {
	Recursive bool         `json:"-"`
	Forward   *ForwardAddr `json:"-"`
}

// ForwardAddr is the upstream server used when Strategy forwards.
type ForwardAddr struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// rawStrategy mirrors the tagged-union JSON shape:
// `"Recursive"` or `{"Forward": {"host": "...", "port": 53}}`.
type rawStrategy struct {
	Forward *ForwardAddr `json:"Forward"`
}

// UnmarshalJSON accepts either the bare string "Recursive" or an object
// tagged "Forward".
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "Recursive" {
			return fmt.Errorf("config: unknown resolve_strategy %q", tag)
		}
		s.Recursive = true
		return nil
	}

	var raw rawStrategy
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: invalid resolve_strategy: %w", err)
	}
	if raw.Forward == nil {
		return fmt.Errorf("config: resolve_strategy object must set Forward")
	}
	s.Forward = raw.Forward
	return nil
}

// MarshalJSON writes the tagged-union shape back out.
func (s Strategy) MarshalJSON() ([]byte, error) {
	if s.Forward != nil {
		return json.Marshal(rawStrategy{Forward: s.Forward})
	}
	return json.Marshal("Recursive")
}

// Config is the resolver's full runtime configuration, decoded from the
// on-disk JSON file named by the server's --config flag.
type Config struct {
	DNSHost           string   `json:"dns_host"`
	DNSPort           uint16   `json:"dns_port"`
	ResolveStrategy   Strategy `json:"resolve_strategy"`
	AllowRecursive    bool     `json:"allow_recursive"`
	EnableUDP         bool     `json:"enable_udp"`
	EnableTCP         bool     `json:"enable_tcp"`
	ThreadCount       int      `json:"thread_count"`
	UpstreamTimeoutMS uint32   `json:"upstream_timeout_ms"`
	LogLevel          string   `json:"log_level"`
	MetricsAddr       string   `json:"metrics_addr"`
}

// Equal reports whether two configs are identical in every field that
// affects running listeners or resolution behavior. The reload path does
// not call it: Watch hands every successfully parsed revision to its
// callback, and the listen Supervisor diffs listener settings itself.
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.ResolveStrategy.Recursive != other.ResolveStrategy.Recursive {
		return false
	}
	if (c.ResolveStrategy.Forward == nil) != (other.ResolveStrategy.Forward == nil) {
		return false
	}
	if c.ResolveStrategy.Forward != nil && *c.ResolveStrategy.Forward != *other.ResolveStrategy.Forward {
		return false
	}
	return c.DNSHost == other.DNSHost &&
		c.DNSPort == other.DNSPort &&
		c.AllowRecursive == other.AllowRecursive &&
		c.EnableUDP == other.EnableUDP &&
		c.EnableTCP == other.EnableTCP &&
		c.ThreadCount == other.ThreadCount &&
		c.UpstreamTimeoutMS == other.UpstreamTimeoutMS &&
		c.LogLevel == other.LogLevel &&
		c.MetricsAddr == other.MetricsAddr
}

func setDefaults(c *Config) {
	if c.DNSPort == 0 {
		c.DNSPort = 53
	}
	if c.ThreadCount <= 0 {
		c.ThreadCount = 4
	}
	if c.UpstreamTimeoutMS == 0 {
		c.UpstreamTimeoutMS = 5000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func normalize(c *Config) error {
	if c.DNSHost == "" {
		return fmt.Errorf("config: dns_host is required")
	}
	if !c.ResolveStrategy.Recursive && c.ResolveStrategy.Forward == nil {
		return fmt.Errorf("config: resolve_strategy is required")
	}
	if c.ResolveStrategy.Forward != nil && c.ResolveStrategy.Forward.Host == "" {
		return fmt.Errorf("config: resolve_strategy.Forward.host is required")
	}
	if !c.EnableUDP && !c.EnableTCP {
		return fmt.Errorf("config: at least one of enable_udp/enable_tcp must be true")
	}
	return nil
}

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	setDefaults(&c)
	if err := normalize(&c); err != nil {
		return nil, err
	}

	return &c, nil
}
