package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/openfroyo/condaenv/pkg/telemetry"
	sshtransport "github.com/openfroyo/condaenv/pkg/transports/ssh"
)

// DefaultSettingsPath returns $XDG_CONFIG_HOME/condaenv/settings.toml.
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "condaenv", "settings.toml")
}

// LoadSettings reads the settings file at path. An empty path reads the default
// location, where a missing file yields empty settings.
func LoadSettings(path string) (*Settings, error) {
	optional := path == ""
	if optional {
		path = DefaultSettingsPath()
		if path == "" {
			return &Settings{}, nil
		}
	}

	s := &Settings{}
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to load settings %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown settings in %s: %s", path, strings.Join(keys, ", "))
	}

	s.Ledger.Path = expandHome(s.Ledger.Path)
	s.Metrics.Textfile = expandHome(s.Metrics.Textfile)
	s.SSH.KeyFile = expandHome(s.SSH.KeyFile)
	s.SSH.KnownHosts = expandHome(s.SSH.KnownHosts)
	for i, p := range s.Policies {
		s.Policies[i] = expandHome(p)
	}

	return s, nil
}

// TelemetryConfig builds the telemetry configuration for this binary.
func (s *Settings) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version

	if s.Log.Level != "" {
		cfg.Logging.Level = s.Log.Level
	}
	if s.Log.Format != "" {
		cfg.Logging.Format = s.Log.Format
	}

	if s.Tracing.Exporter != "" && s.Tracing.Exporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = s.Tracing.Exporter
		cfg.Tracing.Endpoint = s.Tracing.Endpoint
		cfg.Tracing.Insecure = s.Tracing.Insecure
		if s.Tracing.SamplingRate > 0 {
			cfg.Tracing.SamplingRate = s.Tracing.SamplingRate
		}
		for k, v := range s.Tracing.Headers {
			cfg.Tracing.Headers[k] = v
		}
	}

	cfg.Metrics.TextfilePath = s.Metrics.Textfile
	cfg.Metrics.ListenAddress = s.Metrics.Listen

	return cfg
}

// SSHConfig builds the connection configuration for host. host may carry a user
// ("user@host") and a port ("host:2222"), which take precedence over the settings.
func (s *Settings) SSHConfig(host string) (*sshtransport.Config, error) {
	user := s.SSH.User
	if u, h, ok := strings.Cut(host, "@"); ok {
		user, host = u, h
	}
	if user == "" {
		user = os.Getenv("USER")
	}

	port := s.SSH.Port
	if h, p, err := net.SplitHostPort(host); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in host %q: %w", host, err)
		}
		host, port = h, n
	}

	cfg := sshtransport.DefaultConfig(host, user)
	if port != 0 {
		cfg.Port = port
	}
	if s.SSH.KeyFile != "" {
		cfg.PrivateKeyPath = s.SSH.KeyFile
	} else if os.Getenv("SSH_AUTH_SOCK") != "" {
		cfg.AuthMethod = sshtransport.AuthMethodAgent
	}
	if s.SSH.KnownHosts != "" {
		cfg.KnownHostsPath = s.SSH.KnownHosts
	}
	if s.SSH.StrictHostKeyChecking != nil {
		cfg.StrictHostKeyChecking = *s.SSH.StrictHostKeyChecking
	}
	if s.SSH.RemoteTempDir != "" {
		cfg.RemoteTempDir = s.SSH.RemoteTempDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh configuration for %s: %w", host, err)
	}
	return cfg, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
