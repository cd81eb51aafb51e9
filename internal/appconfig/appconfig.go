package appconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultBasePath           = "/api"
	DefaultDocsPath           = "/api/docs"
	DefaultAccessTokenExpiry  = Duration(15 * time.Minute)
	DefaultRefreshTokenExpiry = Duration(7 * 24 * time.Hour)
)

// Config holds all configuration details
type Config struct {
	Host          string              `yaml:"host"`
	BasePath      string              `yaml:"basePath"`
	DocsPath      string              `yaml:"docsPath"`
	CORS          CORSConfig          `yaml:"cors"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Pulsar        PulsarConfig        `yaml:"pulsar"`
	AWS           AWSConfig           `yaml:"aws"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// DatabaseConfig defines the database connection details
type DatabaseConfig struct {
	Source string        `yaml:"source"`
	Tunnel *TunnelConfig `yaml:"tunnel"`
}

// TunnelConfig describes an SSH bastion used to reach the database.
type TunnelConfig struct {
	SSHUser        string `yaml:"sshUser"`
	SSHHost        string `yaml:"sshHost"`
	SSHPort        string `yaml:"sshPort"`
	RemoteHost     string `yaml:"remoteHost"`
	RemotePort     string `yaml:"remotePort"`
	LocalPort      string `yaml:"localPort"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
	KnownHostsPath string `yaml:"knownHostsPath"`
}

// AuthConfig defines token signing. When SecretsManagerSecretID is set the
// secrets are read from AWS Secrets Manager instead.
type AuthConfig struct {
	AccessTokenSecret      string   `yaml:"accessTokenSecret"`
	RefreshTokenSecret     string   `yaml:"refreshTokenSecret"`
	AccessTokenExpiry      Duration `yaml:"accessTokenExpiry"`
	RefreshTokenExpiry     Duration `yaml:"refreshTokenExpiry"`
	SecretsManagerSecretID string   `yaml:"secretsManagerSecretId"`
}

// PulsarConfig defines the messaging system connection details
type PulsarConfig struct {
	URL           string `yaml:"url"`
	TopicProducer string `yaml:"topicProducer"`
	TopicConsumer string `yaml:"topicConsumer"`
	Subscription  string `yaml:"subscription"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
}

// NotificationsConfig controls decision emails sent by the consumer.
type NotificationsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	FromEmail string `yaml:"fromEmail"`
}

// Duration is a time.Duration that also accepts a day suffix, e.g. "7d".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration parses Go duration syntax plus whole days ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// LoadConfig loads and parses the configuration from a given file path. The
// file is rendered as a template over the environment first, so values can be
// written as {{ .ACCESS_TOKEN_SECRET }}.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is required")
	}

	// Parse the template file
	tmpl, err := template.New("config").Option("missingkey=zero").ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file template: %w", err)
	}

	// Execute the template with environment variables
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, templateName(path), loadEnvVars()); err != nil {
		return nil, fmt.Errorf("error executing config file template: %w", err)
	}

	return Parse(buf.Bytes())
}

// Parse unmarshals rendered YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.DocsPath == "" {
		c.DocsPath = DefaultDocsPath
	}
	if c.Auth.AccessTokenExpiry == 0 {
		c.Auth.AccessTokenExpiry = DefaultAccessTokenExpiry
	}
	if c.Auth.RefreshTokenExpiry == 0 {
		c.Auth.RefreshTokenExpiry = DefaultRefreshTokenExpiry
	}
}

func templateName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// loadEnvVars loads environment variables into a map
func loadEnvVars() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) == 2 {
			envVars[kv[0]] = kv[1]
		}
	}
	return envVars
}
