// Package config loads client settings from flags, environment and the
// user's config file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/omochice/polyglot-chat/internal/language"
)

// ApplicationName names the config directory.
const ApplicationName = "polyglot-chat"

// EnvPrefix prefixes every environment override, e.g. POLYGLOT_WS_URL.
const EnvPrefix = "POLYGLOT"

const (
	KeyAPIURL      = "api_url"
	KeyWSURL       = "ws_url"
	KeyRoom        = "room"
	KeyUsername    = "username"
	KeyLanguage    = "language"
	KeyLogLevel    = "log_level"
	KeyHTTPTimeout = "http_timeout"
)

// Config holds resolved settings.
type Config struct {
	APIURL      string        `mapstructure:"api_url"`
	WSURL       string        `mapstructure:"ws_url"`
	Room        string        `mapstructure:"room"`
	Username    string        `mapstructure:"username"`
	Language    string        `mapstructure:"language"`
	LogLevel    string        `mapstructure:"log_level"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// New returns a viper instance with defaults, env binding and the config
// search path set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAPIURL, "http://127.0.0.1:8000")
	v.SetDefault(KeyWSURL, "ws://localhost:8000/ws")
	v.SetDefault(KeyRoom, "")
	v.SetDefault(KeyUsername, "")
	v.SetDefault(KeyLanguage, language.Default)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyHTTPTimeout, 30*time.Second)

	v.SetConfigType("yaml")
	v.SetConfigName("config")
	if dir, err := Dir(); err == nil {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	v.AutomaticEnv()
	return v
}

// Dir returns $XDG_CONFIG_HOME/polyglot-chat, falling back to ~/.config.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve home directory")
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Clean(filepath.Join(configHome, ApplicationName)), nil
}

// BindFlags binds every flag of fs whose name matches a config key.
// Flag names use dashes; keys use underscores.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = errors.Wrapf(bindErr, "failed to bind flag %s", f.Name)
		}
	})
	return err
}

// Load reads the config file, if any, and resolves the settings. A
// missing config file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.WSURL = strings.TrimRight(cfg.WSURL, "/")
	if cfg.Language == "" {
		cfg.Language = language.Default
	}
	return cfg, nil
}
