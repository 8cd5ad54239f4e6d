package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chat-popup/pkg/events"
	"github.com/go-go-golems/chat-popup/pkg/gateway"
	"github.com/go-go-golems/chat-popup/pkg/logging"
	"github.com/go-go-golems/chat-popup/pkg/orchestrator"
	"github.com/go-go-golems/chat-popup/pkg/session"
)

const (
	AppName   = "chat-popup"
	EnvPrefix = "CHAT_POPUP_"
	// LegacyBaseURLEnv is the variable the web build of the widget reads.
	LegacyBaseURLEnv = "VITE_API_URL"
)

type RenderSettings struct {
	// Style is a glamour style name: auto, dark, light, notty.
	Style string `yaml:"style"`
	Width int    `yaml:"width"`
}

type Settings struct {
	BaseURL  string                `yaml:"base_url"`
	UserID   string                `yaml:"user_id"`
	Timeout  time.Duration         `yaml:"timeout"`
	Session  session.Settings      `yaml:"session"`
	Events   events.Settings       `yaml:"events"`
	Logging  logging.Settings      `yaml:"logging"`
	Messages orchestrator.Messages `yaml:"messages"`
	Render   RenderSettings        `yaml:"render"`
}

func Defaults() Settings {
	return Settings{
		UserID:  gateway.DefaultUserID,
		Timeout: gateway.DefaultTimeout,
		Session: session.Settings{
			Type: session.TypeFile,
			Key:  session.DefaultKey,
			Path: defaultStatePath(),
		},
		Events:   events.DefaultSettings(),
		Logging:  logging.DefaultSettings(),
		Messages: orchestrator.DefaultMessages(),
		Render:   RenderSettings{Style: "auto", Width: 80},
	}
}

// DefaultConfigPath is $XDG_CONFIG_HOME/chat-popup/config.yaml, or "" when no
// user config directory is known.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+AppName+"-state.yaml")
	}
	return filepath.Join(dir, AppName, "state.yaml")
}

type LoadOptions struct {
	// ConfigFile must exist when set. When empty, DefaultConfigPath is used
	// if present.
	ConfigFile string
	// EnvFile is loaded into the environment when it exists. Defaults to .env.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load layers defaults, the YAML config file, the .env file and the
// environment, in that order. Flags are applied by the caller on top.
func Load(opts LoadOptions) (Settings, error) {
	s := Defaults()

	path := opts.ConfigFile
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		if err := mergeFile(&s, path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return s, err
			}
		} else {
			log.Debug().Str("path", path).Msg("loaded config file")
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		// existing environment variables win over the file
		if err := godotenv.Load(envFile); err != nil {
			return s, errors.Wrapf(err, "load %s", envFile)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(&s, lookup); err != nil {
		return s, err
	}
	return s, nil
}

func mergeFile(s *Settings, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, s); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

func applyEnv(s *Settings, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := lookup(LegacyBaseURLEnv); ok && strings.TrimSpace(v) != "" {
		s.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := get("BASE_URL"); ok {
		s.BaseURL = v
	}
	if v, ok := get("USER_ID"); ok {
		s.UserID = v
	}
	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%sTIMEOUT", EnvPrefix)
		}
		s.Timeout = d
	}
	if v, ok := get("STORE"); ok {
		s.Session.Type = v
	}
	if v, ok := get("STORE_PATH"); ok {
		s.Session.Path = v
	}
	if v, ok := get("STORE_KEY"); ok {
		s.Session.Key = v
	}
	if v, ok := get("REDIS_URL"); ok {
		s.Session.RedisURL = v
	}
	if v, ok := get("EVENTS_REDIS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%sEVENTS_REDIS", EnvPrefix)
		}
		s.Events.RedisEnabled = b
	}
	if v, ok := get("EVENTS_REDIS_ADDR"); ok {
		s.Events.RedisAddr = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		s.Logging.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		s.Logging.Format = v
	}
	if v, ok := get("LOG_FILE"); ok {
		s.Logging.File = v
	}
	if v, ok := get("RENDER_STYLE"); ok {
		s.Render.Style = v
	}
	return nil
}

// Validate checks settings that do not depend on the command being run.
func (s Settings) Validate() error {
	if s.BaseURL != "" && !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return errors.Errorf("base url %q must start with http:// or https://", s.BaseURL)
	}
	if s.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	switch strings.ToLower(s.Session.Type) {
	case "", session.TypeMemory, session.TypeFile, session.TypeSQLite:
	case session.TypeRedis:
		if s.Session.RedisURL == "" {
			return errors.New("redis session store needs a redis url")
		}
	default:
		return errors.Errorf("unknown session store %q", s.Session.Type)
	}
	switch strings.ToLower(s.Render.Style) {
	case "", "auto", "dark", "light", "notty":
	default:
		return errors.Errorf("unknown render style %q", s.Render.Style)
	}
	return nil
}

// RequireBaseURL is checked by commands that talk to the backend.
func (s Settings) RequireBaseURL() error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return errors.Errorf("no backend url configured: set %sBASE_URL, %s or --base-url", EnvPrefix, LegacyBaseURLEnv)
	}
	return nil
}

// SessionSettings returns the store settings, swapping the default YAML state
// file for a database next to it when the sqlite store is selected.
func (s Settings) SessionSettings() session.Settings {
	ss := s.Session
	if strings.EqualFold(ss.Type, session.TypeSQLite) && ss.Path == defaultStatePath() {
		ss.Path = strings.TrimSuffix(ss.Path, filepath.Ext(ss.Path)) + ".db"
	}
	return ss
}

// GatewayOptions translates the settings into HTTP gateway options.
func (s Settings) GatewayOptions() []gateway.Option {
	return []gateway.Option{
		gateway.WithTimeout(s.Timeout),
		gateway.WithUserID(s.UserID),
	}
}
