package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Settings struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	WithCaller bool   `yaml:"with_caller"`
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: FormatAuto}
}

// DefaultTUILogFile is where the interactive chat logs when no file is
// configured, since stderr belongs to the terminal UI.
func DefaultTUILogFile() string {
	return filepath.Join(os.TempDir(), "chat-popup.log")
}

var closer io.Closer

// Init configures the global zerolog logger. It can be called more than once;
// a previously opened log file is closed.
func Init(s Settings) error {
	logger, c, err := New(s, os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
	if err != nil {
		return err
	}
	level, _ := parseLevel(s.Level)
	zerolog.SetGlobalLevel(level)
	log.Logger = logger

	if closer != nil {
		_ = closer.Close()
	}
	closer = c
	return nil
}

// Close flushes and closes the log file opened by Init, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// New builds a logger from s. When s.File is set the logger writes JSON lines
// to a rotated file and the returned closer must be closed; otherwise it
// writes to w, as console output when format is console, or auto and isTTY.
func New(s Settings, w io.Writer, isTTY bool) (zerolog.Logger, io.Closer, error) {
	level, err := parseLevel(s.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var out io.Writer
	var c io.Closer
	format := strings.ToLower(strings.TrimSpace(s.Format))
	switch {
	case s.File != "":
		if dir := filepath.Dir(s.File); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return zerolog.Nop(), nil, errors.Wrap(err, "create log dir")
			}
		}
		lj := &lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out, c = lj, lj
	case format == FormatConsole, (format == FormatAuto || format == "") && isTTY:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	case format == FormatJSON, format == FormatAuto, format == "":
		out = w
	default:
		return zerolog.Nop(), nil, errors.Errorf("unknown log format %q", s.Format)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), c, nil
}

func parseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel, errors.Wrapf(err, "invalid log level %q", s)
	}
	return l, nil
}
