package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chat-popup/pkg/config"
	"github.com/go-go-golems/chat-popup/pkg/logging"
)

// tuiAnnotation marks commands that own the terminal, so logs go to a file.
const tuiAnnotation = "tui"

type rootFlags struct {
	configFile string
	envFile    string
	baseURL    string
	userID     string
	timeout    time.Duration
	store      string
	storePath  string
	logLevel   string
	logFormat  string
	logFile    string
	withCaller bool
}

var (
	flags    rootFlags
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:          "chat-popup",
	Short:        "chat-popup is a terminal client for the assistant chat backend",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load(config.LoadOptions{
			ConfigFile: flags.configFile,
			EnvFile:    flags.envFile,
		})
		if err != nil {
			return err
		}
		applyFlags(cmd, &s)
		if ownsTerminal(cmd) && s.Logging.File == "" {
			s.Logging.File = logging.DefaultTUILogFile()
		}
		if err := s.Validate(); err != nil {
			return errors.Wrap(err, "invalid configuration")
		}

		// reinitialize the logger because we can now parse --log-level and co
		if err := logging.Init(s.Logging); err != nil {
			return err
		}
		settings = s
		log.Debug().Str("command", cmd.CommandPath()).Msg("configuration loaded")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Close()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/chat-popup/config.yaml)")
	pf.StringVar(&flags.envFile, "env-file", "", "dotenv file to load (default .env)")
	pf.StringVar(&flags.baseURL, "base-url", "", "backend base url")
	pf.StringVar(&flags.userID, "user-id", "", "user id sent when creating sessions")
	pf.DurationVar(&flags.timeout, "timeout", 0, "timeout of each backend call")
	pf.StringVar(&flags.store, "store", "", "session store: file, sqlite, redis, memory")
	pf.StringVar(&flags.storePath, "store-path", "", "path of the file or sqlite session store")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: auto, console, json")
	pf.StringVar(&flags.logFile, "log-file", "", "write logs to this file")
	pf.BoolVar(&flags.withCaller, "with-caller", false, "add caller information to logs")

	rootCmd.AddCommand(newChatCommand(), newSendCommand(), newSessionCommand(), newEventsCommand())
}

// ownsTerminal reports whether the command may end up running the chat panel.
func ownsTerminal(cmd *cobra.Command) bool {
	if cmd.Annotations[tuiAnnotation] == "true" {
		return true
	}
	interactive, err := cmd.Flags().GetBool("interactive")
	return err == nil && interactive
}

// applyFlags puts explicitly set flags on top of file and environment.
func applyFlags(cmd *cobra.Command, s *config.Settings) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("base-url") {
		s.BaseURL = flags.baseURL
	}
	if changed("user-id") {
		s.UserID = flags.userID
	}
	if changed("timeout") {
		s.Timeout = flags.timeout
	}
	if changed("store") {
		s.Session.Type = flags.store
	}
	if changed("store-path") {
		s.Session.Path = flags.storePath
	}
	if changed("log-level") {
		s.Logging.Level = flags.logLevel
	}
	if changed("log-format") {
		s.Logging.Format = flags.logFormat
	}
	if changed("log-file") {
		s.Logging.File = flags.logFile
	}
	if changed("with-caller") {
		s.Logging.WithCaller = flags.withCaller
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
