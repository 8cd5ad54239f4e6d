package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/chat-popup/pkg/session"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset the stored conversation session",
	}
	cmd.AddCommand(newSessionShowCommand(), newSessionClearCommand())
	return cmd
}

func newSessionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ss := settings.SessionSettings()
			store, err := session.Open(ss)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			id, ok := store.SessionID(cmd.Context())
			if !ok {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "no session stored (%s store)\n", storeLabel(ss))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
}

func newSessionClearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored session so the next message starts a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ss := settings.SessionSettings()
			store, err := session.Open(ss)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			id, ok := store.SessionID(cmd.Context())
			if !ok {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no session stored")
				return err
			}

			if !yes {
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errors.New("refusing to clear without confirmation: pass --yes")
				}
				confirmed, err := confirmClear(id)
				if err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared session %s\n", id)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirmClear(id string) (bool, error) {
	ui := &input.UI{Writer: os.Stderr, Reader: os.Stdin}
	answer, err := ui.Ask(fmt.Sprintf("Forget session %s? [y/N]", id), &input.Options{
		Default: "n",
		Loop:    true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}
	return answer == "y" || answer == "Y", nil
}

func storeLabel(ss session.Settings) string {
	switch ss.Type {
	case session.TypeRedis, session.TypeMemory:
		return ss.Type
	case "":
		return session.TypeFile + " " + ss.Path
	default:
		return ss.Type + " " + ss.Path
	}
}
