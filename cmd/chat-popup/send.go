package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/chat-popup/pkg/chatrunner"
	"github.com/go-go-golems/chat-popup/pkg/gateway"
	"github.com/go-go-golems/chat-popup/pkg/orchestrator"
)

func newSendCommand() *cobra.Command {
	var (
		file        string
		strict      bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "send [TEXT...]",
		Short: "Send one message, optionally with a file, and print the reply",
		Long: "Send one message and print the exchange. A failed delivery prints the\n" +
			"failure message and still exits 0 unless --strict is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := orchestrator.PendingInput{Text: strings.Join(args, " ")}
			if file != "" {
				att, err := gateway.AttachmentFromFile(file)
				if err != nil {
					return err
				}
				in.Attachment = att
			}

			a, err := newApp(settings, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			mode := chatrunner.RunModeBlocking
			if interactive {
				mode = chatrunner.RunModeInteractive
			}
			s, err := chatrunner.NewChatBuilder().
				WithContext(cmd.Context()).
				WithOrchestrator(a.orch).
				WithRenderer(a.renderer).
				WithEventSettings(settings.Events).
				WithMode(mode).
				WithOutputWriter(cmd.OutOrStdout()).
				WithPromptIO(os.Stdin, os.Stderr).
				WithPrompt(in).
				WithStrict(strict).
				Build()
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to upload with the message")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error when the message could not be delivered")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "offer to continue in the chat panel afterwards")
	return cmd
}
