package main

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chat-popup/pkg/chatrunner"
	"github.com/go-go-golems/chat-popup/pkg/ui"
)

func newChatCommand() *cobra.Command {
	var closed bool
	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Open the interactive chat panel",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{tuiAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settings, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			b := chatrunner.NewChatBuilder().
				WithContext(cmd.Context()).
				WithOrchestrator(a.orch).
				WithRenderer(a.renderer).
				WithEventSettings(settings.Events).
				WithMode(chatrunner.RunModeChat)
			if closed {
				b = b.WithModelOptions(ui.WithClosed())
			}
			s, err := b.Build()
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
	cmd.Flags().BoolVar(&closed, "closed", false, "start with the panel collapsed")
	return cmd
}
