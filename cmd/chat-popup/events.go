package main

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chat-popup/pkg/config"
	"github.com/go-go-golems/chat-popup/pkg/events"
)

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Work with the transcript event stream",
	}
	cmd.AddCommand(newEventsTailCommand())
	return cmd
}

func newEventsTailCommand() *cobra.Command {
	var group, consumer string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print transcript events published by a running chat over Redis Streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings.Events
			if !s.RedisEnabled {
				return errors.Errorf("events tail needs the redis transport: set events.redis_enabled or %sEVENTS_REDIS=true", config.EnvPrefix)
			}
			// a separate group so the chat panel keeps receiving every event
			s.Group = group
			s.Consumer = consumer

			if err := events.EnsureGroupAtTail(cmd.Context(), s.RedisAddr, events.TopicTranscript, s.Group); err != nil {
				return err
			}
			bus, err := events.Build(s, log.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = bus.Close() }()

			out := cmd.OutOrStdout()
			return events.Consume(cmd.Context(), bus.Subscriber, events.TopicTranscript, func(msg *message.Message) error {
				ev, err := events.Decode(msg)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, formatEvent(ev))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "chat-popup-tail", "redis consumer group")
	cmd.Flags().StringVar(&consumer, "consumer", "tail-1", "redis consumer name")
	return cmd
}

func formatEvent(ev events.TranscriptEvent) string {
	line := fmt.Sprintf("#%d %-8s [%d] %s/%s: %s", ev.Seq, ev.Kind, ev.Index, ev.Role, ev.Status, ev.Content)
	if ev.Attachment != "" {
		line += fmt.Sprintf(" (file %s)", ev.Attachment)
	}
	return line
}
