package events

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Bus bundles the publisher and subscriber used for transcript events.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []func() error
}

// Build returns a Redis Streams bus when s.RedisEnabled is set and an
// in-memory gochannel bus otherwise.
func Build(s Settings, logger zerolog.Logger) (*Bus, error) {
	wlogger := NewWatermillLogger(logger)
	if !s.RedisEnabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlogger)
		return &Bus{
			Publisher:  ch,
			Subscriber: ch,
			closers:    []func() error{ch.Close},
		}, nil
	}

	if strings.TrimSpace(s.RedisAddr) == "" {
		return nil, errors.New("events: redis enabled but no address configured")
	}
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wlogger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "events: redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, wlogger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "events: redis subscriber")
	}

	return &Bus{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// Consume subscribes to topic and hands every message to handler until ctx is
// done or the subscription closes. Every message is acked once the handler
// returned, including when it failed.
func Consume(ctx context.Context, sub message.Subscriber, topic string, handler func(*message.Message) error) error {
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrapf(err, "events: subscribe %s", topic)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := handler(msg); err != nil {
				log.Debug().Err(err).Str("topic", topic).Str("message_uuid", msg.UUID).Msg("event handler failed")
			}
			msg.Ack()
		}
	}
}

// EnsureGroupAtTail creates the consumer group for stream at the tail ($) if
// it does not exist yet, so a new consumer does not replay old history.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "events: create group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
