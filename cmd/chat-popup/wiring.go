package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chat-popup/pkg/config"
	"github.com/go-go-golems/chat-popup/pkg/gateway"
	"github.com/go-go-golems/chat-popup/pkg/orchestrator"
	"github.com/go-go-golems/chat-popup/pkg/session"
	"github.com/go-go-golems/chat-popup/pkg/ui"
)

const closeGrace = 2 * time.Second

// app bundles what the chat commands share.
type app struct {
	store    session.Store
	orch     *orchestrator.Orchestrator
	renderer *ui.Renderer
}

func newApp(s config.Settings, interactive bool) (*app, error) {
	if err := s.RequireBaseURL(); err != nil {
		return nil, err
	}
	gw, err := gateway.NewHTTPGateway(s.BaseURL, append(s.GatewayOptions(), gateway.WithLogger(log.Logger))...)
	if err != nil {
		return nil, err
	}

	store, err := session.Open(s.SessionSettings())
	if err != nil {
		return nil, errors.Wrap(err, "open session store")
	}

	logger := log.Logger
	orch, err := orchestrator.New(orchestrator.Config{
		Store:    store,
		Gateway:  gw,
		Messages: s.Messages,
		Logger:   &logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	renderer, err := ui.NewRenderer(renderStyle(s.Render.Style, interactive), s.Render.Width)
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "create markdown renderer")
	}
	return &app{store: store, orch: orch, renderer: renderer}, nil
}

// Close gives in-flight submissions a moment to settle before the store goes
// away.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	if err := a.orch.Wait(ctx); err != nil {
		log.Warn().Int("queued", a.orch.QueueLen()).Msg("exiting with unsettled submissions")
	}
	return a.store.Close()
}

// renderStyle picks notty output when stdout is not a terminal and the style
// is left on auto.
func renderStyle(style string, interactive bool) string {
	s := strings.ToLower(strings.TrimSpace(style))
	if (s == "" || s == "auto") && !interactive && !isatty.IsTerminal(os.Stdout.Fd()) {
		return "notty"
	}
	return style
}
