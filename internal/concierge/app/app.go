// Package app assembles the concierge: it owns construction order, the
// process lifecycle and the background sweepers, so cmd/concierge stays a
// thin config-and-run shell.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/capsulepod/concierge/internal/concierge/activity"
	"github.com/capsulepod/concierge/internal/concierge/conversation"
	"github.com/capsulepod/concierge/internal/concierge/escalate"
	"github.com/capsulepod/concierge/internal/concierge/intent"
	"github.com/capsulepod/concierge/internal/concierge/knowledge"
	"github.com/capsulepod/concierge/internal/concierge/matrix"
	"github.com/capsulepod/concierge/internal/concierge/ratelimit"
	"github.com/capsulepod/concierge/internal/concierge/router"
	"github.com/capsulepod/concierge/internal/concierge/webhook"
)

// Config holds application configuration.
type Config struct {
	// KnowledgePath is the YAML knowledge document (answers + staff exemption
	// list). Required.
	KnowledgePath string

	// DatabasePath is the SQLite file for the activity log. When empty the
	// log is disabled and turns are not recorded.
	DatabasePath string

	// WebhookAddr is the listen address of the HTTP ingress (e.g. ":8080").
	// Required.
	WebhookAddr string
	// WebhookVerifyToken is the shared secret for the GET verify handshake.
	// Required.
	WebhookVerifyToken string

	// Sender delivers replies back to guests over the messaging transport.
	// When nil, replies are logged and dropped (dry-run mode).
	Sender webhook.Sender

	// LLM configures the classification provider and the reply composer.
	// When the API key is empty, tier 2 degrades to unknown and replies come
	// from the knowledge base only.
	LLM intent.Config

	// Matrix configures the staff-side client; StaffRoomID is the ops room
	// that receives escalation notices. Both empty disables the notifier.
	Matrix      matrix.Config
	StaffRoomID string

	// RatePerMinute and RatePerHour override the rate-limiter caps.
	// Non-positive values use the defaults (20/min, 100/h).
	RatePerMinute int
	RatePerHour   int

	// Conversation overrides the conversation store's TTL, message cap and
	// sweep interval. Zero values use the defaults.
	Conversation conversation.StoreConfig
}

// App is the assembled concierge.
type App struct {
	config  Config
	kb      *knowledge.Handle
	limiter *ratelimit.Limiter
	convs   *conversation.Store
	log     *activity.Log
	server  *webhook.Server
}

// New wires up every subsystem from config. It fails fast on anything that
// would otherwise surface mid-conversation: an unreadable knowledge document,
// a broken database, a misconfigured Matrix client.
func New(config Config) (*App, error) {
	slog.Info("loading knowledge base", "path", config.KnowledgePath)
	base, err := knowledge.Load(config.KnowledgePath)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	kb := knowledge.NewHandle(base)

	limiter := ratelimit.NewLimiter(config.RatePerMinute, config.RatePerHour)
	limiter.SetExempt(kb.ExemptNumbers())

	convs := conversation.NewStore(config.Conversation)

	var provider intent.Provider
	var replier router.Replier
	if config.LLM.APIKey != "" {
		provider = intent.NewProvider(config.LLM)
		replier = intent.NewReplier(config.LLM)
		slog.Info("LLM tier ready", "model", config.LLM.Model)
	} else {
		slog.Info("no LLM API key; pattern tier and knowledge base only")
	}
	classifier := intent.NewClassifier(provider)

	var notifier escalate.Notifier = escalate.Noop{}
	if config.Matrix.Homeserver != "" && config.StaffRoomID != "" {
		client, err := matrix.New(config.Matrix)
		if err != nil {
			return nil, fmt.Errorf("matrix client: %w", err)
		}
		notifier = escalate.NewRoomNotifier(client, config.StaffRoomID)
		slog.Info("staff escalation notifier ready", "room", config.StaffRoomID)
	} else {
		slog.Info("no staff room configured; escalations will only be logged")
	}

	var log *activity.Log
	var recorder router.Recorder
	if config.DatabasePath != "" {
		log, err = activity.Open(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open activity log: %w", err)
		}
		recorder = log
		slog.Info("activity log ready", "path", config.DatabasePath)
	}

	rt := router.New(limiter, convs, classifier, kb, router.Options{
		Replier:  replier,
		Recorder: recorder,
		Notifier: notifier,
	})

	server := webhook.New(webhook.Config{
		Addr:        config.WebhookAddr,
		VerifyToken: config.WebhookVerifyToken,
	}, rt, config.Sender)

	return &App{
		config:  config,
		kb:      kb,
		limiter: limiter,
		convs:   convs,
		log:     log,
		server:  server,
	}, nil
}

// ReloadKnowledge re-reads the knowledge document and atomically swaps the
// served snapshot and the rate-limit exemption list. On failure the previous
// snapshot stays in place.
func (a *App) ReloadKnowledge() error {
	base, err := knowledge.Load(a.config.KnowledgePath)
	if err != nil {
		return fmt.Errorf("reload knowledge base: %w", err)
	}
	a.kb.Swap(base)
	a.limiter.SetExempt(base.ExemptNumbers())
	slog.Info("knowledge base reloaded", "path", a.config.KnowledgePath)
	return nil
}

// Run starts the ingress and the background sweepers, then blocks until the
// process receives SIGINT or SIGTERM. SIGHUP triggers a knowledge reload
// without a restart.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("start webhook server: %w", err)
	}

	a.convs.StartSweeper(ctx)
	go a.sweepLimiter(ctx)

	slog.Info("concierge is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for {
		sig := <-sigCh
		if sig == syscall.SIGHUP {
			if err := a.ReloadKnowledge(); err != nil {
				slog.Error("knowledge reload failed; keeping previous snapshot", "err", err)
			}
			continue
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

// Stop shuts down the ingress and closes the activity log.
func (a *App) Stop() {
	slog.Info("stopping webhook server")
	a.server.Stop()

	if a.log != nil {
		slog.Info("closing activity log")
		if err := a.log.Close(); err != nil {
			slog.Warn("close activity log", "err", err)
		}
	}
}

// sweepLimiter prunes idle rate-limiter entries on the conversation sweep
// cadence.
func (a *App) sweepLimiter(ctx context.Context) {
	interval := a.config.Conversation.SweepInterval
	if interval <= 0 {
		interval = conversation.DefaultStoreConfig().SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.SweepIdle(time.Now()); n > 0 {
				slog.Debug("rate limiter sweep", "removed", n)
			}
		}
	}
}
