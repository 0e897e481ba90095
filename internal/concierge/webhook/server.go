// Package webhook implements the WhatsApp-Cloud-API-style HTTP ingress.
//
// Two routes share one path: GET performs the platform's verify handshake
// (echoing hub.challenge when the verify token matches) and POST delivers
// message payloads. Inbound text messages are routed and the reply is handed
// to the outbound Sender; everything else in the payload (statuses, media we
// do not handle) is acknowledged and dropped. The platform retries on
// non-2xx, so delivery POSTs always answer 200 once the body parses.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/capsulepod/concierge/common/redact"
	"github.com/capsulepod/concierge/internal/concierge/router"
)

// maxBodyBytes caps the accepted payload size. Cloud API message payloads
// are small; anything larger is not a message delivery.
const maxBodyBytes = 1 << 20

// Sender delivers a reply back to a guest over the messaging transport.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// Handler routes one inbound guest message. *router.Router satisfies this.
type Handler interface {
	Handle(ctx context.Context, in router.Inbound) router.Outbound
}

// Config holds options for the webhook Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// VerifyToken is the shared secret echoed back during the GET verify
	// handshake. Required.
	VerifyToken string
	// Path is the webhook route. Defaults to "/webhook".
	Path string
}

// Server is the HTTP ingress. It owns the listener lifecycle; the routing
// pipeline and the outbound transport are injected.
type Server struct {
	cfg     Config
	handler Handler
	sender  Sender
	mux     *http.ServeMux
	server  *http.Server
}

// New creates a Server (does not start it). sender may be nil, in which case
// replies are logged and dropped — useful for dry runs.
func New(cfg Config, handler Handler, sender Sender) *Server {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	s := &Server{
		cfg:     cfg,
		handler: handler,
		sender:  sender,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc(cfg.Path, s.handleWebhook)
	return s
}

// ServeHTTP implements http.Handler so the server can be tested with
// httptest.NewRecorder without a live listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handle registers an extra route on the underlying mux (e.g. /health).
// Call before Start.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webhook: listen %s: %w", s.cfg.Addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("webhook server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("webhook server shutdown error", "err", err)
	}
}

// handleWebhook dispatches the shared webhook path.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerify(w, r)
	case http.MethodPost:
		s.handleDelivery(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerify answers the subscription handshake: when hub.mode is
// "subscribe" and the token matches, the challenge is echoed verbatim.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != s.cfg.VerifyToken {
		slog.Warn("webhook: verify handshake rejected", "mode", mode)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// --- delivery payload (Cloud API subset) -----------------------------------

type deliveryPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// handleDelivery decodes a message payload and routes each text message.
// Replies are sent synchronously; the Cloud API tolerates a slow 200 better
// than a retry storm from a 5xx.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var payload deliveryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("webhook: malformed delivery payload", "err", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "" && msg.Type != "text" {
					slog.Debug("webhook: skipping non-text message",
						"type", msg.Type, "sender", redact.Phone(msg.From))
					continue
				}
				if msg.Text.Body == "" {
					continue
				}
				s.routeMessage(r.Context(), msg.From, names[msg.From], msg.Text.Body)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

// routeMessage runs one message through the pipeline and delivers the reply.
func (s *Server) routeMessage(ctx context.Context, from, name, text string) {
	out := s.handler.Handle(ctx, router.Inbound{
		SenderKey:   from,
		DisplayName: name,
		Text:        text,
	})

	if s.sender == nil {
		slog.Info("webhook: no sender configured, dropping reply",
			"sender", redact.Phone(from), "intent", out.Intent)
		return
	}
	if err := s.sender.SendText(ctx, from, out.Reply); err != nil {
		slog.Error("webhook: send reply",
			"sender", redact.Phone(from), "err", err)
	}
}
