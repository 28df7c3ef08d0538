package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

var webhookTracer = otel.Tracer("concierge.internal.whatsapp.webhook")

const maxWebhookBody = 1 << 20

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, evt conversation.InboundEvent) error
}

// WebhookHandler serves the Meta webhook: GET verification and POST notifications.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	publisher   inboundPublisher
	metrics     *metrics.ConversationMetrics
	logger      *logging.Logger
}

// NewWebhookHandler builds the handler. An empty appSecret disables signature checks.
func NewWebhookHandler(verifyToken, appSecret string, publisher inboundPublisher, m *metrics.ConversationMetrics, logger *logging.Logger) *WebhookHandler {
	if publisher == nil {
		panic("whatsapp: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
	}
}

// Verify handles GET /webhooks/whatsapp subscription checks.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		h.logger.Warn("whatsapp webhook verification rejected", "mode", q.Get("hub.mode"))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

// Receive handles POST /webhooks/whatsapp notifications. Text messages are
// queued; everything else is acknowledged and dropped.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "whatsapp.webhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read whatsapp webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" {
		if err := ValidateSignature(h.appSecret, r.Header.Get("X-Hub-Signature-256"), body); err != nil {
			h.logger.Warn("invalid whatsapp signature", "error", err)
			span.RecordError(err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("failed to parse whatsapp webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	queued := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if h.enqueue(ctx, msg) {
					queued++
				}
			}
		}
	}
	span.SetAttributes(attribute.Int("whatsapp.queued", queued))

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) enqueue(ctx context.Context, msg InboundMessage) bool {
	text := msg.Body()
	if msg.ID == "" || msg.From == "" || strings.TrimSpace(text) == "" {
		h.metrics.ObserveInbound(msg.Type, "ignored")
		h.logger.Debug("ignoring non-text whatsapp message", "type", msg.Type, "message_id", msg.ID)
		return false
	}

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := h.publisher.EnqueueInbound(publishCtx, conversation.InboundEvent{
		MessageID:  msg.ID,
		Sender:     msg.From,
		Text:       text,
		ReceivedAt: parseTimestamp(msg.Timestamp),
	})
	if err != nil {
		h.metrics.ObserveInbound(msg.Type, "failed")
		h.logger.Error("failed to enqueue whatsapp message", "error", err, "message_id", msg.ID)
		return false
	}
	h.metrics.ObserveInbound(msg.Type, "queued")
	return true
}

func parseTimestamp(raw string) time.Time {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
