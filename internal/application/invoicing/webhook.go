package invoicing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/invoo/backend/internal/domain/chain"
	"github.com/invoo/backend/internal/domain/shared"
	"github.com/invoo/backend/internal/infrastructure/logger"
	"github.com/invoo/backend/internal/infrastructure/verifactu"
)

// ErrInvalidSignature is returned when the webhook signature does not match
// the shared secret
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// dedupTTL covers the remote API's redelivery window with margin
const dedupTTL = 24 * time.Hour

// WebhookNotification is the body of a status notification from the remote
// API. One notification can carry updates for several invoices.
type WebhookNotification struct {
	Timestamp string           `json:"timestamp"`
	Invoices  []WebhookInvoice `json:"invoices"`
}

// WebhookInvoice is one invoice status update inside a notification
type WebhookInvoice struct {
	UUID      string         `json:"uuid"`
	TaxID     string         `json:"nif"`
	Series    string         `json:"serie"`
	Number    string         `json:"numero"`
	SentAt    string         `json:"fecha_envio"`
	Status    string         `json:"estado"`
	Errors    []WebhookError `json:"errores,omitempty"`
	Hash      string         `json:"hash,omitempty"`
	QRCodeURL string         `json:"qr_code_url,omitempty"`
	PDFURL    string         `json:"pdf_url,omitempty"`
}

// WebhookError is a remote validation error attached to a notification entry
type WebhookError struct {
	Code    string `json:"codigo"`
	Message string `json:"mensaje"`
}

// WebhookResult summarizes the processing of one notification
type WebhookResult struct {
	Received   int `json:"received"`
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// WebhookService verifies and applies inbound status notifications: HMAC
// signature check, per-entry deduplication, chain event recording, and the
// invoice record status update.
type WebhookService struct {
	secret  []byte
	chain   *chain.Manager
	records RecordRepository
	dedup   shared.IdempotencyStore
	logger  *zap.Logger
}

// WebhookServiceConfig contains the collaborators for WebhookService
type WebhookServiceConfig struct {
	Secret  string
	Chain   *chain.Manager
	Records RecordRepository
	Dedup   shared.IdempotencyStore
	Logger  *zap.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookService{
		secret:  []byte(cfg.Secret),
		chain:   cfg.Chain,
		records: cfg.Records,
		dedup:   cfg.Dedup,
		logger:  logger,
	}
}

// log returns the request-scoped logger when the context carries one, so
// webhook lines share the HTTP request id, and the injected logger otherwise
func (s *WebhookService) log(ctx context.Context) *zap.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return s.logger
}

// Signature computes the hex HMAC-SHA256 of a payload with the shared secret
func (s *WebhookService) Signature(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the X-Webhook-Signature header against the raw
// request body in constant time
func (s *WebhookService) VerifySignature(payload []byte, signature string) bool {
	expected := s.Signature(payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ProcessNotification verifies, deduplicates, and applies one notification.
// The raw body must be the exact bytes the signature was computed over.
// Per-entry failures are counted, not fatal: a redelivery will retry them.
func (s *WebhookService) ProcessNotification(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	if !s.VerifySignature(rawBody, signature) {
		s.log(ctx).Warn("rejected webhook with bad signature")
		return nil, ErrInvalidSignature
	}

	var notification WebhookNotification
	if err := json.Unmarshal(rawBody, &notification); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}

	result := &WebhookResult{Received: len(notification.Invoices)}
	for _, entry := range notification.Invoices {
		switch s.applyEntry(ctx, entry) {
		case entryDuplicate:
			result.Duplicates++
		case entryFailed:
			result.Failed++
		default:
			result.Processed++
		}
	}

	s.log(ctx).Info("processed webhook notification",
		zap.Int("received", result.Received),
		zap.Int("processed", result.Processed),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed))
	return result, nil
}

type entryOutcome int

const (
	entryProcessed entryOutcome = iota
	entryDuplicate
	entryFailed
)

func (s *WebhookService) applyEntry(ctx context.Context, entry WebhookInvoice) entryOutcome {
	invoiceID := entry.Series + "-" + entry.Number

	fresh, err := s.dedup.MarkProcessed(ctx, s.dedupKey(entry), dedupTTL)
	if err != nil {
		s.log(ctx).Error("webhook dedup check failed",
			zap.String("invoice_id", invoiceID), zap.Error(err))
		return entryFailed
	}
	if !fresh {
		s.log(ctx).Debug("dropped duplicate webhook entry",
			zap.String("invoice_id", invoiceID))
		return entryDuplicate
	}

	status := NormalizeStatus(entry.Status)
	s.recordChainEvent(invoiceID, entry, status)

	if err := s.records.UpdateStatus(ctx, entry.Series, entry.Number, status); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// notification for an invoice another system submitted
			s.log(ctx).Warn("webhook for unknown invoice",
				zap.String("invoice_id", invoiceID),
				zap.String("status", status))
			return entryProcessed
		}
		s.log(ctx).Error("webhook status update failed",
			zap.String("invoice_id", invoiceID), zap.Error(err))
		return entryFailed
	}
	return entryProcessed
}

func (s *WebhookService) recordChainEvent(invoiceID string, entry WebhookInvoice, status string) {
	eventType := chain.EventModified
	if status == verifactu.StatusCancelled {
		// a cancellation confirmation must flip the chain's cancelled state
		eventType = chain.EventCancelled
	}
	event := chain.Event{
		InvoiceID:       invoiceID,
		EventType:       eventType,
		ResponsePayload: marshalPayload(entry),
		Status:          chain.StatusSuccess,
	}
	if entry.Status == "incorrect" || entry.Status == "error" {
		event.Status = chain.StatusFailed
	}
	if len(entry.Errors) > 0 {
		details := make([]string, len(entry.Errors))
		for i, e := range entry.Errors {
			details[i] = e.Message
		}
		event.ErrorDetail = strings.Join(details, "; ")
	}
	s.chain.RecordEvent(event)
}

// dedupKey identifies one notification entry. The remote API assigns each
// update a UUID; entries without one fall back to identity plus status and
// send time so distinct updates for the same invoice are never conflated.
func (s *WebhookService) dedupKey(entry WebhookInvoice) string {
	if entry.UUID != "" {
		return entry.UUID
	}
	return entry.Series + ":" + entry.Number + ":" + entry.Status + ":" + entry.SentAt
}
