package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoo/backend/internal/domain/chain"
	"github.com/invoo/backend/internal/domain/invoice"
	"github.com/invoo/backend/internal/domain/shared"
	"github.com/invoo/backend/internal/infrastructure/logger"
	"github.com/invoo/backend/internal/infrastructure/persistence/models"
	"github.com/invoo/backend/internal/infrastructure/safeguards"
	"github.com/invoo/backend/internal/infrastructure/verifactu"
)

// RemoteClient is the outbound surface of the VeriFactu API client
type RemoteClient interface {
	CreateInvoice(ctx context.Context, doc *invoice.Document) (*verifactu.SubmissionResponse, error)
	ModifyInvoice(ctx context.Context, doc *invoice.Document) (*verifactu.SubmissionResponse, error)
	CancelInvoice(ctx context.Context, series, number string) (*verifactu.SubmissionResponse, error)
	GetStatus(ctx context.Context, series, number string) (*verifactu.SubmissionResponse, error)
}

// RecordRepository persists the local view of every invoice and its remote
// submission state
type RecordRepository interface {
	Save(ctx context.Context, record *models.InvoiceRecord) error
	FindBySeriesNumber(ctx context.Context, series, number string) (*models.InvoiceRecord, error)
	ApplySubmission(ctx context.Context, series, number string, resp *verifactu.SubmissionResponse) error
	MarkFailed(ctx context.Context, series, number, errorDetail string) error
	UpdateStatus(ctx context.Context, series, number, status string) error
	ListPending(ctx context.Context, limit int) ([]models.InvoiceRecord, error)
}

// Result is the outcome of one invoice operation. Callers must read Success;
// a nil Err alone does not mean the submission went through.
type Result struct {
	Success           bool                          `json:"success"`
	Response          *verifactu.SubmissionResponse `json:"response,omitempty"`
	Err               error                         `json:"-"`
	ChainEvent        *chain.Event                  `json:"chain_event,omitempty"`
	SafeguardWarnings []string                      `json:"warnings,omitempty"`
}

// Service orchestrates invoice submission: safeguard gate, structural
// validation, chain consistency, the network call, and the audit trail.
// Local rejections return synchronously without touching the network and
// without recording chain events; every attempted network operation records
// exactly one chain event.
type Service struct {
	validator  *invoice.Validator
	chain      *chain.Manager
	safeguards *safeguards.Coordinator
	client     RemoteClient
	records    RecordRepository
	logger     *zap.Logger
}

// ServiceConfig contains the collaborators for Service
type ServiceConfig struct {
	Validator  *invoice.Validator
	Chain      *chain.Manager
	Safeguards *safeguards.Coordinator
	Client     RemoteClient
	Records    RecordRepository
	Logger     *zap.Logger
}

// NewService creates a new invoicing service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := cfg.Validator
	if validator == nil {
		validator = invoice.NewValidator(decimal.Zero)
	}
	return &Service{
		validator:  validator,
		chain:      cfg.Chain,
		safeguards: cfg.Safeguards,
		client:     cfg.Client,
		records:    cfg.Records,
		logger:     logger,
	}
}

// log returns the request-scoped logger when the context carries one, so
// service lines share the HTTP request id, and the injected logger otherwise
func (s *Service) log(ctx context.Context) *zap.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return s.logger
}

// CreateInvoice submits a new invoice to the remote ledger
func (s *Service) CreateInvoice(ctx context.Context, doc *invoice.Document) *Result {
	return s.submitDocument(ctx, doc, chain.EventCreated, "", s.client.CreateInvoice)
}

// ModifyInvoice resubmits an existing invoice with corrected data. The
// invoice must not have been cancelled.
func (s *Service) ModifyInvoice(ctx context.Context, doc *invoice.Document) *Result {
	return s.submitDocument(ctx, doc, chain.EventModified, "", s.client.ModifyInvoice)
}

// RectifyInvoice submits a rectification invoice (R1-R5) targeting a
// previously submitted invoice. The chain manager rejects rectifications
// that would create a cycle or exceed the maximum chain length.
func (s *Service) RectifyInvoice(ctx context.Context, doc *invoice.Document, targetID string) *Result {
	return s.submitDocument(ctx, doc, chain.EventRectified, targetID, s.client.CreateInvoice)
}

func (s *Service) submitDocument(ctx context.Context, doc *invoice.Document, eventType chain.EventType, targetID string, call func(context.Context, *invoice.Document) (*verifactu.SubmissionResponse, error)) *Result {
	result := &Result{}

	if rejection := s.safeguards.Preflight(); rejection != nil {
		result.Err = rejection
		return result
	}

	if violations := s.validator.Validate(doc); len(violations) > 0 {
		result.Err = &invoice.ValidationError{Violations: violations}
		return result
	}

	check := s.chain.ValidateOperation(doc.ID(), eventType, targetID)
	result.SafeguardWarnings = check.Warnings
	if !check.Valid {
		result.Err = &chain.ValidationError{InvoiceID: doc.ID(), Errors: check.Errors}
		return result
	}

	if err := s.saveLocalRecord(ctx, doc); err != nil {
		result.Err = err
		return result
	}

	resp, attempted, err := s.callRemote(ctx, func(ctx context.Context) (*verifactu.SubmissionResponse, error) {
		return call(ctx, doc)
	})
	if !attempted {
		result.Err = err
		return result
	}

	event := chain.Event{
		InvoiceID:       doc.ID(),
		EventType:       eventType,
		ParentInvoiceID: targetID,
		RequestPayload:  marshalPayload(doc),
	}
	if err != nil {
		event.Status = chain.StatusFailed
		event.ErrorDetail = err.Error()
		recorded := s.chain.RecordEvent(event)
		result.ChainEvent = &recorded
		result.Err = err

		if mErr := s.records.MarkFailed(ctx, doc.Series, doc.Number, err.Error()); mErr != nil {
			s.log(ctx).Warn("failed to record submission failure",
				zap.String("invoice_id", doc.ID()), zap.Error(mErr))
		}
		return result
	}

	event.Status = chain.StatusSuccess
	event.ResponsePayload = marshalPayload(resp)
	recorded := s.chain.RecordEvent(event)
	result.ChainEvent = &recorded
	result.Response = resp
	result.Success = true

	if wErr := s.records.ApplySubmission(ctx, doc.Series, doc.Number, resp); wErr != nil {
		s.log(ctx).Warn("submission succeeded but write-back failed",
			zap.String("invoice_id", doc.ID()), zap.Error(wErr))
	}
	return result
}

// CancelInvoice voids a previously submitted invoice in the remote ledger
func (s *Service) CancelInvoice(ctx context.Context, series, number string) *Result {
	result := &Result{}
	invoiceID := series + "-" + number

	if rejection := s.safeguards.Preflight(); rejection != nil {
		result.Err = rejection
		return result
	}

	check := s.chain.ValidateOperation(invoiceID, chain.EventCancelled, "")
	result.SafeguardWarnings = check.Warnings
	if !check.Valid {
		result.Err = &chain.ValidationError{InvoiceID: invoiceID, Errors: check.Errors}
		return result
	}

	resp, attempted, err := s.callRemote(ctx, func(ctx context.Context) (*verifactu.SubmissionResponse, error) {
		return s.client.CancelInvoice(ctx, series, number)
	})
	if !attempted {
		result.Err = err
		return result
	}

	event := chain.Event{
		InvoiceID: invoiceID,
		EventType: chain.EventCancelled,
	}
	if err != nil {
		event.Status = chain.StatusFailed
		event.ErrorDetail = err.Error()
		recorded := s.chain.RecordEvent(event)
		result.ChainEvent = &recorded
		result.Err = err

		if mErr := s.records.MarkFailed(ctx, series, number, err.Error()); mErr != nil && !errors.Is(mErr, shared.ErrNotFound) {
			s.log(ctx).Warn("failed to record cancellation failure",
				zap.String("invoice_id", invoiceID), zap.Error(mErr))
		}
		return result
	}

	event.Status = chain.StatusSuccess
	event.ResponsePayload = marshalPayload(resp)
	recorded := s.chain.RecordEvent(event)
	result.ChainEvent = &recorded
	result.Response = resp
	result.Success = true

	if wErr := s.records.ApplySubmission(ctx, series, number, resp); wErr != nil && !errors.Is(wErr, shared.ErrNotFound) {
		s.log(ctx).Warn("cancellation succeeded but write-back failed",
			zap.String("invoice_id", invoiceID), zap.Error(wErr))
	}
	return result
}

// GetStatus queries the remote ledger for the current submission status.
// Read-only: bypasses the safeguard gate and records no chain events.
func (s *Service) GetStatus(ctx context.Context, series, number string) (*verifactu.SubmissionResponse, error) {
	resp, err := s.client.GetStatus(ctx, series, number)
	if err != nil {
		return nil, err
	}
	resp.Status = NormalizeStatus(resp.Status)
	return resp, nil
}

// SyncPendingStatuses refreshes every non-terminal invoice record from the
// remote ledger. Returns the number of records whose status changed.
// Per-record failures are logged and skipped so one bad invoice cannot
// stall the sweep.
func (s *Service) SyncPendingStatuses(ctx context.Context, limit int) (int, error) {
	pending, err := s.records.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range pending {
		record := &pending[i]
		resp, err := s.GetStatus(ctx, record.Series, record.Number)
		if err != nil {
			s.log(ctx).Warn("status sync failed for invoice",
				zap.String("series", record.Series),
				zap.String("number", record.Number),
				zap.Error(err))
			continue
		}

		if resp.Status == record.Status {
			continue
		}
		if err := s.records.UpdateStatus(ctx, record.Series, record.Number, resp.Status); err != nil {
			s.log(ctx).Warn("status sync write failed",
				zap.String("series", record.Series),
				zap.String("number", record.Number),
				zap.Error(err))
			continue
		}
		updated++
	}

	s.log(ctx).Info("status sync completed",
		zap.Int("checked", len(pending)),
		zap.Int("updated", updated))
	return updated, nil
}

// ChainFor returns the recorded lifecycle events of an invoice
func (s *Service) ChainFor(invoiceID string) []chain.Event {
	return s.chain.GetInvoiceChain(invoiceID)
}

// callRemote runs an already-admitted network call behind the safeguard
// accounting. attempted is false when the call never reached the wire, such
// as a context cancellation while waiting on the burst pacer.
func (s *Service) callRemote(ctx context.Context, call func(context.Context) (*verifactu.SubmissionResponse, error)) (resp *verifactu.SubmissionResponse, attempted bool, err error) {
	execErr := s.safeguards.ExecuteAdmitted(ctx, func(ctx context.Context) error {
		attempted = true
		var callErr error
		resp, callErr = call(ctx)
		return callErr
	})
	return resp, attempted, execErr
}

// saveLocalRecord upserts the invoice into local storage with pending status
// before the network attempt, so a crash mid-submission leaves a row to
// reconcile against.
func (s *Service) saveLocalRecord(ctx context.Context, doc *invoice.Document) error {
	now := time.Now()
	return s.records.Save(ctx, &models.InvoiceRecord{
		Series:      doc.Series,
		Number:      doc.Number,
		IssueDate:   doc.IssueDate,
		InvoiceType: string(doc.InvoiceType),
		Description: doc.Description,
		Total:       doc.Total,
		Status:      verifactu.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func marshalPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
