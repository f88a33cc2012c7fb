package verifactu

// Submission statuses reported by the remote API
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSubmitted  = "submitted"
	StatusAccepted   = "accepted"
	StatusRejected   = "rejected"
	StatusCancelled  = "cancelled"
	StatusError      = "error"
)

// SubmissionResponse is the remote API's answer to create, modify, cancel,
// and status calls. Hash, signature, and QR payload are written back to the
// invoice record by the caller.
type SubmissionResponse struct {
	ID               string       `json:"id"`
	Hash             string       `json:"hash"`
	Signature        string       `json:"signature"`
	QRCodeURL        string       `json:"qr_code_url"`
	PDFURL           string       `json:"pdf_url,omitempty"`
	Status           string       `json:"status"`
	AEATSubmissionID string       `json:"aeat_submission_id,omitempty"`
	Errors           []FieldError `json:"errors,omitempty"`
}

// IsTerminal reports whether the status will not change without another
// submission
func IsTerminal(status string) bool {
	switch status {
	case StatusAccepted, StatusRejected, StatusCancelled, StatusError:
		return true
	}
	return false
}

// cancelRequest is the payload for invoice cancellation
type cancelRequest struct {
	IssuerTaxID string `json:"nif_emisor"`
	Series      string `json:"serie"`
	Number      string `json:"numero"`
}
