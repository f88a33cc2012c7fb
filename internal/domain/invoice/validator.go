package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the issue date format required by the remote API
	DateLayout = "02-01-2006"

	maxSeriesNumberLength = 60
	minDescriptionLength  = 1
	maxDescriptionLength  = 500
	minLines              = 1
	maxLines              = 12
)

var (
	// DefaultTotalTolerance is the discrepancy the remote API tolerates between
	// the declared total and the sum of line amounts. Treated as policy, not
	// contract: override via configuration if the remote contract changes.
	DefaultTotalTolerance = decimal.NewFromInt(10)

	// lineTaxTolerance is the rounding slack allowed on per-line tax derivation
	lineTaxTolerance = decimal.RequireFromString("0.01")

	// simplifiedCeiling is the legal threshold for simplified (F2) invoices
	simplifiedCeiling = decimal.NewFromInt(3000)
)

// Violation is a single field-level validation failure
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found in a document. The full
// list is always returned; downstream UIs and logs depend on complete
// diagnostics, not just the first failure.
type ValidationError struct {
	Violations []Violation
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return "invoice validation failed: " + strings.Join(parts, "; ")
}

// Validator checks an outbound document against the remote API's structural
// and numeric contract. Pure and deterministic: no I/O, no mutation.
type Validator struct {
	totalTolerance decimal.Decimal
	now            func() time.Time
}

// NewValidator creates a validator with the given declared-total tolerance
func NewValidator(totalTolerance decimal.Decimal) *Validator {
	if totalTolerance.LessThanOrEqual(decimal.Zero) {
		totalTolerance = DefaultTotalTolerance
	}
	return &Validator{
		totalTolerance: totalTolerance,
		now:            time.Now,
	}
}

// Validate returns every violation in the document, in contract order.
// An empty slice means the document is safe to submit.
func (v *Validator) Validate(doc *Document) []Violation {
	var violations []Violation
	add := func(field, code, message string) {
		violations = append(violations, Violation{Field: field, Code: code, Message: message})
	}

	// Series and number identify the invoice in the remote ledger
	if strings.TrimSpace(doc.Series) == "" {
		add("serie", "REQUIRED", "series is mandatory")
	}
	if strings.TrimSpace(doc.Number) == "" {
		add("numero", "REQUIRED", "number is mandatory")
	}
	if doc.Series != "" && doc.Number != "" && len(doc.Series)+len(doc.Number) > maxSeriesNumberLength {
		add("serie_numero", "LENGTH",
			fmt.Sprintf("combined series + number cannot exceed %d characters", maxSeriesNumberLength))
	}

	// Issue date: exact DD-MM-YYYY, never in the future
	if doc.IssueDate == "" {
		add("fecha_expedicion", "REQUIRED", "issue date is mandatory")
	} else if issued, err := time.Parse(DateLayout, doc.IssueDate); err != nil {
		add("fecha_expedicion", "FORMAT", "issue date must be in DD-MM-YYYY format")
	} else {
		y, m, d := v.now().Date()
		endOfToday := time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
		if issued.After(endOfToday) {
			add("fecha_expedicion", "FUTURE_DATE", "issue date cannot be in the future")
		}
	}

	if !doc.InvoiceType.IsValid() {
		add("tipo_factura", "INVALID_TYPE",
			fmt.Sprintf("invalid invoice type %q, must be one of F1, F2, F3, R1, R2, R3, R4, R5", doc.InvoiceType))
	}

	if length := len(doc.Description); length < minDescriptionLength || length > maxDescriptionLength {
		add("descripcion", "LENGTH",
			fmt.Sprintf("description must be between %d and %d characters", minDescriptionLength, maxDescriptionLength))
	}

	switch {
	case len(doc.Lines) < minLines:
		add("lineas", "REQUIRED", "at least one line item is required")
	case len(doc.Lines) > maxLines:
		add("lineas", "LENGTH", fmt.Sprintf("maximum %d line items allowed", maxLines))
	default:
		for i, line := range doc.Lines {
			v.validateLine(i, line, add)
		}
	}

	if doc.Total.LessThanOrEqual(decimal.Zero) {
		add("importe_total", "RANGE", "total amount must be greater than 0")
	}

	// Declared total must match the sum of line amounts within tolerance
	if len(doc.Lines) >= minLines && len(doc.Lines) <= maxLines {
		computed := doc.ComputedTotal()
		diff := computed.Sub(doc.Total).Abs()
		if diff.GreaterThan(v.totalTolerance) {
			add("importe_total", "TOTAL_MISMATCH",
				fmt.Sprintf("declared total %s differs from computed total %s by %s, maximum allowed is %s",
					doc.Total.StringFixed(2), computed.StringFixed(2), diff.StringFixed(2), v.totalTolerance.StringFixed(2)))
		}
	}

	if doc.InvoiceType == TypeSimplified && doc.Total.GreaterThanOrEqual(simplifiedCeiling) {
		add("importe_total", "SIMPLIFIED_CEILING",
			fmt.Sprintf("simplified (F2) invoices must be under %s", simplifiedCeiling.StringFixed(2)))
	}

	return violations
}

func (v *Validator) validateLine(index int, line Line, add func(field, code, message string)) {
	prefix := fmt.Sprintf("lineas[%d]", index)

	if line.Base.IsNegative() {
		add(prefix+".base_imponible", "RANGE", "taxable base must not be negative")
	}

	if !validRate(line.Rate) {
		add(prefix+".tipo_impositivo", "INVALID_RATE",
			fmt.Sprintf("invalid tax rate %s, must be one of 0, 4, 10, 21", line.Rate.String()))
		return
	}

	if line.TaxAmount.IsNegative() {
		add(prefix+".cuota_repercutida", "RANGE", "tax amount must not be negative")
	}

	// Tax amount is declared, not derived: verify base x rate / 100 within rounding slack
	expected := line.Base.Mul(line.Rate).Div(decimal.NewFromInt(100))
	if expected.Sub(line.TaxAmount).Abs().GreaterThan(lineTaxTolerance) {
		add(prefix+".cuota_repercutida", "TAX_MISMATCH",
			fmt.Sprintf("tax amount %s does not match base x rate (expected %s)",
				line.TaxAmount.StringFixed(2), expected.StringFixed(2)))
	}
}

func validRate(rate decimal.Decimal) bool {
	for _, r := range ValidTaxRates {
		if rate.Equal(decimal.NewFromInt(r)) {
			return true
		}
	}
	return false
}
