package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validDocument() *Document {
	return &Document{
		Series:      "A",
		Number:      "1",
		IssueDate:   "15-03-2025",
		InvoiceType: TypeStandard,
		Description: "Prestacion de servicios profesionales",
		Lines: []Line{
			{Base: dec("100.00"), Rate: dec("21"), TaxAmount: dec("21.00")},
		},
		Total: dec("121.00"),
	}
}

func newTestValidator() *Validator {
	v := NewValidator(DefaultTotalTolerance)
	v.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return v
}

func TestValidator_ValidDocument(t *testing.T) {
	v := newTestValidator()

	violations := v.Validate(validDocument())

	assert.Empty(t, violations)
}

func TestValidator_MissingSeriesAndNumber(t *testing.T) {
	v := newTestValidator()
	doc := validDocument()
	doc.Series = ""
	doc.Number = "  "

	violations := v.Validate(doc)

	require.Len(t, violations, 2)
	assert.Equal(t, "serie", violations[0].Field)
	assert.Equal(t, "REQUIRED", violations[0].Code)
	assert.Equal(t, "numero", violations[1].Field)
}

func TestValidator_SeriesNumberCombinedLength(t *testing.T) {
	v := newTestValidator()
	doc := validDocument()
	doc.Series = strings.Repeat("A", 40)
	doc.Number = strings.Repeat("1", 21)

	violations := v.Validate(doc)

	require.Len(t, violations, 1)
	assert.Equal(t, "serie_numero", violations[0].Field)
	assert.Equal(t, "LENGTH", violations[0].Code)
}

func TestValidator_IssueDate(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		wantCode string
	}{
		{name: "missing", date: "", wantCode: "REQUIRED"},
		{name: "iso format rejected", date: "2025-03-15", wantCode: "FORMAT"},
		{name: "garbage", date: "15/03/2025", wantCode: "FORMAT"},
		{name: "future", date: "02-06-2025", wantCode: "FUTURE_DATE"},
		{name: "today allowed", date: "01-06-2025", wantCode: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator()
			doc := validDocument()
			doc.IssueDate = tt.date

			violations := v.Validate(doc)

			if tt.wantCode == "" {
				assert.Empty(t, violations)
				return
			}
			require.Len(t, violations, 1)
			assert.Equal(t, "fecha_expedicion", violations[0].Field)
			assert.Equal(t, tt.wantCode, violations[0].Code)
		})
	}
}

func TestValidator_InvoiceType(t *testing.T) {
	v := newTestValidator()
	doc := validDocument()
	doc.InvoiceType = "F9"

	violations := v.Validate(doc)

	require.Len(t, violations, 1)
	assert.Equal(t, "tipo_factura", violations[0].Field)
}

func TestValidator_DescriptionBounds(t *testing.T) {
	v := newTestValidator()

	doc := validDocument()
	doc.Description = ""
	violations := v.Validate(doc)
	require.Len(t, violations, 1)
	assert.Equal(t, "descripcion", violations[0].Field)

	doc = validDocument()
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}
	doc.Description = string(long)
	violations = v.Validate(doc)
	require.Len(t, violations, 1)
	assert.Equal(t, "descripcion", violations[0].Field)
}

func TestValidator_LineCountBounds(t *testing.T) {
	v := newTestValidator()

	doc := validDocument()
	doc.Lines = nil
	violations := v.Validate(doc)
	// no lines also breaks the declared total check path, but only the
	// line violation plus total range remains in play
	require.NotEmpty(t, violations)
	assert.Equal(t, "lineas", violations[0].Field)
	assert.Equal(t, "REQUIRED", violations[0].Code)

	doc = validDocument()
	line := Line{Base: dec("10.00"), Rate: dec("0"), TaxAmount: dec("0")}
	doc.Lines = nil
	for range 13 {
		doc.Lines = append(doc.Lines, line)
	}
	doc.Total = dec("130.00")
	violations = v.Validate(doc)
	require.Len(t, violations, 1)
	assert.Equal(t, "lineas", violations[0].Field)
	assert.Equal(t, "LENGTH", violations[0].Code)
}

func TestValidator_LineChecks(t *testing.T) {
	tests := []struct {
		name      string
		line      Line
		wantField string
		wantCode  string
	}{
		{
			name:      "negative base",
			line:      Line{Base: dec("-5"), Rate: dec("21"), TaxAmount: dec("-1.05")},
			wantField: "lineas[0].base_imponible",
			wantCode:  "RANGE",
		},
		{
			name:      "invalid rate",
			line:      Line{Base: dec("100"), Rate: dec("15"), TaxAmount: dec("15")},
			wantField: "lineas[0].tipo_impositivo",
			wantCode:  "INVALID_RATE",
		},
		{
			name:      "tax derivation mismatch",
			line:      Line{Base: dec("100"), Rate: dec("21"), TaxAmount: dec("20.00")},
			wantField: "lineas[0].cuota_repercutida",
			wantCode:  "TAX_MISMATCH",
		},
		{
			name: "tax within one cent accepted",
			line: Line{Base: dec("33.33"), Rate: dec("21"), TaxAmount: dec("7.00")},
			// 33.33 * 21% = 6.9993, |7.00 - 6.9993| = 0.0007 <= 0.01
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator()
			doc := validDocument()
			doc.Lines = []Line{tt.line}
			doc.Total = tt.line.Base.Add(tt.line.TaxAmount)

			violations := v.Validate(doc)

			if tt.wantField == "" {
				assert.Empty(t, violations)
				return
			}
			require.NotEmpty(t, violations)
			assert.Equal(t, tt.wantField, violations[0].Field)
			assert.Equal(t, tt.wantCode, violations[0].Code)
		})
	}
}

func TestValidator_TotalMismatch(t *testing.T) {
	v := newTestValidator()
	doc := validDocument()
	doc.Total = dec("100.00") // computed is 121.00, off by 21 > 10

	violations := v.Validate(doc)

	require.Len(t, violations, 1)
	assert.Equal(t, "importe_total", violations[0].Field)
	assert.Equal(t, "TOTAL_MISMATCH", violations[0].Code)
	assert.Contains(t, violations[0].Message, "10.00")
}

func TestValidator_TotalWithinTolerance(t *testing.T) {
	v := newTestValidator()
	doc := validDocument()
	doc.Total = dec("115.00") // off by 6, inside the default 10 tolerance

	violations := v.Validate(doc)

	assert.Empty(t, violations)
}

func TestValidator_ConfigurableTolerance(t *testing.T) {
	v := NewValidator(decimal.NewFromInt(1))
	v.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	doc := validDocument()
	doc.Total = dec("115.00")

	violations := v.Validate(doc)

	require.Len(t, violations, 1)
	assert.Equal(t, "TOTAL_MISMATCH", violations[0].Code)
}

func TestValidator_SimplifiedCeiling(t *testing.T) {
	v := newTestValidator()
	doc := validDocument()
	doc.InvoiceType = TypeSimplified
	doc.Lines = []Line{{Base: dec("3000.00"), Rate: dec("0"), TaxAmount: dec("0")}}
	doc.Total = dec("3000.00")

	violations := v.Validate(doc)

	require.Len(t, violations, 1)
	assert.Equal(t, "SIMPLIFIED_CEILING", violations[0].Code)
}

func TestValidator_AggregatesAllViolations(t *testing.T) {
	v := newTestValidator()
	doc := &Document{
		Series:      "",
		Number:      "",
		IssueDate:   "not-a-date",
		InvoiceType: "XX",
		Description: "",
		Lines:       []Line{{Base: dec("-1"), Rate: dec("99"), TaxAmount: dec("0")}},
		Total:       decimal.Zero,
	}

	violations := v.Validate(doc)

	// every failing check reports, nothing short-circuits
	fields := make(map[string]bool)
	for _, violation := range violations {
		fields[violation.Field] = true
	}
	assert.True(t, fields["serie"])
	assert.True(t, fields["numero"])
	assert.True(t, fields["fecha_expedicion"])
	assert.True(t, fields["tipo_factura"])
	assert.True(t, fields["descripcion"])
	assert.True(t, fields["lineas[0].base_imponible"])
	assert.True(t, fields["lineas[0].tipo_impositivo"])
	assert.True(t, fields["importe_total"])
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Violations: []Violation{
		{Field: "serie", Message: "series is mandatory"},
		{Field: "importe_total", Message: "total amount must be greater than 0"},
	}}

	assert.Contains(t, err.Error(), "serie: series is mandatory")
	assert.Contains(t, err.Error(), "importe_total")
}
