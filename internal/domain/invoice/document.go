package invoice

import (
	"github.com/shopspring/decimal"
)

// Type identifies the VeriFactu invoice type
type Type string

const (
	// TypeStandard is a complete invoice (factura completa)
	TypeStandard Type = "F1"
	// TypeSimplified is a simplified invoice, only valid below the legal threshold
	TypeSimplified Type = "F2"
	// TypeSubstitute replaces previously issued simplified invoices
	TypeSubstitute Type = "F3"
	// Rectification subtypes R1-R5
	TypeRectifiedError      Type = "R1"
	TypeRectifiedArt80      Type = "R2"
	TypeRectifiedBankruptcy Type = "R3"
	TypeRectifiedOther      Type = "R4"
	TypeRectifiedSimplified Type = "R5"
)

// ValidTypes lists all invoice types accepted by the remote API
var ValidTypes = []Type{
	TypeStandard, TypeSimplified, TypeSubstitute,
	TypeRectifiedError, TypeRectifiedArt80, TypeRectifiedBankruptcy,
	TypeRectifiedOther, TypeRectifiedSimplified,
}

// IsValid reports whether t is a known invoice type
func (t Type) IsValid() bool {
	for _, v := range ValidTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsRectification reports whether t is one of the R1-R5 rectification subtypes
func (t Type) IsRectification() bool {
	switch t {
	case TypeRectifiedError, TypeRectifiedArt80, TypeRectifiedBankruptcy,
		TypeRectifiedOther, TypeRectifiedSimplified:
		return true
	}
	return false
}

// ValidTaxRates are the Spanish IVA rates accepted by the remote API (percent)
var ValidTaxRates = []int64{0, 4, 10, 21}

// Line is a single invoice line item. TaxAmount is declared by the caller and
// validated against Base and Rate, never silently re-derived.
type Line struct {
	Base        decimal.Decimal `json:"base_imponible"`
	Rate        decimal.Decimal `json:"tipo_impositivo"`
	TaxAmount   decimal.Decimal `json:"cuota_repercutida"`
	Description string          `json:"descripcion,omitempty"`
	Quantity    decimal.Decimal `json:"cantidad,omitempty"`
	UnitPrice   decimal.Decimal `json:"precio_unitario,omitempty"`
}

// Recipient identifies the invoice recipient. It may be omitted entirely for
// simplified invoices under the legal amount threshold.
type Recipient struct {
	TaxID string `json:"nif"`
	Name  string `json:"nombre"`
}

// Document is the outbound invoice representation submitted to the remote API.
// Series and Number together identify the invoice in the remote ledger; the
// caller owns sequence allocation.
type Document struct {
	Series      string     `json:"serie"`
	Number      string     `json:"numero"`
	IssueDate   string     `json:"fecha_expedicion"` // DD-MM-YYYY
	InvoiceType Type       `json:"tipo_factura"`
	Description string     `json:"descripcion"`
	Recipient   *Recipient `json:"destinatario,omitempty"`
	Lines       []Line     `json:"lineas"`
	Total       decimal.Decimal `json:"importe_total"`
	IssuerTaxID string     `json:"nif_emisor,omitempty"`
}

// ID returns the document's identity in the remote ledger
func (d *Document) ID() string {
	return d.Series + "-" + d.Number
}

// ComputedTotal returns the sum of base plus tax across all lines
func (d *Document) ComputedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range d.Lines {
		sum = sum.Add(l.Base).Add(l.TaxAmount)
	}
	return sum
}
