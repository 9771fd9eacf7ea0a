package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DownPaymentKind string

const (
	DownPaymentNone    DownPaymentKind = ""
	DownPaymentAmount  DownPaymentKind = "amount"
	DownPaymentPercent DownPaymentKind = "percent"
)

// DownPayment is the optional entry of an installment plan. Exactly one
// representation is active: a fixed amount, or a percentage (0-100) of the
// negotiated total.
type DownPayment struct {
	Kind  DownPaymentKind `json:"kind,omitempty"`
	Value decimal.Decimal `json:"value"`
}

func FixedDownPayment(amount decimal.Decimal) DownPayment {
	return DownPayment{Kind: DownPaymentAmount, Value: amount}
}

func PercentDownPayment(pct decimal.Decimal) DownPayment {
	return DownPayment{Kind: DownPaymentPercent, Value: pct}
}

func (d DownPayment) IsSet() bool {
	return d.Kind != DownPaymentNone
}

// DebtItem is a single debt as entered by the user. Computed values are never
// stored on it.
type DebtItem struct {
	ID               string          `json:"id"`
	Company          string          `json:"company"`
	Description      string          `json:"description"`
	FiscalYear       int             `json:"fiscal_year"`
	Nature           DebtNature      `json:"nature"`
	Profile          Profile         `json:"profile"`
	Principal        decimal.Decimal `json:"principal"`
	Charges          decimal.Decimal `json:"charges"`
	Correction       decimal.Decimal `json:"correction"`
	Option           PaymentOption   `json:"option"`
	InstallmentCount int             `json:"installment_count"`
	DownPayment      DownPayment     `json:"down_payment"`
	CreatedAt        time.Time       `json:"created_at"`
}

// DebtGroup negotiates several items of one company and nature together.
type DebtGroup struct {
	ID               string        `json:"id"`
	Company          string        `json:"company"`
	Nature           DebtNature    `json:"nature"`
	Profile          Profile       `json:"profile"`
	Option           PaymentOption `json:"option"`
	InstallmentCount int           `json:"installment_count"`
	DownPayment      DownPayment   `json:"down_payment"`
	ItemIDs          []string      `json:"item_ids"`
	CreatedAt        time.Time     `json:"created_at"`
}
