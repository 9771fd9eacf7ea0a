package domain

import "github.com/shopspring/decimal"

type AlertCode string

const (
	AlertInstallmentNotAllowed      AlertCode = "INSTALLMENT_NOT_ALLOWED"
	AlertInstallmentCountOutOfRange AlertCode = "INSTALLMENT_COUNT_OUT_OF_RANGE"
	AlertBelowMinimumCash           AlertCode = "BELOW_MINIMUM_CASH"
	AlertBelowMinimumInstallment    AlertCode = "BELOW_MINIMUM_INSTALLMENT"
	AlertCashOnlyBelowMinimum       AlertCode = "CASH_ONLY_BELOW_MINIMUM"
)

// Alert is an advisory business-rule violation. Installment is the 1-based
// position of the offending installment, or 0 when the alert is not tied to one.
type Alert struct {
	Code        AlertCode `json:"code"`
	Message     string    `json:"message"`
	Installment int       `json:"installment,omitempty"`
}

// ComputationResult is derived from a DebtItem or DebtGroup plus the rule
// tables. It has no identity of its own.
type ComputationResult struct {
	Option             PaymentOption     `json:"option"`
	InstallmentCount   int               `json:"installment_count"`
	RuleSet            RuleSet           `json:"rule_set"`
	CurrentValue       decimal.Decimal   `json:"current_value"`
	DiscountBase       decimal.Decimal   `json:"discount_base"`
	DiscountPercent    decimal.Decimal   `json:"discount_percent"`
	DiscountAmount     decimal.Decimal   `json:"discount_amount"`
	NegotiatedBase     decimal.Decimal   `json:"negotiated_base"`
	NegotiatedTotal    decimal.Decimal   `json:"negotiated_total"`
	DownPayment        decimal.Decimal   `json:"down_payment"`
	FirstInstallment   decimal.Decimal   `json:"first_installment"`
	RegularInstallment decimal.Decimal   `json:"regular_installment"`
	Installments       []decimal.Decimal `json:"installments,omitempty"`
	MinimumInstallment decimal.Decimal   `json:"minimum_installment"`
	MinimumCash        decimal.Decimal   `json:"minimum_cash"`
	Alerts             []Alert           `json:"alerts"`
	Feasible           bool              `json:"feasible"`
}

// HasAlert reports whether an alert with the given code was raised.
func (r ComputationResult) HasAlert(code AlertCode) bool {
	for _, a := range r.Alerts {
		if a.Code == code {
			return true
		}
	}
	return false
}

// ConsolidationResult records which of the cash and installment scenarios of
// the same item or group is cheaper. Winner is empty when neither is feasible.
// Delta is the absolute difference of the two totals and is only set when
// both scenarios are feasible; otherwise it stays zero.
type ConsolidationResult struct {
	Cash        *ComputationResult `json:"cash,omitempty"`
	Installment *ComputationResult `json:"installment,omitempty"`
	Winner      PaymentOption      `json:"winner,omitempty"`
	Recommended *ComputationResult `json:"recommended,omitempty"`
	Delta       decimal.Decimal    `json:"delta"`
	Feasible    bool               `json:"feasible"`
}
