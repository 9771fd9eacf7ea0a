// Package refis computes negotiated REFIS settlement values for single debts
// and groups, and picks the cheaper of the cash and installment scenarios.
// Every function is pure: it reads its arguments and the rule tables and
// returns a new value.
package refis

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/rules"
)

// Structural errors. No partial result is returned with them.
var (
	ErrInvalidDownPayment          = errors.New("invalid down payment configuration")
	ErrInconsistentGroupMembership = errors.New("inconsistent group membership")
	ErrInvalidOption               = errors.New("invalid payment option")
	ErrInvalidProfile              = errors.New("invalid profile")
)

var hundred = decimal.NewFromInt(100)

// scenario is the input shared by items and groups.
type scenario struct {
	nature      domain.DebtNature
	profile     domain.Profile
	option      domain.PaymentOption
	count       int
	principal   decimal.Decimal
	charges     decimal.Decimal
	correction  decimal.Decimal
	downPayment domain.DownPayment
}

// ComputeItem derives the settlement breakdown of one debt. Business-rule
// violations are reported as alerts on the result; only malformed input
// returns an error.
func ComputeItem(t *rules.Tables, item domain.DebtItem) (domain.ComputationResult, error) {
	return compute(t, scenario{
		nature:      item.Nature,
		profile:     item.Profile,
		option:      item.Option,
		count:       item.InstallmentCount,
		principal:   item.Principal,
		charges:     item.Charges,
		correction:  item.Correction,
		downPayment: item.DownPayment,
	})
}

func compute(t *rules.Tables, s scenario) (domain.ComputationResult, error) {
	rs, err := rules.Classify(s.nature)
	if err != nil {
		return domain.ComputationResult{}, err
	}
	if !s.profile.Valid() {
		return domain.ComputationResult{}, fmt.Errorf("%w: %q", ErrInvalidProfile, string(s.profile))
	}
	if !s.option.Valid() {
		return domain.ComputationResult{}, fmt.Errorf("%w: %q", ErrInvalidOption, string(s.option))
	}

	principal := money(s.principal)
	charges := money(s.charges)
	correction := money(s.correction)

	count := 1
	if s.option == domain.OptionInstallment {
		count = s.count
	}

	res := domain.ComputationResult{
		Option:             s.option,
		InstallmentCount:   count,
		RuleSet:            rs,
		CurrentValue:       principal.Add(charges).Add(correction),
		MinimumInstallment: t.MinimumInstallmentValue(s.profile),
		MinimumCash:        t.MinimumCashValue(s.profile),
		Alerts:             []domain.Alert{},
	}

	if s.option == domain.OptionInstallment {
		if !t.AllowsInstallments(rs) {
			res.Alerts = append(res.Alerts, domain.Alert{
				Code:    domain.AlertInstallmentNotAllowed,
				Message: fmt.Sprintf("%s: cash payment only", s.nature.Label()),
			})
			return finish(res), nil
		}
		min, max, err := t.InstallmentLimits(rs)
		if err != nil {
			return domain.ComputationResult{}, err
		}
		if count < min || count > max {
			res.Alerts = append(res.Alerts, domain.Alert{
				Code:    domain.AlertInstallmentCountOutOfRange,
				Message: fmt.Sprintf("%d installments requested, allowed range is %d-%d", count, min, max),
			})
			return finish(res), nil
		}
		if err := checkDownPayment(s.downPayment, count); err != nil {
			return domain.ComputationResult{}, err
		}
	}

	pct, err := t.DiscountPercent(rs, count)
	if err != nil {
		return domain.ComputationResult{}, err
	}
	res.DiscountBase = t.DiscountBase(rs, principal, charges)
	res.DiscountPercent = pct
	res.DiscountAmount = money(res.DiscountBase.Mul(pct))
	res.NegotiatedBase = res.DiscountBase.Sub(res.DiscountAmount)
	// Correction is added back undiscounted. Principal outside the base is
	// not part of the negotiated total; CurrentValue still reports it.
	res.NegotiatedTotal = res.NegotiatedBase.Add(correction)

	if s.option == domain.OptionCash {
		res.FirstInstallment = res.NegotiatedTotal
		res.RegularInstallment = res.NegotiatedTotal
		if res.NegotiatedTotal.LessThan(res.MinimumCash) {
			res.Alerts = append(res.Alerts, domain.Alert{
				Code: domain.AlertBelowMinimumCash,
				Message: fmt.Sprintf("cash value %s is below the minimum of %s",
					res.NegotiatedTotal.StringFixed(2), res.MinimumCash.StringFixed(2)),
			})
		}
		return finish(res), nil
	}

	if res.CurrentValue.LessThan(res.MinimumCash) {
		res.Alerts = append(res.Alerts, domain.Alert{
			Code: domain.AlertCashOnlyBelowMinimum,
			Message: fmt.Sprintf("debts below %s can only be settled in cash",
				res.MinimumCash.StringFixed(2)),
		})
	}

	dp := resolveDownPayment(s.downPayment, res.NegotiatedTotal)
	if dp.IsPositive() {
		rest := splitInstallments(res.NegotiatedTotal.Sub(dp), count-1)
		res.DownPayment = dp
		res.FirstInstallment = dp
		res.RegularInstallment = rest[0]
		res.Installments = append([]decimal.Decimal{dp}, rest...)
		for i, v := range res.Installments {
			if v.LessThan(res.MinimumInstallment) {
				res.Alerts = append(res.Alerts, belowMinimum(i+1, v, res.MinimumInstallment))
			}
		}
		return finish(res), nil
	}

	res.Installments = splitInstallments(res.NegotiatedTotal, count)
	res.FirstInstallment = res.Installments[0]
	res.RegularInstallment = res.Installments[0]
	if res.RegularInstallment.LessThan(res.MinimumInstallment) {
		res.Alerts = append(res.Alerts, belowMinimum(0, res.RegularInstallment, res.MinimumInstallment))
	}
	return finish(res), nil
}

func belowMinimum(n int, v, min decimal.Decimal) domain.Alert {
	msg := fmt.Sprintf("installment of %s is below the minimum of %s", v.StringFixed(2), min.StringFixed(2))
	if n == 1 {
		msg = fmt.Sprintf("down payment of %s is below the minimum installment of %s", v.StringFixed(2), min.StringFixed(2))
	} else if n > 1 {
		msg = fmt.Sprintf("installment %d of %s is below the minimum of %s", n, v.StringFixed(2), min.StringFixed(2))
	}
	return domain.Alert{Code: domain.AlertBelowMinimumInstallment, Message: msg, Installment: n}
}

func finish(res domain.ComputationResult) domain.ComputationResult {
	res.Feasible = len(res.Alerts) == 0
	return res
}

func money(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

func checkDownPayment(dp domain.DownPayment, count int) error {
	switch dp.Kind {
	case domain.DownPaymentNone:
		return nil
	case domain.DownPaymentAmount, domain.DownPaymentPercent:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDownPayment, string(dp.Kind))
	}
	if dp.Value.IsNegative() {
		return fmt.Errorf("%w: negative value %s", ErrInvalidDownPayment, dp.Value)
	}
	if dp.Kind == domain.DownPaymentPercent && dp.Value.GreaterThan(hundred) {
		return fmt.Errorf("%w: percent %s above 100", ErrInvalidDownPayment, dp.Value)
	}
	if count == 1 && dp.Value.IsPositive() {
		return fmt.Errorf("%w: a single installment cannot have a separate down payment", ErrInvalidDownPayment)
	}
	return nil
}

// resolveDownPayment converts the down payment to currency, capped at total.
func resolveDownPayment(dp domain.DownPayment, total decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	switch dp.Kind {
	case domain.DownPaymentAmount:
		v = money(dp.Value)
	case domain.DownPaymentPercent:
		v = money(total.Mul(dp.Value).Div(hundred))
	default:
		return decimal.Zero
	}
	return decimal.Min(v, total)
}

// splitInstallments divides total into n installments truncated to cents,
// adding the remainder to the last one so the schedule sums to total.
func splitInstallments(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	each := total.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	out := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		out[i] = each
	}
	out[n-1] = total.Sub(each.Mul(decimal.NewFromInt(int64(n - 1))))
	return out
}
