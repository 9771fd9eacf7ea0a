package refis

import (
	"errors"
	"fmt"

	"github.com/refis/simulator/internal/domain"
)

var ErrScenarioMismatch = errors.New("consolidation needs one cash and one installment scenario")

// Consolidate picks the cheaper feasible scenario of the same item or group.
// The arguments may come in either order. On equal totals cash wins. When
// neither scenario is feasible the result has no winner and Feasible is false.
// Delta compares feasible scenarios only and is zero when either one is not.
func Consolidate(a, b domain.ComputationResult) (domain.ConsolidationResult, error) {
	cash, inst := a, b
	if a.Option == domain.OptionInstallment && b.Option == domain.OptionCash {
		cash, inst = b, a
	}
	if cash.Option != domain.OptionCash || inst.Option != domain.OptionInstallment {
		return domain.ConsolidationResult{}, fmt.Errorf("%w: got %s and %s", ErrScenarioMismatch, a.Option, b.Option)
	}

	res := domain.ConsolidationResult{Cash: &cash, Installment: &inst}
	switch {
	case cash.Feasible && inst.Feasible:
		res.Delta = cash.NegotiatedTotal.Sub(inst.NegotiatedTotal).Abs()
		if inst.NegotiatedTotal.LessThan(cash.NegotiatedTotal) {
			res.Winner, res.Recommended = domain.OptionInstallment, &inst
		} else {
			res.Winner, res.Recommended = domain.OptionCash, &cash
		}
	case cash.Feasible:
		res.Winner, res.Recommended = domain.OptionCash, &cash
	case inst.Feasible:
		res.Winner, res.Recommended = domain.OptionInstallment, &inst
	}
	res.Feasible = res.Recommended != nil
	return res, nil
}

// ConsolidateOne handles an item or group for which only one scenario exists.
// It wins only when feasible.
func ConsolidateOne(r domain.ComputationResult) domain.ConsolidationResult {
	res := domain.ConsolidationResult{}
	if r.Option == domain.OptionCash {
		res.Cash = &r
	} else {
		res.Installment = &r
	}
	if r.Feasible {
		res.Winner, res.Recommended, res.Feasible = r.Option, &r, true
	}
	return res
}
