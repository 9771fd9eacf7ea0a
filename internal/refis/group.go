package refis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/rules"
)

// ComputeGroup computes a group as one synthetic debt whose amounts are the
// sums of its members. members must be exactly the items listed in
// g.ItemIDs, all of the group's company, nature and profile.
func ComputeGroup(t *rules.Tables, g domain.DebtGroup, members []domain.DebtItem) (domain.ComputationResult, error) {
	if err := CheckMembership(g, members); err != nil {
		return domain.ComputationResult{}, err
	}

	principal, charges, correction := decimal.Zero, decimal.Zero, decimal.Zero
	for _, m := range members {
		principal = principal.Add(decimal.Max(money(m.Principal), decimal.Zero))
		charges = charges.Add(decimal.Max(money(m.Charges), decimal.Zero))
		correction = correction.Add(money(m.Correction))
	}

	return compute(t, scenario{
		nature:      g.Nature,
		profile:     g.Profile,
		option:      g.Option,
		count:       g.InstallmentCount,
		principal:   principal,
		charges:     charges,
		correction:  correction,
		downPayment: g.DownPayment,
	})
}

// CheckMembership validates that members can be negotiated as group g.
func CheckMembership(g domain.DebtGroup, members []domain.DebtItem) error {
	if len(members) == 0 || len(g.ItemIDs) == 0 {
		return fmt.Errorf("%w: group has no members", ErrInconsistentGroupMembership)
	}

	want := make(map[string]bool, len(g.ItemIDs))
	for _, id := range g.ItemIDs {
		want[id] = true
	}
	if len(want) != len(g.ItemIDs) || len(members) != len(want) {
		return fmt.Errorf("%w: %d members given for %d item ids", ErrInconsistentGroupMembership, len(members), len(g.ItemIDs))
	}

	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if !want[m.ID] || seen[m.ID] {
			return fmt.Errorf("%w: item %s is not a member", ErrInconsistentGroupMembership, m.ID)
		}
		seen[m.ID] = true

		switch {
		case m.Company != g.Company:
			return fmt.Errorf("%w: item %s belongs to company %q, group to %q",
				ErrInconsistentGroupMembership, m.ID, m.Company, g.Company)
		case m.Nature != g.Nature:
			return fmt.Errorf("%w: item %s has nature %s, group has %s",
				ErrInconsistentGroupMembership, m.ID, m.Nature, g.Nature)
		case m.Profile != g.Profile:
			return fmt.Errorf("%w: item %s has profile %s, group has %s",
				ErrInconsistentGroupMembership, m.ID, m.Profile, g.Profile)
		}
	}
	return nil
}
