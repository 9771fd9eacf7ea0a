package simulation

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/repository"
)

type OptionTotals struct {
	Option          domain.PaymentOption `json:"option"`
	Count           int                  `json:"count"`
	Feasible        int                  `json:"feasible"`
	CurrentValue    decimal.Decimal      `json:"current_value"`
	DiscountAmount  decimal.Decimal      `json:"discount_amount"`
	NegotiatedTotal decimal.Decimal      `json:"negotiated_total"`
}

type CompanyTotals struct {
	Company         string          `json:"company"`
	Groups          int             `json:"groups"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	NegotiatedTotal decimal.Decimal `json:"negotiated_total"`
}

// Summary totals the stored scenarios. Scenarios of the same debt are all
// counted, so the totals describe the simulations, not the amount owed.
type Summary struct {
	Items  []OptionTotals  `json:"items"`
	Groups []CompanyTotals `json:"groups"`
}

func (s *Service) Summary(ctx context.Context, company string) (*Summary, error) {
	items, err := s.ListItems(ctx, repository.ItemFilter{Company: company})
	if err != nil {
		return nil, err
	}
	groups, err := s.ListGroups(ctx, repository.GroupFilter{Company: company})
	if err != nil {
		return nil, err
	}

	byOption := map[domain.PaymentOption]*OptionTotals{
		domain.OptionCash:        {Option: domain.OptionCash},
		domain.OptionInstallment: {Option: domain.OptionInstallment},
	}
	for _, v := range items {
		t, ok := byOption[v.Result.Option]
		if !ok {
			continue
		}
		t.Count++
		if v.Result.Feasible {
			t.Feasible++
		}
		t.CurrentValue = t.CurrentValue.Add(v.Result.CurrentValue)
		t.DiscountAmount = t.DiscountAmount.Add(v.Result.DiscountAmount)
		t.NegotiatedTotal = t.NegotiatedTotal.Add(v.Result.NegotiatedTotal)
	}

	byCompany := map[string]*CompanyTotals{}
	for _, v := range groups {
		if v.Result == nil {
			continue
		}
		t, ok := byCompany[v.Group.Company]
		if !ok {
			t = &CompanyTotals{Company: v.Group.Company}
			byCompany[v.Group.Company] = t
		}
		t.Groups++
		t.CurrentValue = t.CurrentValue.Add(v.Result.CurrentValue)
		t.DiscountAmount = t.DiscountAmount.Add(v.Result.DiscountAmount)
		t.NegotiatedTotal = t.NegotiatedTotal.Add(v.Result.NegotiatedTotal)
	}

	sum := &Summary{
		Items:  []OptionTotals{*byOption[domain.OptionCash], *byOption[domain.OptionInstallment]},
		Groups: make([]CompanyTotals, 0, len(byCompany)),
	}
	for _, t := range byCompany {
		sum.Groups = append(sum.Groups, *t)
	}
	sort.Slice(sum.Groups, func(i, j int) bool { return sum.Groups[i].Company < sum.Groups[j].Company })
	return sum, nil
}
