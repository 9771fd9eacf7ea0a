package simulation

import (
	"context"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/refis"
	"github.com/refis/simulator/internal/repository"
)

// ConsolidationEntry is the consolidated view of every scenario sharing one
// key. CashID and InstallmentID name the item or group that was chosen for
// each option.
type ConsolidationEntry struct {
	Key           string                     `json:"key"`
	Company       string                     `json:"company"`
	Profile       domain.Profile             `json:"profile"`
	Nature        domain.DebtNature          `json:"nature"`
	Scenarios     int                        `json:"scenarios"`
	CashID        string                     `json:"cash_id,omitempty"`
	InstallmentID string                     `json:"installment_id,omitempty"`
	Result        domain.ConsolidationResult `json:"result"`
}

type candidate struct {
	id  string
	res domain.ComputationResult
}

type bucket struct {
	entry ConsolidationEntry
	cash  *candidate
	inst  *candidate
}

// better prefers feasible scenarios, then the lower negotiated total. On a
// tie the earlier scenario is kept.
func better(c candidate, best *candidate) bool {
	if best == nil {
		return true
	}
	if c.res.Feasible != best.res.Feasible {
		return c.res.Feasible
	}
	return c.res.NegotiatedTotal.LessThan(best.res.NegotiatedTotal)
}

type consolidator struct {
	order   []string
	buckets map[string]*bucket
}

func newConsolidator() *consolidator {
	return &consolidator{buckets: make(map[string]*bucket)}
}

func (c *consolidator) add(key, company string, profile domain.Profile, nature domain.DebtNature, cand candidate) {
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{entry: ConsolidationEntry{Key: key, Company: company, Profile: profile, Nature: nature}}
		c.buckets[key] = b
		c.order = append(c.order, key)
	}
	b.entry.Scenarios++

	switch cand.res.Option {
	case domain.OptionCash:
		if better(cand, b.cash) {
			b.cash = &cand
		}
	case domain.OptionInstallment:
		if better(cand, b.inst) {
			b.inst = &cand
		}
	}
}

func (c *consolidator) entries() ([]ConsolidationEntry, error) {
	out := make([]ConsolidationEntry, 0, len(c.order))
	for _, key := range c.order {
		b := c.buckets[key]
		e := b.entry
		switch {
		case b.cash != nil && b.inst != nil:
			res, err := refis.Consolidate(b.cash.res, b.inst.res)
			if err != nil {
				return nil, err
			}
			e.Result = res
			e.CashID, e.InstallmentID = b.cash.id, b.inst.id
		case b.cash != nil:
			e.Result = refis.ConsolidateOne(b.cash.res)
			e.CashID = b.cash.id
		case b.inst != nil:
			e.Result = refis.ConsolidateOne(b.inst.res)
			e.InstallmentID = b.inst.id
		}
		out = append(out, e)
	}
	return out, nil
}

// ConsolidateItems groups the stored items of a company (all companies when
// empty) by ItemKey and consolidates the best cash and installment scenario
// of each key.
func (s *Service) ConsolidateItems(ctx context.Context, company string) ([]ConsolidationEntry, error) {
	views, err := s.ListItems(ctx, repository.ItemFilter{Company: company})
	if err != nil {
		return nil, err
	}

	c := newConsolidator()
	for _, v := range views {
		c.add(v.Key, v.Item.Company, v.Item.Profile, v.Item.Nature, candidate{id: v.Item.ID, res: v.Result})
	}
	return c.entries()
}

// ConsolidateGroups does the same for groups keyed by GroupKey. Groups that
// can no longer be computed are skipped.
func (s *Service) ConsolidateGroups(ctx context.Context, company string) ([]ConsolidationEntry, error) {
	views, err := s.ListGroups(ctx, repository.GroupFilter{Company: company})
	if err != nil {
		return nil, err
	}

	c := newConsolidator()
	for _, v := range views {
		if v.Result == nil {
			continue
		}
		c.add(v.Key, v.Group.Company, v.Group.Profile, v.Group.Nature, candidate{id: v.Group.ID, res: *v.Result})
	}
	return c.entries()
}
