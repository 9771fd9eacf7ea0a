// Package rules holds the REFIS rule tables: discount tiers, installment
// limits, minimum values and the discount base selector. A Tables value is
// immutable once built and safe for concurrent use.
package rules

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
)

var (
	ErrInvalidNature              = errors.New("invalid debt nature")
	ErrUnknownRuleSet             = errors.New("unknown rule set")
	ErrInstallmentCountOutOfRange = errors.New("installment count out of range")
	ErrInvalidTables              = errors.New("invalid rule tables")
)

// Tier grants Percent discount for installment counts in [From, To].
type Tier struct {
	From    int             `json:"from"`
	To      int             `json:"to"`
	Percent decimal.Decimal `json:"percent"`
}

// RuleSetRules describes one rule set. Tiers must partition
// [MinInstallments, MaxInstallments].
type RuleSetRules struct {
	MinInstallments       int    `json:"min_installments"`
	MaxInstallments       int    `json:"max_installments"`
	InstallmentsAllowed   bool   `json:"installments_allowed"`
	BaseIncludesPrincipal bool   `json:"base_includes_principal"`
	Tiers                 []Tier `json:"tiers"`
}

// Minimums are the per-profile floors for one installment and for a cash payment.
type Minimums struct {
	Installment decimal.Decimal `json:"installment"`
	Cash        decimal.Decimal `json:"cash"`
}

type Tables struct {
	ruleSets    map[domain.RuleSet]RuleSetRules
	minimums    map[domain.Profile]Minimums
	fingerprint string
}

// Option adjusts the defaults before validation.
type Option func(*Tables)

// WithMinimums overrides the minimum installment and cash values of a profile.
func WithMinimums(p domain.Profile, installment, cash decimal.Decimal) Option {
	return func(t *Tables) {
		t.minimums[p] = Minimums{Installment: installment, Cash: cash}
	}
}

// WithRuleSet replaces the rules of one rule set.
func WithRuleSet(rs domain.RuleSet, r RuleSetRules) Option {
	r.Tiers = append([]Tier(nil), r.Tiers...)
	return func(t *Tables) {
		t.ruleSets[rs] = r
	}
}

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func defaultRuleSets() map[domain.RuleSet]RuleSetRules {
	return map[domain.RuleSet]RuleSetRules{
		domain.RuleSetPropertyFees: {
			MinInstallments:     1,
			MaxInstallments:     60,
			InstallmentsAllowed: true,
			Tiers: []Tier{
				{From: 1, To: 1, Percent: pct("1.00")},
				{From: 2, To: 6, Percent: pct("0.95")},
				{From: 7, To: 20, Percent: pct("0.90")},
				{From: 21, To: 40, Percent: pct("0.80")},
				{From: 41, To: 60, Percent: pct("0.70")},
			},
		},
		domain.RuleSetServiceTax: {
			MinInstallments:     1,
			MaxInstallments:     16,
			InstallmentsAllowed: true,
			Tiers: []Tier{
				{From: 1, To: 1, Percent: pct("1.00")},
				{From: 2, To: 6, Percent: pct("0.90")},
				{From: 7, To: 16, Percent: pct("0.80")},
			},
		},
		domain.RuleSetFine: {
			MinInstallments:       1,
			MaxInstallments:       1,
			InstallmentsAllowed:   false,
			BaseIncludesPrincipal: true,
			Tiers: []Tier{
				{From: 1, To: 1, Percent: pct("0.50")},
			},
		},
	}
}

func defaultMinimums() map[domain.Profile]Minimums {
	return map[domain.Profile]Minimums{
		domain.ProfileIndividual: {Installment: pct("152.50"), Cash: pct("305.00")},
		domain.ProfileCompany:    {Installment: pct("457.50"), Cash: pct("915.00")},
	}
}

// New builds the tables from the municipal defaults plus opts.
func New(opts ...Option) (*Tables, error) {
	t := &Tables{
		ruleSets: defaultRuleSets(),
		minimums: defaultMinimums(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(t.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	t.fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))
	return t, nil
}

// Default returns the municipal defaults.
func Default() *Tables {
	t, err := New()
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tables) validate() error {
	for _, rs := range []domain.RuleSet{domain.RuleSetPropertyFees, domain.RuleSetServiceTax, domain.RuleSetFine} {
		r, ok := t.ruleSets[rs]
		if !ok {
			return fmt.Errorf("%w: missing rule set %s", ErrInvalidTables, rs)
		}
		if r.MinInstallments < 1 || r.MaxInstallments < r.MinInstallments {
			return fmt.Errorf("%w: %s limits %d-%d", ErrInvalidTables, rs, r.MinInstallments, r.MaxInstallments)
		}
		if len(r.Tiers) == 0 {
			return fmt.Errorf("%w: %s has no tiers", ErrInvalidTables, rs)
		}
		next := r.MinInstallments
		for _, tier := range r.Tiers {
			if tier.From != next || tier.To < tier.From {
				return fmt.Errorf("%w: %s tier %d-%d leaves a gap or overlap at %d",
					ErrInvalidTables, rs, tier.From, tier.To, next)
			}
			if tier.Percent.IsNegative() || tier.Percent.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("%w: %s tier %d-%d percent %s", ErrInvalidTables, rs, tier.From, tier.To, tier.Percent)
			}
			next = tier.To + 1
		}
		if next != r.MaxInstallments+1 {
			return fmt.Errorf("%w: %s tiers end at %d, limit is %d", ErrInvalidTables, rs, next-1, r.MaxInstallments)
		}
	}
	for _, p := range []domain.Profile{domain.ProfileIndividual, domain.ProfileCompany} {
		m, ok := t.minimums[p]
		if !ok {
			return fmt.Errorf("%w: missing minimums for %s", ErrInvalidTables, p)
		}
		if m.Installment.IsNegative() || m.Cash.IsNegative() {
			return fmt.Errorf("%w: negative minimum for %s", ErrInvalidTables, p)
		}
	}
	return nil
}

func (t *Tables) ruleSet(rs domain.RuleSet) (RuleSetRules, error) {
	r, ok := t.ruleSets[rs]
	if !ok {
		return RuleSetRules{}, fmt.Errorf("%w: %q", ErrUnknownRuleSet, string(rs))
	}
	return r, nil
}

// InstallmentLimits returns the legal installment range of a rule set.
func (t *Tables) InstallmentLimits(rs domain.RuleSet) (int, int, error) {
	r, err := t.ruleSet(rs)
	if err != nil {
		return 0, 0, err
	}
	return r.MinInstallments, r.MaxInstallments, nil
}

// AllowsInstallments is false for cash-only rule sets (fines).
func (t *Tables) AllowsInstallments(rs domain.RuleSet) bool {
	r, err := t.ruleSet(rs)
	return err == nil && r.InstallmentsAllowed
}

// DiscountPercent returns the discount fraction (0.95 for 95%) granted for
// count installments. CASH uses count 1.
func (t *Tables) DiscountPercent(rs domain.RuleSet, count int) (decimal.Decimal, error) {
	r, err := t.ruleSet(rs)
	if err != nil {
		return decimal.Zero, err
	}
	if count < r.MinInstallments || count > r.MaxInstallments {
		return decimal.Zero, fmt.Errorf("%w: %d not in %d-%d for %s",
			ErrInstallmentCountOutOfRange, count, r.MinInstallments, r.MaxInstallments, rs)
	}
	i := sort.Search(len(r.Tiers), func(i int) bool { return r.Tiers[i].To >= count })
	return r.Tiers[i].Percent, nil
}

// MinimumInstallmentValue returns zero for an unknown profile.
func (t *Tables) MinimumInstallmentValue(p domain.Profile) decimal.Decimal {
	return t.minimums[p].Installment
}

// MinimumCashValue returns zero for an unknown profile.
func (t *Tables) MinimumCashValue(p domain.Profile) decimal.Decimal {
	return t.minimums[p].Cash
}

// DiscountBase selects the amount subject to discount. Correction never
// enters the base. Negative amounts count as zero.
func (t *Tables) DiscountBase(rs domain.RuleSet, principal, charges decimal.Decimal) decimal.Decimal {
	base := decimal.Max(charges, decimal.Zero)
	if r, err := t.ruleSet(rs); err == nil && r.BaseIncludesPrincipal {
		base = base.Add(decimal.Max(principal, decimal.Zero))
	}
	return base
}

// Snapshot is a serialisable copy of the tables.
type Snapshot struct {
	RuleSets map[domain.RuleSet]RuleSetRules `json:"rule_sets"`
	Minimums map[domain.Profile]Minimums     `json:"minimums"`
}

func (t *Tables) Snapshot() Snapshot {
	s := Snapshot{
		RuleSets: make(map[domain.RuleSet]RuleSetRules, len(t.ruleSets)),
		Minimums: make(map[domain.Profile]Minimums, len(t.minimums)),
	}
	for rs, r := range t.ruleSets {
		r.Tiers = append([]Tier(nil), r.Tiers...)
		s.RuleSets[rs] = r
	}
	for p, m := range t.minimums {
		s.Minimums[p] = m
	}
	return s
}

// Fingerprint identifies the table contents; equal tables share it.
func (t *Tables) Fingerprint() string {
	return t.fingerprint
}
