package simulation

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/cache"
	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/refis"
	"github.com/refis/simulator/internal/repository"
	"github.com/refis/simulator/internal/rules"
)

// ErrInvalidInput marks requests that are malformed before any rule is applied.
var ErrInvalidInput = errors.New("invalid input")

// ItemView is a stored or draft item together with its computed settlement.
type ItemView struct {
	Item   domain.DebtItem          `json:"item"`
	Result domain.ComputationResult `json:"result"`
	Key    string                   `json:"ou_key"`
}

// GroupView is a group with its computed settlement. Error is set instead of
// Result when the stored membership can no longer be computed.
type GroupView struct {
	Group  domain.DebtGroup          `json:"group"`
	Result *domain.ComputationResult `json:"result,omitempty"`
	Error  string                    `json:"error,omitempty"`
	Key    string                    `json:"ou_key,omitempty"`
}

// Service runs simulations over the stored items and groups of every company.
type Service struct {
	items  *repository.ItemRepo
	groups *repository.GroupRepo
	tables *rules.Tables
	cache  cache.Cache
	ttl    time.Duration

	now   func() time.Time
	newID func() string
}

func NewService(
	items *repository.ItemRepo,
	groups *repository.GroupRepo,
	tables *rules.Tables,
	c cache.Cache,
	ttl time.Duration,
) *Service {
	return &Service{
		items:  items,
		groups: groups,
		tables: tables,
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Tables returns the rule tables the service computes with.
func (s *Service) Tables() *rules.Tables {
	return s.tables
}

// Preview computes a draft item without storing it.
func (s *Service) Preview(ctx context.Context, it domain.DebtItem) (*ItemView, error) {
	normalizeItem(&it)
	if err := validateAmounts(it); err != nil {
		return nil, err
	}
	res, err := s.computeItem(ctx, it)
	if err != nil {
		return nil, err
	}
	return &ItemView{Item: it, Result: res, Key: ItemKey(it)}, nil
}

// Compare computes the cash and the installment scenario of the same draft
// and consolidates them. The installment scenario keeps the draft's count
// and down payment.
func (s *Service) Compare(ctx context.Context, it domain.DebtItem) (*domain.ConsolidationResult, error) {
	if err := validateAmounts(it); err != nil {
		return nil, err
	}
	cash := it
	cash.Option = domain.OptionCash
	normalizeItem(&cash)

	inst := it
	inst.Option = domain.OptionInstallment
	if inst.InstallmentCount < 1 {
		inst.InstallmentCount = 1
	}
	normalizeItem(&inst)

	cashRes, err := s.computeItem(ctx, cash)
	if err != nil {
		return nil, fmt.Errorf("cash scenario: %w", err)
	}
	instRes, err := s.computeItem(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("installment scenario: %w", err)
	}

	res, err := refis.Consolidate(cashRes, instRes)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// AddItem validates, computes and stores a new item. Items whose
// configuration is structurally invalid are rejected and not stored.
func (s *Service) AddItem(ctx context.Context, it domain.DebtItem) (*ItemView, error) {
	normalizeItem(&it)
	if err := validateItem(it); err != nil {
		return nil, err
	}
	res, err := s.computeItem(ctx, it)
	if err != nil {
		return nil, err
	}

	it.ID = s.newID()
	it.CreatedAt = s.now().UTC()
	if err := s.items.Insert(&it); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	log.Printf("[simulation] Added item %s (%s, %s, %s %dx)",
		it.ID, it.Company, it.Nature, it.Option, res.InstallmentCount)
	return &ItemView{Item: it, Result: res, Key: ItemKey(it)}, nil
}

// UpdateItem replaces the raw fields of an item. The change is refused when
// it would make a group containing the item inconsistent.
func (s *Service) UpdateItem(ctx context.Context, id string, it domain.DebtItem) (*ItemView, error) {
	existing, err := s.items.GetByID(id)
	if err != nil {
		return nil, err
	}

	normalizeItem(&it)
	if err := validateItem(it); err != nil {
		return nil, err
	}
	it.ID = existing.ID
	it.CreatedAt = existing.CreatedAt

	res, err := s.computeItem(ctx, it)
	if err != nil {
		return nil, err
	}

	groups, err := s.groups.List(repository.GroupFilter{Company: existing.Company})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	for _, g := range groups {
		if !contains(g.ItemIDs, id) {
			continue
		}
		members, err := s.items.GetByIDs(g.ItemIDs)
		if err != nil {
			return nil, fmt.Errorf("members of group %s: %w", g.ID, err)
		}
		for i := range members {
			if members[i].ID == id {
				members[i] = it
			}
		}
		if err := refis.CheckMembership(g, members); err != nil {
			return nil, fmt.Errorf("item %s is in group %s: %w", id, g.ID, err)
		}
	}

	if err := s.items.Update(&it); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	log.Printf("[simulation] Updated item %s", id)
	return &ItemView{Item: it, Result: res, Key: ItemKey(it)}, nil
}

// RemoveItem deletes an item and any group left without members.
func (s *Service) RemoveItem(ctx context.Context, id string) error {
	it, err := s.items.GetByID(id)
	if err != nil {
		return err
	}
	if err := s.items.Delete(id); err != nil {
		return err
	}

	groups, err := s.groups.List(repository.GroupFilter{Company: it.Company})
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	for _, g := range groups {
		if len(g.ItemIDs) > 0 {
			continue
		}
		if err := s.groups.Delete(g.ID); err != nil {
			return fmt.Errorf("delete empty group %s: %w", g.ID, err)
		}
		log.Printf("[simulation] Removed group %s, its last item was deleted", g.ID)
	}

	log.Printf("[simulation] Removed item %s", id)
	return nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*ItemView, error) {
	it, err := s.items.GetByID(id)
	if err != nil {
		return nil, err
	}
	res, err := s.computeItem(ctx, *it)
	if err != nil {
		return nil, fmt.Errorf("compute item %s: %w", id, err)
	}
	return &ItemView{Item: *it, Result: res, Key: ItemKey(*it)}, nil
}

func (s *Service) ListItems(ctx context.Context, f repository.ItemFilter) ([]ItemView, error) {
	items, err := s.items.List(f)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		res, err := s.computeItem(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("compute item %s: %w", it.ID, err)
		}
		views = append(views, ItemView{Item: it, Result: res, Key: ItemKey(it)})
	}
	return views, nil
}

// CreateGroup validates, computes and stores a group. Company, nature and
// profile default to those of the first member when left empty.
func (s *Service) CreateGroup(ctx context.Context, g domain.DebtGroup) (*GroupView, error) {
	view, err := s.PreviewGroup(ctx, g)
	if err != nil {
		return nil, err
	}

	g = view.Group
	g.ID = s.newID()
	g.CreatedAt = s.now().UTC()
	if err := s.groups.Insert(&g); err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	log.Printf("[simulation] Created group %s (%s, %s, %d items, %s)",
		g.ID, g.Company, g.Nature, len(g.ItemIDs), g.Option)
	view.Group = g
	return view, nil
}

// PreviewGroup computes a draft group over stored items without storing it.
func (s *Service) PreviewGroup(ctx context.Context, g domain.DebtGroup) (*GroupView, error) {
	if len(g.ItemIDs) == 0 {
		return nil, fmt.Errorf("%w: group needs at least one item", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(g.ItemIDs))
	for _, id := range g.ItemIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: item %s listed twice", ErrInvalidInput, id)
		}
		seen[id] = true
	}

	members, err := s.items.GetByIDs(g.ItemIDs)
	if err != nil {
		return nil, err
	}
	normalizeGroup(&g, members)
	if g.Company == "" {
		return nil, fmt.Errorf("%w: company is required", ErrInvalidInput)
	}

	res, err := s.computeGroup(ctx, g, members)
	if err != nil {
		return nil, err
	}
	return &GroupView{Group: g, Result: &res, Key: GroupKey(g, members)}, nil
}

func (s *Service) GetGroup(ctx context.Context, id string) (*GroupView, error) {
	g, err := s.groups.GetByID(id)
	if err != nil {
		return nil, err
	}
	view := s.groupView(ctx, *g)
	return &view, nil
}

func (s *Service) ListGroups(ctx context.Context, f repository.GroupFilter) ([]GroupView, error) {
	groups, err := s.groups.List(f)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, s.groupView(ctx, g))
	}
	return views, nil
}

func (s *Service) RemoveGroup(ctx context.Context, id string) error {
	if err := s.groups.Delete(id); err != nil {
		return err
	}
	log.Printf("[simulation] Removed group %s", id)
	return nil
}

// ClearGroups deletes the groups of one company, or every group when company
// is empty. Items are kept.
func (s *Service) ClearGroups(ctx context.Context, company string) (int, error) {
	if company != "" {
		n, err := s.groups.DeleteByCompany(company)
		if err != nil {
			return 0, fmt.Errorf("delete groups: %w", err)
		}
		log.Printf("[simulation] Cleared %d groups of %q", n, company)
		return n, nil
	}

	groups, err := s.groups.List(repository.GroupFilter{})
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}
	if err := s.groups.DeleteAll(); err != nil {
		return 0, fmt.Errorf("delete groups: %w", err)
	}
	log.Printf("[simulation] Cleared all %d groups", len(groups))
	return len(groups), nil
}

// ResetCompany deletes every item and group of one company.
func (s *Service) ResetCompany(ctx context.Context, company string) (items, groups int, err error) {
	if strings.TrimSpace(company) == "" {
		return 0, 0, fmt.Errorf("%w: company is required", ErrInvalidInput)
	}
	if groups, err = s.groups.DeleteByCompany(company); err != nil {
		return 0, 0, fmt.Errorf("delete groups: %w", err)
	}
	if items, err = s.items.DeleteByCompany(company); err != nil {
		return 0, groups, fmt.Errorf("delete items: %w", err)
	}
	log.Printf("[simulation] Reset company %q: %d items, %d groups", company, items, groups)
	return items, groups, nil
}

func (s *Service) ResetAll(ctx context.Context) error {
	if err := s.groups.DeleteAll(); err != nil {
		return fmt.Errorf("delete groups: %w", err)
	}
	if err := s.items.DeleteAll(); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	log.Println("[simulation] Reset all data")
	return nil
}

func (s *Service) groupView(ctx context.Context, g domain.DebtGroup) GroupView {
	view := GroupView{Group: g}
	members, err := s.items.GetByIDs(g.ItemIDs)
	if err != nil {
		view.Error = err.Error()
		return view
	}
	res, err := s.computeGroup(ctx, g, members)
	if err != nil {
		view.Error = err.Error()
		return view
	}
	view.Result = &res
	view.Key = GroupKey(g, members)
	return view
}

// resultKey identifies a computation by everything the engine reads.
type resultKey struct {
	Tables      string               `json:"t"`
	Nature      domain.DebtNature    `json:"n"`
	Profile     domain.Profile       `json:"p"`
	Option      domain.PaymentOption `json:"o"`
	Count       int                  `json:"c"`
	DownPayment domain.DownPayment   `json:"d"`
	Amounts     [][3]string          `json:"a"`
}

func (s *Service) computeItem(ctx context.Context, it domain.DebtItem) (domain.ComputationResult, error) {
	key := resultKey{
		Tables:      s.tables.Fingerprint(),
		Nature:      it.Nature,
		Profile:     it.Profile,
		Option:      it.Option,
		Count:       it.InstallmentCount,
		DownPayment: it.DownPayment,
		Amounts:     [][3]string{amounts(it)},
	}
	return s.cached(ctx, key, func() (domain.ComputationResult, error) {
		return refis.ComputeItem(s.tables, it)
	})
}

// computeGroup checks membership before the cache lookup: the key only
// covers member amounts.
func (s *Service) computeGroup(ctx context.Context, g domain.DebtGroup, members []domain.DebtItem) (domain.ComputationResult, error) {
	if err := refis.CheckMembership(g, members); err != nil {
		return domain.ComputationResult{}, err
	}
	key := resultKey{
		Tables:      s.tables.Fingerprint(),
		Nature:      g.Nature,
		Profile:     g.Profile,
		Option:      g.Option,
		Count:       g.InstallmentCount,
		DownPayment: g.DownPayment,
	}
	for _, m := range members {
		key.Amounts = append(key.Amounts, amounts(m))
	}
	return s.cached(ctx, key, func() (domain.ComputationResult, error) {
		return refis.ComputeGroup(s.tables, g, members)
	})
}

func (s *Service) cached(ctx context.Context, key resultKey, compute func() (domain.ComputationResult, error)) (domain.ComputationResult, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return compute()
	}
	k := fmt.Sprintf("result:%x", sha256.Sum256(raw))

	if v, ok := s.cache.Get(ctx, k); ok {
		var res domain.ComputationResult
		if err := json.Unmarshal([]byte(v), &res); err == nil {
			return res, nil
		}
		log.Printf("[simulation] WARNING: dropping unreadable cache entry %s", k)
	}

	res, err := compute()
	if err != nil {
		return res, err
	}
	if b, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, k, string(b), s.ttl); err != nil {
			log.Printf("[simulation] WARNING: cache set failed: %v", err)
		}
	}
	return res, nil
}

func amounts(it domain.DebtItem) [3]string {
	return [3]string{it.Principal.String(), it.Charges.String(), it.Correction.String()}
}

// normalizeItem trims text fields and drops installment settings from cash
// scenarios.
func normalizeItem(it *domain.DebtItem) {
	it.Company = strings.TrimSpace(it.Company)
	it.Description = strings.TrimSpace(it.Description)
	if it.Option == domain.OptionCash {
		it.InstallmentCount = 1
		it.DownPayment = domain.DownPayment{}
	}
}

func normalizeGroup(g *domain.DebtGroup, members []domain.DebtItem) {
	g.Company = strings.TrimSpace(g.Company)
	if len(members) > 0 {
		first := members[0]
		if g.Company == "" {
			g.Company = first.Company
		}
		if g.Nature == "" {
			g.Nature = first.Nature
		}
		if g.Profile == "" {
			g.Profile = first.Profile
		}
	}
	if g.Option == domain.OptionCash {
		g.InstallmentCount = 1
		g.DownPayment = domain.DownPayment{}
	}
}

func validateItem(it domain.DebtItem) error {
	if it.Company == "" {
		return fmt.Errorf("%w: company is required", ErrInvalidInput)
	}
	if it.FiscalYear < 0 {
		return fmt.Errorf("%w: fiscal year %d", ErrInvalidInput, it.FiscalYear)
	}
	return validateAmounts(it)
}

func validateAmounts(it domain.DebtItem) error {
	for _, a := range []struct {
		name string
		v    decimal.Decimal
	}{
		{"principal", it.Principal},
		{"charges", it.Charges},
		{"correction", it.Correction},
	} {
		if a.v.IsNegative() {
			return fmt.Errorf("%w: negative %s %s", ErrInvalidInput, a.name, a.v)
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
