package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
)

func newTestDB(t *testing.T) (*ItemRepo, *GroupRepo, *ImportRepo) {
	t.Helper()
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewItemRepo(db), NewGroupRepo(db), NewImportRepo(db)
}

func testItem(id, company string, created time.Time) domain.DebtItem {
	return domain.DebtItem{
		ID:               id,
		Company:          company,
		Description:      "IPTU " + id,
		FiscalYear:       2021,
		Nature:           domain.NatureIPTU,
		Profile:          domain.ProfileCompany,
		Principal:        decimal.RequireFromString("1000.50"),
		Charges:          decimal.RequireFromString("250.25"),
		Correction:       decimal.RequireFromString("10"),
		Option:           domain.OptionInstallment,
		InstallmentCount: 6,
		DownPayment:      domain.PercentDownPayment(decimal.NewFromInt(20)),
		CreatedAt:        created,
	}
}

func TestItemRepo_InsertAndGet(t *testing.T) {
	items, _, _ := newTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	it := testItem("i1", "ACME", now)
	if err := items.Insert(&it); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := items.GetByID("i1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Principal.Equal(it.Principal) || !got.Charges.Equal(it.Charges) || !got.Correction.Equal(it.Correction) {
		t.Errorf("amounts = %s/%s/%s", got.Principal, got.Charges, got.Correction)
	}
	if got.DownPayment.Kind != domain.DownPaymentPercent || !got.DownPayment.Value.Equal(decimal.NewFromInt(20)) {
		t.Errorf("down payment = %+v", got.DownPayment)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
	}

	if _, err := items.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) err = %v, want ErrNotFound", err)
	}
}

func TestItemRepo_BulkInsertSkipsDuplicates(t *testing.T) {
	items, _, _ := newTestDB(t)
	now := time.Now().UTC()

	batch := []domain.DebtItem{testItem("a", "ACME", now), testItem("b", "ACME", now)}
	n, err := items.BulkInsert(batch)
	if err != nil || n != 2 {
		t.Fatalf("BulkInsert = %d, %v", n, err)
	}

	n, err = items.BulkInsert(append(batch, testItem("c", "ACME", now)))
	if err != nil || n != 1 {
		t.Fatalf("second BulkInsert = %d, %v; want 1", n, err)
	}

	count, _ := items.Count()
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestItemRepo_ListOrderAndFilter(t *testing.T) {
	items, _, _ := newTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, c := range []string{"ACME", "GLOBEX", "ACME"} {
		it := testItem(string(rune('x'+i)), c, base.Add(time.Duration(i)*time.Millisecond))
		if err := items.Insert(&it); err != nil {
			t.Fatal(err)
		}
	}

	all, err := items.List(ItemFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "x" || all[2].ID != "z" {
		t.Errorf("List order = %v", ids(all))
	}

	acme, _ := items.List(ItemFilter{Company: "ACME"})
	if len(acme) != 2 {
		t.Errorf("List(ACME) = %v", ids(acme))
	}
}

func TestItemRepo_UpdateDelete(t *testing.T) {
	items, _, _ := newTestDB(t)
	it := testItem("i1", "ACME", time.Now())
	items.Insert(&it)

	it.Option = domain.OptionCash
	it.DownPayment = domain.DownPayment{}
	if err := items.Update(&it); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := items.GetByID("i1")
	if got.Option != domain.OptionCash || got.DownPayment.IsSet() {
		t.Errorf("after update = %+v", got)
	}

	ghost := testItem("ghost", "ACME", time.Now())
	if err := items.Update(&ghost); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(ghost) err = %v", err)
	}
	if err := items.Delete("i1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := items.Delete("i1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
}

func TestItemRepo_GetByIDs(t *testing.T) {
	items, _, _ := newTestDB(t)
	for _, id := range []string{"a", "b", "c"} {
		it := testItem(id, "ACME", time.Now())
		items.Insert(&it)
	}

	got, err := items.GetByIDs([]string{"c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("GetByIDs order = %v", ids(got))
	}

	if _, err := items.GetByIDs([]string{"a", "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id err = %v", err)
	}
}

func TestGroupRepo_MembersAndCascade(t *testing.T) {
	items, groups, _ := newTestDB(t)
	for _, id := range []string{"a", "b", "c"} {
		it := testItem(id, "ACME", time.Now())
		items.Insert(&it)
	}

	g := domain.DebtGroup{
		ID:               "g1",
		Company:          "ACME",
		Nature:           domain.NatureIPTU,
		Profile:          domain.ProfileCompany,
		Option:           domain.OptionCash,
		InstallmentCount: 1,
		ItemIDs:          []string{"c", "a", "b"},
		CreatedAt:        time.Now(),
	}
	if err := groups.Insert(&g); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := groups.GetByID("g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ItemIDs) != 3 || got.ItemIDs[0] != "c" || got.ItemIDs[2] != "b" {
		t.Errorf("ItemIDs = %v", got.ItemIDs)
	}

	if err := items.Delete("a"); err != nil {
		t.Fatal(err)
	}
	got, _ = groups.GetByID("g1")
	if len(got.ItemIDs) != 2 {
		t.Errorf("after item delete ItemIDs = %v", got.ItemIDs)
	}

	if err := groups.Delete("g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := groups.GetByID("g1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete err = %v", err)
	}
}

func TestGroupRepo_UnknownMemberRejected(t *testing.T) {
	_, groups, _ := newTestDB(t)
	g := domain.DebtGroup{ID: "g1", Company: "ACME", ItemIDs: []string{"missing"}, CreatedAt: time.Now()}
	if err := groups.Insert(&g); err == nil {
		t.Fatal("expected foreign key error")
	}
	list, _ := groups.List(GroupFilter{})
	if len(list) != 0 {
		t.Errorf("group persisted despite failed insert: %v", list)
	}
}

func TestDeleteByCompany(t *testing.T) {
	items, groups, _ := newTestDB(t)
	for _, c := range []struct{ id, company string }{{"a", "ACME"}, {"b", "GLOBEX"}} {
		it := testItem(c.id, c.company, time.Now())
		items.Insert(&it)
	}
	g := domain.DebtGroup{ID: "g1", Company: "ACME", ItemIDs: []string{"a"}, CreatedAt: time.Now()}
	groups.Insert(&g)

	if n, err := groups.DeleteByCompany("ACME"); err != nil || n != 1 {
		t.Errorf("groups.DeleteByCompany = %d, %v", n, err)
	}
	if n, err := items.DeleteByCompany("ACME"); err != nil || n != 1 {
		t.Errorf("items.DeleteByCompany = %d, %v", n, err)
	}
	left, _ := items.List(ItemFilter{})
	if len(left) != 1 || left[0].Company != "GLOBEX" {
		t.Errorf("remaining = %v", ids(left))
	}
}

func TestImportRepo_ExistsByHash(t *testing.T) {
	_, _, imports := newTestDB(t)

	exists, err := imports.ExistsByHash("abc")
	if err != nil || exists {
		t.Fatalf("ExistsByHash before insert = %v, %v", exists, err)
	}
	if err := imports.Insert(&ImportRecord{ID: "1", Format: "csv", FileHash: "abc", RecordCount: 3, IngestedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	exists, _ = imports.ExistsByHash("abc")
	if !exists {
		t.Error("ExistsByHash after insert = false")
	}
	if err := imports.Insert(&ImportRecord{ID: "2", Format: "csv", FileHash: "abc", IngestedAt: time.Now()}); err == nil {
		t.Error("duplicate hash accepted")
	}
}

func ids(items []domain.DebtItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
