package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const itemColumns = `id, company, description, fiscal_year, nature, profile, principal, charges,
	correction, payment_option, installment_count, down_payment_kind, down_payment_value, created_at`

type ItemRepo struct {
	db *sql.DB
}

func NewItemRepo(db *sql.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertItem(ex execer, verb string, it *domain.DebtItem) (sql.Result, error) {
	return ex.Exec(
		verb+` INTO debt_items (`+itemColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.Company, it.Description, it.FiscalYear, string(it.Nature), string(it.Profile),
		it.Principal.String(), it.Charges.String(), it.Correction.String(),
		string(it.Option), it.InstallmentCount, string(it.DownPayment.Kind), it.DownPayment.Value.String(),
		it.CreatedAt.UTC().Format(timeLayout),
	)
}

func (r *ItemRepo) Insert(it *domain.DebtItem) error {
	_, err := insertItem(r.db, "INSERT", it)
	return err
}

// BulkInsert inserts items in one transaction, skipping IDs that already
// exist. It returns the number of rows actually inserted.
func (r *ItemRepo) BulkInsert(items []domain.DebtItem) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range items {
		res, err := insertItem(tx, "INSERT OR IGNORE", &items[i])
		if err != nil {
			return inserted, fmt.Errorf("insert item %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Update rewrites the raw fields of an existing item.
func (r *ItemRepo) Update(it *domain.DebtItem) error {
	res, err := r.db.Exec(
		`UPDATE debt_items SET company = ?, description = ?, fiscal_year = ?, nature = ?, profile = ?,
		principal = ?, charges = ?, correction = ?, payment_option = ?, installment_count = ?,
		down_payment_kind = ?, down_payment_value = ?
		WHERE id = ?`,
		it.Company, it.Description, it.FiscalYear, string(it.Nature), string(it.Profile),
		it.Principal.String(), it.Charges.String(), it.Correction.String(),
		string(it.Option), it.InstallmentCount, string(it.DownPayment.Kind), it.DownPayment.Value.String(),
		it.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Delete removes an item. Group memberships go with it.
func (r *ItemRepo) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM debt_items WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *ItemRepo) DeleteByCompany(company string) (int, error) {
	res, err := r.db.Exec("DELETE FROM debt_items WHERE company = ?", company)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *ItemRepo) DeleteAll() error {
	_, err := r.db.Exec("DELETE FROM debt_items")
	return err
}

func (r *ItemRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM debt_items").Scan(&count)
	return count, err
}

func (r *ItemRepo) GetByID(id string) (*domain.DebtItem, error) {
	rows, err := r.db.Query("SELECT "+itemColumns+" FROM debt_items WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return scanItem(rows)
}

// GetByIDs returns the items in the order of ids. A missing ID is an error.
func (r *ItemRepo) GetByIDs(ids []string) ([]domain.DebtItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := "SELECT " + itemColumns + " FROM debt_items WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]domain.DebtItem, len(ids))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		byID[it.ID] = *it
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]domain.DebtItem, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		items = append(items, it)
	}
	return items, nil
}

type ItemFilter struct {
	Company string
	Nature  string
	Profile string
}

// List returns items in insertion order.
func (r *ItemRepo) List(f ItemFilter) ([]domain.DebtItem, error) {
	var clauses []string
	var args []any
	if f.Company != "" {
		clauses = append(clauses, "company = ?")
		args = append(args, f.Company)
	}
	if f.Nature != "" {
		clauses = append(clauses, "nature = ?")
		args = append(args, f.Nature)
	}
	if f.Profile != "" {
		clauses = append(clauses, "profile = ?")
		args = append(args, f.Profile)
	}

	q := "SELECT " + itemColumns + " FROM debt_items"
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY created_at, rowid"

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DebtItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func scanItem(rows *sql.Rows) (*domain.DebtItem, error) {
	var it domain.DebtItem
	var nature, profile, option, dpKind string
	var principal, charges, correction, dpValue, createdStr string

	err := rows.Scan(
		&it.ID, &it.Company, &it.Description, &it.FiscalYear, &nature, &profile,
		&principal, &charges, &correction, &option, &it.InstallmentCount,
		&dpKind, &dpValue, &createdStr,
	)
	if err != nil {
		return nil, err
	}

	it.Nature = domain.DebtNature(nature)
	it.Profile = domain.Profile(profile)
	it.Option = domain.PaymentOption(option)
	it.DownPayment.Kind = domain.DownPaymentKind(dpKind)

	amounts := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&it.Principal, principal},
		{&it.Charges, charges},
		{&it.Correction, correction},
		{&it.DownPayment.Value, dpValue},
	}
	for _, a := range amounts {
		if *a.dst, err = decimal.NewFromString(a.src); err != nil {
			return nil, fmt.Errorf("item %s amount %q: %w", it.ID, a.src, err)
		}
	}
	it.CreatedAt, _ = time.Parse(timeLayout, createdStr)

	return &it, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
