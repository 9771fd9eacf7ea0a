package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
)

const groupColumns = `id, company, nature, profile, payment_option, installment_count,
	down_payment_kind, down_payment_value, created_at`

type GroupRepo struct {
	db *sql.DB
}

func NewGroupRepo(db *sql.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// Insert stores the group and its ordered membership in one transaction.
func (r *GroupRepo) Insert(g *domain.DebtGroup) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertGroup(tx, "INSERT", g); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// BulkInsert inserts groups whose IDs are not yet known and returns how many
// were inserted.
func (r *GroupRepo) BulkInsert(groups []domain.DebtGroup) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range groups {
		var exists int
		if err := tx.QueryRow("SELECT COUNT(*) FROM debt_groups WHERE id = ?", groups[i].ID).Scan(&exists); err != nil {
			return inserted, fmt.Errorf("check group %d: %w", i, err)
		}
		if exists > 0 {
			continue
		}
		if err := insertGroup(tx, "INSERT", &groups[i]); err != nil {
			return inserted, fmt.Errorf("insert group %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func insertGroup(tx *sql.Tx, verb string, g *domain.DebtGroup) error {
	_, err := tx.Exec(
		verb+` INTO debt_groups (`+groupColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		g.ID, g.Company, string(g.Nature), string(g.Profile), string(g.Option), g.InstallmentCount,
		string(g.DownPayment.Kind), g.DownPayment.Value.String(), g.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO group_members (group_id, item_id, position) VALUES (?,?,?)")
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, itemID := range g.ItemIDs {
		if _, err := stmt.Exec(g.ID, itemID, i); err != nil {
			return fmt.Errorf("insert member %s: %w", itemID, err)
		}
	}
	return nil
}

func (r *GroupRepo) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM debt_groups WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *GroupRepo) DeleteByCompany(company string) (int, error) {
	res, err := r.db.Exec("DELETE FROM debt_groups WHERE company = ?", company)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *GroupRepo) DeleteAll() error {
	_, err := r.db.Exec("DELETE FROM debt_groups")
	return err
}

func (r *GroupRepo) GetByID(id string) (*domain.DebtGroup, error) {
	groups, err := r.query(" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	return &groups[0], nil
}

type GroupFilter struct {
	Company string
	Nature  string
}

func (r *GroupRepo) List(f GroupFilter) ([]domain.DebtGroup, error) {
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

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	return r.query(where, args...)
}

func (r *GroupRepo) query(where string, args ...any) ([]domain.DebtGroup, error) {
	rows, err := r.db.Query("SELECT "+groupColumns+" FROM debt_groups"+where+" ORDER BY created_at, rowid", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []domain.DebtGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range groups {
		ids, err := r.memberIDs(groups[i].ID)
		if err != nil {
			return nil, fmt.Errorf("members of %s: %w", groups[i].ID, err)
		}
		groups[i].ItemIDs = ids
	}
	return groups, nil
}

func (r *GroupRepo) memberIDs(groupID string) ([]string, error) {
	rows, err := r.db.Query("SELECT item_id FROM group_members WHERE group_id = ? ORDER BY position", groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanGroup(rows *sql.Rows) (*domain.DebtGroup, error) {
	var g domain.DebtGroup
	var nature, profile, option, dpKind, dpValue, createdStr string

	err := rows.Scan(
		&g.ID, &g.Company, &nature, &profile, &option, &g.InstallmentCount,
		&dpKind, &dpValue, &createdStr,
	)
	if err != nil {
		return nil, err
	}

	g.Nature = domain.DebtNature(nature)
	g.Profile = domain.Profile(profile)
	g.Option = domain.PaymentOption(option)
	g.DownPayment.Kind = domain.DownPaymentKind(dpKind)
	if g.DownPayment.Value, err = decimal.NewFromString(dpValue); err != nil {
		return nil, fmt.Errorf("group %s down payment %q: %w", g.ID, dpValue, err)
	}
	g.CreatedAt, _ = time.Parse(timeLayout, createdStr)

	return &g, nil
}
