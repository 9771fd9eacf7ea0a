package repository

import (
	"database/sql"
	"time"
)

// ImportRecord remembers a file that was already ingested.
type ImportRecord struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"`
	FileHash    string    `json:"file_hash"`
	RecordCount int       `json:"record_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

type ImportRepo struct {
	db *sql.DB
}

func NewImportRepo(db *sql.DB) *ImportRepo {
	return &ImportRepo{db: db}
}

// ExistsByHash checks whether a file with the given hash has already been
// ingested (idempotency check).
func (r *ImportRepo) ExistsByHash(hash string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM imports WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

func (r *ImportRepo) Insert(rec *ImportRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO imports (id, format, file_hash, record_count, ingested_at)
		VALUES (?,?,?,?,?)`,
		rec.ID, rec.Format, rec.FileHash, rec.RecordCount, rec.IngestedAt.Format(time.RFC3339),
	)
	return err
}
