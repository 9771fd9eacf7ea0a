package ingestion

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/export"
	"github.com/refis/simulator/internal/refis"
	"github.com/refis/simulator/internal/repository"
	"github.com/refis/simulator/internal/rules"
)

const (
	FormatCSV    = "csv"
	FormatBundle = "json"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidRecord     = errors.New("invalid record")
)

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	ImportID          string `json:"import_id"`
	Format            string `json:"format"`
	AlreadyIngested   bool   `json:"already_ingested"`
	ItemsIngested     int    `json:"items_ingested"`
	GroupsIngested    int    `json:"groups_ingested"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}

// Service loads debt files into the repository.
type Service struct {
	items   *repository.ItemRepo
	groups  *repository.GroupRepo
	imports *repository.ImportRepo
	tables  *rules.Tables

	now func() time.Time
}

func NewService(
	items *repository.ItemRepo,
	groups *repository.GroupRepo,
	imports *repository.ImportRepo,
	tables *rules.Tables,
) *Service {
	return &Service{
		items:   items,
		groups:  groups,
		imports: imports,
		tables:  tables,
		now:     time.Now,
	}
}

// DetectFormat guesses the format of data: JSON bundles start with '{'.
func DetectFormat(data []byte) string {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return FormatBundle
	}
	return FormatCSV
}

// Ingest parses a debt file and stores its records. A file whose SHA-256 was
// already ingested is skipped. Every record is validated before anything is
// written; one invalid record rejects the whole file.
//
// format must be one of: csv, json, or empty to detect it.
func (s *Service) Ingest(data []byte, format string) (*IngestResult, error) {
	if format == "" {
		format = DetectFormat(data)
	}
	format = strings.ToLower(format)

	// Idempotency check via file hash.
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.imports.ExistsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		log.Printf("[ingestion] Skipping %s file %s..., already ingested", format, hash[:12])
		return &IngestResult{Format: format, AlreadyIngested: true}, nil
	}

	now := s.now().UTC()
	var items []domain.DebtItem
	var groups []domain.DebtGroup

	switch format {
	case FormatCSV:
		items, err = ParseDebtsCSV(data, hash, now)
	case FormatBundle:
		var b *export.Bundle
		if b, err = export.ReadBundle(data); err == nil {
			items, groups = b.Items, b.Groups
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidRecord, format, err)
	}

	if err := s.validate(items, groups, now); err != nil {
		return nil, err
	}

	insertedItems, err := s.items.BulkInsert(items)
	if err != nil {
		return nil, fmt.Errorf("insert items: %w", err)
	}
	insertedGroups, err := s.groups.BulkInsert(groups)
	if err != nil {
		return nil, fmt.Errorf("insert groups: %w", err)
	}

	rec := &repository.ImportRecord{
		ID:          uuid.NewString(),
		Format:      format,
		FileHash:    hash,
		RecordCount: len(items) + len(groups),
		IngestedAt:  now,
	}
	if err := s.imports.Insert(rec); err != nil {
		return nil, fmt.Errorf("insert import: %w", err)
	}

	log.Printf("[ingestion] Ingested %s file %s: %d items (%d new), %d groups (%d new)",
		format, rec.ID, len(items), insertedItems, len(groups), insertedGroups)

	return &IngestResult{
		ImportID:          rec.ID,
		Format:            format,
		ItemsIngested:     insertedItems,
		GroupsIngested:    insertedGroups,
		DuplicatesSkipped: len(items) - insertedItems + len(groups) - insertedGroups,
	}, nil
}

// validate runs every record through the calculator so that files with
// structurally invalid scenarios are refused. Missing timestamps are filled in.
func (s *Service) validate(items []domain.DebtItem, groups []domain.DebtGroup, now time.Time) error {
	byID := make(map[string]domain.DebtItem, len(items))
	for i := range items {
		it := &items[i]
		if it.ID == "" || strings.TrimSpace(it.Company) == "" {
			return fmt.Errorf("%w: item %d needs an id and a company", ErrInvalidRecord, i+1)
		}
		if it.Principal.IsNegative() || it.Charges.IsNegative() || it.Correction.IsNegative() {
			return fmt.Errorf("%w: item %s: negative amount", ErrInvalidRecord, it.ID)
		}
		if _, err := refis.ComputeItem(s.tables, *it); err != nil {
			return fmt.Errorf("%w: item %s: %w", ErrInvalidRecord, it.ID, err)
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		byID[it.ID] = *it
	}

	for i := range groups {
		g := &groups[i]
		if g.ID == "" {
			return fmt.Errorf("%w: group %d has no id", ErrInvalidRecord, i+1)
		}
		members := make([]domain.DebtItem, 0, len(g.ItemIDs))
		for _, id := range g.ItemIDs {
			// A stored row wins over the file's copy: duplicates are not
			// overwritten on insert.
			stored, err := s.items.GetByID(id)
			switch {
			case err == nil:
				members = append(members, *stored)
			case errors.Is(err, repository.ErrNotFound):
				m, ok := byID[id]
				if !ok {
					return fmt.Errorf("%w: group %s member %s: %w", ErrInvalidRecord, g.ID, id, err)
				}
				members = append(members, m)
			default:
				return fmt.Errorf("group %s member %s: %w", g.ID, id, err)
			}
		}
		if _, err := refis.ComputeGroup(s.tables, *g, members); err != nil {
			return fmt.Errorf("%w: group %s: %w", ErrInvalidRecord, g.ID, err)
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
	}
	return nil
}
