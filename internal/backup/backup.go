package backup

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/refis/simulator/internal/export"
	"github.com/refis/simulator/internal/repository"
	"github.com/refis/simulator/internal/sentryutil"
)

const (
	filePrefix = "refis-"
	fileSuffix = ".json"
	stampFmt   = "20060102T150405Z"
)

// Scheduler periodically saves every stored item and group as a JSON bundle
// in dir, keeping the newest keep files.
type Scheduler struct {
	cron   *cron.Cron
	items  *repository.ItemRepo
	groups *repository.GroupRepo
	dir    string
	keep   int

	now func() time.Time
}

func New(items *repository.ItemRepo, groups *repository.GroupRepo, dir string, keep int) *Scheduler {
	if keep < 1 {
		keep = 1
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		items:  items,
		groups: groups,
		dir:    dir,
		keep:   keep,
		now:    time.Now,
	}
}

// Start registers the backup job on a standard five-field cron spec and
// starts the scheduler. It does not block.
func (s *Scheduler) Start(spec string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if _, err := s.cron.AddFunc(spec, s.job); err != nil {
		return fmt.Errorf("add backup job %q: %w", spec, err)
	}
	s.cron.Start()
	log.Printf("[backup] Scheduler started (spec %q, dir %s, keep %d)", spec, s.dir, s.keep)
	return nil
}

// Stop waits for a running backup to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[backup] Scheduler stopped")
}

func (s *Scheduler) job() {
	path, err := s.Run()
	if err != nil {
		log.Printf("[backup] failed: %v", err)
		sentryutil.CaptureError(err, map[string]string{"job": "backup"})
		return
	}
	log.Printf("[backup] Wrote %s", path)
}

// Run writes one backup now and prunes old ones. It returns the new file.
func (s *Scheduler) Run() (string, error) {
	items, err := s.items.List(repository.ItemFilter{})
	if err != nil {
		return "", fmt.Errorf("list items: %w", err)
	}
	groups, err := s.groups.List(repository.GroupFilter{})
	if err != nil {
		return "", fmt.Errorf("list groups: %w", err)
	}

	now := s.now().UTC()
	path := filepath.Join(s.dir, filePrefix+now.Format(stampFmt)+fileSuffix)

	tmp, err := os.CreateTemp(s.dir, ".refis-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	b := &export.Bundle{ExportedAt: now, Items: items, Groups: groups}
	if err := export.WriteBundle(tmp, b); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename backup: %w", err)
	}

	if err := s.prune(); err != nil {
		return path, fmt.Errorf("prune: %w", err)
	}
	return path, nil
}

// Backups lists the backup files in dir, oldest first.
func (s *Scheduler) Backups() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Scheduler) prune() error {
	names, err := s.Backups()
	if err != nil {
		return err
	}
	for len(names) > s.keep {
		if err := os.Remove(filepath.Join(s.dir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
