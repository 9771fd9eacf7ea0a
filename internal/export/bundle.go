package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/refis/simulator/internal/domain"
)

// BundleVersion is written into every saved bundle. Bundles of the same
// major version can be read back.
const BundleVersion = "1.2"

var ErrUnsupportedBundle = errors.New("unsupported bundle version")

// Bundle is the full saved state: raw items and groups, never computed values.
type Bundle struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Items      []domain.DebtItem  `json:"items"`
	Groups     []domain.DebtGroup `json:"groups"`
}

func WriteBundle(w io.Writer, b *Bundle) error {
	if b.Version == "" {
		b.Version = BundleVersion
	}
	if b.Items == nil {
		b.Items = []domain.DebtItem{}
	}
	if b.Groups == nil {
		b.Groups = []domain.DebtGroup{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return nil
}

func ReadBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	major, _, _ := strings.Cut(BundleVersion, ".")
	if !strings.HasPrefix(b.Version, major+".") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBundle, b.Version)
	}
	return &b, nil
}
