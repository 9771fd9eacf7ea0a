package simulation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/refis/simulator/internal/domain"
)

// ItemKey identifies the same debt across scenarios: two items with equal
// keys are alternatives for one debt and are consolidated together.
func ItemKey(it domain.DebtItem) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s",
		it.Company, it.Profile, it.Nature, strings.TrimSpace(it.Description), it.FiscalYear, it.Principal.StringFixed(2))
}

// GroupKey identifies the same set of debts across group scenarios. Member
// order does not matter.
func GroupKey(g domain.DebtGroup, members []domain.DebtItem) string {
	sigs := make([]string, len(members))
	for i, m := range members {
		sigs[i] = fmt.Sprintf("%d|%s|%s", m.FiscalYear, strings.TrimSpace(m.Description), m.Principal.StringFixed(2))
	}
	sort.Strings(sigs)
	return fmt.Sprintf("%s|%s|%s|[%s]", g.Company, g.Profile, g.Nature, strings.Join(sigs, ";"))
}
