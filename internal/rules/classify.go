package rules

import (
	"fmt"

	"github.com/refis/simulator/internal/domain"
)

// Classify maps a debt nature to the rule set that governs it.
func Classify(n domain.DebtNature) (domain.RuleSet, error) {
	switch n {
	case domain.NatureIPTU, domain.NatureRegistrationFee:
		return domain.RuleSetPropertyFees, nil
	case domain.NatureServiceTax:
		return domain.RuleSetServiceTax, nil
	case domain.NatureFormalFine, domain.NatureRegulatoryFine:
		return domain.RuleSetFine, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNature, string(n))
}
