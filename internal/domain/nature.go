package domain

import "strings"

// DebtNature is the municipal category of a debt. It selects the rule set.
type DebtNature string

const (
	NatureIPTU            DebtNature = "iptu"
	NatureRegistrationFee DebtNature = "taxa_inscricao"
	NatureServiceTax      DebtNature = "issqn"
	NatureFormalFine      DebtNature = "multa_formal"
	NatureRegulatoryFine  DebtNature = "multa_posturas"
)

// Natures lists every supported nature in display order.
var Natures = []DebtNature{
	NatureIPTU,
	NatureServiceTax,
	NatureFormalFine,
	NatureRegulatoryFine,
	NatureRegistrationFee,
}

var natureLabels = map[DebtNature]string{
	NatureIPTU:            "IPTU/Taxas de Imóveis/Propriedades",
	NatureServiceTax:      "ISSQN",
	NatureFormalFine:      "Multas formais/de ofício",
	NatureRegulatoryFine:  "Multas PROCON/Meio Ambiente/Posturas/Vig.Sanitária/Obras",
	NatureRegistrationFee: "Taxa de Inscrição Municipal (CNPJ/CPF)",
}

// Label returns the name printed on reports. Unknown natures return the raw value.
func (n DebtNature) Label() string {
	if l, ok := natureLabels[n]; ok {
		return l
	}
	return string(n)
}

// ParseNature accepts either the code or the report label.
func ParseNature(s string) (DebtNature, bool) {
	n := DebtNature(s)
	if _, ok := natureLabels[n]; ok {
		return n, true
	}
	for code, label := range natureLabels {
		if label == s {
			return code, true
		}
	}
	return "", false
}

// RuleSet identifies which discount and installment rules apply.
type RuleSet string

const (
	RuleSetPropertyFees RuleSet = "property_fees"
	RuleSetServiceTax   RuleSet = "service_tax"
	RuleSetFine         RuleSet = "fine"
)

type Profile string

const (
	ProfileIndividual Profile = "PF/MEI"
	ProfileCompany    Profile = "PJ"
)

func (p Profile) Valid() bool {
	return p == ProfileIndividual || p == ProfileCompany
}

type PaymentOption string

const (
	OptionCash        PaymentOption = "CASH"
	OptionInstallment PaymentOption = "INSTALLMENT"
)

func (o PaymentOption) Valid() bool {
	return o == OptionCash || o == OptionInstallment
}

// Label returns the Portuguese name used on reports.
func (o PaymentOption) Label() string {
	switch o {
	case OptionCash:
		return "À vista"
	case OptionInstallment:
		return "Parcelado"
	}
	return string(o)
}

// ParsePaymentOption accepts the code or the report label.
func ParsePaymentOption(s string) (PaymentOption, bool) {
	switch s {
	case string(OptionCash), "À vista", "A vista":
		return OptionCash, true
	case string(OptionInstallment), "Parcelado":
		return OptionInstallment, true
	}
	return "", false
}

// ParseProfile accepts "PF/MEI", "PF", "MEI" and "PJ" in any case.
func ParseProfile(s string) (Profile, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PF/MEI", "PF", "MEI":
		return ProfileIndividual, true
	case "PJ":
		return ProfileCompany, true
	}
	return "", false
}
