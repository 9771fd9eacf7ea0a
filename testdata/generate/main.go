package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/currency"
	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/export"
	"github.com/refis/simulator/internal/rules"
)

type company struct {
	name    string
	profile domain.Profile
}

var companies = []company{
	{"Padaria Pão Quente", domain.ProfileIndividual},
	{"Construtora Horizonte Ltda", domain.ProfileCompany},
	{"Clínica Vida Plena", domain.ProfileCompany},
	{"Oficina do Zé", domain.ProfileIndividual},
}

var installmentsByRuleSet = map[domain.RuleSet]int{
	domain.RuleSetPropertyFees: 12,
	domain.RuleSetServiceTax:   6,
}

func main() {
	baseDir := findTestdataDir()

	filePath := filepath.Join(baseDir, "debts.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = export.Separator
	defer w.Flush()

	w.Write([]string{
		"id", "company", "profile", "description", "fiscal_year", "nature", "option",
		"installments", "principal", "charges", "correction",
		"down_payment_kind", "down_payment_value",
	})

	seq := 0
	for i, c := range companies {
		natures := []domain.DebtNature{
			domain.Natures[i%len(domain.Natures)],
			domain.Natures[(i+2)%len(domain.Natures)],
		}
		for k, n := range natures {
			rs, err := rules.Classify(n)
			if err != nil {
				panic(err)
			}
			for year := 2019; year <= 2021; year++ {
				charges := int64(i+1)*250000 + int64(year-2018)*87315 + int64(k)*41230
				principal := charges * 2
				correction := charges / 10
				desc := fmt.Sprintf("%s %d", n, year)

				row := func(option domain.PaymentOption, count int, dpKind, dpValue string) {
					seq++
					w.Write([]string{
						fmt.Sprintf("SEED-%03d", seq), c.name, string(c.profile), desc,
						strconv.Itoa(year), string(n), string(option), strconv.Itoa(count),
						brl(principal), brl(charges), brl(correction), dpKind, dpValue,
					})
				}

				// Every debt gets a cash scenario; natures that allow
				// installments also get an installment scenario.
				row(domain.OptionCash, 1, "", "")
				if count, ok := installmentsByRuleSet[rs]; ok {
					if i%2 == 0 {
						row(domain.OptionInstallment, count, string(domain.DownPaymentPercent), "10")
					} else {
						row(domain.OptionInstallment, count, "", "")
					}
				}
			}
		}
	}

	fmt.Printf("Generated %d debt rows -> debts.csv\n", seq)
}

func brl(cents int64) string {
	return currency.FormatBRL(decimal.New(cents, -2))
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "../testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
