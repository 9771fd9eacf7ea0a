package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/currency"
	"github.com/refis/simulator/internal/domain"
)

// headerAliases maps accepted column names, lower-cased, to canonical names.
// The Portuguese names are those of spreadsheets exported by the earlier
// simulator.
var headerAliases = map[string]string{
	"id": "id", "uid": "id",
	"company": "company", "empresa": "company",
	"profile": "profile", "perfil": "profile",
	"description": "description", "descricao": "description", "descrição": "description",
	"fiscal_year": "fiscal_year", "exercicio": "fiscal_year", "exercício": "fiscal_year",
	"nature": "nature", "natureza": "nature",
	"option": "option", "opcao": "option", "opção": "option",
	"installments": "installments", "parcelas": "installments",
	"principal": "principal", "tributo": "principal",
	"charges": "charges", "encargos": "charges",
	"correction": "correction", "correcao": "correction", "correção": "correction",
	"down_payment_kind": "down_payment_kind", "entradatipo": "down_payment_kind",
	"down_payment_value": "down_payment_value", "entradavalor": "down_payment_value",
}

var requiredColumns = []string{"company", "profile", "fiscal_year", "nature", "option", "charges"}

// ParseDebtsCSV parses a debt spreadsheet. The delimiter is ';' when the
// header line contains one, ',' otherwise. Amounts may use Brazilian
// formatting. Rows without an id column get an ID derived from fileHash and
// the line number, so the same file always yields the same IDs.
func ParseDebtsCSV(data []byte, fileHash string, now time.Time) ([]domain.DebtItem, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	if first, _, _ := bytes.Cut(data, []byte("\n")); bytes.ContainsRune(first, ';') {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		if name, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[name] = i
		}
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var items []domain.DebtItem
	lineNum := 1

	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if strings.Join(row, "") == "" {
			continue
		}

		it, err := parseRow(field)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		it.ID = field("id")
		if it.ID == "" {
			it.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fileHash+":"+strconv.Itoa(lineNum))).String()
		}
		it.CreatedAt = now.Add(time.Duration(lineNum) * time.Microsecond)
		items = append(items, it)
	}

	return items, nil
}

func parseRow(field func(string) string) (domain.DebtItem, error) {
	var it domain.DebtItem
	var ok bool
	var err error

	it.Company = field("company")
	it.Description = field("description")

	if it.Profile, ok = domain.ParseProfile(field("profile")); !ok {
		return it, fmt.Errorf("unknown profile %q", field("profile"))
	}
	if it.Nature, ok = domain.ParseNature(field("nature")); !ok {
		return it, fmt.Errorf("unknown nature %q", field("nature"))
	}
	if it.Option, ok = domain.ParsePaymentOption(field("option")); !ok {
		return it, fmt.Errorf("unknown payment option %q", field("option"))
	}
	if it.FiscalYear, err = strconv.Atoi(field("fiscal_year")); err != nil {
		return it, fmt.Errorf("fiscal year: %w", err)
	}

	it.InstallmentCount = 1
	if s := field("installments"); s != "" {
		if it.InstallmentCount, err = strconv.Atoi(s); err != nil {
			return it, fmt.Errorf("installments: %w", err)
		}
	}

	amounts := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"principal", &it.Principal},
		{"charges", &it.Charges},
		{"correction", &it.Correction},
	}
	for _, a := range amounts {
		if *a.dst, err = currency.ParseBRL(field(a.name)); err != nil {
			return it, fmt.Errorf("%s: %w", a.name, err)
		}
	}

	it.DownPayment, err = parseDownPayment(field("down_payment_kind"), field("down_payment_value"))
	if err != nil {
		return it, err
	}
	return it, nil
}

// parseDownPayment reads a kind and a value. A value ending in '%' is a
// percentage whatever the kind says; a positive value without a kind is a
// fixed amount.
func parseDownPayment(kind, value string) (domain.DownPayment, error) {
	kind = strings.ToLower(kind)
	if strings.HasSuffix(value, "%") {
		kind = string(domain.DownPaymentPercent)
		value = strings.TrimSpace(strings.TrimSuffix(value, "%"))
	}
	v, err := currency.ParseBRL(value)
	if err != nil {
		return domain.DownPayment{}, fmt.Errorf("down payment: %w", err)
	}

	switch kind {
	case "", "none":
		if v.IsPositive() {
			return domain.FixedDownPayment(v), nil
		}
		return domain.DownPayment{}, nil
	case string(domain.DownPaymentAmount), "valor":
		return domain.FixedDownPayment(v), nil
	case string(domain.DownPaymentPercent), "percentual":
		return domain.PercentDownPayment(v), nil
	}
	return domain.DownPayment{}, fmt.Errorf("unknown down payment kind %q", kind)
}
