package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/simulation"
)

// Separator is the field delimiter of every CSV this package writes. The
// ingestion CSV reader accepts the same files.
const Separator = ';'

var itemHeader = []string{
	"id", "company", "description", "fiscal_year", "nature", "profile",
	"principal", "charges", "correction", "option", "installments",
	"down_payment_kind", "down_payment_value",
	"current_value", "discount_percent", "discount_amount", "negotiated_total",
	"down_payment", "first_installment", "regular_installment", "feasible", "alerts",
}

var groupHeader = []string{
	"id", "company", "nature", "profile", "option", "installments",
	"down_payment_kind", "down_payment_value", "items",
	"current_value", "discount_percent", "discount_amount", "negotiated_total",
	"down_payment", "first_installment", "regular_installment", "feasible", "alerts",
}

func amount(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func alertCodes(alerts []domain.Alert) string {
	codes := make([]string, len(alerts))
	for i, a := range alerts {
		codes[i] = string(a.Code)
		if a.Installment > 0 {
			codes[i] += "#" + strconv.Itoa(a.Installment)
		}
	}
	return strings.Join(codes, ",")
}

func resultColumns(r *domain.ComputationResult) []string {
	if r == nil {
		return []string{"", "", "", "", "", "", "", "false", ""}
	}
	return []string{
		amount(r.CurrentValue), r.DiscountPercent.StringFixed(2), amount(r.DiscountAmount), amount(r.NegotiatedTotal),
		amount(r.DownPayment), amount(r.FirstInstallment), amount(r.RegularInstallment),
		strconv.FormatBool(r.Feasible), alertCodes(r.Alerts),
	}
}

// WriteItemsCSV writes one row per item: the raw fields followed by the
// computed settlement.
func WriteItemsCSV(w io.Writer, items []simulation.ItemView) error {
	cw := csv.NewWriter(w)
	cw.Comma = Separator

	if err := cw.Write(itemHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range items {
		it := v.Item
		row := []string{
			it.ID, it.Company, it.Description, strconv.Itoa(it.FiscalYear), string(it.Nature), string(it.Profile),
			amount(it.Principal), amount(it.Charges), amount(it.Correction),
			string(it.Option), strconv.Itoa(it.InstallmentCount),
			string(it.DownPayment.Kind), amount(it.DownPayment.Value),
		}
		res := v.Result
		row = append(row, resultColumns(&res)...)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write item %s: %w", it.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func WriteGroupsCSV(w io.Writer, groups []simulation.GroupView) error {
	cw := csv.NewWriter(w)
	cw.Comma = Separator

	if err := cw.Write(groupHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range groups {
		g := v.Group
		row := []string{
			g.ID, g.Company, string(g.Nature), string(g.Profile), string(g.Option), strconv.Itoa(g.InstallmentCount),
			string(g.DownPayment.Kind), amount(g.DownPayment.Value), strings.Join(g.ItemIDs, ","),
		}
		row = append(row, resultColumns(v.Result)...)
		if v.Result == nil && v.Error != "" {
			row[len(row)-1] = v.Error
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write group %s: %w", g.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
