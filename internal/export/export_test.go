package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/refis"
	"github.com/refis/simulator/internal/rules"
	"github.com/refis/simulator/internal/simulation"
)

func sampleItem() domain.DebtItem {
	return domain.DebtItem{
		ID:               "i1",
		Company:          "Padaria São João",
		Description:      "IPTU; lote 3",
		FiscalYear:       2022,
		Nature:           domain.NatureIPTU,
		Profile:          domain.ProfileIndividual,
		Principal:        decimal.RequireFromString("0"),
		Charges:          decimal.RequireFromString("10000"),
		Correction:       decimal.RequireFromString("250"),
		Option:           domain.OptionInstallment,
		InstallmentCount: 10,
		DownPayment:      domain.PercentDownPayment(decimal.NewFromInt(20)),
		CreatedAt:        time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func sampleView(t *testing.T) simulation.ItemView {
	t.Helper()
	it := sampleItem()
	res, err := refis.ComputeItem(rules.Default(), it)
	if err != nil {
		t.Fatal(err)
	}
	return simulation.ItemView{Item: it, Result: res, Key: simulation.ItemKey(it)}
}

func TestWriteItemsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItemsCSV(&buf, []simulation.ItemView{sampleView(t)}); err != nil {
		t.Fatal(err)
	}

	r := csv.NewReader(&buf)
	r.Comma = Separator
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("written CSV does not parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	got := map[string]string{}
	for i, h := range rows[0] {
		got[h] = rows[1][i]
	}
	want := map[string]string{
		"description":       "IPTU; lote 3",
		"down_payment_kind": "percent",
		"discount_amount":   "9000.00",
		"negotiated_total":  "1250.00",
		"down_payment":      "250.00",
		"feasible":          "false",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if !strings.Contains(got["alerts"], string(domain.AlertBelowMinimumInstallment)) {
		t.Errorf("alerts = %q", got["alerts"])
	}
}

func TestWriteGroupsCSV_ReportsErrors(t *testing.T) {
	views := []simulation.GroupView{{
		Group: domain.DebtGroup{ID: "g1", Company: "ACME", Option: domain.OptionCash, ItemIDs: []string{"a", "b"}},
		Error: "item b: not found",
	}}

	var buf bytes.Buffer
	if err := WriteGroupsCSV(&buf, views); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	if !strings.Contains(lines[1], "a,b") || !strings.HasSuffix(lines[1], "item b: not found") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestBundle(t *testing.T) {
	it := sampleItem()
	g := domain.DebtGroup{ID: "g1", Company: it.Company, Nature: it.Nature, Profile: it.Profile,
		Option: domain.OptionCash, InstallmentCount: 1, ItemIDs: []string{it.ID}}

	var buf bytes.Buffer
	if err := WriteBundle(&buf, &Bundle{Items: []domain.DebtItem{it}, Groups: []domain.DebtGroup{g}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"version": "1.2"`) {
		t.Errorf("bundle has no version: %s", buf.String())
	}
	if strings.Contains(buf.String(), "negotiated_total") {
		t.Error("bundle must not carry computed values")
	}

	b, err := ReadBundle(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Items) != 1 || !b.Items[0].Charges.Equal(it.Charges) {
		t.Fatalf("items = %+v", b.Items)
	}
	if dp := b.Items[0].DownPayment; dp.Kind != domain.DownPaymentPercent || !dp.Value.Equal(it.DownPayment.Value) {
		t.Errorf("down payment = %+v", dp)
	}
	if len(b.Groups) != 1 || b.Groups[0].ItemIDs[0] != "i1" {
		t.Errorf("groups = %+v", b.Groups)
	}
}

func TestReadBundle_Rejects(t *testing.T) {
	if _, err := ReadBundle([]byte(`{"version":"2.0","items":[]}`)); !errors.Is(err, ErrUnsupportedBundle) {
		t.Errorf("v2 err = %v", err)
	}
	if _, err := ReadBundle([]byte(`{"version":"1.1","items":[]}`)); err != nil {
		t.Errorf("v1.1 err = %v", err)
	}
	if _, err := ReadBundle([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestWriteReportPDF(t *testing.T) {
	v := sampleView(t)
	entry := simulation.ConsolidationEntry{
		Key: v.Key, Company: v.Item.Company, Profile: v.Item.Profile, Nature: v.Item.Nature, Scenarios: 1,
		Result: refis.ConsolidateOne(v.Result),
	}

	var buf bytes.Buffer
	err := WriteReportPDF(&buf, Report{
		Company:           v.Item.Company,
		GeneratedAt:       time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		Items:             []simulation.ItemView{v},
		ItemConsolidation: []simulation.ConsolidationEntry{entry},
	})
	if err != nil {
		t.Fatalf("WriteReportPDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", buf.Bytes()[:min(16, buf.Len())])
	}

	reader, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parse PDF: %v", err)
	}
	if reader.NumPage() < 1 {
		t.Fatalf("pages = %d", reader.NumPage())
	}
	var text strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			t.Fatalf("page %d text: %v", i, err)
		}
		text.WriteString(s)
	}
	for _, want := range []string{"Padaria", "Valor REFIS"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("report text missing %q", want)
		}
	}
}
