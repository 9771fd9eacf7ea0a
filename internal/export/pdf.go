package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/refis/simulator/internal/currency"
	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/simulation"
)

// Report is everything printed on the per-company PDF.
type Report struct {
	Company            string
	GeneratedAt        time.Time
	Items              []simulation.ItemView
	Groups             []simulation.GroupView
	ItemConsolidation  []simulation.ConsolidationEntry
	GroupConsolidation []simulation.ConsolidationEntry
}

const (
	pageW    = 297.0
	marginL  = 12.0
	marginR  = 12.0
	contentW = pageW - marginL - marginR
	rowH     = 6.0
)

var (
	cInk    = [3]int{33, 37, 41}
	cMuted  = [3]int{108, 117, 125}
	cHeadBg = [3]int{13, 71, 161}
	cZebra  = [3]int{241, 245, 250}
	cAlert  = [3]int{176, 0, 32}
)

func setFill(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }
func setText(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }

type column struct {
	title string
	width float64
	align string
}

type table struct {
	pdf  *gofpdf.Fpdf
	tr   func(string) string
	cols []column
	rows int
}

func (t *table) header() {
	pdf := t.pdf
	pdf.SetFont("Helvetica", "B", 8)
	setFill(pdf, cHeadBg)
	pdf.SetTextColor(255, 255, 255)
	for _, c := range t.cols {
		pdf.CellFormat(c.width, rowH, t.tr(c.title), "", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)
}

func (t *table) row(values []string, alert bool) {
	pdf := t.pdf
	if _, pageH := pdf.GetPageSize(); pdf.GetY()+rowH > pageH-18 {
		pdf.AddPage()
		t.header()
	}
	pdf.SetFont("Helvetica", "", 8)
	setText(pdf, cInk)
	if alert {
		setText(pdf, cAlert)
	}
	setFill(pdf, cZebra)
	fill := t.rows%2 == 1
	for i, c := range t.cols {
		pdf.CellFormat(c.width, rowH, t.tr(values[i]), "", 0, c.align, fill, 0, "")
	}
	pdf.Ln(-1)
	t.rows++
}

func section(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	setText(pdf, cInk)
	pdf.CellFormat(contentW, 8, tr(title), "", 1, "L", false, 0, "")
}

func optionText(option domain.PaymentOption, count int) string {
	if option == domain.OptionInstallment {
		return fmt.Sprintf("%s (%dx)", option.Label(), count)
	}
	return option.Label()
}

func brlOrDash(r *domain.ComputationResult) string {
	if r == nil {
		return "-"
	}
	return currency.FormatBRL(r.NegotiatedTotal)
}

// WriteReportPDF renders a landscape A4 report of one company's simulations.
func WriteReportPDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(marginL, 14, marginR)
	pdf.SetAutoPageBreak(false, 14)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 7)
		setText(pdf, cMuted)
		pdf.CellFormat(contentW/2, 6, tr("Valores estimados. Confira as condições oficiais do REFIS."), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW/2, 6, strconv.Itoa(pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	setText(pdf, cHeadBg)
	pdf.CellFormat(contentW, 10, tr("Simulação REFIS"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	setText(pdf, cMuted)
	company := r.Company
	if company == "" {
		company = "Todas as empresas"
	}
	pdf.CellFormat(contentW, 6, tr(fmt.Sprintf("%s  |  gerado em %s", company, r.GeneratedAt.Format("02/01/2006 15:04"))), "", 1, "L", false, 0, "")

	section(pdf, tr, "Débitos")
	items := &table{pdf: pdf, tr: tr, cols: []column{
		{"Empresa", 34, "L"}, {"Descrição", 52, "L"}, {"Exercício", 16, "C"}, {"Natureza", 40, "L"},
		{"Opção", 24, "L"}, {"Valor atual", 28, "R"}, {"Desconto", 26, "R"}, {"Valor REFIS", 28, "R"},
		{"1ª parcela", 25, "R"},
	}}
	items.header()
	for _, v := range r.Items {
		items.row([]string{
			v.Item.Company, v.Item.Description, strconv.Itoa(v.Item.FiscalYear), v.Item.Nature.Label(),
			optionText(v.Result.Option, v.Result.InstallmentCount),
			currency.FormatBRL(v.Result.CurrentValue), currency.FormatBRL(v.Result.DiscountAmount),
			currency.FormatBRL(v.Result.NegotiatedTotal), currency.FormatBRL(v.Result.FirstInstallment),
		}, !v.Result.Feasible)
	}

	if len(r.Groups) > 0 {
		section(pdf, tr, "Negociação em grupo")
		groups := &table{pdf: pdf, tr: tr, cols: []column{
			{"Empresa", 40, "L"}, {"Natureza", 60, "L"}, {"Itens", 16, "C"}, {"Opção", 30, "L"},
			{"Valor atual", 34, "R"}, {"Desconto", 32, "R"}, {"Valor REFIS", 31, "R"},
		}}
		groups.header()
		for _, v := range r.Groups {
			current, discount := "-", "-"
			if v.Result != nil {
				current, discount = currency.FormatBRL(v.Result.CurrentValue), currency.FormatBRL(v.Result.DiscountAmount)
			}
			groups.row([]string{
				v.Group.Company, v.Group.Nature.Label(), strconv.Itoa(len(v.Group.ItemIDs)),
				optionText(v.Group.Option, v.Group.InstallmentCount), current, discount, brlOrDash(v.Result),
			}, v.Result == nil || !v.Result.Feasible)
		}
	}

	for _, part := range []struct {
		title   string
		entries []simulation.ConsolidationEntry
	}{
		{"Visão consolidada: itens", r.ItemConsolidation},
		{"Visão consolidada: grupos", r.GroupConsolidation},
	} {
		if len(part.entries) == 0 {
			continue
		}
		section(pdf, tr, part.title)
		t := &table{pdf: pdf, tr: tr, cols: []column{
			{"Empresa", 40, "L"}, {"Natureza", 60, "L"}, {"Cenários", 18, "C"}, {"À vista", 34, "R"},
			{"Parcelado", 34, "R"}, {"Diferença", 30, "R"}, {"Melhor opção", 37, "L"},
		}}
		t.header()
		for _, e := range part.entries {
			best := "-"
			if e.Result.Recommended != nil {
				best = optionText(e.Result.Winner, e.Result.Recommended.InstallmentCount)
			}
			t.row([]string{
				e.Company, e.Nature.Label(), strconv.Itoa(e.Scenarios),
				brlOrDash(e.Result.Cash), brlOrDash(e.Result.Installment),
				currency.FormatBRL(e.Result.Delta), best,
			}, !e.Result.Feasible)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}
