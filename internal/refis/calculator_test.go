package refis

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/rules"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sum(vs []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range vs {
		total = total.Add(v)
	}
	return total
}

func item(nature domain.DebtNature, profile domain.Profile, option domain.PaymentOption, count int, principal, charges, correction string) domain.DebtItem {
	return domain.DebtItem{
		ID:               "it-1",
		Company:          "ACME",
		Description:      "IPTU lote 12",
		FiscalYear:       2022,
		Nature:           nature,
		Profile:          profile,
		Principal:        dec(principal),
		Charges:          dec(charges),
		Correction:       dec(correction),
		Option:           option,
		InstallmentCount: count,
	}
}

func TestComputeItem_PropertyCashBelowMinimum(t *testing.T) {
	res, err := ComputeItem(rules.Default(), item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionCash, 0, "0", "1000", "0"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.DiscountPercent.Equal(dec("1")) {
		t.Errorf("expected 100%% discount, got %s", res.DiscountPercent)
	}
	if !res.DiscountAmount.Equal(dec("1000")) {
		t.Errorf("expected discount 1000, got %s", res.DiscountAmount)
	}
	if !res.NegotiatedTotal.IsZero() {
		t.Errorf("expected total 0, got %s", res.NegotiatedTotal)
	}
	if res.Feasible {
		t.Error("expected infeasible result")
	}
	if !res.HasAlert(domain.AlertBelowMinimumCash) {
		t.Errorf("expected BELOW_MINIMUM_CASH, got %+v", res.Alerts)
	}
	if res.InstallmentCount != 1 {
		t.Errorf("cash should count as 1 installment, got %d", res.InstallmentCount)
	}
}

func TestComputeItem_ServiceTaxInstallmentBelowMinimum(t *testing.T) {
	res, err := ComputeItem(rules.Default(), item(domain.NatureServiceTax, domain.ProfileCompany, domain.OptionInstallment, 10, "0", "10000", "200"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"percent", res.DiscountPercent, "0.80"},
		{"discount", res.DiscountAmount, "8000"},
		{"negotiated base", res.NegotiatedBase, "2000"},
		{"negotiated total", res.NegotiatedTotal, "2200"},
		{"installment", res.RegularInstallment, "220"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}

	if len(res.Installments) != 10 {
		t.Fatalf("expected 10 installments, got %d", len(res.Installments))
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Code != domain.AlertBelowMinimumInstallment {
		t.Errorf("expected one BELOW_MINIMUM_INSTALLMENT alert, got %+v", res.Alerts)
	}
	if res.Feasible {
		t.Error("expected infeasible result")
	}
}

func TestComputeItem_FineRejectsInstallments(t *testing.T) {
	res, err := ComputeItem(rules.Default(), item(domain.NatureFormalFine, domain.ProfileCompany, domain.OptionInstallment, 6, "5000", "3000", "0"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Alerts) != 1 || res.Alerts[0].Code != domain.AlertInstallmentNotAllowed {
		t.Fatalf("expected INSTALLMENT_NOT_ALLOWED only, got %+v", res.Alerts)
	}
	if !res.DiscountAmount.IsZero() || !res.NegotiatedTotal.IsZero() {
		t.Errorf("no discount should be computed, got discount=%s total=%s", res.DiscountAmount, res.NegotiatedTotal)
	}
	if res.Feasible {
		t.Error("expected infeasible result")
	}
}

func TestComputeItem_FineCash(t *testing.T) {
	res, err := ComputeItem(rules.Default(), item(domain.NatureRegulatoryFine, domain.ProfileCompany, domain.OptionCash, 0, "5000", "3000", "100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.DiscountBase.Equal(dec("8000")) {
		t.Errorf("fine base should include principal, got %s", res.DiscountBase)
	}
	if !res.NegotiatedTotal.Equal(dec("4100")) {
		t.Errorf("expected 4100, got %s", res.NegotiatedTotal)
	}
	if !res.Feasible {
		t.Errorf("expected feasible, alerts: %+v", res.Alerts)
	}
}

func TestComputeItem_CountOutOfRange(t *testing.T) {
	for _, count := range []int{0, 17} {
		res, err := ComputeItem(rules.Default(), item(domain.NatureServiceTax, domain.ProfileCompany, domain.OptionInstallment, count, "0", "100000", "0"))
		if err != nil {
			t.Fatalf("count %d: unexpected error: %v", count, err)
		}
		if !res.HasAlert(domain.AlertInstallmentCountOutOfRange) || res.Feasible {
			t.Errorf("count %d: expected out-of-range alert, got %+v", count, res.Alerts)
		}
	}
}

func TestComputeItem_CorrectionNeverDiscounted(t *testing.T) {
	tables := rules.Default()
	without, err := ComputeItem(tables, item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionInstallment, 12, "800", "5000", "0"))
	if err != nil {
		t.Fatal(err)
	}
	with, err := ComputeItem(tables, item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionInstallment, 12, "800", "5000", "750.25"))
	if err != nil {
		t.Fatal(err)
	}

	if !with.DiscountAmount.Equal(without.DiscountAmount) {
		t.Errorf("correction changed discount: %s vs %s", with.DiscountAmount, without.DiscountAmount)
	}
	if !with.DiscountBase.Equal(dec("5000")) {
		t.Errorf("base should be charges only, got %s", with.DiscountBase)
	}
	if diff := with.NegotiatedTotal.Sub(without.NegotiatedTotal); !diff.Equal(dec("750.25")) {
		t.Errorf("correction should be added back untouched, diff=%s", diff)
	}
	// principal stays outside the total for property debts
	if !without.NegotiatedTotal.Equal(dec("500")) {
		t.Errorf("expected 5000*0.10 = 500, got %s", without.NegotiatedTotal)
	}
	if !without.CurrentValue.Equal(dec("5800")) {
		t.Errorf("current value should still report principal, got %s", without.CurrentValue)
	}
}

func TestComputeItem_PrincipalOutsideBase(t *testing.T) {
	cases := []struct {
		name      string
		profile   domain.Profile
		option    domain.PaymentOption
		count     int
		principal string
		charges   string
		want      string
		alert     domain.AlertCode
	}{
		{"cash charges fully waived", domain.ProfileIndividual, domain.OptionCash, 1, "500", "1000", "0", domain.AlertBelowMinimumCash},
		{"installment tier", domain.ProfileCompany, domain.OptionInstallment, 6, "99999", "100000", "5000", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ComputeItem(rules.Default(), item(domain.NatureIPTU, tc.profile, tc.option, tc.count, tc.principal, tc.charges, "0"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.NegotiatedTotal.Equal(dec(tc.want)) {
				t.Errorf("total = %s, want %s", res.NegotiatedTotal, tc.want)
			}
			if want := dec(tc.principal).Add(dec(tc.charges)); !res.CurrentValue.Equal(want) {
				t.Errorf("current value = %s, want %s", res.CurrentValue, want)
			}
			if tc.alert == "" {
				if !res.Feasible {
					t.Errorf("expected feasible, alerts %+v", res.Alerts)
				}
				return
			}
			if res.Feasible || !res.HasAlert(tc.alert) {
				t.Errorf("expected %s, feasible=%v alerts=%+v", tc.alert, res.Feasible, res.Alerts)
			}
		})
	}
}

func TestComputeItem_PercentDownPayment(t *testing.T) {
	it := item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionInstallment, 12, "0", "100000", "0")
	it.DownPayment = domain.PercentDownPayment(dec("20"))

	res, err := ComputeItem(rules.Default(), it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.NegotiatedTotal.Equal(dec("10000")) {
		t.Fatalf("expected total 10000, got %s", res.NegotiatedTotal)
	}
	if !res.DownPayment.Equal(dec("2000")) || !res.FirstInstallment.Equal(dec("2000")) {
		t.Errorf("expected down payment 2000, got %s / %s", res.DownPayment, res.FirstInstallment)
	}
	if len(res.Installments) != 12 {
		t.Fatalf("expected 12 installments, got %d", len(res.Installments))
	}
	if !res.RegularInstallment.Equal(dec("727.27")) {
		t.Errorf("expected regular 727.27, got %s", res.RegularInstallment)
	}
	if !res.Installments[11].Equal(dec("727.30")) {
		t.Errorf("expected last 727.30, got %s", res.Installments[11])
	}
	if !sum(res.Installments).Equal(res.NegotiatedTotal) {
		t.Errorf("installments sum to %s, want %s", sum(res.Installments), res.NegotiatedTotal)
	}
	if !res.Feasible {
		t.Errorf("expected feasible, alerts: %+v", res.Alerts)
	}
}

func TestComputeItem_DownPaymentBelowMinimum(t *testing.T) {
	it := item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionInstallment, 12, "0", "100000", "0")
	it.DownPayment = domain.FixedDownPayment(dec("100"))

	res, err := ComputeItem(rules.Default(), it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %+v", res.Alerts)
	}
	if a := res.Alerts[0]; a.Code != domain.AlertBelowMinimumInstallment || a.Installment != 1 {
		t.Errorf("expected alert on installment 1, got %+v", a)
	}
	if !res.RegularInstallment.Equal(dec("900")) {
		t.Errorf("expected 9900/11 = 900, got %s", res.RegularInstallment)
	}
}

func TestComputeItem_DownPaymentCappedAtTotal(t *testing.T) {
	it := item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionInstallment, 4, "0", "20000", "0")
	it.DownPayment = domain.FixedDownPayment(dec("999999"))

	res, err := ComputeItem(rules.Default(), it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.DownPayment.Equal(res.NegotiatedTotal) {
		t.Errorf("down payment %s should be capped at total %s", res.DownPayment, res.NegotiatedTotal)
	}
	if !sum(res.Installments).Equal(res.NegotiatedTotal) {
		t.Errorf("installments sum to %s, want %s", sum(res.Installments), res.NegotiatedTotal)
	}
	// installments 2..4 are zero and each gets its own alert
	if len(res.Alerts) != 3 {
		t.Errorf("expected 3 alerts, got %+v", res.Alerts)
	}
}

func TestComputeItem_InvalidDownPayment(t *testing.T) {
	cases := []struct {
		name  string
		count int
		dp    domain.DownPayment
	}{
		{"single installment", 1, domain.FixedDownPayment(dec("100"))},
		{"negative amount", 6, domain.FixedDownPayment(dec("-1"))},
		{"percent above 100", 6, domain.PercentDownPayment(dec("120"))},
		{"unknown kind", 6, domain.DownPayment{Kind: "voucher", Value: dec("1")}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			it := item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionInstallment, c.count, "0", "50000", "0")
			it.DownPayment = c.dp
			if _, err := ComputeItem(rules.Default(), it); !errors.Is(err, ErrInvalidDownPayment) {
				t.Errorf("expected ErrInvalidDownPayment, got %v", err)
			}
		})
	}
}

func TestComputeItem_CashIgnoresDownPayment(t *testing.T) {
	it := item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionCash, 0, "1000", "500", "0")
	it.DownPayment = domain.FixedDownPayment(dec("300"))

	res, err := ComputeItem(rules.Default(), it)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.DownPayment.IsZero() || len(res.Installments) != 0 {
		t.Errorf("cash should not carry a schedule, got dp=%s installments=%v", res.DownPayment, res.Installments)
	}
}

func TestComputeItem_CashOnlyBelowMinimum(t *testing.T) {
	res, err := ComputeItem(rules.Default(), item(domain.NatureIPTU, domain.ProfileIndividual, domain.OptionInstallment, 2, "0", "200", "0"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasAlert(domain.AlertCashOnlyBelowMinimum) {
		t.Errorf("expected CASH_ONLY_BELOW_MINIMUM, got %+v", res.Alerts)
	}
}

func TestComputeItem_StructuralErrors(t *testing.T) {
	tables := rules.Default()

	bad := item("itbi", domain.ProfileIndividual, domain.OptionCash, 0, "0", "10", "0")
	if _, err := ComputeItem(tables, bad); !errors.Is(err, rules.ErrInvalidNature) {
		t.Errorf("expected ErrInvalidNature, got %v", err)
	}

	bad = item(domain.NatureIPTU, "ME", domain.OptionCash, 0, "0", "10", "0")
	if _, err := ComputeItem(tables, bad); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("expected ErrInvalidProfile, got %v", err)
	}

	bad = item(domain.NatureIPTU, domain.ProfileIndividual, "BARTER", 0, "0", "10", "0")
	if _, err := ComputeItem(tables, bad); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}

func TestComputeItem_InstallmentsSumToTotal(t *testing.T) {
	tables := rules.Default()
	dps := []domain.DownPayment{
		{},
		domain.PercentDownPayment(dec("15")),
		domain.PercentDownPayment(dec("33.33")),
		domain.FixedDownPayment(dec("1234.56")),
	}
	for count := 1; count <= 60; count++ {
		for _, dp := range dps {
			it := item(domain.NatureIPTU, domain.ProfileCompany, domain.OptionInstallment, count, "7777.77", "12345.67", "321.09")
			if count > 1 {
				it.DownPayment = dp
			}
			res, err := ComputeItem(tables, it)
			if err != nil {
				t.Fatalf("count %d dp %+v: %v", count, dp, err)
			}
			if len(res.Installments) != count {
				t.Fatalf("count %d: got %d installments", count, len(res.Installments))
			}
			if !sum(res.Installments).Equal(res.NegotiatedTotal) {
				t.Errorf("count %d dp %+v: sum %s != total %s", count, dp, sum(res.Installments), res.NegotiatedTotal)
			}
			for i, v := range res.Installments {
				if v.IsNegative() {
					t.Errorf("count %d: installment %d negative: %s", count, i+1, v)
				}
			}
		}
	}
}

func TestComputeItem_Idempotent(t *testing.T) {
	tables := rules.Default()
	it := item(domain.NatureServiceTax, domain.ProfileIndividual, domain.OptionInstallment, 7, "100", "9999.99", "12.34")
	it.DownPayment = domain.PercentDownPayment(dec("10"))

	first, err := ComputeItem(tables, it)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeItem(tables, it)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("recomputation differs:\n%+v\n%+v", first, second)
	}
}

func TestSplitInstallments(t *testing.T) {
	got := splitInstallments(dec("100"), 3)
	want := []string{"33.33", "33.33", "33.34"}
	for i := range want {
		if !got[i].Equal(dec(want[i])) {
			t.Errorf("installment %d = %s, want %s", i+1, got[i], want[i])
		}
	}

	tiny := splitInstallments(dec("0.30"), 60)
	if !sum(tiny).Equal(dec("0.30")) {
		t.Errorf("tiny split sums to %s", sum(tiny))
	}
	if splitInstallments(dec("10"), 0) != nil {
		t.Error("expected nil for zero installments")
	}
}
