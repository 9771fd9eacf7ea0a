package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/refis/simulator/internal/domain"
	"github.com/refis/simulator/internal/export"
	"github.com/refis/simulator/internal/ingestion"
	"github.com/refis/simulator/internal/refis"
	"github.com/refis/simulator/internal/repository"
	"github.com/refis/simulator/internal/rules"
	"github.com/refis/simulator/internal/sentryutil"
	"github.com/refis/simulator/internal/simulation"
)

const maxBodyBytes = 32 << 20

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	simSvc       *simulation.Service
	ingestionSvc *ingestion.Service
	now          func() time.Time
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to HTTP statuses. Unexpected errors
// are reported to Sentry.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, simulation.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rules.ErrInvalidNature),
		errors.Is(err, rules.ErrUnknownRuleSet),
		errors.Is(err, rules.ErrInstallmentCountOutOfRange),
		errors.Is(err, refis.ErrInvalidDownPayment),
		errors.Is(err, refis.ErrScenarioMismatch),
		errors.Is(err, refis.ErrInconsistentGroupMembership),
		errors.Is(err, refis.ErrInvalidOption),
		errors.Is(err, refis.ErrInvalidProfile),
		errors.Is(err, ingestion.ErrInvalidRecord),
		errors.Is(err, ingestion.ErrUnsupportedFormat),
		errors.Is(err, export.ErrUnsupportedBundle):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		sentryutil.CaptureError(err, map[string]string{"route": r.URL.Path, "method": r.Method})
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// recoverer turns panics into 500 responses and reports them.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
				sentryutil.CaptureError(err, map[string]string{"route": r.URL.Path, "method": r.Method})
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func attachment(w http.ResponseWriter, contentType, name string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

// --- GetRules ---

type natureInfo struct {
	Code    domain.DebtNature `json:"code"`
	Label   string            `json:"label"`
	RuleSet domain.RuleSet    `json:"rule_set"`
}

func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	natures := make([]natureInfo, 0, len(domain.Natures))
	for _, n := range domain.Natures {
		rs, err := rules.Classify(n)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		natures = append(natures, natureInfo{Code: n, Label: n.Label(), RuleSet: rs})
	}

	tables := h.simSvc.Tables()
	writeJSON(w, http.StatusOK, map[string]any{
		"natures":     natures,
		"tables":      tables.Snapshot(),
		"fingerprint": tables.Fingerprint(),
	})
}

// --- Simulations ---

func (h *Handlers) PreviewItem(w http.ResponseWriter, r *http.Request) {
	var it domain.DebtItem
	if !decodeJSON(w, r, &it) {
		return
	}
	view, err := h.simSvc.Preview(r.Context(), it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) CompareItem(w http.ResponseWriter, r *http.Request) {
	var it domain.DebtItem
	if !decodeJSON(w, r, &it) {
		return
	}
	res, err := h.simSvc.Compare(r.Context(), it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Items ---

func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ItemFilter{
		Company: q.Get("company"),
		Nature:  q.Get("nature"),
		Profile: q.Get("profile"),
	}

	views, err := h.simSvc.ListItems(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"total": len(views),
	})
}

func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var it domain.DebtItem
	if !decodeJSON(w, r, &it) {
		return
	}
	view, err := h.simSvc.AddItem(r.Context(), it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ResetItems deletes the items and groups of ?company=, or everything when
// the parameter is absent.
func (h *Handlers) ResetItems(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	if company == "" {
		if err := h.simSvc.ResetAll(r.Context()); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	items, groups, err := h.simSvc.ResetCompany(r.Context(), company)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"company":        company,
		"items_deleted":  items,
		"groups_deleted": groups,
	})
}

func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.simSvc.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var it domain.DebtItem
	if !decodeJSON(w, r, &it) {
		return
	}
	view, err := h.simSvc.UpdateItem(r.Context(), chi.URLParam(r, "id"), it)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.simSvc.RemoveItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Groups ---

func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.GroupFilter{
		Company: q.Get("company"),
		Nature:  q.Get("nature"),
	}

	views, err := h.simSvc.ListGroups(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": views,
		"total":  len(views),
	})
}

func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var g domain.DebtGroup
	if !decodeJSON(w, r, &g) {
		return
	}
	view, err := h.simSvc.CreateGroup(r.Context(), g)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handlers) PreviewGroup(w http.ResponseWriter, r *http.Request) {
	var g domain.DebtGroup
	if !decodeJSON(w, r, &g) {
		return
	}
	view, err := h.simSvc.PreviewGroup(r.Context(), g)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) ClearGroups(w http.ResponseWriter, r *http.Request) {
	n, err := h.simSvc.ClearGroups(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"groups_deleted": n})
}

func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	view, err := h.simSvc.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.simSvc.RemoveGroup(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Consolidated views ---

func (h *Handlers) ConsolidateItems(w http.ResponseWriter, r *http.Request) {
	entries, err := h.simSvc.ConsolidateItems(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

func (h *Handlers) ConsolidateGroups(w http.ResponseWriter, r *http.Request) {
	entries, err := h.simSvc.ConsolidateGroups(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.simSvc.Summary(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// --- Import ---

// Import accepts either a multipart form with a "file" field or the raw file
// as the request body. The optional "format" field or query parameter is one
// of csv or json; it is detected from the content when absent.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var data []byte
	format := r.URL.Query().Get("format")

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}
		if f := r.FormValue("format"); f != "" {
			format = f
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
			return
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			writeError(w, http.StatusBadRequest, "read file: "+err.Error())
			return
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty file")
		return
	}

	result, err := h.ingestionSvc.Ingest(data, format)
	if err != nil {
		sentryutil.CaptureWarning("import rejected: "+err.Error(), map[string]string{"format": format})
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Export ---

func (h *Handlers) ExportItemsCSV(w http.ResponseWriter, r *http.Request) {
	views, err := h.simSvc.ListItems(r.Context(), repository.ItemFilter{Company: r.URL.Query().Get("company")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", "refis_itens.csv")
	if err := export.WriteItemsCSV(w, views); err != nil {
		log.Printf("[api] export items: %v", err)
	}
}

func (h *Handlers) ExportGroupsCSV(w http.ResponseWriter, r *http.Request) {
	views, err := h.simSvc.ListGroups(r.Context(), repository.GroupFilter{Company: r.URL.Query().Get("company")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", "refis_grupos.csv")
	if err := export.WriteGroupsCSV(w, views); err != nil {
		log.Printf("[api] export groups: %v", err)
	}
}

func (h *Handlers) ExportBundle(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	items, err := h.simSvc.ListItems(r.Context(), repository.ItemFilter{Company: company})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	groups, err := h.simSvc.ListGroups(r.Context(), repository.GroupFilter{Company: company})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	b := &export.Bundle{ExportedAt: h.now().UTC()}
	for _, v := range items {
		b.Items = append(b.Items, v.Item)
	}
	for _, v := range groups {
		b.Groups = append(b.Groups, v.Group)
	}

	attachment(w, "application/json", "refis_dados.json")
	if err := export.WriteBundle(w, b); err != nil {
		log.Printf("[api] export bundle: %v", err)
	}
}

func (h *Handlers) ExportReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	company := r.URL.Query().Get("company")

	report := export.Report{Company: company, GeneratedAt: h.now()}
	var err error
	if report.Items, err = h.simSvc.ListItems(ctx, repository.ItemFilter{Company: company}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if report.Groups, err = h.simSvc.ListGroups(ctx, repository.GroupFilter{Company: company}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if report.ItemConsolidation, err = h.simSvc.ConsolidateItems(ctx, company); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if report.GroupConsolidation, err = h.simSvc.ConsolidateGroups(ctx, company); err != nil {
		writeServiceError(w, r, err)
		return
	}

	name := "refis_relatorio.pdf"
	if company != "" {
		name = "refis_" + slug(company) + ".pdf"
	}
	attachment(w, "application/pdf", name)
	if err := export.WriteReportPDF(w, report); err != nil {
		log.Printf("[api] export report: %v", err)
		sentryutil.CaptureError(err, map[string]string{"route": r.URL.Path})
	}
}

func slug(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}
