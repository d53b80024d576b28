package scan_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/importer"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/scanner"
	"ms-checkin/internal/settings"
	"ms-checkin/internal/store"
	"ms-checkin/internal/utils"
)

// Handler wires the kiosk UI (camera page or keyboard-wedge desktop
// page) to the scan pipeline. Both input modes post to the same /scan
// endpoint.
type Handler struct {
	Orchestrator *scanner.Orchestrator
	Store        *store.DB
	Settings     *settings.Source
	Log          *logger.Logger
	AdminSecret  string
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	admin := auth.RequireAdmin(h.AdminSecret)

	r.Get("/health", h.Health)

	r.Route("/scan", func(r chi.Router) {
		r.Post("/", h.SubmitScan)
		r.Get("/state", h.KioskState)
		r.Delete("/recent", h.ClearRecent)
	})

	r.Route("/scans", func(r chi.Router) {
		r.Get("/", h.ScanHistory)
		r.With(admin).Delete("/", h.ClearScans)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/count", h.TicketCount)
		r.Get("/template", h.ImportTemplate)
		r.With(admin).Post("/import", h.ImportTickets)
		r.With(admin).Delete("/", h.ClearTickets)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.GetSettings)
		r.With(admin).Put("/", h.UpdateSettings)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Ticket store unreachable", err.Error()))
		return
	}

	count, err := h.Store.TicketCount(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Ticket store unreachable", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("ok", map[string]interface{}{
		"tickets": count,
	}))
}

func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Orchestrator.Process(r.Context(), requestBody.Code)
	if errors.Is(err, scanner.ErrEmptyCode) {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	if errors.Is(err, scanner.ErrCooldown) {
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("Duplicate scan ignored", err.Error()))
		return
	}
	if err != nil {
		http.Error(w, "Scan failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Scan processed", result))
}

func (h *Handler) KioskState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.State())
}

func (h *Handler) ClearRecent(w http.ResponseWriter, r *http.Request) {
	h.Orchestrator.ClearRecent()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ScanHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.Store.ScanHistory(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to fetch scan history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Scan history", records))
}

func (h *Handler) ClearScans(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteAllScans(r.Context()); err != nil {
		http.Error(w, "Failed to clear scan history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.Log.Warn("ADMIN", "Scan history cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TicketCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Store.TicketCount(r.Context())
	if err != nil {
		http.Error(w, "Failed to count tickets: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Ticket count", map[string]int{"count": count}))
}

// ImportTickets accepts CSV either as a multipart "file" field or as the
// raw request body.
func (h *Handler) ImportTickets(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if err := r.ParseMultipartForm(8 << 20); err == nil {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "multipart request is missing the file field", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
	}

	count, err := importer.Import(r.Context(), h.Store, body)
	if err != nil {
		http.Error(w, "Import failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.Log.Info("ADMIN", fmt.Sprintf("Imported %d tickets", count))
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Tickets imported", map[string]int{"count": count}))
}

// ImportTemplate serves the sample CSV behind the admin screen's
// download link.
func (h *Handler) ImportTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tickets-template.csv"`)
	w.Write([]byte(importer.Template()))
}

func (h *Handler) ClearTickets(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteAllTickets(r.Context()); err != nil {
		http.Error(w, "Failed to clear tickets: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.Log.Warn("ADMIN", "All tickets deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Settings", h.Settings.Current(r.Context())))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var incoming models.VenueSettings
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Settings.Save(r.Context(), incoming); err != nil {
		http.Error(w, "Failed to save settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Settings saved", incoming))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
