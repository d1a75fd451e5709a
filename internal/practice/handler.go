package practice

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haloweavedev/laine/pkg/logging"
)

// Handler exposes the admin endpoints for practice configuration.
type Handler struct {
	store  *Store
	syncer *Syncer
	logger *logging.Logger
}

func NewHandler(store *Store, syncer *Syncer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, syncer: syncer, logger: logger}
}

// SyncAppointmentTypes handles POST /admin/practices/{practiceID}/sync.
// It pulls the scheduling system's appointment types into the local store,
// preserving any voice configuration (spoken names, keywords) set locally.
func (h *Handler) SyncAppointmentTypes(w http.ResponseWriter, r *http.Request) {
	practiceID := chi.URLParam(r, "practiceID")
	if practiceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "practiceID is required"})
		return
	}

	p, err := h.store.GetPractice(r.Context(), practiceID)
	if err != nil {
		h.logger.Error("load practice", "practice_id", practiceID, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "practice not found"})
		return
	}

	count, err := h.syncer.SyncAppointmentTypes(r.Context(), practiceID)
	if err != nil {
		h.logger.Error("sync appointment types", "practice_id", practiceID, "error", err.Error())
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "sync failed"})
		return
	}

	h.logger.Info("appointment types synced", "practice_id", practiceID, "count", count)
	writeJSON(w, http.StatusOK, map[string]any{"practice_id": practiceID, "synced": count})
}

// ListAppointmentTypes handles GET /admin/practices/{practiceID}/appointment-types.
func (h *Handler) ListAppointmentTypes(w http.ResponseWriter, r *http.Request) {
	practiceID := chi.URLParam(r, "practiceID")
	if practiceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "practiceID is required"})
		return
	}

	types, err := h.store.ListAppointmentTypes(r.Context(), practiceID)
	if err != nil {
		h.logger.Error("list appointment types", "practice_id", practiceID, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment_types": types})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
