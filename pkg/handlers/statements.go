package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/zwinlu/tidb-dashboard/pkg/apperrors"
	"github.com/zwinlu/tidb-dashboard/pkg/logging"
	"github.com/zwinlu/tidb-dashboard/pkg/models"
	"github.com/zwinlu/tidb-dashboard/pkg/services"
)

// displaySessionName is the per-browser cookie session holding display
// preferences that do not belong in the shared query-option store.
const displaySessionName = "statement.display"

// DisplayOptions are the per-browser rendering preferences.
type DisplayOptions struct {
	ShowFullSQL bool `json:"show_full_sql"`
}

// StatementHandler exposes the statement view controller to the
// rendering layer.
type StatementHandler struct {
	controller *services.StatementController
	sessions   sessions.Store
	logger     *zap.Logger
}

// NewStatementHandler creates a new statement view handler.
func NewStatementHandler(controller *services.StatementController, sessionStore sessions.Store, logger *zap.Logger) *StatementHandler {
	return &StatementHandler{
		controller: controller,
		sessions:   sessionStore,
		logger:     logger,
	}
}

// RegisterRoutes registers the statement view routes on the given mux.
func (h *StatementHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/statements/view", h.View)
	mux.HandleFunc("PUT /api/statements/options", h.SetOptions)
	mux.HandleFunc("PUT /api/statements/columns", h.SetColumns)
	mux.HandleFunc("PUT /api/statements/order", h.SetOrder)
	mux.HandleFunc("PUT /api/statements/display", h.SetDisplay)
	mux.HandleFunc("POST /api/statements/refresh", h.Refresh)
	mux.HandleFunc("GET /api/statements/download", h.Download)
}

// View handles GET /api/statements/view.
// Returns the current view state snapshot.
func (h *StatementHandler) View(w http.ResponseWriter, r *http.Request) {
	h.applyDisplaySession(r)
	h.writeViewState(w)
}

// SetOptions handles PUT /api/statements/options.
// The body must be a complete QueryOptions value; partial updates are
// rejected.
func (h *StatementHandler) SetOptions(w http.ResponseWriter, r *http.Request) {
	var opts models.QueryOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Request body must be a QueryOptions object"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.controller.SetQueryOptions(r.Context(), opts); err != nil {
		if errors.Is(err, apperrors.ErrIncompleteQueryOptions) {
			if err := ErrorResponse(w, http.StatusBadRequest, "incomplete_options", "Query options must include a time range"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to set query options", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to set query options"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.writeViewState(w)
}

// SetColumns handles PUT /api/statements/columns.
func (h *StatementHandler) SetColumns(w http.ResponseWriter, r *http.Request) {
	var visibility models.ColumnVisibility
	if err := json.NewDecoder(r.Body).Decode(&visibility); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Request body must map column keys to booleans"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.controller.SetColumnVisibility(r.Context(), visibility)
	h.writeViewState(w)
}

// SetOrder handles PUT /api/statements/order.
func (h *StatementHandler) SetOrder(w http.ResponseWriter, r *http.Request) {
	var opts models.OrderOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Request body must be an OrderOptions object"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.controller.SetOrderOptions(opts)
	h.writeViewState(w)
}

// SetDisplay handles PUT /api/statements/display.
// Display preferences are per browser: they are stored in the cookie
// session, not in the shared option store.
func (h *StatementHandler) SetDisplay(w http.ResponseWriter, r *http.Request) {
	var display DisplayOptions
	if err := json.NewDecoder(r.Body).Decode(&display); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Request body must be a DisplayOptions object"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	session, _ := h.sessions.Get(r, displaySessionName)
	session.Values["show_full_sql"] = display.ShowFullSQL
	if err := session.Save(r, w); err != nil {
		h.logger.Error("Failed to save display session", zap.Error(err))
	}

	h.controller.SetShowFullSQL(display.ShowFullSQL)
	h.writeViewState(w)
}

// Refresh handles POST /api/statements/refresh.
// Clears accumulated errors and re-fetches metadata; the statement list
// reloads as a consequence.
func (h *StatementHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.controller.Refresh(r.Context())
	h.writeViewState(w)
}

// Download handles GET /api/statements/download.
// Exchanges the current filters for a one-use token and redirects the
// browser to the download URL. Export failures are reported to this
// caller only; they never enter the shared error list.
func (h *StatementHandler) Download(w http.ResponseWriter, r *http.Request) {
	downloadURL, err := h.controller.ExportCSV(r.Context())
	if err != nil {
		h.logger.Error("CSV export failed", zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusBadGateway, "export_failed", "Failed to obtain download token"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.logger.Info("Redirecting to statement download", zap.String("url", logging.SanitizeURL(downloadURL)))
	http.Redirect(w, r, downloadURL, http.StatusFound)
}

// applyDisplaySession pushes the browser's persisted display preference
// into the controller before a snapshot is taken.
func (h *StatementHandler) applyDisplaySession(r *http.Request) {
	session, err := h.sessions.Get(r, displaySessionName)
	if err != nil {
		return
	}
	if show, ok := session.Values["show_full_sql"].(bool); ok {
		h.controller.SetShowFullSQL(show)
	}
}

func (h *StatementHandler) writeViewState(w http.ResponseWriter) {
	if err := WriteJSON(w, http.StatusOK, h.controller.ViewState()); err != nil {
		h.logger.Error("Failed to encode view state", zap.Error(err))
	}
}
