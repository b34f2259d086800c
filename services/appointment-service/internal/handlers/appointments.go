package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gobarber/appointments/libs/httpx"
	"github.com/gobarber/appointments/services/appointment-service/internal/appointments"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
)

// Engine is the booking engine as seen by the HTTP layer.
type Engine interface {
	Create(ctx context.Context, clientID, providerID int64, requested time.Time) (model.Appointment, error)
	Cancel(ctx context.Context, appointmentID, requestingUserID int64) (model.Appointment, error)
	List(ctx context.Context, clientID int64, page int) ([]appointments.AnnotatedAppointment, error)
}

type AppointmentHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewAppointmentHandler(engine Engine, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{engine: engine, logger: logger}
}

// Register mounts the appointment routes on mux.
func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /appointments", h.List)
	mux.HandleFunc("POST /appointments", h.Create)
	mux.HandleFunc("DELETE /appointments/{id}", h.Cancel)
}

type createAppointmentRequest struct {
	ProviderID *int64 `json:"provider_id"`
	Date       string `json:"date"`
}

type appointmentResponse struct {
	ID         int64     `json:"id"`
	ClientID   int64     `json:"client_id"`
	ProviderID int64     `json:"provider_id"`
	Date       time.Time `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
}

type cancelAppointmentResponse struct {
	AppointmentCanceled bool      `json:"appointment_canceled"`
	CanceledAt          time.Time `json:"canceled_at"`
}

type providerItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

type listAppointmentItem struct {
	ID         int64        `json:"id"`
	Date       time.Time    `json:"date"`
	Past       bool         `json:"past"`
	Cancelable bool         `json:"cancelable"`
	Provider   providerItem `json:"provider"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, appointments.ErrValidationFailed)
		return
	}
	if req.ProviderID == nil || *req.ProviderID <= 0 {
		h.fail(w, r, appointments.ErrValidationFailed)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, appointments.ErrValidationFailed)
		return
	}

	appt, err := h.engine.Create(r.Context(), userID, *req.ProviderID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appointmentResponse{
		ID:         appt.ID,
		ClientID:   appt.ClientID,
		ProviderID: appt.ProviderID,
		Date:       appt.Date,
		CreatedAt:  appt.CreatedAt,
	})
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, r, appointments.ErrValidationFailed)
		return
	}

	appt, err := h.engine.Cancel(r.Context(), id, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelAppointmentResponse{
		AppointmentCanceled: true,
		CanceledAt:          *appt.CanceledAt,
	})
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, appointments.ErrValidationFailed)
			return
		}
		page = n
	}

	rows, err := h.engine.List(r.Context(), userID, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]listAppointmentItem, 0, len(rows))
	for _, row := range rows {
		item := listAppointmentItem{
			ID:         row.ID,
			Date:       row.Date,
			Past:       row.Past,
			Cancelable: row.Cancelable,
			Provider:   providerItem{ID: row.Provider.ID, Name: row.Provider.Name},
		}
		if row.Provider.AvatarURL != "" {
			url := row.Provider.AvatarURL
			item.Provider.AvatarURL = &url
		}
		out = append(out, item)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// fail writes the client-facing message for err. Infrastructure errors are logged and
// reported without detail.
func (h *AppointmentHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := appointments.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("appointment request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, status, "Internal server error")
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func statusFor(kind appointments.Kind) int {
	switch kind {
	case appointments.KindValidationFailed,
		appointments.KindInvalidProvider,
		appointments.KindSelfBookingNotAllowed,
		appointments.KindPastDateNotAllowed,
		appointments.KindCancellationWindowExpired:
		return http.StatusBadRequest
	case appointments.KindSlotUnavailable, appointments.KindAlreadyCanceled:
		return http.StatusConflict
	case appointments.KindNotFound:
		return http.StatusNotFound
	case appointments.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// requireUser reads the caller id set by the gateway.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(httpx.UserIDHeader)), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusUnauthorized, "Token not provided")
		return 0, false
	}
	return id, true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// parseDate accepts RFC 3339 timestamps and offset-less ISO timestamps or dates, read as UTC.
// A bare date means midnight.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
