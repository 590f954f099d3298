package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"smartq/queue-service/internal/hub"
	"smartq/queue-service/internal/models"
	"smartq/queue-service/internal/schedule"
	"smartq/queue-service/internal/service"
	"smartq/queue-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	svc    *service.Service
	hub    *hub.Hub
	logger *slog.Logger
}

type bookRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

type checkInRequest struct {
	TicketCode string `json:"ticket_code"`
	Contact    string `json:"contact"`
}

type walkInRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type queueActionRequest struct {
	RequestID string `json:"request_id"`
}

type slotsResponse struct {
	Date  string         `json:"date"`
	Slots []service.Slot `json:"slots"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Options struct {
	Hub    *hub.Hub
	Logger *slog.Logger
}

func NewHandler(svc *service.Service, options Options) *Handler {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:    svc,
		hub:    options.Hub,
		logger: logger,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/slots", h.handleSlots)
	mux.HandleFunc("/api/appointments", h.handleAppointments)
	mux.HandleFunc("/api/checkin", h.handleCheckIn)
	mux.HandleFunc("/api/walkins", h.handleWalkIns)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/admin/appointments", h.handleAdminAppointments)
	mux.HandleFunc("/api/admin/queue/actions/", h.handleQueueActions)
	mux.HandleFunc("/api/admin/tickets/", h.handleTicketActions)
	mux.HandleFunc("/api/admin/actions/sweep-no-shows", h.handleSweepNoShows)
	if h.hub != nil {
		mux.Handle("/realtime/", BoardHandler(h.hub, h.logger))
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "date is required")
		return
	}
	slots, err := h.svc.AvailableSlots(r.Context(), date)
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: date, Slots: slots})
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	if req.Name == "" || req.Contact == "" || req.Date == "" || req.Time == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name, contact, date, and time are required")
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), service.BookInput{
		Name:    req.Name,
		Contact: req.Contact,
		Date:    req.Date,
		Time:    req.Time,
	})
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req checkInRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TicketCode = strings.TrimSpace(req.TicketCode)
	req.Contact = strings.TrimSpace(req.Contact)
	if req.TicketCode == "" || req.Contact == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "ticket_code and contact are required")
		return
	}

	result, err := h.svc.CheckIn(r.Context(), req.TicketCode, req.Contact)
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleWalkIns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req walkInRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)
	if req.Name == "" || req.Contact == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name and contact are required")
		return
	}

	result, err := h.svc.RegisterWalkIn(r.Context(), req.Name, req.Contact)
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q, err := h.svc.GetQueue(r.Context())
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleAdminAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "date is required")
		return
	}
	appts, err := h.svc.ListAppointments(r.Context(), date)
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

func (h *Handler) handleQueueActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/queue/actions/"), "/")
	if action != "call-next" && action != "serve" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var req queueActionRequest
	if !decodeOptionalRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		req.RequestID = requestIDFromRequest(r)
	}
	if req.RequestID != "" && !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	var (
		result service.ServeResult
		err    error
	)
	if action == "call-next" {
		result, err = h.svc.CallNext(r.Context(), req.RequestID)
	} else {
		result, err = h.svc.MarkServed(r.Context(), req.RequestID)
	}
	if err != nil {
		h.fail(w, r, req.RequestID, err)
		return
	}
	h.logger.InfoContext(r.Context(), "queue action",
		"action", action,
		"staff_id", staffID(r),
		"ticket_code", result.Served.TicketCode,
		"replayed", result.Replayed,
	)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/admin/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[2] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	requestID := requestIDFromRequest(r)
	kind, err := service.ParseKind(parts[0])
	if err != nil {
		h.fail(w, r, requestID, err)
		return
	}
	ticketID := parts[1]
	if !isValidUUID(ticketID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	switch parts[3] {
	case "arrive":
		appt, err := h.svc.MarkArrived(r.Context(), kind, ticketID)
		if err != nil {
			h.fail(w, r, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	case "cancel":
		ticket, err := h.svc.Cancel(r.Context(), kind, ticketID)
		if err != nil {
			h.fail(w, r, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	case "no-show":
		if kind != models.KindAppointment {
			writeError(w, requestID, http.StatusConflict, "invalid_state", "only appointments can be marked no-show")
			return
		}
		appt, err := h.svc.MarkNoShow(r.Context(), ticketID)
		if err != nil {
			h.fail(w, r, requestID, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleSweepNoShows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.svc.SweepNoShows(r.Context())
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"staff_id", staffID(r),
			"error", err,
		)
	}
	writeError(w, requestID, status, code, msg)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// decodeOptionalRequest accepts an empty body as the zero request.
func decodeOptionalRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if r.Body == nil {
		return true
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	var verr *schedule.ValidationError
	var convErr *service.ConversionError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, string(verr.Rule), verr.Reason
	case errors.As(err, &convErr):
		return http.StatusInternalServerError, "conversion_incomplete",
			fmt.Sprintf("walk-in %s was created but appointment %s could not be converted", convErr.WalkInID, convErr.AppointmentID)
	case errors.Is(err, models.ErrInvalidContact):
		return http.StatusBadRequest, "invalid_contact", models.ErrInvalidContact.Error()
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "appointment not found"
	case errors.Is(err, store.ErrWalkInNotFound):
		return http.StatusNotFound, "walkin_not_found", "walk-in not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrSlotTaken):
		return http.StatusConflict, "slot_taken", "this slot is already booked"
	case errors.Is(err, service.ErrEmptyQueue):
		return http.StatusConflict, "queue_empty", "no tickets waiting"
	case errors.Is(err, service.ErrNothingServing):
		return http.StatusConflict, "nothing_serving", "no ticket is being served"
	case errors.Is(err, store.ErrStaleState):
		return http.StatusConflict, "stale_state", err.Error()
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, service.ErrContactMismatch):
		return http.StatusUnauthorized, "contact_mismatch", "contact does not match this ticket"
	case errors.Is(err, service.ErrCheckInExpired):
		return http.StatusGone, "checkin_expired", service.ErrCheckInExpired.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
