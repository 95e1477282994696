package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/rental"
	"github.com/bookstore/services/rental/internal/repo"
)

const idempotencyHeader = "Idempotency-Key"

type openRentalRequest struct {
	BookID    string `json:"book_id"`
	MemberID  string `json:"member_id"`
	OpenedAt  string `json:"opened_at,omitempty"`
	DueAt     string `json:"due_at,omitempty"`
	Status    string `json:"status,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type closeRentalRequest struct {
	Outcome         string `json:"outcome,omitempty"`
	InspectionNotes string `json:"inspection_notes,omitempty"`
	ClosedAt        string `json:"closed_at,omitempty"`
}

type rentalListResponse struct {
	Rentals  []*db.Rental `json:"rentals"`
	Total    int          `json:"total"`
	Active   int          `json:"active"`
	Returned int          `json:"returned"`
}

type overdueResponse struct {
	AsOf    string           `json:"as_of"`
	Overdue []rental.Overdue `json:"overdue"`
}

func (h *Handler) handleOpenRental(w http.ResponseWriter, r *http.Request) {
	var req openRentalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.BookID) == "" || strings.TrimSpace(req.MemberID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "book_id and member_id are required")
		return
	}

	openedAt, err := parseDate(req.OpenedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "opened_at must be YYYY-MM-DD")
		return
	}
	if openedAt.IsZero() {
		openedAt = h.now()
	}
	dueAt, err := parseDate(req.DueAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "due_at must be YYYY-MM-DD")
		return
	}
	if dueAt.IsZero() {
		dueAt = openedAt.Add(h.loanPeriod)
	}

	var status db.Status
	if req.Status != "" {
		if status, err = db.ParseStatus(req.Status); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = r.Header.Get(idempotencyHeader)
	}

	created, err := h.Engine.OpenRental(r.Context(), rental.OpenRequest{
		BookID:    req.BookID,
		MemberID:  req.MemberID,
		OpenedAt:  openedAt,
		DueAt:     dueAt,
		Status:    status,
		RequestID: requestID,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleCloseRental(w http.ResponseWriter, r *http.Request) {
	// Every field is optional, so an empty body closes the rental as Returned.
	var req closeRentalRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	outcome := db.StatusReturned
	if req.Outcome != "" {
		var err error
		if outcome, err = db.ParseStatus(req.Outcome); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	var closedAt time.Time
	if req.ClosedAt != "" {
		var err error
		if closedAt, err = time.Parse(time.RFC3339, req.ClosedAt); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "closed_at must be RFC 3339")
			return
		}
	}

	closed, err := h.Engine.CloseRental(r.Context(), rental.CloseRequest{
		RentalID:        r.PathValue("id"),
		Outcome:         outcome,
		InspectionNotes: strings.TrimSpace(req.InspectionNotes),
		ClosedAt:        closedAt,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

func (h *Handler) handleGetRental(w http.ResponseWriter, r *http.Request) {
	record, err := h.Ledger.GetRental(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleListRentals serves both current rentals (?current=true) and history over an
// opened-at window (?from=&to=).
func (h *Handler) handleListRentals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RentalFilter{
		MemberID: q.Get("member_id"),
		BookID:   q.Get("book_id"),
	}

	var err error
	if filter.OpenedFrom, err = parseDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "from must be YYYY-MM-DD")
		return
	}
	if filter.OpenedTo, err = parseDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "to must be YYYY-MM-DD")
		return
	}

	if q.Get("current") == "true" {
		filter.Statuses = db.OpenStatuses
	}
	for _, name := range q["status"] {
		status, err := db.ParseStatus(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	rentals, err := h.Ledger.ListRentals(r.Context(), filter)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	resp := rentalListResponse{Rentals: rentals, Total: len(rentals)}
	if resp.Rentals == nil {
		resp.Rentals = []*db.Rental{}
	}
	for _, rec := range rentals {
		switch {
		case rec.Status == db.StatusReturned:
			resp.Returned++
		case rec.Status.IsOpen():
			resp.Active++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "as_of must be YYYY-MM-DD")
		return
	}

	overdue, err := h.Engine.ComputeOverdue(r.Context(), asOf)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overdueResponse{
		AsOf:    asOf.UTC().Format(time.DateOnly),
		Overdue: overdue,
	})
}
