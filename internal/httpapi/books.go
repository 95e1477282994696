package httpapi

import (
	"net/http"
	"strconv"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/repo"
)

type createBookRequest struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publication_year,omitempty"`
	Genre           string `json:"genre,omitempty"`
	TotalCopies     int    `json:"total_copies"`
	Notes           string `json:"notes,omitempty"`
}

// updateBookRequest carries only the fields to change; copy counters are not editable.
type updateBookRequest struct {
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	Genre           *string `json:"genre,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type bookListResponse struct {
	Books    []*db.Book `json:"books"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

type updateBookResponse struct {
	Book          *db.Book `json:"book"`
	FieldsChanged []string `json:"fields_changed"`
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	book := &db.Book{
		ID:              req.ID,
		Title:           req.Title,
		Author:          req.Author,
		PublicationYear: req.PublicationYear,
		Genre:           req.Genre,
		TotalCopies:     req.TotalCopies,
		Notes:           req.Notes,
	}
	if err := h.Catalog.CreateBook(r.Context(), book); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.Catalog.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var req updateBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	book := &db.Book{ID: r.PathValue("id")}
	var mask []string
	if req.Title != nil {
		book.Title = *req.Title
		mask = append(mask, "title")
	}
	if req.Author != nil {
		book.Author = *req.Author
		mask = append(mask, "author")
	}
	if req.PublicationYear != nil {
		book.PublicationYear = *req.PublicationYear
		mask = append(mask, "publication_year")
	}
	if req.Genre != nil {
		book.Genre = *req.Genre
		mask = append(mask, "genre")
	}
	if req.Notes != nil {
		book.Notes = *req.Notes
		mask = append(mask, "notes")
	}
	if len(mask) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "no editable fields given")
		return
	}

	changed, err := h.Catalog.UpdateBook(r.Context(), book, mask)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	updated, err := h.Catalog.GetBook(r.Context(), book.ID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, updateBookResponse{Book: updated, FieldsChanged: changed})
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	filter := repo.BookFilter{
		Page:          page,
		PageSize:      pageSize,
		Genre:         q.Get("genre"),
		Author:        q.Get("author"),
		AvailableOnly: q.Get("available") == "true",
	}
	books, total, err := h.Catalog.ListBooks(r.Context(), filter)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if books == nil {
		books = []*db.Book{}
	}

	page, pageSize = repo.NormalizePage(page, pageSize)
	writeJSON(w, http.StatusOK, bookListResponse{Books: books, Total: total, Page: page, PageSize: pageSize})
}
