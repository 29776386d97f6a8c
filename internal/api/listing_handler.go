package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/pkg/response"
	"go.uber.org/zap"
)

const maxImageUpload = 10 << 20

type ListingHandler struct {
	listings *domain.ListingService
	sessions SessionResolver
	logger   *zap.Logger
}

func NewListingHandler(listings *domain.ListingService, sessions SessionResolver, logger *zap.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, sessions: sessions, logger: logger}
}

// ListingView is a listing as shown to one user.
type ListingView struct {
	domain.ListingRecord
	Wishlisted bool `json:"wishlisted"`
}

type ListingsResponse struct {
	Listings  []ListingView `json:"listings"`
	Searching bool          `json:"searching"`
	Skipped   int           `json:"skipped"`
	Stale     bool          `json:"stale,omitempty"`
}

// List serves the session's catalog. The catalog is loaded on first use or
// when refresh is set; q narrows it and an empty q clears the search.
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := userSession(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	stale := false
	if refresh || !sess.Catalog.Loaded() {
		if _, err := sess.Catalog.Refresh(r.Context()); err != nil {
			if !sess.Catalog.Loaded() {
				writeError(w, h.logger, "list listings", err)
				return
			}
			stale = true
		}
	}

	records := sess.Catalog.Filter(r.URL.Query().Get("q"))
	views := make([]ListingView, 0, len(records))
	for _, rec := range records {
		views = append(views, ListingView{ListingRecord: rec, Wishlisted: sess.Wishlist.IsWishlisted(rec.ID)})
	}
	response.OK(w, ListingsResponse{
		Listings:  views,
		Searching: sess.Catalog.Searching(),
		Skipped:   sess.Catalog.LastRefreshSkipped(),
		Stale:     stale,
	})
}

func optionalForm(r *http.Request, key string) *string {
	v := r.FormValue(key)
	if v == "" {
		return nil
	}
	return &v
}

// Create accepts a multipart form with the listing fields and an "image" file.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload+1<<20)
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}

	params := domain.CreateListingParams{
		SellerID:    userID,
		EventName:   r.FormValue("eventName"),
		Price:       r.FormValue("price"),
		EventDate:   optionalForm(r, "eventDate"),
		EventTime:   r.FormValue("eventTime"),
		SeatDetails: r.FormValue("seatDetails"),
	}

	var image io.Reader
	contentType := "image/jpeg"
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		image = file
		if ct := header.Header.Get("Content-Type"); ct != "" {
			contentType = ct
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		response.BadRequest(w, "invalid image upload")
		return
	}

	record, err := h.listings.CreateListing(r.Context(), params, image, contentType)
	if err != nil {
		writeError(w, h.logger, "create listing", err)
		return
	}
	response.Created(w, record)
}

// Mine lists the caller's own listings.
func (h *ListingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	records, err := h.listings.SellerListings(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "seller listings", err)
		return
	}
	response.OK(w, records)
}

func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.listings.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get listing", err)
		return
	}
	response.OK(w, record)
}

func (h *ListingHandler) MarkSold(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	if err := h.listings.MarkSold(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "mark sold", err)
		return
	}
	statusOK(w)
}

// formImage reads an optional "image" part for photo uploads.
func formImage(w http.ResponseWriter, r *http.Request) (multipart.File, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload+1<<20)
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return nil, "", false
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		response.ValidationFailed(w, []map[string]string{{"field": "image", "message": "is required"}})
		return nil, "", false
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return file, contentType, true
}
