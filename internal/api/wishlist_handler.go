package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/uticket/backend/pkg/response"
	"go.uber.org/zap"
)

type WishlistHandler struct {
	sessions SessionResolver
	logger   *zap.Logger
}

func NewWishlistHandler(sessions SessionResolver, logger *zap.Logger) *WishlistHandler {
	return &WishlistHandler{sessions: sessions, logger: logger}
}

type WishlistResponse struct {
	ListingIDs []string `json:"listingIds"`
	Stale      bool     `json:"stale,omitempty"`
}

type WishlistStateResponse struct {
	ListingID  string `json:"listingId"`
	Wishlisted bool   `json:"wishlisted"`
}

// List reloads the caller's wishlist. When the store is unreachable the
// cached IDs are returned and marked stale.
func (h *WishlistHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := userSession(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	stale := false
	if err := sess.Wishlist.Refresh(r.Context(), sess.UserID); err != nil {
		stale = true
	}
	response.OK(w, WishlistResponse{ListingIDs: sess.Wishlist.IDs(), Stale: stale})
}

func (h *WishlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	sess, ok := userSession(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	listingID := chi.URLParam(r, "listingID")
	if err := sess.Wishlist.Add(r.Context(), sess.UserID, listingID); err != nil {
		writeError(w, h.logger, "add to wishlist", err)
		return
	}
	response.OK(w, WishlistStateResponse{ListingID: listingID, Wishlisted: true})
}

func (h *WishlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	sess, ok := userSession(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	listingID := chi.URLParam(r, "listingID")
	if err := sess.Wishlist.Remove(r.Context(), sess.UserID, listingID); err != nil {
		writeError(w, h.logger, "remove from wishlist", err)
		return
	}
	response.OK(w, WishlistStateResponse{ListingID: listingID, Wishlisted: false})
}

// Toggle flips membership optimistically. A failed write reverts the toggle.
func (h *WishlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := userSession(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	listingID := chi.URLParam(r, "listingID")
	wishlisted, err := sess.ToggleWishlist(r.Context(), listingID)
	if err != nil {
		writeError(w, h.logger, "toggle wishlist", err)
		return
	}
	response.OK(w, WishlistStateResponse{ListingID: listingID, Wishlisted: wishlisted})
}
