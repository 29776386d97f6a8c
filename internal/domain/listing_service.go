package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/uticket/backend/internal/docstore"
	"github.com/uticket/backend/pkg/validator"
	"go.uber.org/zap"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrNotListingOwner = errors.New("listing belongs to another seller")
)

// ListingService creates and manages ticket listings.
type ListingService struct {
	store     docstore.Store
	blobs     BlobStore
	publisher ListingEventPublisher
	logger    *zap.Logger
}

func NewListingService(store docstore.Store, blobs BlobStore, publisher ListingEventPublisher, logger *zap.Logger) *ListingService {
	return &ListingService{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger,
	}
}

// Validate checks that every listing field is present.
func (p CreateListingParams) Validate() validator.ValidationErrors {
	var errs validator.ValidationErrors
	errs.Required("eventName", p.EventName)
	if p.EventDate == nil {
		errs.Add("eventDate", "is required")
	} else {
		errs.Required("eventDate", *p.EventDate)
	}
	errs.Required("eventTime", p.EventTime)
	errs.Required("price", p.Price)
	errs.Required("seatDetails", p.SeatDetails)
	return errs
}

// CreateListing uploads the ticket image, writes the listing and publishes a
// ListingCreatedEvent. If the listing write fails the uploaded image is
// deleted again.
func (s *ListingService) CreateListing(ctx context.Context, params CreateListingParams, image io.Reader, contentType string) (*ListingRecord, error) {
	errs := params.Validate()
	if image == nil {
		errs.Add("image", "is required")
	}
	if errs.HasErrors() {
		return nil, errs
	}

	imagePath := fmt.Sprintf("ticket_images/%s.jpg", uuid.New().String())
	imageURL, err := s.blobs.Put(ctx, imagePath, image, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload ticket image: %w", err)
	}

	listing := Listing{
		EventName:   strings.TrimSpace(params.EventName),
		Price:       NormalizePrice(params.Price),
		EventDate:   params.EventDate,
		EventTime:   strings.TrimSpace(params.EventTime),
		SeatDetails: strings.TrimSpace(params.SeatDetails),
		ImageURL:    imageURL,
		SellerID:    params.SellerID,
	}

	id := s.store.NewID(CollectionListings)
	err = s.store.Set(ctx, CollectionListings, id, map[string]interface{}{
		"eventName":   listing.EventName,
		"price":       listing.Price,
		"eventDate":   *listing.EventDate,
		"eventTime":   listing.EventTime,
		"seatDetails": listing.SeatDetails,
		"imageURL":    listing.ImageURL,
		"sellerID":    listing.SellerID,
		"createdAt":   docstore.ServerTimestamp,
		"isSold":      false,
	}, false)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, imagePath); delErr != nil {
			s.logger.Error("failed to roll back ticket image",
				zap.String("path", imagePath),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("save listing: %w", err)
	}

	s.logger.Info("listing created",
		zap.String("listing_id", id),
		zap.String("seller_id", listing.SellerID),
	)

	event := ListingCreatedEvent{
		ListingID: id,
		SellerID:  listing.SellerID,
		EventName: listing.EventName,
		Price:     listing.Price,
	}
	if err := s.publisher.PublishListingCreated(ctx, event); err != nil {
		s.logger.Error("failed to publish listing created event", zap.String("listing_id", id), zap.Error(err))
	}

	return &ListingRecord{ID: id, Listing: listing}, nil
}

// GetListing loads one listing by ID.
func (s *ListingService) GetListing(ctx context.Context, id string) (*ListingRecord, error) {
	doc, err := s.store.Get(ctx, CollectionListings, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	var l Listing
	if err := doc.DataTo(&l); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", id, err)
	}
	l.Price = NormalizePrice(l.Price)
	return &ListingRecord{ID: doc.ID(), Listing: l}, nil
}

// SellerListings returns the listings created by sellerID.
func (s *ListingService) SellerListings(ctx context.Context, sellerID string) ([]ListingRecord, error) {
	docs, err := s.store.Query(ctx, CollectionListings, docstore.Where("sellerID", sellerID))
	if err != nil {
		return nil, fmt.Errorf("fetch seller listings: %w", err)
	}
	records := make([]ListingRecord, 0, len(docs))
	for _, doc := range docs {
		var l Listing
		if err := doc.DataTo(&l); err != nil {
			s.logger.Warn("skipping undecodable listing", zap.String("listing_id", doc.ID()), zap.Error(err))
			continue
		}
		l.Price = NormalizePrice(l.Price)
		records = append(records, ListingRecord{ID: doc.ID(), Listing: l})
	}
	return records, nil
}

// MarkSold flags a listing as sold. Only its seller may do so.
func (s *ListingService) MarkSold(ctx context.Context, sellerID, listingID string) error {
	listing, err := s.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if listing.SellerID != sellerID {
		return ErrNotListingOwner
	}
	return s.store.Update(ctx, CollectionListings, listingID, map[string]interface{}{"isSold": true})
}
