package offer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"librarian/internal/clock"
	"librarian/internal/models"
	"librarian/internal/storage"
)

// Request is the input for a new book offer.
type Request struct {
	Title        string
	Topic        string
	Author       string
	Publisher    string
	Proposer     string
	PurchaseLink string
}

// Service manages book-offer requests collected from users.
type Service struct {
	store  storage.Storage
	clock  clock.Clock
	logger *zap.Logger
}

// New creates the offer service.
func New(store storage.Storage, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// AddOffer records a new book offer.
func (s *Service) AddOffer(ctx context.Context, req Request) (models.BookOffer, error) {
	if req.Title == "" {
		return models.BookOffer{}, fmt.Errorf("offer title is required")
	}
	offer := models.BookOffer{
		UID:          uuid.NewString(),
		Title:        req.Title,
		Topic:        req.Topic,
		Author:       req.Author,
		Publisher:    req.Publisher,
		Proposer:     req.Proposer,
		PurchaseLink: req.PurchaseLink,
		OfferedAt:    s.clock.Now(),
	}
	created, err := s.store.CreateOffer(ctx, offer)
	if err != nil {
		return models.BookOffer{}, fmt.Errorf("failed to create offer: %w", err)
	}
	s.logger.Info("book offered",
		zap.String("uid", created.UID),
		zap.String("title", created.Title),
		zap.String("proposer", created.Proposer),
	)
	return created, nil
}

// ListOffers returns offers matching the filter.
func (s *Service) ListOffers(ctx context.Context, filter storage.OfferFilter) ([]models.BookOffer, error) {
	return s.store.ListOffers(ctx, filter)
}

// GetOffer returns the offer with the given uid.
func (s *Service) GetOffer(ctx context.Context, uid string) (models.BookOffer, error) {
	offers, err := s.store.ListOffers(ctx, storage.OfferFilter{})
	if err != nil {
		return models.BookOffer{}, err
	}
	for _, o := range offers {
		if o.UID == uid {
			return o, nil
		}
	}
	return models.BookOffer{}, storage.ErrOfferNotFound
}
