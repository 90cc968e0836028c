package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Service validates catalog mutations and delegates persistence to a Store.
type Service struct {
	store       Store
	invalidator Invalidator
}

// NewService creates a catalog Service. invalidator may be nil.
func NewService(store Store, invalidator Invalidator) *Service {
	return &Service{store: store, invalidator: invalidator}
}

// Get returns a coffee with its tags.
func (s *Service) Get(ctx context.Context, id string) (*Coffee, error) {
	return s.store.GetByID(ctx, id)
}

// List returns every coffee, newest first.
func (s *Service) List(ctx context.Context) ([]Coffee, error) {
	return s.store.List(ctx)
}

// Create validates the input and stores a new coffee, creating any tags
// that do not exist yet.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Coffee, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if err := validateImageURL(in.ImageURL); err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	c := &Coffee{
		Name:        name,
		Description: in.Description,
		Price:       in.Price,
		ImageURL:    in.ImageURL,
	}
	if err := s.store.Create(ctx, c, tags); err != nil {
		return nil, errors.Wrap(err, "create coffee")
	}
	s.invalidate(ctx)
	return c, nil
}

// Update applies a partial update. Only the provided fields are validated.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Coffee, error) {
	if p.Name != nil {
		name, err := validateName(*p.Name)
		if err != nil {
			return nil, err
		}
		p.Name = &name
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return nil, err
		}
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return nil, err
		}
	}
	if p.ImageURL != nil {
		if err := validateImageURL(*p.ImageURL); err != nil {
			return nil, err
		}
	}
	if p.Tags != nil {
		tags, err := normalizeTags(p.Tags)
		if err != nil {
			return nil, err
		}
		p.Tags = tags
	}

	if p.Empty() {
		return s.store.GetByID(ctx, id)
	}

	c, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, errors.Wrapf(err, "update coffee %s", id)
	}
	s.invalidate(ctx)
	return c, nil
}

// Remove deletes a coffee after detaching its tags. Coffees still held in
// a cart cannot be removed.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "remove coffee %s", id)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		zctx.From(ctx).Warn("Search cache invalidation failed", zap.Error(err))
	}
}
