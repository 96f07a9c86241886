package updates

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"warnlist/internal/domain"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
)

// Store persists list changes.
type Store interface {
	ApplyListDefinition(ctx context.Context, def domain.ListDefinition) (uint, bool, error)
	SetEnabled(ctx context.Context, id uint, enabled bool) error
	Delete(ctx context.Context, id uint) error
}

// Invalidator is the mutation entrypoint of the list cache.
type Invalidator interface {
	Invalidate(ctx context.Context, id uint) error
	InvalidateAll(ctx context.Context) error
}

// ValidationError reports a rejected list definition. Nothing was persisted.
type ValidationError struct {
	List   string
	Fields validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Sprintf("invalid warninglist definition %q: %s", e.List, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Fields
}

// ApplyReport lists the outcome of a bulk apply by list name.
type ApplyReport struct {
	Applied   []string
	Unchanged []string
	Failed    map[string]error
}

// Service applies list changes and keeps the list cache consistent with them.
type Service struct {
	store    Store
	cache    Invalidator
	validate *validator.Validate
}

func NewService(store Store, cache Invalidator) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks a definition without touching the store.
func (s *Service) Validate(def domain.ListDefinition) error {
	err := s.validate.Struct(def)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		return &ValidationError{List: def.Name, Fields: fields}
	}
	return err
}

// ApplyListDefinition stores def when it is new or carries a higher version
// than the stored list, then invalidates that list. Stale definitions are a no-op.
func (s *Service) ApplyListDefinition(ctx context.Context, def domain.ListDefinition) (uint, bool, error) {
	id, applied, err := s.apply(ctx, def)
	if err != nil || !applied {
		return id, applied, err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		return id, true, fmt.Errorf("invalidate warninglist %d: %w", id, err)
	}
	return id, true, nil
}

func (s *Service) apply(ctx context.Context, def domain.ListDefinition) (uint, bool, error) {
	if err := s.Validate(def); err != nil {
		return 0, false, err
	}
	id, applied, err := s.store.ApplyListDefinition(ctx, def)
	if err != nil {
		return 0, false, fmt.Errorf("apply warninglist %q: %w", def.Name, err)
	}
	return id, applied, nil
}

// ApplyAll applies every definition and rebuilds the whole cache once when
// anything changed. A failing definition does not stop the others.
func (s *Service) ApplyAll(ctx context.Context, defs []domain.ListDefinition) (ApplyReport, error) {
	report := ApplyReport{Failed: make(map[string]error)}

	for _, def := range defs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		_, applied, err := s.apply(ctx, def)
		switch {
		case err != nil:
			log.Warn("Warninglist rejected", "name", def.Name, "error", err)
			report.Failed[def.Name] = err
		case applied:
			report.Applied = append(report.Applied, def.Name)
		default:
			report.Unchanged = append(report.Unchanged, def.Name)
		}
	}

	if len(report.Applied) == 0 {
		return report, nil
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return report, fmt.Errorf("rebuild warninglist cache: %w", err)
	}
	return report, nil
}

// SetEnabled toggles a list and invalidates it.
func (s *Service) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	if err := s.store.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}

// Delete removes a list and invalidates it.
func (s *Service) Delete(ctx context.Context, id uint) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, id)
}
