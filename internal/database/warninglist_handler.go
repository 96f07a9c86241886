package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"warnlist/internal/domain"

	"gorm.io/gorm"
)

const (
	entryInsertBatchSize = 100
)

var (
	ErrListNotFound = errors.New("warninglist not found")

	tldListNames = []string{
		"TLDs as known by IANA",
	}
)

// WarninglistStore persists warninglists, their entries and applicable types.
type WarninglistStore struct {
	db *gorm.DB
}

// NewWarninglistStore wraps db. A nil db falls back to the package connection.
func NewWarninglistStore(db *gorm.DB) *WarninglistStore {
	return &WarninglistStore{db: db}
}

func (s *WarninglistStore) conn(ctx context.Context) (*gorm.DB, error) {
	db := DB
	if s != nil && s.db != nil {
		db = s.db
	}
	if db == nil {
		return nil, ErrNotInitialised
	}
	if ctx != nil {
		db = db.WithContext(ctx)
	}
	return db, nil
}

// FindEnabled returns every enabled list reduced to its summary, ordered by id.
func (s *WarninglistStore) FindEnabled(ctx context.Context) ([]domain.ListSummary, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var lists []domain.Warninglist
	if err := db.Preload("Types").
		Select("id", "name", "type").
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&lists).Error; err != nil {
		return nil, fmt.Errorf("find enabled warninglists: %w", err)
	}

	summaries := make([]domain.ListSummary, 0, len(lists))
	for _, list := range lists {
		summaries = append(summaries, list.Summary())
	}
	return summaries, nil
}

// FindEntries returns the raw values of a list in insertion order.
func (s *WarninglistStore) FindEntries(ctx context.Context, id uint) ([]string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var values []string
	if err := db.Model(&domain.WarninglistEntry{}).
		Where("warninglist_id = ?", id).
		Order("id ASC").
		Pluck("value", &values).Error; err != nil {
		return nil, fmt.Errorf("find entries of warninglist %d: %w", id, err)
	}
	return values, nil
}

// FindByName loads a list with its types.
func (s *WarninglistStore) FindByName(ctx context.Context, name string) (*domain.Warninglist, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var list domain.Warninglist
	err = db.Preload("Types").Where("name = ?", name).First(&list).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrListNotFound
	}
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// ApplyListDefinition inserts a new list or replaces an existing one when the
// definition carries a higher version. It reports whether anything was written.
// A replaced list keeps its id and its enabled flag; its entries and types are
// replaced wholesale.
func (s *WarninglistStore) ApplyListDefinition(ctx context.Context, def domain.ListDefinition) (uint, bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, false, err
	}

	var (
		listID  uint
		applied bool
	)

	err = db.Transaction(func(tx *gorm.DB) error {
		entries := def.NonEmptyEntries()

		var current domain.Warninglist
		findErr := tx.Where("name = ?", def.Name).First(&current).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			list := domain.Warninglist{
				Name:        def.Name,
				Description: def.Description,
				Version:     def.Version,
				Type:        def.Type,
				EntryCount:  len(entries),
			}
			if err := tx.Create(&list).Error; err != nil {
				return fmt.Errorf("create warninglist: %w", err)
			}
			listID = list.ID
		case findErr != nil:
			return findErr
		case def.Version <= current.Version:
			listID = current.ID
			return nil
		default:
			if err := tx.Model(&domain.Warninglist{}).
				Where("id = ?", current.ID).
				Updates(map[string]any{
					"description":             def.Description,
					"version":                 def.Version,
					"type":                    def.Type,
					"warninglist_entry_count": len(entries),
				}).Error; err != nil {
				return fmt.Errorf("update warninglist: %w", err)
			}
			if err := deleteListChildren(tx, current.ID); err != nil {
				return err
			}
			listID = current.ID
		}

		if err := insertEntries(tx, listID, entries); err != nil {
			return err
		}
		if err := insertTypes(tx, listID, def.TypesOrAll()); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return listID, applied, nil
}

func insertEntries(tx *gorm.DB, listID uint, values []string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]domain.WarninglistEntry, 0, len(values))
	for _, v := range values {
		rows = append(rows, domain.WarninglistEntry{WarninglistID: listID, Value: v})
	}
	if err := tx.CreateInBatches(&rows, entryInsertBatchSize).Error; err != nil {
		return fmt.Errorf("insert warninglist entries: %w", err)
	}
	return nil
}

func insertTypes(tx *gorm.DB, listID uint, types []string) error {
	rows := make([]domain.WarninglistType, 0, len(types))
	for _, t := range types {
		rows = append(rows, domain.WarninglistType{WarninglistID: listID, Type: t})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert warninglist types: %w", err)
	}
	return nil
}

func deleteListChildren(tx *gorm.DB, listID uint) error {
	if err := tx.Where("warninglist_id = ?", listID).Delete(&domain.WarninglistEntry{}).Error; err != nil {
		return fmt.Errorf("delete warninglist entries: %w", err)
	}
	if err := tx.Where("warninglist_id = ?", listID).Delete(&domain.WarninglistType{}).Error; err != nil {
		return fmt.Errorf("delete warninglist types: %w", err)
	}
	return nil
}

// SetEnabled flips the enabled flag of a list.
func (s *WarninglistStore) SetEnabled(ctx context.Context, id uint, enabled bool) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	result := db.Model(&domain.Warninglist{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("set warninglist %d enabled=%t: %w", id, enabled, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrListNotFound
	}
	return nil
}

// Delete removes a list together with its entries and types.
func (s *WarninglistStore) Delete(ctx context.Context, id uint) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := deleteListChildren(tx, id); err != nil {
			return err
		}
		result := tx.Delete(&domain.Warninglist{}, id)
		if result.Error != nil {
			return fmt.Errorf("delete warninglist %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrListNotFound
		}
		return nil
	})
}

// FetchTLDs returns the lower-cased entries of the IANA TLD lists. "onion" is always included.
func (s *WarninglistStore) FetchTLDs(ctx context.Context) ([]string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var ids []uint
	if err := db.Model(&domain.Warninglist{}).
		Where("name IN ?", tldListNames).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("find tld lists: %w", err)
	}

	var tlds []string
	if len(ids) > 0 {
		if err := db.Model(&domain.WarninglistEntry{}).
			Where("warninglist_id IN ?", ids).
			Order("id ASC").
			Pluck("value", &tlds).Error; err != nil {
			return nil, fmt.Errorf("find tld entries: %w", err)
		}
	}

	hasOnion := false
	for i := range tlds {
		tlds[i] = strings.ToLower(tlds[i])
		if tlds[i] == "onion" {
			hasOnion = true
		}
	}
	if !hasOnion {
		tlds = append(tlds, "onion")
	}
	return tlds, nil
}

// MissingTLDLists returns the names of TLD lists that are not stored yet.
func (s *WarninglistStore) MissingTLDLists(ctx context.Context) ([]string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var present []string
	if err := db.Model(&domain.Warninglist{}).
		Where("name IN ?", tldListNames).
		Pluck("name", &present).Error; err != nil {
		return nil, fmt.Errorf("find tld lists: %w", err)
	}

	found := make(map[string]struct{}, len(present))
	for _, name := range present {
		found[name] = struct{}{}
	}

	var missing []string
	for _, name := range tldListNames {
		if _, ok := found[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
