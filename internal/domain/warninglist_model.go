package domain

import "time"

// Warninglist is a named, versioned collection of values sharing one comparison semantic.
type Warninglist struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"size:255;uniqueIndex;not null"`
	Description string `gorm:"type:text;not null"`
	Version     uint64 `gorm:"not null;default:1"`

	// Type holds the comparison algorithm used for every entry of the list.
	Type       ComparisonType `gorm:"column:type;size:20;not null;default:'string'"`
	Enabled    bool           `gorm:"not null;default:false;index"`
	EntryCount int            `gorm:"column:warninglist_entry_count;not null;default:0"`

	// Relationships
	Entries []WarninglistEntry `gorm:"foreignKey:WarninglistID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Types   []WarninglistType  `gorm:"foreignKey:WarninglistID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// WarninglistEntry is one raw value of a list. Entries are replaced wholesale, never edited.
type WarninglistEntry struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	WarninglistID uint   `gorm:"not null;index"`
	Value         string `gorm:"type:text;not null"`
}

// WarninglistType declares an indicator type the list applies to; ALL is the wildcard.
type WarninglistType struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	WarninglistID uint   `gorm:"not null;index"`
	Type          string `gorm:"size:100;not null"`
}

// Summary reduces the list to the fields the matching engine needs.
func (w Warninglist) Summary() ListSummary {
	types := make([]string, 0, len(w.Types))
	for _, t := range w.Types {
		types = append(types, t.Type)
	}
	if len(types) == 0 {
		types = append(types, AllTypes)
	}
	return ListSummary{
		ID:    w.ID,
		Name:  w.Name,
		Type:  w.Type,
		Types: types,
	}
}
