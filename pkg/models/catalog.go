package models

import (
	"fmt"
	"time"
)

// Dataset names one of the two catalog tables
type Dataset string

const (
	// DatasetMain is the production catalog read by downstream consumers
	DatasetMain Dataset = "main"
	// DatasetStage holds the snapshot being refreshed
	DatasetStage Dataset = "stage"
)

// Table returns the database table backing the dataset
func (d Dataset) Table() string {
	return "satellites_" + string(d)
}

// Validate rejects anything other than main or stage
func (d Dataset) Validate() error {
	switch d {
	case DatasetMain, DatasetStage:
		return nil
	default:
		return fmt.Errorf("unknown dataset %q", string(d))
	}
}

// CatalogEntry is one satellite tracked by the catalog
type CatalogEntry struct {
	// ID is a storage surrogate and is never copied between datasets
	ID              int64      `db:"id" json:"id"`
	ExternalID      int64      `db:"external_id" json:"external_id"`
	DisplayName     string     `db:"display_name" json:"display_name"`
	Category        int        `db:"category" json:"category"`
	Active          bool       `db:"active" json:"active"`
	LastValidatedAt *time.Time `db:"last_validated_at" json:"last_validated_at,omitempty"`
}

// StripIDs returns copies of entries with their surrogate ids cleared
func StripIDs(entries []CatalogEntry) []CatalogEntry {
	stripped := make([]CatalogEntry, len(entries))
	for i, entry := range entries {
		entry.ID = 0
		stripped[i] = entry
	}
	return stripped
}
