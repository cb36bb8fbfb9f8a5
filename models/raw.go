package models

import (
	"fmt"
	"time"
)

// Quellen-Schlüssel für Rohdaten-Beobachtungen.
const (
	RawBibtexFile              = "BIBTEX_FILE"
	RawBibtexEntry             = "BIBTEX_ENTRY"
	RawBibtexRef               = "BIBTEX_REF"
	RawCrossrefDOISuccess      = "CROSSREF_DOI_SUCCESS"
	RawCrossrefDOIFail         = "CROSSREF_DOI_FAIL"
	RawCrossrefSearchSuccess   = "CROSSREF_SEARCH_SUCCESS"
	RawCrossrefSearchNotUnique = "CROSSREF_SEARCH_FAIL_NOT_UNIQUE"
	RawCrossrefSearchFail      = "CROSSREF_SEARCH_FAIL_OTHER"
	RawCrossrefSearchCandidate = "CROSSREF_SEARCH_CANDIDATE"
)

// Raw ist eine unveränderte Beobachtung aus einer Ingestion-Quelle.
// Publikation und Container werden beim Merge umgehängt, der Rohdatensatz
// selbst bleibt unangetastet (Provenance).
type Raw struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Key   string `json:"key" gorm:"index"`
	Value []byte `json:"value" gorm:"type:jsonb"`

	PublicationID uint  `json:"publication_id" gorm:"index"`
	ContainerID   *uint `json:"container_id,omitempty" gorm:"index"`
}

func (r *Raw) GetID() uint { return r.ID }

func (r *Raw) LogLabel() string {
	return fmt.Sprintf("%s (%d)", r.Key, r.ID)
}

func (Raw) TableName() string { return "raws" }

// RawAuthors verknüpft eine Rohdaten-Beobachtung mit den daraus
// extrahierten Autoren.
type RawAuthors struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AuthorID uint `json:"author_id" gorm:"uniqueIndex:idx_raw_author;index"`
	RawID    uint `json:"raw_id" gorm:"uniqueIndex:idx_raw_author"`
}

func (r *RawAuthors) GetID() uint { return r.ID }

func (r *RawAuthors) LogLabel() string {
	return fmt.Sprintf("raw %d / author %d", r.RawID, r.AuthorID)
}

func (RawAuthors) TableName() string { return "raw_authors" }
