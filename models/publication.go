package models

import (
	"fmt"
	"time"
)

// Review-Status einer Publikation.
const (
	StatusUntagged = "UNTAGGED"
	StatusFlagged  = "FLAGGED"
	StatusInvalid  = "INVALID"
	StatusComplete = "COMPLETE"
)

// Publication ist der kanonische Publikations-Datensatz.
//
// is_primary unterscheidet direkt ingestierte Werke von Werken, die nur
// über die Referenzliste einer anderen Publikation bekannt sind.
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title             string `json:"title" gorm:"type:text;index"`
	Abstract          string `json:"abstract,omitempty" gorm:"type:text"`
	DatePublishedText string `json:"date_published_text,omitempty"`
	DOI               string `json:"doi,omitempty" gorm:"index"`
	ISI               string `json:"isi,omitempty" gorm:"index"`
	Pages             string `json:"pages,omitempty"`
	Volume            string `json:"volume,omitempty"`
	Issue             string `json:"issue,omitempty"`

	IsPrimary bool   `json:"is_primary" gorm:"index"`
	Status    string `json:"status" gorm:"default:'UNTAGGED'"`

	ContainerID *uint `json:"container_id,omitempty" gorm:"index"`
}

func (p *Publication) GetID() uint { return p.ID }

func (p *Publication) LogLabel() string {
	return fmt.Sprintf("%s (%d)", p.Title, p.ID)
}

func (Publication) TableName() string { return "publications" }

// PublicationAuthors ist die m:n-Verknüpfung Publikation ↔ Autor.
type PublicationAuthors struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicationID uint   `json:"publication_id" gorm:"uniqueIndex:idx_pub_author"`
	AuthorID      uint   `json:"author_id" gorm:"uniqueIndex:idx_pub_author;index"`
	Role          string `json:"role" gorm:"default:'AUTHOR'"`
}

func (p *PublicationAuthors) GetID() uint { return p.ID }

func (p *PublicationAuthors) LogLabel() string {
	return fmt.Sprintf("publication %d / author %d", p.PublicationID, p.AuthorID)
}

func (PublicationAuthors) TableName() string { return "publication_authors" }

// PublicationCitations verknüpft eine Publikation mit einer von ihr
// zitierten Publikation (gerichtete Kante, nicht symmetrisch).
type PublicationCitations struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicationID uint `json:"publication_id" gorm:"uniqueIndex:idx_pub_citation"`
	CitationID    uint `json:"citation_id" gorm:"uniqueIndex:idx_pub_citation;index"`
}

func (p *PublicationCitations) GetID() uint { return p.ID }

func (p *PublicationCitations) LogLabel() string {
	return fmt.Sprintf("publication %d cites %d", p.PublicationID, p.CitationID)
}

func (PublicationCitations) TableName() string { return "publication_citations" }

// Platform ist eine Modell-/Simulationsplattform, die eine Publikation nutzt.
type Platform struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name" gorm:"uniqueIndex"`
	URL  string `json:"url,omitempty"`
}

func (p *Platform) GetID() uint     { return p.ID }
func (p *Platform) LogLabel() string { return fmt.Sprintf("%s (%d)", p.Name, p.ID) }
func (Platform) TableName() string  { return "platforms" }

// Sponsor ist eine fördernde Einrichtung.
type Sponsor struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name" gorm:"uniqueIndex"`
	URL  string `json:"url,omitempty"`
}

func (s *Sponsor) GetID() uint     { return s.ID }
func (s *Sponsor) LogLabel() string { return fmt.Sprintf("%s (%d)", s.Name, s.ID) }
func (Sponsor) TableName() string  { return "sponsors" }

// Tag ist ein frei vergebenes Schlagwort.
type Tag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name" gorm:"uniqueIndex"`
}

func (t *Tag) GetID() uint     { return t.ID }
func (t *Tag) LogLabel() string { return fmt.Sprintf("%s (%d)", t.Name, t.ID) }
func (Tag) TableName() string  { return "tags" }

// PublicationPlatforms ist die m:n-Verknüpfung Publikation ↔ Plattform.
type PublicationPlatforms struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicationID uint `json:"publication_id" gorm:"uniqueIndex:idx_pub_platform"`
	PlatformID    uint `json:"platform_id" gorm:"uniqueIndex:idx_pub_platform;index"`
}

func (p *PublicationPlatforms) GetID() uint { return p.ID }

func (p *PublicationPlatforms) LogLabel() string {
	return fmt.Sprintf("publication %d / platform %d", p.PublicationID, p.PlatformID)
}

func (PublicationPlatforms) TableName() string { return "publication_platforms" }

// PublicationSponsors ist die m:n-Verknüpfung Publikation ↔ Sponsor.
type PublicationSponsors struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicationID uint `json:"publication_id" gorm:"uniqueIndex:idx_pub_sponsor"`
	SponsorID     uint `json:"sponsor_id" gorm:"uniqueIndex:idx_pub_sponsor;index"`
}

func (p *PublicationSponsors) GetID() uint { return p.ID }

func (p *PublicationSponsors) LogLabel() string {
	return fmt.Sprintf("publication %d / sponsor %d", p.PublicationID, p.SponsorID)
}

func (PublicationSponsors) TableName() string { return "publication_sponsors" }

// PublicationTags ist die m:n-Verknüpfung Publikation ↔ Tag.
type PublicationTags struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicationID uint `json:"publication_id" gorm:"uniqueIndex:idx_pub_tag"`
	TagID         uint `json:"tag_id" gorm:"uniqueIndex:idx_pub_tag;index"`
}

func (p *PublicationTags) GetID() uint { return p.ID }

func (p *PublicationTags) LogLabel() string {
	return fmt.Sprintf("publication %d / tag %d", p.PublicationID, p.TagID)
}

func (PublicationTags) TableName() string { return "publication_tags" }
