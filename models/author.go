package models

import (
	"fmt"
	"time"
)

// Autoren-Typen
const (
	AuthorIndividual   = "INDIVIDUAL"
	AuthorOrganization = "ORGANIZATION"
)

// Author ist der kanonische Autoren-Datensatz.
// Alle historischen Schreibweisen liegen in AuthorAlias.
type Author struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Type       string `json:"type" gorm:"default:'INDIVIDUAL'"`
	GivenName  string `json:"given_name" gorm:"index:idx_author_name"`
	FamilyName string `json:"family_name" gorm:"index:idx_author_name"`
	ORCID      string `json:"orcid,omitempty"`
	Email      string `json:"email,omitempty"`
}

// Name gibt den Anzeigenamen zurück (Vorname Nachname, je nach Befüllung).
func (a *Author) Name() string {
	if a.FamilyName != "" {
		if a.GivenName != "" {
			return a.GivenName + " " + a.FamilyName
		}
		return a.FamilyName
	}
	return a.GivenName
}

// GivenNameInitial liefert die Initiale des Vornamens ("" wenn leer).
func (a *Author) GivenNameInitial() string {
	if a.GivenName == "" {
		return ""
	}
	return string([]rune(a.GivenName)[0])
}

func (a *Author) GetID() uint { return a.ID }

func (a *Author) LogLabel() string {
	return fmt.Sprintf("%s %s (%d)", a.GivenName, a.FamilyName, a.ID)
}

func (Author) TableName() string { return "authors" }

// AuthorAlias hält eine alternative Schreibweise eines Autors fest.
// Entsteht bei der Ingestion und beim Merge (der Name des gelöschten
// Duplikats wird als Alias des Überlebenden erhalten).
type AuthorAlias struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	GivenName  string `json:"given_name" gorm:"uniqueIndex:idx_author_alias"`
	FamilyName string `json:"family_name" gorm:"uniqueIndex:idx_author_alias"`
	AuthorID   uint   `json:"author_id" gorm:"uniqueIndex:idx_author_alias;index"`
}

// Name entspricht Author.Name für die Alias-Schreibweise.
func (a *AuthorAlias) Name() string {
	if a.FamilyName != "" {
		if a.GivenName != "" {
			return a.GivenName + " " + a.FamilyName
		}
		return a.FamilyName
	}
	return a.GivenName
}

func (a *AuthorAlias) GetID() uint { return a.ID }

func (a *AuthorAlias) LogLabel() string {
	return fmt.Sprintf("%s %s (%d)", a.GivenName, a.FamilyName, a.ID)
}

func (AuthorAlias) TableName() string { return "author_aliases" }
