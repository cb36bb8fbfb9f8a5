package merge

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"catalog-hand/models"
	"catalog-hand/storage"
)

// AuthorMergeGroup konsolidiert N Autoren-Datensätze zu einem. Aus N
// Autoren mit unterschiedlichen Namen werden 1 Autor plus bis zu N-1
// neue Aliase; kein Name geht verloren.
type AuthorMergeGroup struct {
	Final  *models.Author
	Others []*models.Author

	state ValidationState
}

// NewAuthorMergeGroup erstellt die Gruppe. Kommt Final in Others vor,
// wird der Eintrag stillschweigend verworfen. Eine leere Others-Liste
// ergibt eine degenerierte Gruppe, deren Merge ein No-op ist.
func NewAuthorMergeGroup(final *models.Author, others []*models.Author) *AuthorMergeGroup {
	g := &AuthorMergeGroup{Final: final}
	for _, o := range others {
		if o.ID == final.ID {
			continue
		}
		g.Others = append(g.Others, o)
	}
	return g
}

// State gibt den aktuellen Zustand der Gruppe zurück.
func (g *AuthorMergeGroup) State() ValidationState {
	return g.state
}

// IsValid validiert die Gruppe. Ein direkt vom Kurator angestoßener
// Autoren-Merge hat keine eigene Fehlbedingung (die strukturelle
// Identität ist zu dem Zeitpunkt bereits etabliert); der einzige harte
// Blocker für Autoren lebt auf Publikationsebene.
func (g *AuthorMergeGroup) IsValid(ctx context.Context, db *gorm.DB) (bool, error) {
	if g.state == StateUnvalidated {
		g.state = StateValid
	}
	return g.state == StateValid, nil
}

// Merge führt die Konsolidierung in der übergebenen Transaktion aus.
// IsValid muss vorher aufgerufen worden sein.
func (g *AuthorMergeGroup) Merge(ctx context.Context, tx *storage.AuditedTx, force bool) error {
	if err := guardMerge(g.state, force); err != nil {
		return err
	}
	for _, other := range g.Others {
		if err := g.mergeOne(ctx, tx, other); err != nil {
			return fmt.Errorf("merge author %d into %d: %w", other.ID, g.Final.ID, err)
		}
	}
	g.state = StateMerged
	return nil
}

func (g *AuthorMergeGroup) mergeOne(ctx context.Context, tx *storage.AuditedTx, other *models.Author) error {
	if other.GivenName != g.Final.GivenName || other.FamilyName != g.Final.FamilyName {
		if err := ensureAuthorAlias(tx, g.Final.ID, other.GivenName, other.FamilyName); err != nil {
			return err
		}
	}

	var aliases []models.AuthorAlias
	if err := tx.DB().Where("author_id = ?", other.ID).Order("id").Find(&aliases).Error; err != nil {
		return err
	}
	for i := range aliases {
		alias := &aliases[i]
		duplicate, err := authorAliasExists(tx, g.Final.ID, alias.GivenName, alias.FamilyName)
		if err != nil {
			return err
		}
		if duplicate {
			if err := tx.LogDelete(alias); err != nil {
				return err
			}
			continue
		}
		if err := tx.LogUpdate(alias, map[string]any{"author_id": g.Final.ID}); err != nil {
			return err
		}
	}

	changes := map[string]any{}
	if g.Final.ORCID == "" && other.ORCID != "" {
		changes["orcid"] = other.ORCID
		g.Final.ORCID = other.ORCID
	}
	if g.Final.GivenName == "" && other.GivenName != "" {
		changes["given_name"] = other.GivenName
		g.Final.GivenName = other.GivenName
	}
	if g.Final.FamilyName == "" && other.FamilyName != "" {
		changes["family_name"] = other.FamilyName
		g.Final.FamilyName = other.FamilyName
	}
	if g.Final.Email == "" && other.Email != "" {
		changes["email"] = other.Email
		g.Final.Email = other.Email
	}
	if len(changes) > 0 {
		if err := tx.LogUpdate(g.Final, changes); err != nil {
			return err
		}
	}

	if err := repointAuthorJoins(tx, other.ID, g.Final.ID); err != nil {
		return err
	}

	return tx.LogDelete(other)
}

// ensureAuthorAlias legt einen Alias an, sofern er nicht schon existiert.
func ensureAuthorAlias(tx *storage.AuditedTx, authorID uint, given, family string) error {
	exists, err := authorAliasExists(tx, authorID, given, family)
	if err != nil || exists {
		return err
	}
	return tx.LogCreate(&models.AuthorAlias{
		GivenName:  given,
		FamilyName: family,
		AuthorID:   authorID,
	})
}

func authorAliasExists(tx *storage.AuditedTx, authorID uint, given, family string) (bool, error) {
	var alias models.AuthorAlias
	err := tx.DB().
		Where("author_id = ? AND given_name = ? AND family_name = ?", authorID, given, family).
		First(&alias).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// repointAuthorJoins hängt alle Verknüpfungen von other auf final um.
// Verknüpfungen, die bei final bereits über einen anderen Datensatz
// bestehen, werden gelöscht statt dupliziert.
func repointAuthorJoins(tx *storage.AuditedTx, otherID, finalID uint) error {
	var rawLinks []models.RawAuthors
	if err := tx.DB().Where("author_id = ?", otherID).Order("id").Find(&rawLinks).Error; err != nil {
		return err
	}
	for i := range rawLinks {
		link := &rawLinks[i]
		var count int64
		err := tx.DB().Model(&models.RawAuthors{}).
			Where("raw_id = ? AND author_id = ?", link.RawID, finalID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			if err := tx.LogDelete(link); err != nil {
				return err
			}
			continue
		}
		if err := tx.LogUpdate(link, map[string]any{"author_id": finalID}); err != nil {
			return err
		}
	}

	var pubLinks []models.PublicationAuthors
	if err := tx.DB().Where("author_id = ?", otherID).Order("id").Find(&pubLinks).Error; err != nil {
		return err
	}
	for i := range pubLinks {
		link := &pubLinks[i]
		var count int64
		err := tx.DB().Model(&models.PublicationAuthors{}).
			Where("publication_id = ? AND author_id = ?", link.PublicationID, finalID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			if err := tx.LogDelete(link); err != nil {
				return err
			}
			continue
		}
		if err := tx.LogUpdate(link, map[string]any{"author_id": finalID}); err != nil {
			return err
		}
	}
	return nil
}
