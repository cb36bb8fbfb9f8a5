package merge

import (
	"catalog-hand/models"
	"catalog-hand/storage"
)

// publicationRelation ist die gemeinsame Fähigkeit der m:n-Seitentabellen
// einer Publikation (Plattformen, Sponsoren, Tags). Eine geschlossene
// Menge konkreter Typen statt einer zur Laufzeit befüllten Tabelle;
// jede Variante weiß selbst, wie ihre Verknüpfungen angelegt, umgehängt
// und gelöscht werden.
type publicationRelation interface {
	// Insert legt eine Verknüpfung an und schreibt sie ins Audit-Log.
	Insert(tx *storage.AuditedTx, publicationID, relatedID uint) error
	// Merge hängt alle Verknüpfungen von from auf to um; bei to schon
	// vorhandene Verknüpfungen werden gelöscht statt dupliziert.
	Merge(tx *storage.AuditedTx, fromID, toID uint) error
	// Delete entfernt alle Verknüpfungen einer Publikation.
	Delete(tx *storage.AuditedTx, publicationID uint) error
}

// publicationRelations ist die vollständige Liste der Seitentabellen,
// die ein Publikations-Merge mitziehen muss.
var publicationRelations = []publicationRelation{
	platformRelation{},
	sponsorRelation{},
	tagRelation{},
}

type platformRelation struct{}

func (platformRelation) Insert(tx *storage.AuditedTx, publicationID, relatedID uint) error {
	return tx.LogCreate(&models.PublicationPlatforms{PublicationID: publicationID, PlatformID: relatedID})
}

func (platformRelation) Merge(tx *storage.AuditedTx, fromID, toID uint) error {
	var links []models.PublicationPlatforms
	if err := tx.DB().Where("publication_id = ?", fromID).Order("id").Find(&links).Error; err != nil {
		return err
	}
	for i := range links {
		link := &links[i]
		var count int64
		err := tx.DB().Model(&models.PublicationPlatforms{}).
			Where("publication_id = ? AND platform_id = ?", toID, link.PlatformID).
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
		if err := tx.LogUpdate(link, map[string]any{"publication_id": toID}); err != nil {
			return err
		}
	}
	return nil
}

func (platformRelation) Delete(tx *storage.AuditedTx, publicationID uint) error {
	var links []models.PublicationPlatforms
	if err := tx.DB().Where("publication_id = ?", publicationID).Order("id").Find(&links).Error; err != nil {
		return err
	}
	for i := range links {
		if err := tx.LogDelete(&links[i]); err != nil {
			return err
		}
	}
	return nil
}

type sponsorRelation struct{}

func (sponsorRelation) Insert(tx *storage.AuditedTx, publicationID, relatedID uint) error {
	return tx.LogCreate(&models.PublicationSponsors{PublicationID: publicationID, SponsorID: relatedID})
}

func (sponsorRelation) Merge(tx *storage.AuditedTx, fromID, toID uint) error {
	var links []models.PublicationSponsors
	if err := tx.DB().Where("publication_id = ?", fromID).Order("id").Find(&links).Error; err != nil {
		return err
	}
	for i := range links {
		link := &links[i]
		var count int64
		err := tx.DB().Model(&models.PublicationSponsors{}).
			Where("publication_id = ? AND sponsor_id = ?", toID, link.SponsorID).
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
		if err := tx.LogUpdate(link, map[string]any{"publication_id": toID}); err != nil {
			return err
		}
	}
	return nil
}

func (sponsorRelation) Delete(tx *storage.AuditedTx, publicationID uint) error {
	var links []models.PublicationSponsors
	if err := tx.DB().Where("publication_id = ?", publicationID).Order("id").Find(&links).Error; err != nil {
		return err
	}
	for i := range links {
		if err := tx.LogDelete(&links[i]); err != nil {
			return err
		}
	}
	return nil
}

type tagRelation struct{}

func (tagRelation) Insert(tx *storage.AuditedTx, publicationID, relatedID uint) error {
	return tx.LogCreate(&models.PublicationTags{PublicationID: publicationID, TagID: relatedID})
}

func (tagRelation) Merge(tx *storage.AuditedTx, fromID, toID uint) error {
	var links []models.PublicationTags
	if err := tx.DB().Where("publication_id = ?", fromID).Order("id").Find(&links).Error; err != nil {
		return err
	}
	for i := range links {
		link := &links[i]
		var count int64
		err := tx.DB().Model(&models.PublicationTags{}).
			Where("publication_id = ? AND tag_id = ?", toID, link.TagID).
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
		if err := tx.LogUpdate(link, map[string]any{"publication_id": toID}); err != nil {
			return err
		}
	}
	return nil
}

func (tagRelation) Delete(tx *storage.AuditedTx, publicationID uint) error {
	var links []models.PublicationTags
	if err := tx.DB().Where("publication_id = ?", publicationID).Order("id").Find(&links).Error; err != nil {
		return err
	}
	for i := range links {
		if err := tx.LogDelete(&links[i]); err != nil {
			return err
		}
	}
	return nil
}
