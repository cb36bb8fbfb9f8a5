package dedupe

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"catalog-hand/models"
)

// Finder liefert zu einer persistierten Entität alle Duplikate. Hinter
// dem Interface stehen zwei Strategien, damit die Merge-Orchestrierung
// nicht wissen muss, wie gesucht wurde.
type Finder interface {
	PublicationDuplicates(ctx context.Context, p *models.Publication) ([]models.Publication, error)
	AuthorDuplicates(ctx context.Context, a *models.Author) ([]models.Author, error)
	ContainerDuplicates(ctx context.Context, c *models.Container) ([]models.Container, error)
}

// DirectFinder sucht per Self-Join direkt auf den Tabellen. Für kleine
// und mittlere Kataloge ausreichend.
type DirectFinder struct {
	db *gorm.DB
}

// NewDirectFinder erstellt einen DirectFinder.
func NewDirectFinder(db *gorm.DB) *DirectFinder {
	return &DirectFinder{db: db}
}

// PublicationDuplicates findet Publikationen mit gleicher nicht-leerer
// ISI, gleicher nicht-leerer DOI oder gleichem Titel samt gleichem
// Datumstext. Die Entität selbst ist nie Teil des Ergebnisses.
func (f *DirectFinder) PublicationDuplicates(ctx context.Context, p *models.Publication) ([]models.Publication, error) {
	query := f.db.WithContext(ctx).Where("id <> ?", p.ID)

	match := f.db.Where("1 = 0")
	if p.ISI != "" {
		match = match.Or("isi = ?", p.ISI)
	}
	if p.DOI != "" {
		match = match.Or("doi = ?", p.DOI)
	}
	if p.Title != "" && p.DatePublishedText != "" {
		match = match.Or(
			f.db.Where("lower(title) = lower(?)", p.Title).
				Where("lower(date_published_text) = lower(?)", p.DatePublishedText),
		)
	}

	var dups []models.Publication
	if err := query.Where(match).Order("id").Find(&dups).Error; err != nil {
		return nil, fmt.Errorf("find publication duplicates for %d: %w", p.ID, err)
	}
	return dups, nil
}

// AuthorDuplicates findet Autoren mit identischem normalisiertem
// (Familienname, Vorname)-Paar.
func (f *DirectFinder) AuthorDuplicates(ctx context.Context, a *models.Author) ([]models.Author, error) {
	var dups []models.Author
	err := f.db.WithContext(ctx).
		Where("id <> ?", a.ID).
		Where("family_name = ?", a.FamilyName).
		Where("given_name = ?", a.GivenName).
		Order("id").
		Find(&dups).Error
	if err != nil {
		return nil, fmt.Errorf("find author duplicates for %d: %w", a.ID, err)
	}
	return dups, nil
}

// ContainerDuplicates findet Container mit identischer nicht-leerer ISSN.
func (f *DirectFinder) ContainerDuplicates(ctx context.Context, c *models.Container) ([]models.Container, error) {
	if c.ISSN == "" {
		return nil, nil
	}
	var dups []models.Container
	err := f.db.WithContext(ctx).
		Where("id <> ?", c.ID).
		Where("issn = ?", c.ISSN).
		Order("id").
		Find(&dups).Error
	if err != nil {
		return nil, fmt.Errorf("find container duplicates for %d: %w", c.ID, err)
	}
	return dups, nil
}

// IndexFinder sucht über die indizierten Namens-/Titelspalten statt per
// freiem Self-Join. Für Kataloge, die für DirectFinder zu groß sind;
// Treffer sind exakte Feldgleichheit auf dem Index.
type IndexFinder struct {
	db *gorm.DB
}

// NewIndexFinder erstellt einen IndexFinder.
func NewIndexFinder(db *gorm.DB) *IndexFinder {
	return &IndexFinder{db: db}
}

// PublicationDuplicates findet Publikationen mit exakt gleichem
// indizierten Titel.
func (f *IndexFinder) PublicationDuplicates(ctx context.Context, p *models.Publication) ([]models.Publication, error) {
	if p.Title == "" {
		return nil, nil
	}
	var dups []models.Publication
	err := f.db.WithContext(ctx).
		Where("id <> ?", p.ID).
		Where("title = ?", p.Title).
		Order("id").
		Find(&dups).Error
	if err != nil {
		return nil, fmt.Errorf("find publication duplicates for %d: %w", p.ID, err)
	}
	return dups, nil
}

// AuthorDuplicates findet Autoren über den Namensindex.
func (f *IndexFinder) AuthorDuplicates(ctx context.Context, a *models.Author) ([]models.Author, error) {
	var dups []models.Author
	err := f.db.WithContext(ctx).
		Where("id <> ?", a.ID).
		Where("family_name = ? AND given_name = ?", a.FamilyName, a.GivenName).
		Order("id").
		Find(&dups).Error
	if err != nil {
		return nil, fmt.Errorf("find author duplicates for %d: %w", a.ID, err)
	}
	return dups, nil
}

// ContainerDuplicates findet Container mit exakt gleichem Namen oder
// gleicher nicht-leerer ISSN.
func (f *IndexFinder) ContainerDuplicates(ctx context.Context, c *models.Container) ([]models.Container, error) {
	match := f.db.Where("name = ?", c.Name)
	if c.ISSN != "" {
		match = match.Or("issn = ?", c.ISSN)
	}
	var dups []models.Container
	err := f.db.WithContext(ctx).
		Where("id <> ?", c.ID).
		Where(match).
		Order("id").
		Find(&dups).Error
	if err != nil {
		return nil, fmt.Errorf("find container duplicates for %d: %w", c.ID, err)
	}
	return dups, nil
}
