package dedupe

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"catalog-hand/models"
)

// Scanner läuft seitenweise über komplette Tabellen und liefert für
// jede Entität mit mindestens einem Duplikat eine Kandidatengruppe an
// den Callback. Die Seiten sind durch eine monoton wachsende
// ID-Wassermarke begrenzt, nicht durch ein Offset; parallele Inserts
// während des Scans können unterhalb der Marke nichts überspringen
// oder doppelt liefern. Der Scan ist rein lesend und darf an jeder
// Seitengrenze abgebrochen werden.
type Scanner struct {
	db        *gorm.DB
	finder    Finder
	chunkSize int
	logger    *zap.Logger
}

// NewScanner erstellt einen Scanner mit fester Seitengröße.
func NewScanner(db *gorm.DB, finder Finder, chunkSize int, logger *zap.Logger) *Scanner {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Scanner{db: db, finder: finder, chunkSize: chunkSize, logger: logger}
}

// PublicationGroupFunc erhält je Treffer die Entität und ihre Duplikate.
type PublicationGroupFunc func(p models.Publication, dups []models.Publication) error

// AuthorGroupFunc erhält je Treffer die Entität und ihre Duplikate.
type AuthorGroupFunc func(a models.Author, dups []models.Author) error

// ContainerGroupFunc erhält je Treffer die Entität und ihre Duplikate.
type ContainerGroupFunc func(c models.Container, dups []models.Container) error

// ScanPublications durchläuft die komplette Publikationstabelle.
func (s *Scanner) ScanPublications(ctx context.Context, fn PublicationGroupFunc) error {
	var lastID uint
	for {
		var page []models.Publication
		err := s.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&page).Error
		if err != nil {
			return fmt.Errorf("scan publications after %d: %w", lastID, err)
		}
		if len(page) == 0 {
			return nil
		}
		for i := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			dups, err := s.finder.PublicationDuplicates(ctx, &page[i])
			if err != nil {
				return err
			}
			if len(dups) == 0 {
				continue
			}
			if err := fn(page[i], dups); err != nil {
				return err
			}
		}
		lastID = page[len(page)-1].ID
		if len(page) < s.chunkSize {
			return nil
		}
	}
}

// ScanAuthors durchläuft die komplette Autorentabelle.
func (s *Scanner) ScanAuthors(ctx context.Context, fn AuthorGroupFunc) error {
	var lastID uint
	for {
		var page []models.Author
		err := s.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&page).Error
		if err != nil {
			return fmt.Errorf("scan authors after %d: %w", lastID, err)
		}
		if len(page) == 0 {
			return nil
		}
		for i := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			dups, err := s.finder.AuthorDuplicates(ctx, &page[i])
			if err != nil {
				return err
			}
			if len(dups) == 0 {
				continue
			}
			if err := fn(page[i], dups); err != nil {
				return err
			}
		}
		lastID = page[len(page)-1].ID
		if len(page) < s.chunkSize {
			return nil
		}
	}
}

// ScanContainers durchläuft die komplette Containertabelle.
func (s *Scanner) ScanContainers(ctx context.Context, fn ContainerGroupFunc) error {
	var lastID uint
	for {
		var page []models.Container
		err := s.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id").
			Limit(s.chunkSize).
			Find(&page).Error
		if err != nil {
			return fmt.Errorf("scan containers after %d: %w", lastID, err)
		}
		if len(page) == 0 {
			return nil
		}
		for i := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			dups, err := s.finder.ContainerDuplicates(ctx, &page[i])
			if err != nil {
				return err
			}
			if len(dups) == 0 {
				continue
			}
			if err := fn(page[i], dups); err != nil {
				return err
			}
		}
		lastID = page[len(page)-1].ID
		if len(page) < s.chunkSize {
			return nil
		}
	}
}
