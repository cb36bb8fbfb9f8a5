package dedupe

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"catalog-hand/models"
)

// MergeSet ist das Ergebnis einer Grobsuche über eine komplette
// Tabelle: je Gruppe die IDs aller Datensätze, die denselben
// Duplikat-Schlüssel teilen. Die Gruppen sind reine Kandidaten, die
// Merge-Schicht validiert sie vor der Ausführung.
type MergeSet struct {
	Table  string
	Groups [][]uint
}

// Empty meldet, ob die Suche keine Gruppe ergeben hat.
func (m MergeSet) Empty() bool {
	return len(m.Groups) == 0
}

func groupedIDs(ctx context.Context, db *gorm.DB, model any, keyExpr string, nonEmpty string) ([][]uint, error) {
	var keys []string
	q := db.WithContext(ctx).Model(model).Select(keyExpr)
	if nonEmpty != "" {
		q = q.Where(nonEmpty)
	}
	err := q.Group(keyExpr).
		Having("count(*) > 1").
		Order(keyExpr).
		Pluck(keyExpr, &keys).Error
	if err != nil {
		return nil, err
	}

	groups := make([][]uint, 0, len(keys))
	for _, key := range keys {
		var ids []uint
		err := db.WithContext(ctx).Model(model).
			Where(fmt.Sprintf("%s = ?", keyExpr), key).
			Order("id").
			Pluck("id", &ids).Error
		if err != nil {
			return nil, err
		}
		if len(ids) > 1 {
			groups = append(groups, ids)
		}
	}
	return groups, nil
}

// CreatePublicationMergesetByDOI gruppiert Publikationen mit identischer
// nicht-leerer DOI.
func CreatePublicationMergesetByDOI(ctx context.Context, db *gorm.DB) (MergeSet, error) {
	groups, err := groupedIDs(ctx, db, &models.Publication{}, "doi", "doi <> ''")
	if err != nil {
		return MergeSet{}, fmt.Errorf("mergeset by doi: %w", err)
	}
	return MergeSet{Table: models.Publication{}.TableName(), Groups: groups}, nil
}

// CreatePublicationMergesetByTitles gruppiert Publikationen mit
// identischem Titel (case-insensitiv).
func CreatePublicationMergesetByTitles(ctx context.Context, db *gorm.DB) (MergeSet, error) {
	groups, err := groupedIDs(ctx, db, &models.Publication{}, "lower(title)", "title <> ''")
	if err != nil {
		return MergeSet{}, fmt.Errorf("mergeset by titles: %w", err)
	}
	return MergeSet{Table: models.Publication{}.TableName(), Groups: groups}, nil
}

// CreateContainerMergesetByISSN gruppiert Container mit identischer
// nicht-leerer ISSN.
func CreateContainerMergesetByISSN(ctx context.Context, db *gorm.DB) (MergeSet, error) {
	groups, err := groupedIDs(ctx, db, &models.Container{}, "issn", "issn <> ''")
	if err != nil {
		return MergeSet{}, fmt.Errorf("mergeset by issn: %w", err)
	}
	return MergeSet{Table: models.Container{}.TableName(), Groups: groups}, nil
}

// CreateAuthorMergesetByName gruppiert Autoren mit identischem
// (Familienname, Vorname)-Paar.
func CreateAuthorMergesetByName(ctx context.Context, db *gorm.DB) (MergeSet, error) {
	var keys []struct {
		FamilyName string
		GivenName  string
	}
	err := db.WithContext(ctx).Model(&models.Author{}).
		Select("family_name, given_name").
		Where("family_name <> ''").
		Group("family_name, given_name").
		Having("count(*) > 1").
		Order("family_name, given_name").
		Find(&keys).Error
	if err != nil {
		return MergeSet{}, fmt.Errorf("mergeset by name: %w", err)
	}

	groups := make([][]uint, 0, len(keys))
	for _, key := range keys {
		var ids []uint
		err := db.WithContext(ctx).Model(&models.Author{}).
			Where("family_name = ? AND given_name = ?", key.FamilyName, key.GivenName).
			Order("id").
			Pluck("id", &ids).Error
		if err != nil {
			return MergeSet{}, fmt.Errorf("mergeset by name: %w", err)
		}
		if len(ids) > 1 {
			groups = append(groups, ids)
		}
	}
	return MergeSet{Table: models.Author{}.TableName(), Groups: groups}, nil
}
