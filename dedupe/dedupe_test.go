package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"catalog-hand/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Author{}, &models.Container{}, &models.Publication{},
	))
	return db
}

func TestPublicationMergesetByDOI(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Publication{Title: "First", DOI: "10.1001/a"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "Second", DOI: "10.1001/a"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "Third", DOI: "10.1001/b"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "No DOI", DOI: ""}).Error)

	set, err := CreatePublicationMergesetByDOI(context.Background(), db)
	require.NoError(t, err)

	require.Len(t, set.Groups, 1)
	assert.Equal(t, []uint{1, 2}, set.Groups[0])
	assert.False(t, set.Empty())
}

func TestPublicationMergesetByTitlesIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Publication{Title: "Agent Based Models"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "AGENT BASED MODELS"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "Something Else"}).Error)

	set, err := CreatePublicationMergesetByTitles(context.Background(), db)
	require.NoError(t, err)

	require.Len(t, set.Groups, 1)
	assert.Equal(t, []uint{1, 2}, set.Groups[0])
}

func TestContainerMergesetByISSNIgnoresEmpty(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Container{Name: "A", ISSN: "1111-1111"}).Error)
	require.NoError(t, db.Create(&models.Container{Name: "B", ISSN: "1111-1111"}).Error)
	require.NoError(t, db.Create(&models.Container{Name: "C", ISSN: ""}).Error)
	require.NoError(t, db.Create(&models.Container{Name: "D", ISSN: ""}).Error)

	set, err := CreateContainerMergesetByISSN(context.Background(), db)
	require.NoError(t, err)

	require.Len(t, set.Groups, 1)
	assert.Equal(t, []uint{1, 2}, set.Groups[0])
}

func TestAuthorMergesetByName(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Author{FamilyName: "SMITH", GivenName: "BOB"}).Error)
	require.NoError(t, db.Create(&models.Author{FamilyName: "SMITH", GivenName: "BOB"}).Error)
	require.NoError(t, db.Create(&models.Author{FamilyName: "SMITH", GivenName: "ROB"}).Error)

	set, err := CreateAuthorMergesetByName(context.Background(), db)
	require.NoError(t, err)

	require.Len(t, set.Groups, 1)
	assert.Equal(t, []uint{1, 2}, set.Groups[0])
}

func TestDirectFinderPublicationDuplicates(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Publication{Title: "A", DOI: "10.1/x"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "B", DOI: "10.1/x"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "C", ISI: "WOS:1"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "D", ISI: "WOS:1"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "Same", DatePublishedText: "2001"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "SAME", DatePublishedText: "2001"}).Error)

	finder := NewDirectFinder(db)

	var p models.Publication
	require.NoError(t, db.First(&p, 1).Error)
	dups, err := finder.PublicationDuplicates(context.Background(), &p)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, uint(2), dups[0].ID)

	require.NoError(t, db.First(&p, 3).Error)
	dups, err = finder.PublicationDuplicates(context.Background(), &p)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, uint(4), dups[0].ID)

	require.NoError(t, db.First(&p, 5).Error)
	dups, err = finder.PublicationDuplicates(context.Background(), &p)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, uint(6), dups[0].ID)
}

func TestDirectFinderEmptyIdentifiersNeverMatch(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Publication{Title: "A"}).Error)
	require.NoError(t, db.Create(&models.Publication{Title: "B"}).Error)

	finder := NewDirectFinder(db)
	var p models.Publication
	require.NoError(t, db.First(&p, 1).Error)

	dups, err := finder.PublicationDuplicates(context.Background(), &p)
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestIndexFinderContainerByNameOrISSN(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Container{Name: "Ecology Letters", ISSN: "1111-1111"}).Error)
	require.NoError(t, db.Create(&models.Container{Name: "Ecology Letters", ISSN: ""}).Error)
	require.NoError(t, db.Create(&models.Container{Name: "Other Journal", ISSN: "1111-1111"}).Error)
	require.NoError(t, db.Create(&models.Container{Name: "Unrelated", ISSN: "9999-9999"}).Error)

	finder := NewIndexFinder(db)
	var c models.Container
	require.NoError(t, db.First(&c, 1).Error)

	dups, err := finder.ContainerDuplicates(context.Background(), &c)
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, uint(2), dups[0].ID)
	assert.Equal(t, uint(3), dups[1].ID)
}

// scriptedFinder liefert vorbereitete Duplikate, um das Paging des
// Scanners unabhängig von SQL zu prüfen.
type scriptedFinder struct {
	pubDups map[uint][]models.Publication
}

func (f *scriptedFinder) PublicationDuplicates(ctx context.Context, p *models.Publication) ([]models.Publication, error) {
	return f.pubDups[p.ID], nil
}

func (f *scriptedFinder) AuthorDuplicates(ctx context.Context, a *models.Author) ([]models.Author, error) {
	return nil, nil
}

func (f *scriptedFinder) ContainerDuplicates(ctx context.Context, c *models.Container) ([]models.Container, error) {
	return nil, nil
}

func TestScannerPagesWithWatermark(t *testing.T) {
	db := newTestDB(t)
	for _, title := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, db.Create(&models.Publication{Title: title}).Error)
	}

	finder := &scriptedFinder{pubDups: map[uint][]models.Publication{
		2: {{ID: 4}},
		5: {{ID: 1}},
	}}
	scanner := NewScanner(db, finder, 2, zap.NewNop())

	var visited []uint
	var groups int
	err := scanner.ScanPublications(context.Background(), func(p models.Publication, dups []models.Publication) error {
		groups++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, groups)

	// Jede ID genau einmal, auch über die letzte Teilseite hinweg
	visited = nil
	all := &scriptedFinder{pubDups: map[uint][]models.Publication{
		1: {{ID: 2}}, 2: {{ID: 1}}, 3: {{ID: 1}}, 4: {{ID: 1}}, 5: {{ID: 1}},
	}}
	scanner = NewScanner(db, all, 2, zap.NewNop())
	err = scanner.ScanPublications(context.Background(), func(p models.Publication, dups []models.Publication) error {
		visited = append(visited, p.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3, 4, 5}, visited)
}

func TestScannerEmptyTable(t *testing.T) {
	db := newTestDB(t)
	scanner := NewScanner(db, NewDirectFinder(db), 10, zap.NewNop())
	err := scanner.ScanPublications(context.Background(), func(p models.Publication, dups []models.Publication) error {
		t.Fatal("callback must not run on empty table")
		return nil
	})
	require.NoError(t, err)
}
