package services

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
	"catalog-hand/reconcile"
	"catalog-hand/storage"
)

func newIngestStore(t *testing.T) (*storage.Store, *gorm.DB) {
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
		&models.PublicationAuthors{}, &models.Raw{}, &models.RawAuthors{},
		&models.AuditCommand{}, &models.AuditLog{},
	))
	return storage.New(db, zap.NewNop()), db
}

func bibtexEntry(fields map[string]string) Entry {
	return Entry{Source: reconcile.SourceBibtexEntry, Fields: fields, IsPrimary: true}
}

func TestSessionAddMergesByDOI(t *testing.T) {
	session := NewSession(90, zap.NewNop())

	first, _, err := session.Add(bibtexEntry(map[string]string{
		"title": "Agent Based Models",
		"doi":   "10.1/x",
	}))
	require.NoError(t, err)

	second, _, err := session.Add(bibtexEntry(map[string]string{
		"title":    "Agent Based Models of Everything",
		"doi":      "10.1/x",
		"abstract": "Text",
	}))
	require.NoError(t, err)

	assert.Same(t, first, second)
	require.Len(t, session.Publications(), 1)
	// first-wins beim Titel, Lücke wird gefüllt
	assert.Equal(t, "Agent Based Models", first.Title.Value())
	assert.Equal(t, "Text", first.Abstract.Value())
}

func TestSessionAddMergesUniqueTitleMatch(t *testing.T) {
	session := NewSession(90, zap.NewNop())

	first, _, err := session.Add(bibtexEntry(map[string]string{
		"title": "Agent Based Models",
		"year":  "2001",
	}))
	require.NoError(t, err)

	second, _, err := session.Add(bibtexEntry(map[string]string{
		"title": "Agent Based Models",
		"year":  "2001",
		"doi":   "10.1/x",
	}))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "10.1/x", first.DOI.Value())
}

func TestSessionAddKeepsDistinctWorksSeparate(t *testing.T) {
	session := NewSession(90, zap.NewNop())

	_, _, err := session.Add(bibtexEntry(map[string]string{
		"title": "Agent Based Models",
		"year":  "2001",
	}))
	require.NoError(t, err)

	_, _, err = session.Add(bibtexEntry(map[string]string{
		"title": "Agent Based Models",
		"year":  "2002",
	}))
	require.NoError(t, err)

	assert.Len(t, session.Publications(), 2)
}

func TestSessionAddRejectsBadYear(t *testing.T) {
	session := NewSession(90, zap.NewNop())

	_, _, err := session.Add(bibtexEntry(map[string]string{
		"title": "Broken",
		"year":  "20001",
	}))
	require.Error(t, err)
	var oor reconcile.ErrYearOutOfRange
	assert.ErrorAs(t, err, &oor)
	assert.Empty(t, session.Publications())
}

func TestSessionAddReportsUnplacedFields(t *testing.T) {
	session := NewSession(90, zap.NewNop())

	_, unplaced, err := session.Add(bibtexEntry(map[string]string{
		"title":     "A Study",
		"publisher": "Springer",
		"volume":    "12",
		"year":      "no year",
	}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"publisher", "volume", "year"}, unplaced)
}

func TestSessionAddReferenceKeysByNormalizedString(t *testing.T) {
	session := NewSession(90, zap.NewNop())

	first, _, err := session.AddReference("Smith, B. (2001) Some Work.", Entry{
		Source: reconcile.SourceBibtexRef,
		Fields: map[string]string{"title": "Some Work"},
	})
	require.NoError(t, err)
	assert.False(t, first.IsPrimary)

	// Gleicher String bis auf Interpunktion und Groß/Klein
	second, _, err := session.AddReference("smith b (2001) some work", Entry{
		Source: reconcile.SourceBibtexRef,
		Fields: map[string]string{"title": "Some Work", "doi": "10.1/ref"},
	})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, session.Publications(), 1)
	assert.Equal(t, "10.1/ref", first.DOI.Value())
}

func TestSessionAddReferenceNeverCreatesPrimary(t *testing.T) {
	session := NewSession(90, zap.NewNop())

	candidate, _, err := session.AddReference("ref-1", Entry{
		Source:    reconcile.SourceBibtexRef,
		Fields:    map[string]string{"title": "Referenced Work"},
		IsPrimary: true,
	})
	require.NoError(t, err)
	assert.False(t, candidate.IsPrimary)
}

func TestParseAuthors(t *testing.T) {
	authors := parseAuthors(reconcile.SourceBibtexEntry, "Doe, Jane and John Q Public and Roe")
	require.Len(t, authors, 3)
	assert.Equal(t, "DOE", authors[0].Family.Value())
	assert.Equal(t, "JANE", authors[0].Given.Value())
	assert.Equal(t, "PUBLIC", authors[1].Family.Value())
	assert.Equal(t, "JOHN Q", authors[1].Given.Value())
	assert.Equal(t, "ROE", authors[2].Family.Value())
	assert.False(t, authors[2].Given.HasValue())
}

// scriptedSource liefert vorbereitete Einträge, um Run unabhängig von
// einem echten Parser zu prüfen.
type scriptedSource struct {
	name    string
	entries []Entry
}

func (s *scriptedSource) Entries(ctx context.Context) ([]Entry, error) { return s.entries, nil }
func (s *scriptedSource) Name() string                                 { return s.name }

func TestSessionRunSkipsRejectedEntries(t *testing.T) {
	session := NewSession(90, zap.NewNop())
	src := &scriptedSource{name: "test", entries: []Entry{
		bibtexEntry(map[string]string{"title": "Good", "year": "2001"}),
		bibtexEntry(map[string]string{"title": "Bad", "year": "20001"}),
		bibtexEntry(map[string]string{"title": "Also Good", "year": "2002"}),
	}}

	require.NoError(t, session.Run(context.Background(), src))
	assert.Len(t, session.Publications(), 2)
}

func TestSessionPersistRoundTrip(t *testing.T) {
	store, db := newIngestStore(t)
	session := NewSession(90, zap.NewNop())

	_, _, err := session.Add(bibtexEntry(map[string]string{
		"title":   "Agent Based Models",
		"year":    "2001",
		"doi":     "10.1/x",
		"journal": "Ecology Letters",
		"author":  "Doe, Jane and Roe, Richard",
	}))
	require.NoError(t, err)
	_, _, err = session.Add(bibtexEntry(map[string]string{
		"title":   "Another Study",
		"year":    "2003",
		"journal": "Ecology Letters",
		"author":  "Doe, Jane",
	}))
	require.NoError(t, err)

	require.NoError(t, session.Persist(context.Background(), store, "tester"))

	var pubs []models.Publication
	require.NoError(t, db.Order("id").Find(&pubs).Error)
	require.Len(t, pubs, 2)
	assert.Equal(t, "Agent Based Models", pubs[0].Title)
	assert.Equal(t, "2001", pubs[0].DatePublishedText)
	assert.Equal(t, "10.1/x", pubs[0].DOI)
	assert.True(t, pubs[0].IsPrimary)
	assert.Equal(t, models.StatusUntagged, pubs[0].Status)

	// Container wird über beide Publikationen wiederverwendet
	var containers int64
	db.Model(&models.Container{}).Count(&containers)
	assert.Equal(t, int64(1), containers)
	require.NotNil(t, pubs[0].ContainerID)
	require.NotNil(t, pubs[1].ContainerID)
	assert.Equal(t, *pubs[0].ContainerID, *pubs[1].ContainerID)

	// DOE JANE existiert genau einmal, verlinkt mit beiden Werken
	var authors int64
	db.Model(&models.Author{}).Count(&authors)
	assert.Equal(t, int64(2), authors)
	var doe models.Author
	require.NoError(t, db.Where("family_name = ?", "DOE").First(&doe).Error)
	var links int64
	db.Model(&models.PublicationAuthors{}).Where("author_id = ?", doe.ID).Count(&links)
	assert.Equal(t, int64(2), links)

	// Jede Publikation hat ihre Rohbeobachtung samt Autoren-Links
	var raws []models.Raw
	require.NoError(t, db.Order("id").Find(&raws).Error)
	require.Len(t, raws, 2)
	assert.Equal(t, pubs[0].ID, raws[0].PublicationID)
	var rawLinks int64
	db.Model(&models.RawAuthors{}).Where("raw_id = ?", raws[0].ID).Count(&rawLinks)
	assert.Equal(t, int64(2), rawLinks)

	// Genau ein LOAD-Command für den ganzen Lauf
	var cmds []models.AuditCommand
	require.NoError(t, db.Find(&cmds).Error)
	require.Len(t, cmds, 1)
	assert.Equal(t, models.ActionLoad, cmds[0].Action)

	var logCount int64
	db.Model(&models.AuditLog{}).Where("audit_command_id = ?", cmds[0].ID).Count(&logCount)
	assert.NotZero(t, logCount)
}
