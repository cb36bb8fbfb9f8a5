package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPublication(t *testing.T, f PublicationFields) *Publication {
	t.Helper()
	p, err := NewPublication(SourceBibtexEntry, f)
	require.NoError(t, err)
	return p
}

func TestNewPublicationRejectsBadYear(t *testing.T) {
	for _, year := range []int{999, 1000, 2050, 3000} {
		_, err := NewPublication(SourceBibtexEntry, PublicationFields{Year: year})
		assert.Error(t, err, "year %d", year)
		var oor ErrYearOutOfRange
		assert.ErrorAs(t, err, &oor)
	}
}

func TestNewPublicationAcceptsValidYear(t *testing.T) {
	p := mustPublication(t, PublicationFields{Year: 2001, Title: "A Study"})
	assert.Equal(t, 2001, p.Year.Value())

	// Jahr 0 heißt "nicht beobachtet"
	unknown := mustPublication(t, PublicationFields{Title: "No Year"})
	assert.False(t, unknown.Year.HasValue())
}

func TestMatchesYearFilter(t *testing.T) {
	self := mustPublication(t, PublicationFields{Year: 2001, Title: "Agent Based Models"})
	sameYear := mustPublication(t, PublicationFields{Year: 2001, Title: "Agent Based Models"})
	otherYear := mustPublication(t, PublicationFields{Year: 2002, Title: "Agent Based Models"})

	matched := self.Matches([]*Publication{otherYear, sameYear}, 90)
	require.Len(t, matched, 1)
	assert.Equal(t, 1, matched[0])
}

func TestMatchesTitleExactShortCircuits(t *testing.T) {
	self := mustPublication(t, PublicationFields{Title: "Exact Title"})
	near := mustPublication(t, PublicationFields{Title: "Exact Titel"})
	exact := mustPublication(t, PublicationFields{Title: "Exact Title"})

	matched := self.Matches([]*Publication{near, exact}, 90)
	require.Len(t, matched, 1)
	assert.Equal(t, 1, matched[0])
}

func TestMatchesAllAuthorsMustMatch(t *testing.T) {
	// Titel nah, aber nicht exakt: der Autorenfilter muss entscheiden
	self := mustPublication(t, PublicationFields{
		Title: "Shared Title",
		Authors: []*Author{
			NewAuthor(SourceBibtexEntry, "Smith", "Bob"),
			NewAuthor(SourceBibtexEntry, "Zimmermann", "Quentin"),
		},
	})
	candidate := mustPublication(t, PublicationFields{
		Title: "Shared Titel",
		Authors: []*Author{
			NewAuthor(SourceBibtexEntry, "Smith", "Bob"),
		},
	})

	// Zimmermann fehlt im Kandidaten, also kein Treffer trotz Titel
	assert.Empty(t, self.Matches([]*Publication{candidate}, 90))
}

func TestUpdatePrimaryUpgradeReplacesCitations(t *testing.T) {
	oldCitation := mustPublication(t, PublicationFields{Title: "Old Ref"})
	secondary := mustPublication(t, PublicationFields{
		Title:     "The Work",
		Citations: []*Publication{oldCitation},
	})

	newCitation := mustPublication(t, PublicationFields{Title: "New Ref"})
	primary, err := NewPublication(SourceCrossrefDOI, PublicationFields{
		Title:     "The Work",
		IsPrimary: true,
		Citations: []*Publication{newCitation},
	})
	require.NoError(t, err)

	secondary.Update(primary, 90)

	assert.True(t, secondary.IsPrimary)
	require.Len(t, secondary.Citations, 1)
	assert.Equal(t, "New Ref", secondary.Citations[0].Title.Value())
}

func TestUpdateScalarFirstWins(t *testing.T) {
	a := mustPublication(t, PublicationFields{Title: "T", DOI: "10.1/a"})
	b := mustPublication(t, PublicationFields{Title: "T", DOI: "10.1/b", Abstract: "Text"})

	a.Update(b, 90)

	assert.Equal(t, "10.1/a", a.DOI.Value())
	assert.Equal(t, "Text", a.Abstract.Value())
}

func TestUpdateAuthorsMergesUniqueAndAppendsAmbiguous(t *testing.T) {
	a := mustPublication(t, PublicationFields{
		Title: "T",
		Authors: []*Author{
			NewAuthor(SourceBibtexEntry, "Smith", "Bob"),
		},
	})
	b := mustPublication(t, PublicationFields{
		Title: "T",
		Authors: []*Author{
			NewAuthor(SourceCrossrefDOI, "Smith", "Bob"),
			NewAuthor(SourceCrossrefDOI, "Zimmermann", "Quentin"),
		},
	})

	a.Update(b, 90)

	require.Len(t, a.Authors, 2)
	assert.Equal(t, "SMITH", a.Authors[0].Family.Value())
	assert.Equal(t, "ZIMMERMANN", a.Authors[1].Family.Value())
}
