package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAuthorNormalizesAndArchivesOriginal(t *testing.T) {
	a := NewAuthor(SourceBibtexEntry, "Müller", "Jörg")

	assert.Equal(t, "MULLER", a.Family.Value())
	assert.Equal(t, "JORG", a.Given.Value())

	var originals []string
	for _, obs := range a.Family.History() {
		if obs.Source == SourceUnnormalized {
			originals = append(originals, obs.Value)
		}
	}
	assert.Equal(t, []string{"Müller"}, originals)
}

func TestFullName(t *testing.T) {
	a := NewAuthor(SourceBibtexEntry, "Smith", "Bob")
	assert.Equal(t, "SMITH, B", a.FullName())

	onlyFamily := NewAuthor(SourceBibtexEntry, "Smith", "")
	assert.Equal(t, "SMITH", onlyFamily.FullName())
}

func TestMatchesExactWinsAlone(t *testing.T) {
	self := NewAuthor(SourceBibtexEntry, "Smith", "Bob")
	candidates := []*Author{
		NewAuthor(SourceBibtexEntry, "Smithson", "Bob"),
		NewAuthor(SourceBibtexEntry, "Smith", "Bill"),
		NewAuthor(SourceBibtexEntry, "Smith", "Bob"),
	}

	// "SMITH, B" ist Teilstring aller drei, aber der erste exakte
	// Treffer gewinnt allein
	matched := self.Matches(candidates, 90)
	assert.Len(t, matched, 1)
	assert.Equal(t, "SMITH, B", candidates[matched[0]].FullName())
}

func TestMatchesBelowThresholdIsEmpty(t *testing.T) {
	self := NewAuthor(SourceBibtexEntry, "Smith", "Bob")
	candidates := []*Author{
		NewAuthor(SourceBibtexEntry, "Zimmermann", "Quentin"),
	}

	assert.Empty(t, self.Matches(candidates, 90))
}

func TestMatchesEmptyCandidateList(t *testing.T) {
	self := NewAuthor(SourceBibtexEntry, "Smith", "Bob")
	assert.Empty(t, self.Matches(nil, 90))
}

func TestAuthorUpdateFirstWins(t *testing.T) {
	a := NewAuthor(SourceBibtexEntry, "Smith", "")
	b := NewAuthor(SourceCrossrefDOI, "Smith", "Bob")

	a.Update(b)

	assert.Equal(t, "SMITH", a.Family.Value())
	assert.Equal(t, "BOB", a.Given.Value())
	assert.Len(t, a.History(), 2)
}
