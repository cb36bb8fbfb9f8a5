package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateFirstObservationWins(t *testing.T) {
	x := EmptyValue[string]()
	y := NewValue(SourceBibtexEntry, "Journal of Testing")

	x.Update(y)

	assert.True(t, x.HasValue())
	assert.Equal(t, "Journal of Testing", x.Value())
}

func TestUpdateKeepsOriginalAndArchivesConflict(t *testing.T) {
	x := NewValue(SourceBibtexEntry, "2001")
	y := NewValue(SourceCrossrefDOI, "2002")

	x.Update(y)

	assert.Equal(t, "2001", x.Value())

	var archived []string
	for _, obs := range x.History() {
		if obs.Source == SourceNormalized {
			archived = append(archived, obs.Value)
		}
	}
	assert.Equal(t, []string{"2002"}, archived)
}

func TestUpdateEqualValueDoesNotArchive(t *testing.T) {
	x := NewValue(SourceBibtexEntry, 1999)
	y := NewValue(SourceCrossrefDOI, 1999)

	x.Update(y)

	assert.Equal(t, 1999, x.Value())
	for _, obs := range x.History() {
		assert.NotEqual(t, SourceNormalized, obs.Source)
	}
}

// Doppeltes Einspielen derselben Quelle dedupliziert die Historie
// nicht; der Test dokumentiert das Verhalten statt es wegzuwünschen.
func TestUpdateReplayAppendsHistoryAgain(t *testing.T) {
	x := NewValue(SourceBibtexEntry, "10.1001/a")
	y := NewValue(SourceCrossrefDOI, "10.1001/b")

	x.Update(y)
	lenAfterFirst := len(x.History())
	x.Update(y)

	assert.Equal(t, "10.1001/a", x.Value())
	assert.Greater(t, len(x.History()), lenAfterFirst)
}

func TestUpdateWithEmptyOtherIsNoOp(t *testing.T) {
	x := NewValue(SourceBibtexEntry, 42)
	x.Update(EmptyValue[int]())

	assert.Equal(t, 42, x.Value())
	assert.Len(t, x.History(), 1)
}
