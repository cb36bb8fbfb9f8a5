package reconcile

import (
	"fmt"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Jahreszahlen außerhalb dieses offenen Intervalls sind Parser-Müll
// (vertauschte Felder, Seitenzahlen) und werden bei der Konstruktion
// abgewiesen.
const (
	yearMin = 1000
	yearMax = 2050
)

// ErrYearOutOfRange wird von NewPublication zurückgegeben, wenn das
// Publikationsjahr außerhalb von (1000, 2050) liegt.
type ErrYearOutOfRange struct {
	Year int
}

func (e ErrYearOutOfRange) Error() string {
	return fmt.Sprintf("publication year %d outside (%d, %d)", e.Year, yearMin, yearMax)
}

// PublicationFields sind die Rohfelder einer Publikations-Beobachtung.
// Nullwerte gelten als "nicht beobachtet".
type PublicationFields struct {
	Year          int
	Title         string
	DOI           string
	ContainerName string
	ContainerType string
	Abstract      string
	Authors       []*Author
	Citations     []*Publication
	IsPrimary     bool
}

// Publication ist eine noch nicht persistierte, in Reconciliation
// befindliche Publikations-Beobachtung.
//
// IsPrimary unterscheidet direkt ingestierte Werke von Werken, die nur
// über die Referenzliste eines anderen Werks bekannt sind.
type Publication struct {
	Authors   []*Author
	Year      *Persistent[int]
	Title     *Persistent[string]
	DOI       *Persistent[string]
	Container *Persistent[string]
	Type      *Persistent[string]
	Abstract  *Persistent[string]
	Citations []*Publication
	IsPrimary bool

	history []Source
}

// NewPublication erstellt einen Kandidaten aus Rohfeldern einer Quelle.
// Ein Jahr außerhalb des gültigen Bereichs führt zum Fehler, der
// Aufrufer erhält nie einen halb gebauten Kandidaten.
func NewPublication(src Source, f PublicationFields) (*Publication, error) {
	if f.Year != 0 && (f.Year <= yearMin || f.Year >= yearMax) {
		return nil, ErrYearOutOfRange{Year: f.Year}
	}
	p := &Publication{
		Authors:   f.Authors,
		Year:      EmptyValue[int](),
		Title:     EmptyValue[string](),
		DOI:       EmptyValue[string](),
		Container: EmptyValue[string](),
		Type:      EmptyValue[string](),
		Abstract:  EmptyValue[string](),
		Citations: f.Citations,
		IsPrimary: f.IsPrimary,
		history:   []Source{src},
	}
	if f.Year != 0 {
		p.Year = NewValue(src, f.Year)
	}
	if f.Title != "" {
		p.Title = NewValue(src, f.Title)
	}
	if doi := SanitizeDOI(f.DOI); doi != "" {
		p.DOI = NewValue(src, doi)
		if doi != f.DOI {
			p.DOI.Archive(SourceUnnormalized, f.DOI)
		}
	}
	if f.ContainerName != "" {
		p.Container = NewValue(src, f.ContainerName)
	}
	if f.ContainerType != "" {
		p.Type = NewValue(src, f.ContainerType)
	}
	if f.Abstract != "" {
		p.Abstract = NewValue(src, f.Abstract)
	}
	return p, nil
}

// History gibt die Quellen zurück, aus denen dieser Kandidat
// zusammengesetzt wurde.
func (p *Publication) History() []Source {
	return p.history
}

// Matches schneidet drei unabhängige Filter übereinander, jeder engt
// die Kandidatenmenge nur ein:
//
//  1. Jahr: ist das eigene Jahr bekannt, überleben nur Kandidaten mit
//     exakt gleichem Jahr.
//  2. Titel: exakt 100 Punkte Partial-Ratio gewinnt sofort als
//     Singleton, sonst überleben Kandidaten ab threshold.
//  3. Autoren: jeder eigene Autor muss in einem Kandidaten mindestens
//     einen Treffer haben (alle, nicht die Mehrheit).
//
// Ein einelementiges Ergebnis heißt "sicher identifiziert"; leer oder
// mehrdeutig heißt, der Aufrufer legt einen neuen Datensatz an.
func (p *Publication) Matches(candidates []*Publication, threshold int) []int {
	surviving := make(map[int]bool, len(candidates))
	for i := range candidates {
		surviving[i] = true
	}

	if p.Year.HasValue() {
		for i, c := range candidates {
			if !c.Year.HasValue() || c.Year.Value() != p.Year.Value() {
				delete(surviving, i)
			}
		}
	}

	if p.Title.HasValue() {
		title := p.Title.Value()
		for i, c := range candidates {
			if !surviving[i] {
				continue
			}
			score := fuzzy.PartialRatio(title, c.Title.Value())
			if score == exactScore {
				return []int{i}
			}
			if score < threshold {
				delete(surviving, i)
			}
		}
	}

	for i := range candidates {
		if !surviving[i] {
			continue
		}
		for _, a := range p.Authors {
			if !a.matchesAny(candidates[i].Authors, threshold) {
				delete(surviving, i)
				break
			}
		}
	}

	matched := make([]int, 0, len(surviving))
	for i := range candidates {
		if surviving[i] {
			matched = append(matched, i)
		}
	}
	return matched
}

// Update verschmilzt eine zweite Beobachtung derselben Publikation.
// Skalarfelder first-wins; Autoren werden einzeln gematcht und bei
// eindeutigem Treffer verschmolzen, sonst angehängt. Trifft eine
// primäre Beobachtung auf einen sekundären Kandidaten, wird der
// Kandidat primär und übernimmt die Zitatliste der primären
// Beobachtung komplett (Zitate werden ersetzt, nie vermischt).
func (p *Publication) Update(other *Publication, threshold int) {
	if !p.IsPrimary && other.IsPrimary {
		p.IsPrimary = true
		p.Citations = other.Citations
	}
	p.Year.Update(other.Year)
	p.Title.Update(other.Title)
	p.DOI.Update(other.DOI)
	p.Container.Update(other.Container)
	p.Type.Update(other.Type)
	p.Abstract.Update(other.Abstract)
	p.updateAuthors(other.Authors, threshold)
	p.history = append(p.history, other.history...)
}

func (p *Publication) updateAuthors(others []*Author, threshold int) {
	for _, other := range others {
		matched := other.Matches(p.Authors, threshold)
		if len(matched) == 1 {
			p.Authors[matched[0]].Update(other)
			continue
		}
		// Leer oder mehrdeutig: lieber ein Autor zu viel als zwei
		// Personen in einem Datensatz.
		p.Authors = append(p.Authors, other)
	}
}
