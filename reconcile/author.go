package reconcile

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// exactScore ist der Partial-Ratio-Wert für eine eindeutige
// Übereinstimmung.
const exactScore = 100

// Author ist eine noch nicht persistierte Autoren-Beobachtung.
// Familien- und Vorname liegen immer normalisiert vor, die Originalform
// steckt bei Abweichung in der Historie des jeweiligen Felds.
type Author struct {
	Family *Persistent[string]
	Given  *Persistent[string]

	history []Source
}

// NewAuthor erstellt einen Kandidaten aus Rohnamen einer Quelle.
// Weicht die normalisierte Form vom Original ab, wird das Original als
// UNNORMALIZED archiviert.
func NewAuthor(src Source, family, given string) *Author {
	a := &Author{
		Family:  normalizedValue(src, family),
		Given:   normalizedValue(src, given),
		history: []Source{src},
	}
	return a
}

func normalizedValue(src Source, raw string) *Persistent[string] {
	normalized := NormalizeName(SanitizeName(raw))
	if normalized == "" {
		return EmptyValue[string]()
	}
	p := NewValue(src, normalized)
	if normalized != raw {
		p.Archive(SourceUnnormalized, raw)
	}
	return p
}

// History gibt die Quellen zurück, aus denen dieser Kandidat
// zusammengesetzt wurde.
func (a *Author) History() []Source {
	return a.history
}

// FullName ist der Identitätsschlüssel für das Matching:
// "FAMILIE, V" (Familienname plus Vornamen-Initial, falls vorhanden).
func (a *Author) FullName() string {
	family := a.Family.Value()
	given := a.Given.Value()
	if given == "" {
		return family
	}
	return family + ", " + string([]rune(given)[0])
}

// Matches vergleicht den Kandidaten per Partial-Ratio gegen eine Liste
// anderer Kandidaten. Erreicht ein Kandidat exakt 100, gewinnt allein
// der erste solche Index. Sonst kommen alle Indizes ab threshold in die
// Ergebnismenge. Eine leere oder mehrdeutige Menge bedeutet: nicht
// automatisch zusammenführen, sondern als neuen Autor anhängen.
func (a *Author) Matches(candidates []*Author, threshold int) []int {
	name := a.FullName()
	var matched []int
	for i, c := range candidates {
		score := fuzzy.PartialRatio(name, c.FullName())
		if score == exactScore {
			return []int{i}
		}
		if score >= threshold {
			matched = append(matched, i)
		}
	}
	return matched
}

// matchesAny meldet, ob mindestens ein Kandidat den Schwellwert erreicht.
func (a *Author) matchesAny(candidates []*Author, threshold int) bool {
	name := a.FullName()
	for _, c := range candidates {
		if fuzzy.PartialRatio(name, c.FullName()) >= threshold {
			return true
		}
	}
	return false
}

// Update verschmilzt eine zweite Beobachtung desselben Autors.
// Feldweise first-wins, Quellen-Historien werden zusammengeführt.
func (a *Author) Update(other *Author) {
	a.Family.Update(other.Family)
	a.Given.Update(other.Given)
	a.history = append(a.history, other.history...)
}
