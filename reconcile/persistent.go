package reconcile

// Source kennzeichnet, woher eine Beobachtung stammt.
type Source string

const (
	SourceBibtexFile     Source = "BIBTEX_FILE"
	SourceBibtexEntry    Source = "BIBTEX_ENTRY"
	SourceBibtexRef      Source = "BIBTEX_REF"
	SourceCrossrefDOI    Source = "CROSSREF_DOI"
	SourceCrossrefSearch Source = "CROSSREF_SEARCH"

	// SourceNormalized markiert einen Wert, der durch die Normalisierung
	// verändert wurde; SourceUnnormalized archiviert die Originalform.
	SourceNormalized   Source = "NORMALIZED"
	SourceUnnormalized Source = "UNNORMALIZED"
)

// Observation ist ein einzelner beobachteter Wert samt Herkunft.
type Observation[T comparable] struct {
	Source Source
	Value  T
}

// Persistent ist ein Skalarfeld mit vollständiger Provenance: der
// adoptierte Wert plus die geordnete Historie aller jemals beobachteten
// Alternativen. Die Historie ist append-only, es geht nie ein Wert
// verloren.
type Persistent[T comparable] struct {
	value   *T
	history []Observation[T]
}

// EmptyValue erstellt ein Feld ohne Wert und ohne Historie.
func EmptyValue[T comparable]() *Persistent[T] {
	return &Persistent[T]{}
}

// NewValue erstellt ein Feld mit einem ersten beobachteten Wert.
func NewValue[T comparable](src Source, v T) *Persistent[T] {
	return &Persistent[T]{
		value:   &v,
		history: []Observation[T]{{Source: src, Value: v}},
	}
}

// HasValue meldet, ob schon irgendeine Quelle einen Wert geliefert hat.
func (p *Persistent[T]) HasValue() bool {
	return p.value != nil
}

// Value gibt den adoptierten Wert zurück, bei leerem Feld den Nullwert.
func (p *Persistent[T]) Value() T {
	if p.value == nil {
		var zero T
		return zero
	}
	return *p.value
}

// History gibt die komplette Beobachtungshistorie zurück.
func (p *Persistent[T]) History() []Observation[T] {
	return p.history
}

// Archive hängt eine Beobachtung an die Historie an, ohne den Wert
// anzufassen.
func (p *Persistent[T]) Archive(src Source, v T) {
	p.history = append(p.history, Observation[T]{Source: src, Value: v})
}

// Update verschmilzt eine zweite Beobachtung desselben logischen Felds.
// Der erste nicht-leere Wert gewinnt; spätere abweichende Werte werden
// als NORMALIZED-Eintrag archiviert, nie stillschweigend verworfen.
// Mehrfaches Update mit derselben Quelle dedupliziert die Historie
// bewusst nicht.
func (p *Persistent[T]) Update(other *Persistent[T]) {
	if other == nil {
		return
	}
	if p.value == nil {
		if other.value != nil {
			v := *other.value
			p.value = &v
		}
	} else if other.value != nil && *other.value != *p.value {
		p.history = append(p.history, Observation[T]{Source: SourceNormalized, Value: *other.value})
	}
	p.history = append(p.history, other.history...)
}
