package merge

import (
	"errors"
)

// ValidationState ist der explizite Zustand eines Merge-Groups.
// Der Ablauf ist Unvalidated -> Valid -> Merged oder
// Unvalidated -> Invalid; Invalid ist nur per force überwindbar.
type ValidationState int

const (
	StateUnvalidated ValidationState = iota
	StateValid
	StateInvalid
	StateMerged
)

func (s ValidationState) String() string {
	switch s {
	case StateUnvalidated:
		return "UNVALIDATED"
	case StateValid:
		return "VALID"
	case StateInvalid:
		return "INVALID"
	case StateMerged:
		return "MERGED"
	}
	return "UNKNOWN"
}

// ErrNotValidated zeigt einen Aufrufer-Fehler an: Merge wurde ohne
// vorherigen IsValid-Aufruf gestartet. Das ist ein Programmierfehler,
// kein fachlicher Zustand, und nicht zum Abfangen und Wiederholen
// gedacht.
var ErrNotValidated = errors.New("merge group has not been validated")

// ErrAlreadyMerged zeigt an, dass dieselbe Gruppe ein zweites Mal
// gemergt werden sollte.
var ErrAlreadyMerged = errors.New("merge group has already been merged")

// ErrInvalidGroup zeigt an, dass die Validierung fehlgeschlagen ist und
// kein force gesetzt war. Der strukturierte Befund steckt im jeweiligen
// Report des Merge-Groups.
var ErrInvalidGroup = errors.New("merge group failed validation")

// guardMerge prüft die gemeinsame Vorbedingung aller Merge-Varianten.
func guardMerge(state ValidationState, force bool) error {
	switch state {
	case StateUnvalidated:
		return ErrNotValidated
	case StateMerged:
		return ErrAlreadyMerged
	case StateInvalid:
		if !force {
			return ErrInvalidGroup
		}
	}
	return nil
}
