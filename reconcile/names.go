package reconcile

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	lineBreakRE = regexp.MustCompile(`[\n\r]+`)
	namePunctRE = regexp.MustCompile(`[.,{}]`)
	doiJunkRE   = regexp.MustCompile(`[{}\\]`)
	spacesRE    = regexp.MustCompile(`\s+`)
)

// stripDiacritics zerlegt in NFD, entfernt kombinierende Zeichen und
// setzt wieder zu NFC zusammen ("Müller" wird zu "Muller").
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName bringt einen Personen- oder Containernamen in die
// kanonische Vergleichsform: Großbuchstaben, keine Diakritika, keine
// Zeilenumbrüche, ohne Punkte, Kommata und geschweifte Klammern.
// Die Originalform geht nicht verloren, sie wandert beim Aufrufer in
// die Provenance-Historie.
func NormalizeName(name string) string {
	s := strings.ToUpper(name)
	s = lineBreakRE.ReplaceAllString(s, " ")
	s = namePunctRE.ReplaceAllString(s, "")
	s = stripDiacritics(s)
	s = spacesRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SanitizeName entfernt BibTeX-Reste (geschweifte Klammern, Backslashes)
// aus einem Namen, ohne die Schreibweise selbst anzutasten.
func SanitizeName(name string) string {
	return strings.TrimSpace(doiJunkRE.ReplaceAllString(name, ""))
}

// SanitizeDOI entfernt BibTeX-Reste aus einer DOI. DOIs werden nie
// normalisiert (Groß-/Kleinschreibung bleibt), nur bereinigt.
func SanitizeDOI(doi string) string {
	return strings.TrimSpace(doiJunkRE.ReplaceAllString(doi, ""))
}

// LastNameAndInitials bildet aus einem vollen Namen die Kurzform
// "FAMILIE AB": erster Namensbestandteil komplett, alle weiteren nur
// als Initialen.
func LastNameAndInitials(name string) string {
	parts := strings.Fields(NormalizeName(name))
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	var initials strings.Builder
	for _, p := range parts[1:] {
		initials.WriteRune([]rune(p)[0])
	}
	return parts[0] + " " + initials.String()
}
