package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Müller", "MULLER"},
		{"van der Berg, Jan.", "VAN DER BERG JAN"},
		{"  Smith \n Bob ", "SMITH BOB"},
		{"{Garcia}", "GARCIA"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeName(c.in), "input %q", c.in)
	}
}

func TestSanitizeDOI(t *testing.T) {
	assert.Equal(t, "10.1001/a.B", SanitizeDOI(`{10.1001/a.B}`))
	assert.Equal(t, "10.1001/x", SanitizeDOI(` 10.1001/x `))
	// Groß-/Kleinschreibung bleibt erhalten
	assert.Equal(t, "10.1001/AbC", SanitizeDOI(`10.1001/AbC`))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Müller", SanitizeName(`{M\üller}`))
}

func TestLastNameAndInitials(t *testing.T) {
	assert.Equal(t, "SMITH BA", LastNameAndInitials("Smith, Bob Allen"))
	assert.Equal(t, "SMITH", LastNameAndInitials("Smith"))
	assert.Equal(t, "", LastNameAndInitials("  "))
}
