package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantKind   Kind
		wantNormal string
	}{
		{"plain email", "maria@comunidad.pe", KindEmail, "maria@comunidad.pe"},
		{"email uppercased", "  Maria@Comunidad.PE ", KindEmail, "maria@comunidad.pe"},
		{"email with subdomain", "j.perez@minas.empresa.com", KindEmail, "j.perez@minas.empresa.com"},
		{"peru mobile", "987654321", KindPhone, "987654321"},
		{"mobile with spaces", " 987 654 321 ", KindPhone, "987654321"},
		{"mobile wrong prefix", "887654321", KindInvalid, ""},
		{"mobile too short", "98765432", KindInvalid, ""},
		{"mobile too long", "9876543210", KindInvalid, ""},
		{"empty", "", KindInvalid, ""},
		{"whitespace only", "   ", KindInvalid, ""},
		{"email missing domain dot", "maria@comunidad", KindInvalid, ""},
		{"email missing at", "maria.comunidad.pe", KindInvalid, ""},
		{"email with spaces inside", "ma ria@comunidad.pe", KindInvalid, ""},
		{"random text", "hola mundo", KindInvalid, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, kind := Classify(tt.input)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantNormal, normalized)
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	inputs := []string{" Maria@Comunidad.PE ", "987 654 321", "999888777"}
	for _, in := range inputs {
		first, kind := Classify(in)
		assert.NotEqual(t, KindInvalid, kind)

		second, kind2 := Classify(first)
		assert.Equal(t, kind, kind2)
		assert.Equal(t, first, second)
	}
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, IsValidCode("123456"))
	assert.True(t, IsValidCode("000000"))
	assert.False(t, IsValidCode("12345"))
	assert.False(t, IsValidCode("1234567"))
	assert.False(t, IsValidCode("12345a"))
	assert.False(t, IsValidCode(""))
	assert.False(t, IsValidCode(" 123456"))
}

func TestHashStableAndDistinct(t *testing.T) {
	a := Hash("maria@comunidad.pe")
	b := Hash("maria@comunidad.pe")
	c := Hash("987654321")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
