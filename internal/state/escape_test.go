// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeKeyTable(t *testing.T) {
	tests := []struct {
		raw     string
		encoded string
	}{
		{"a b", `a\sb`},
		{"c=d", `c\ed`},
		{"[e]", `\oe\c`},
		{`\f`, `\\f`},
		{"plain.key", "plain.key"},
		{"", ""},
		{`  `, `\s\s`},
		{`\`, `\\`},
		{"mix =[]\\", `mix\s\e\o\c\\`},
		{"unicode käse", `unicode\skäse`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.encoded, EscapeKey(tt.raw), "encode %q", tt.raw)
		assert.Equal(t, tt.raw, UnescapeKey(tt.encoded), "decode %q", tt.encoded)
	}
}

func TestUnescapeUnknownSequencePassesThrough(t *testing.T) {
	assert.Equal(t, `\x`, UnescapeKey(`\x`))
	assert.Equal(t, `a\zb`, UnescapeKey(`a\zb`))
}

func TestUnescapeTrailingEscape(t *testing.T) {
	assert.Equal(t, `abc\`, UnescapeKey(`abc\`))
}

func TestEscapeRoundTrip(t *testing.T) {
	inputs := []string{
		"node.name", "a b c", "===", "[[]]", `\\\\`, `\s`, `\e already encoded`,
		"tab\tand\nnewline", "emoji 🔊 key",
	}
	for _, in := range inputs {
		assert.Equal(t, in, UnescapeKey(EscapeKey(in)), "round-trip %q", in)
	}
}
