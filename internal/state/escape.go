// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package state

import "strings"

// The on-disk grammar reserves space, '=', '[' and ']' for its own
// structure. Keys are escaped with a single escape character so that any
// string round-trips: '\'->"\\", ' '->"\s", '='->"\e", '['->"\o", ']'->"\c".

// EscapeKey encodes a raw key for the on-disk entry grammar.
func EscapeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			b.WriteString(`\\`)
		case ' ':
			b.WriteString(`\s`)
		case '=':
			b.WriteString(`\e`)
		case '[':
			b.WriteString(`\o`)
		case ']':
			b.WriteString(`\c`)
		default:
			b.WriteByte(raw[i])
		}
	}
	return b.String()
}

// UnescapeKey decodes an on-disk key. Unrecognised escape sequences pass
// through literally, as does a trailing escape character.
func UnescapeKey(encoded string) string {
	var b strings.Builder
	b.Grow(len(encoded))
	for i := 0; i < len(encoded); i++ {
		if encoded[i] != '\\' || i+1 == len(encoded) {
			b.WriteByte(encoded[i])
			continue
		}
		i++
		switch encoded[i] {
		case '\\':
			b.WriteByte('\\')
		case 's':
			b.WriteByte(' ')
		case 'e':
			b.WriteByte('=')
		case 'o':
			b.WriteByte('[')
		case 'c':
			b.WriteByte(']')
		default:
			b.WriteByte('\\')
			b.WriteByte(encoded[i])
		}
	}
	return b.String()
}
