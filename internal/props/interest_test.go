// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package props

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstraintOperators(t *testing.T) {
	bag := FromPairs(
		"media.class", "Audio/Source",
		"node.name", "alsa_input.usb",
		"priority.session", "1500",
		"api.name", "alsa",
	)

	tests := []struct {
		name string
		c    Constraint
		want bool
	}{
		{
			name: "equals hit",
			c:    Constraint{Subject: SubjectProperty, Key: "api.name", Op: OpEquals, Operands: []string{"alsa"}},
			want: true,
		},
		{
			name: "equals miss",
			c:    Constraint{Subject: SubjectProperty, Key: "api.name", Op: OpEquals, Operands: []string{"bluez"}},
			want: false,
		},
		{
			name: "not-equals",
			c:    Constraint{Subject: SubjectProperty, Key: "api.name", Op: OpNotEquals, Operands: []string{"bluez"}},
			want: true,
		},
		{
			name: "in-list hit",
			c:    Constraint{Subject: SubjectProperty, Key: "api.name", Op: OpInList, Operands: []string{"bluez", "alsa", "v4l2"}},
			want: true,
		},
		{
			name: "in-list miss",
			c:    Constraint{Subject: SubjectProperty, Key: "api.name", Op: OpInList, Operands: []string{"bluez", "v4l2"}},
			want: false,
		},
		{
			name: "glob hit",
			c:    Constraint{Subject: SubjectProperty, Key: "media.class", Op: OpMatchesGlob, Operands: []string{"Audio/*"}},
			want: true,
		},
		{
			name: "glob miss",
			c:    Constraint{Subject: SubjectProperty, Key: "media.class", Op: OpMatchesGlob, Operands: []string{"Video/*"}},
			want: false,
		},
		{
			name: "glob bad pattern is false",
			c:    Constraint{Subject: SubjectProperty, Key: "media.class", Op: OpMatchesGlob, Operands: []string{"Audio/["}},
			want: false,
		},
		{
			name: "present",
			c:    Constraint{Subject: SubjectProperty, Key: "node.name", Op: OpPresent},
			want: true,
		},
		{
			name: "present on missing key",
			c:    Constraint{Subject: SubjectProperty, Key: "device.name", Op: OpPresent},
			want: false,
		},
		{
			name: "absent on missing key",
			c:    Constraint{Subject: SubjectProperty, Key: "device.name", Op: OpAbsent},
			want: true,
		},
		{
			name: "absent on existing key",
			c:    Constraint{Subject: SubjectProperty, Key: "node.name", Op: OpAbsent},
			want: false,
		},
		{
			name: "numeric greater-than",
			c:    Constraint{Subject: SubjectProperty, Key: "priority.session", Op: OpGt, Operands: []string{"999"}},
			want: true,
		},
		{
			name: "numeric less-than",
			c:    Constraint{Subject: SubjectProperty, Key: "priority.session", Op: OpLt, Operands: []string{"999"}},
			want: false,
		},
		{
			name: "numeric less-or-equal boundary",
			c:    Constraint{Subject: SubjectProperty, Key: "priority.session", Op: OpLe, Operands: []string{"1500"}},
			want: true,
		},
		{
			name: "lexicographic when not numeric",
			c:    Constraint{Subject: SubjectProperty, Key: "node.name", Op: OpGe, Operands: []string{"alsa_input"}},
			want: true,
		},
		{
			name: "missing key false for range",
			c:    Constraint{Subject: SubjectProperty, Key: "device.name", Op: OpGt, Operands: []string{"0"}},
			want: false,
		},
		{
			name: "missing key false for equals",
			c:    Constraint{Subject: SubjectProperty, Key: "device.name", Op: OpEquals, Operands: []string{""}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.Eval(bag))
		})
	}
}

// Numeric comparison must win over lexicographic whenever both sides
// parse: "9" < "10" numerically even though "9" > "10" as strings.
func TestConstraintNumericBeatsLexicographic(t *testing.T) {
	bag := FromPairs("priority.driver", "9")
	c := Constraint{Subject: SubjectProperty, Key: "priority.driver", Op: OpLt, Operands: []string{"10"}}
	assert.True(t, c.Eval(bag))
}

func TestInterestMatching(t *testing.T) {
	interest := NewInterest(TagNode).
		Constrain(SubjectProperty, "media.class", OpMatchesGlob, "Audio/*").
		Build()

	bag := FromPairs("media.class", "Audio/Source")

	assert.True(t, interest.Matches(TagNode, bag))
	assert.False(t, interest.Matches(TagDevice, bag))
	assert.False(t, interest.Matches(TagNode, FromPairs("media.class", "Video/Source")))
}

func TestInterestTagAny(t *testing.T) {
	interest := NewInterest(TagAny).
		Constrain(SubjectProperty, "event.type", OpEquals, "object-added").
		Build()

	bag := FromPairs("event.type", "object-added")
	assert.True(t, interest.Matches(TagNode, bag))
	assert.True(t, interest.Matches(TagDevice, bag))
}

func TestInterestShortCircuits(t *testing.T) {
	// The second constraint would match, but the first one fails and the
	// conjunction stops there.
	interest := NewInterest(TagNode).
		Constrain(SubjectProperty, "missing", OpPresent).
		Constrain(SubjectProperty, "media.class", OpPresent).
		Build()

	assert.False(t, interest.Matches(TagNode, FromPairs("media.class", "Audio/Sink")))
}

func TestInterestEmptyConstraintsMatchesTag(t *testing.T) {
	interest := NewInterest(TagDevice).Build()
	assert.True(t, interest.Matches(TagDevice, New()))
	assert.False(t, interest.Matches(TagNode, New()))
}
