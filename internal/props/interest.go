// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package props

import (
	"path"
	"strconv"
)

// TypeTag identifies the runtime type of a media-graph object as it
// appears in events ("node", "device", "stream", "link", ...).
type TypeTag string

// Common type tags published by the media-server transport.
const (
	TagAny    TypeTag = "*"
	TagNode   TypeTag = "node"
	TagDevice TypeTag = "device"
	TagStream TypeTag = "stream"
	TagLink   TypeTag = "link"
	TagItem   TypeTag = "session-item"
)

// Subject selects where a constraint reads its value from.
type Subject string

const (
	// SubjectProperty reads from the object's own property bag.
	SubjectProperty Subject = "property"
	// SubjectGlobal marks a constraint on globally published properties.
	// Eval does not distinguish subjects: both evaluate against the one
	// bag passed in at match time.
	SubjectGlobal Subject = "global"
)

// Operator is a constraint comparison verb.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not-equals"
	OpInList      Operator = "in-list"
	OpMatchesGlob Operator = "matches" // POSIX fnmatch semantics via path.Match
	OpPresent     Operator = "present"
	OpAbsent      Operator = "absent"
	OpLt          Operator = "<"
	OpLe          Operator = "<="
	OpGt          Operator = ">"
	OpGe          Operator = ">="
)

// Constraint is a single predicate over a Properties bag. Evaluating the
// same constraint against the same bag always yields the same result.
type Constraint struct {
	Subject  Subject
	Key      string
	Op       Operator
	Operands []string
}

// Eval applies the constraint to p. A missing key is false for every
// operator except OpAbsent. A glob pattern that does not compile
// evaluates false.
func (c Constraint) Eval(p *Properties) bool {
	value, ok := p.Get(c.Key)
	switch c.Op {
	case OpAbsent:
		return !ok
	case OpPresent:
		return ok
	}
	if !ok {
		return false
	}

	switch c.Op {
	case OpEquals:
		return len(c.Operands) == 1 && value == c.Operands[0]
	case OpNotEquals:
		return len(c.Operands) == 1 && value != c.Operands[0]
	case OpInList:
		for _, op := range c.Operands {
			if value == op {
				return true
			}
		}
		return false
	case OpMatchesGlob:
		if len(c.Operands) != 1 {
			return false
		}
		matched, err := path.Match(c.Operands[0], value)
		return err == nil && matched
	case OpLt, OpLe, OpGt, OpGe:
		if len(c.Operands) != 1 {
			return false
		}
		return compareOrdered(c.Op, value, c.Operands[0])
	default:
		return false
	}
}

// compareOrdered compares numerically when both sides parse as numbers,
// lexicographically otherwise.
func compareOrdered(op Operator, value, operand string) bool {
	var cmp int
	lf, lerr := strconv.ParseFloat(value, 64)
	rf, rerr := strconv.ParseFloat(operand, 64)
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	} else {
		switch {
		case value < operand:
			cmp = -1
		case value > operand:
			cmp = 1
		}
	}
	switch op {
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// Interest is an immutable conjunction of constraints over objects of
// one type tag. Build instances through NewInterest.
type Interest struct {
	tag         TypeTag
	constraints []Constraint
}

// InterestBuilder accumulates constraints for an Interest.
type InterestBuilder struct {
	interest Interest
}

// NewInterest starts a builder for objects tagged tag. TagAny matches
// every type tag.
func NewInterest(tag TypeTag) *InterestBuilder {
	return &InterestBuilder{interest: Interest{tag: tag}}
}

// Constrain appends one constraint. Constraints are evaluated in the
// order they were added.
func (b *InterestBuilder) Constrain(subject Subject, key string, op Operator, operands ...string) *InterestBuilder {
	b.interest.constraints = append(b.interest.constraints, Constraint{
		Subject:  subject,
		Key:      key,
		Op:       op,
		Operands: operands,
	})
	return b
}

// Build finalises the interest. The builder must not be reused.
func (b *InterestBuilder) Build() *Interest {
	i := b.interest
	b.interest = Interest{}
	return &i
}

// Tag returns the target type tag.
func (i *Interest) Tag() TypeTag {
	return i.tag
}

// Matches reports whether an object with the given type tag and
// properties satisfies the interest. Constraints short-circuit in
// insertion order.
func (i *Interest) Matches(tag TypeTag, p *Properties) bool {
	if i.tag != TagAny && i.tag != tag {
		return false
	}
	for _, c := range i.constraints {
		if !c.Eval(p) {
			return false
		}
	}
	return true
}
