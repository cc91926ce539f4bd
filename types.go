package dqueue

import (
	"regexp"
	"slices"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// TypeSet is the closed set of message types declared when a store is
// initialized. The stores enforce it as a constraint, and the publisher
// checks it before issuing an insert.
type TypeSet struct {
	names []string
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	reTypeName = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewTypeSet returns a sorted, de-duplicated set of type names. At least
// one name is required, and every name must consist of up to 64 letters,
// digits or one of "_.:-".
func NewTypeSet(names ...string) (TypeSet, error) {
	set := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !ValidTypeName(name) {
			return TypeSet{}, ErrBadParameter.Withf("invalid type name %q", name)
		}
		if !slices.Contains(set, name) {
			set = append(set, name)
		}
	}
	if len(set) == 0 {
		return TypeSet{}, ErrBadParameter.With("at least one type is required")
	}
	slices.Sort(set)
	return TypeSet{names: set}, nil
}

// MustTypeSet is like NewTypeSet but panics on error
func MustTypeSet(names ...string) TypeSet {
	set, err := NewTypeSet(names...)
	if err != nil {
		panic(err)
	}
	return set
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (s TypeSet) String() string {
	return strings.Join(s.names, ",")
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ValidTypeName returns true if the name can be declared as a type, without
// any surrounding whitespace
func ValidTypeName(name string) bool {
	return reTypeName.MatchString(name)
}

// Names returns the type names in sorted order
func (s TypeSet) Names() []string {
	return slices.Clone(s.names)
}

// Len returns the number of declared types
func (s TypeSet) Len() int {
	return len(s.names)
}

// Has returns true if the type name is declared
func (s TypeSet) Has(name string) bool {
	_, found := slices.BinarySearch(s.names, name)
	return found
}

// Validate returns ErrConstraint if the type name is not declared
func (s TypeSet) Validate(name string) error {
	if len(s.names) == 0 {
		return ErrConstraint.With("no types have been declared")
	} else if !s.Has(name) {
		return ErrConstraint.Withf("undeclared type %q", name)
	}
	return nil
}
