package ident

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidIdentifier is matched (via errors.Is) by every validation failure.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Kind tags what an identifier names.
type Kind string

const (
	KindTable  Kind = "table"
	KindColumn Kind = "column"
)

// Reason explains why an identifier was rejected.
type Reason string

const (
	ReasonEmpty    Reason = "empty"
	ReasonPattern  Reason = "must match ^[A-Za-z_][A-Za-z0-9_]*$"
	ReasonReserved Reason = "reserved word"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords is stricter than what SQLite itself refuses.
var reservedWords = []string{
	"select", "insert", "update", "delete", "drop", "create", "alter",
	"table", "index", "where", "from", "join", "and", "or",
}

// InvalidIdentifierError carries the rejected name and what it was meant to name.
type InvalidIdentifierError struct {
	Name   string
	Kind   Kind
	Reason Reason
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid %s name %q: %s", e.Kind, e.Name, e.Reason)
}

// Is reports whether target is ErrInvalidIdentifier.
func (e *InvalidIdentifierError) Is(target error) bool {
	return target == ErrInvalidIdentifier
}

// Identifier is a validated table or column name.
// The zero value is not valid and is refused by the statement builder.
type Identifier struct {
	name string
	kind Kind
}

// Validate checks name without constructing an Identifier.
// It has no side effects.
func Validate(name string, kind Kind) error {
	if name == "" {
		return &InvalidIdentifierError{Name: name, Kind: kind, Reason: ReasonEmpty}
	}
	if !identifierPattern.MatchString(name) {
		return &InvalidIdentifierError{Name: name, Kind: kind, Reason: ReasonPattern}
	}
	if IsReserved(name) {
		return &InvalidIdentifierError{Name: name, Kind: kind, Reason: ReasonReserved}
	}
	return nil
}

// IsReserved reports whether name folds to one of the reserved words.
func IsReserved(name string) bool {
	// Casers are stateful, so one is built per call.
	lower := cases.Lower(language.Und).String(name)
	return slices.Contains(reservedWords, lower)
}

// ReservedWords returns a copy of the reserved-word list.
func ReservedWords() []string {
	return slices.Clone(reservedWords)
}

// New validates name and returns it as an Identifier of the given kind.
func New(name string, kind Kind) (Identifier, error) {
	if err := Validate(name, kind); err != nil {
		return Identifier{}, err
	}
	return Identifier{name: name, kind: kind}, nil
}

// Table is shorthand for New(name, KindTable).
func Table(name string) (Identifier, error) {
	return New(name, KindTable)
}

// Column is shorthand for New(name, KindColumn).
func Column(name string) (Identifier, error) {
	return New(name, KindColumn)
}

// Columns validates every name as a column, failing on the first rejection.
func Columns(names []string) ([]Identifier, error) {
	cols := make([]Identifier, 0, len(names))
	for _, name := range names {
		col, err := Column(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// MustColumn is like Column but panics on error. Intended for constants.
func MustColumn(name string) Identifier {
	col, err := Column(name)
	if err != nil {
		panic(err)
	}
	return col
}

// Name returns the raw validated name.
func (id Identifier) Name() string { return id.name }

// Kind returns whether id names a table or a column.
func (id Identifier) Kind() Kind { return id.kind }

// IsZero reports whether id was not produced by New.
func (id Identifier) IsZero() bool { return id.name == "" }

// Quoted returns the name wrapped in double quotes for use in SQL text.
// The pattern excludes '"', so no escaping is needed.
func (id Identifier) Quoted() string {
	return `"` + id.name + `"`
}

func (id Identifier) String() string { return id.name }
