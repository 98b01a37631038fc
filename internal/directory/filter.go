package directory

import (
	"fmt"
	"strings"
)

// Filter builders. The directory's query grammar is
//
//	expr   := clause | expr "and" expr | expr "or" expr | "(" expr ")"
//	clause := field "eq" quoted | field "ne" quoted
//
// Quotes inside values are stripped rather than escaped, matching the store's
// handling of filter literals.

// Eq builds an equality clause.
func Eq(field, value string) string {
	return fmt.Sprintf("%s eq %q", field, sanitize(value))
}

// Ne builds an inequality clause.
func Ne(field, value string) string {
	return fmt.Sprintf("%s ne %q", field, sanitize(value))
}

// And joins clauses conjunctively.
func And(clauses ...string) string {
	return strings.Join(clauses, " and ")
}

// Or joins clauses disjunctively, parenthesised so the result can be embedded
// in a conjunction.
func Or(clauses ...string) string {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " or ") + ")"
}

// AnyID builds a filter matching any of the given record ids. Used for
// batched reference lookups.
func AnyID(ids []string) string {
	clauses := make([]string, 0, len(ids))
	for _, id := range ids {
		clauses = append(clauses, Eq("_id", id))
	}
	return Or(clauses...)
}

func sanitize(value string) string {
	return strings.ReplaceAll(value, `"`, "")
}
