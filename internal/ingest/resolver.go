// ABOUTME: Evaluates field-mapping expressions against one input record.
// ABOUTME: Closed three-rule grammar: NewGUID(), {Field} lookup, or literal value.

package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrMissingField indicates a {Field} expression referenced a key absent from
// the input record. A missing field fails the entry rather than defaulting to
// an empty value.
var ErrMissingField = errors.New("field missing from record")

// Resolve evaluates one mapping expression against one input record and
// returns the scalar column value:
//
//   - "NewGUID()" generates a fresh UUID string
//   - "{Field}" looks up Field in the record
//   - anything else is used verbatim as a literal
//
// The grammar is deliberately closed: no nesting, arithmetic, or conditionals.
func Resolve(expression string, record map[string]any) (any, error) {
	if expression == "NewGUID()" {
		return uuid.New().String(), nil
	}

	if strings.HasPrefix(expression, "{") && strings.HasSuffix(expression, "}") {
		field := strings.TrimSuffix(strings.TrimPrefix(expression, "{"), "}")
		value, ok := record[field]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, field)
		}
		return value, nil
	}

	return expression, nil
}
