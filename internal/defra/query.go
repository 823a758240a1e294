package defra

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidID is returned by ValidateID for ids that cannot be placed in a
// query or mutation.
var ErrInvalidID = errors.New("defra: invalid document id")

const maxIDLen = 500

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID accepts DefraDB doc ids (bae-<uuid>) and plain identifiers such
// as book ids. Anything else is rejected before it reaches a query string.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case len(id) > maxIDLen:
		return fmt.Errorf("%w: %d characters", ErrInvalidID, len(id))
	case !idPattern.MatchString(id):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Executor runs a GraphQL query. *Client and store.MemoryStore satisfy it.
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error)
}

type clause struct {
	field string
	op    string // _eq or _in
	typ   string
	value any
}

// QueryBuilder builds a read over one collection. Filter values always travel
// as GraphQL variables, never inline.
type QueryBuilder struct {
	collection string
	where      []clause
	fields     []string
	order      string
	limit      int
}

// NewQuery starts a query on collection returning only _docID.
func NewQuery(collection string) *QueryBuilder {
	return &QueryBuilder{collection: collection, fields: []string{"_docID"}}
}

// Filter requires field to equal value.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	q.where = append(q.where, clause{field: field, op: "_eq", typ: scalarType(value), value: value})
	return q
}

// FilterIn requires field to be one of values.
func (q *QueryBuilder) FilterIn(field string, values []string) *QueryBuilder {
	q.where = append(q.where, clause{field: field, op: "_in", typ: "[String!]", value: values})
	return q
}

// Fields replaces the selection. _docID stays first.
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = append([]string{"_docID"}, fields...)
	return q
}

// OrderBy sorts on field; direction is ASC or DESC.
func (q *QueryBuilder) OrderBy(field, direction string) *QueryBuilder {
	q.order = "{" + field + ": " + direction + "}"
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Build renders the query text and its variables. Variables are named v0,
// v1, ... in filter order.
func (q *QueryBuilder) Build() (string, map[string]any) {
	vars := make(map[string]any, len(q.where))
	decls := make([]string, len(q.where))
	conds := make([]string, len(q.where))
	for i, c := range q.where {
		name := fmt.Sprintf("v%d", i)
		vars[name] = c.value
		decls[i] = "$" + name + ": " + c.typ
		conds[i] = fmt.Sprintf("%s: {%s: $%s}", c.field, c.op, name)
	}

	var args []string
	if len(conds) > 0 {
		args = append(args, "filter: {"+strings.Join(conds, ", ")+"}")
	}
	if q.order != "" {
		args = append(args, "order: "+q.order)
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}

	var b strings.Builder
	if len(decls) > 0 {
		b.WriteString("query(" + strings.Join(decls, ", ") + ") ")
	}
	b.WriteString("{ " + q.collection)
	if len(args) > 0 {
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	b.WriteString(" { " + strings.Join(q.fields, " ") + " } }")
	return b.String(), vars
}

// Execute runs the query on exec and returns the matching documents. A
// GraphQL error in the response becomes the returned error.
func (q *QueryBuilder) Execute(ctx context.Context, exec Executor) ([]map[string]any, error) {
	query, vars := q.Build()
	resp, err := exec.Execute(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("query %s: %s", q.collection, msg)
	}
	return resp.Docs(q.collection), nil
}

func scalarType(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	}
	return "String"
}
