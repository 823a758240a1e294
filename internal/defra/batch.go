package defra

import (
	"context"
	"fmt"
	"strings"
)

// OpType represents the type of write operation.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// WriteOp is a single write inside a Batch.
type WriteOp struct {
	Collection string         // Target collection name
	Document   map[string]any // Document data (ignored for deletes)
	DocID      string         // For updates/deletes (empty for creates)
	Op         OpType
}

// WriteResult contains the result of a write operation.
type WriteResult struct {
	DocID string // Stable document ID
	Err   error  // Error if operation failed
}

// Batch sends all ops as aliased fields of one mutation request.
// DefraDB runs a request in a single transaction, so either every op
// lands or none does. Results are returned in input order.
func (c *Client) Batch(ctx context.Context, ops []WriteOp) ([]WriteResult, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	query, err := buildBatchMutation(ops)
	if err != nil {
		return nil, err
	}

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, classifyWriteError("batch", errMsg)
	}

	results := make([]WriteResult, len(ops))
	for i, op := range ops {
		results[i] = WriteResult{DocID: op.DocID}
		docs := resp.Docs(batchAlias(i))
		if len(docs) == 0 {
			if op.Op == OpCreate {
				return nil, fmt.Errorf("batch op %d (%s %s): missing result", i, op.Op, op.Collection)
			}
			continue
		}
		if docID, ok := docs[0]["_docID"].(string); ok && docID != "" {
			results[i].DocID = docID
		}
	}
	return results, nil
}

func batchAlias(i int) string {
	return fmt.Sprintf("op%d", i)
}

func buildBatchMutation(ops []WriteOp) (string, error) {
	var b strings.Builder
	b.WriteString("mutation {")
	for i, op := range ops {
		alias := batchAlias(i)
		switch op.Op {
		case OpCreate:
			input, err := mapToGraphQLInput(op.Document)
			if err != nil {
				return "", fmt.Errorf("batch op %d: %w", i, err)
			}
			fmt.Fprintf(&b, " %s: create_%s(input: %s) { _docID }", alias, op.Collection, input)
		case OpUpdate:
			if err := ValidateID(op.DocID); err != nil {
				return "", fmt.Errorf("batch op %d: %w", i, err)
			}
			input, err := mapToGraphQLInput(op.Document)
			if err != nil {
				return "", fmt.Errorf("batch op %d: %w", i, err)
			}
			fmt.Fprintf(&b, " %s: update_%s(docID: %q, input: %s) { _docID }", alias, op.Collection, op.DocID, input)
		case OpDelete:
			if err := ValidateID(op.DocID); err != nil {
				return "", fmt.Errorf("batch op %d: %w", i, err)
			}
			fmt.Fprintf(&b, " %s: delete_%s(docID: %q) { _docID }", alias, op.Collection, op.DocID)
		default:
			return "", fmt.Errorf("batch op %d: unknown op type %q", i, op.Op)
		}
	}
	b.WriteString(" }")
	return b.String(), nil
}
