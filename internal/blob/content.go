package blob

import (
	"context"
	"fmt"
)

type contentKind int

const (
	kindEmpty contentKind = iota
	kindInline
	kindRef
)

// Content is a body that lives either inline on the record (legacy) or in a
// blob store. The zero value is an empty body.
type Content struct {
	kind   contentKind
	inline string
	ref    Ref
	size   int
}

// Inline wraps a legacy inline body. New writes go through Write instead.
func Inline(s string) Content {
	return Content{kind: kindInline, inline: s, size: len(s)}
}

// FromRef wraps a stored body reference.
func FromRef(ref Ref, size int) Content {
	return Content{kind: kindRef, ref: ref, size: size}
}

// Write stores data and returns a ref-backed Content.
func Write(ctx context.Context, s Store, data []byte) (Content, error) {
	ref, err := s.Put(ctx, data)
	if err != nil {
		return Content{}, err
	}
	return FromRef(ref, len(data)), nil
}

// Size is the body length in bytes.
func (c Content) Size() int { return c.size }

// IsRef reports whether the body lives in the blob store.
func (c Content) IsRef() bool { return c.kind == kindRef }

// IsInline reports whether the body is held on the record itself.
func (c Content) IsInline() bool { return c.kind == kindInline }

// Ref returns the blob ref, or "" for inline content.
func (c Content) Ref() Ref { return c.ref }

// Resolve returns the body bytes regardless of where they are stored.
func (c Content) Resolve(ctx context.Context, g Getter) ([]byte, error) {
	switch c.kind {
	case kindEmpty:
		return nil, nil
	case kindInline:
		return []byte(c.inline), nil
	case kindRef:
		if g == nil {
			return nil, fmt.Errorf("resolve %s: no blob store", c.ref)
		}
		data, err := g.Get(ctx, c.ref)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", c.ref, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("resolve: unknown content kind %d", c.kind)
}

// Record field names shared by every collection that carries a body.
const (
	FieldBodyRef    = "body_ref"
	FieldBodyInline = "body_inline"
	FieldSize       = "size"
)

// Fields renders c for a record write. Only ref content is ever emitted;
// inline bodies are read-only.
func (c Content) Fields() map[string]any {
	if c.kind != kindRef {
		return map[string]any{FieldSize: c.size}
	}
	return map[string]any{FieldBodyRef: string(c.ref), FieldSize: c.size}
}

// FromDoc decodes the body fields of a record. A ref wins over an inline body.
func FromDoc(doc map[string]any) Content {
	size := 0
	switch v := doc[FieldSize].(type) {
	case int:
		size = v
	case float64:
		size = int(v)
	}
	if ref, _ := doc[FieldBodyRef].(string); ref != "" {
		return FromRef(Ref(ref), size)
	}
	if inline, ok := doc[FieldBodyInline].(string); ok {
		return Inline(inline)
	}
	return Content{}
}
