package execution

import (
	"git.home.luguber.info/inful/contentmill/internal/document"
)

// Value is a module parameter that is either a constant, a function of the
// execution context, or a function of (document, context). The tag decides
// whether the owning module may resolve it once per batch or must resolve
// it inside every per-document invocation: document-dependent resolution is
// never skipped, context-only resolution is never repeated per document.
type Value[T any] struct {
	constant T
	fromCtx  func(*Context) (T, error)
	fromDoc  func(*document.Document, *Context) (T, error)
}

// Constant creates a value that is the same for every document and context.
func Constant[T any](v T) Value[T] {
	return Value[T]{constant: v}
}

// FromContext creates a value computed once per execution context.
func FromContext[T any](fn func(*Context) (T, error)) Value[T] {
	return Value[T]{fromCtx: fn}
}

// FromDocument creates a value that must be recomputed for every document.
func FromDocument[T any](fn func(*document.Document, *Context) (T, error)) Value[T] {
	return Value[T]{fromDoc: fn}
}

// DocumentDependent reports whether resolving requires the current document.
func (v Value[T]) DocumentDependent() bool {
	return v.fromDoc != nil
}

// Resolve evaluates the value. doc may be nil only for values that are not
// document-dependent; a zero Value resolves to the zero T.
func (v Value[T]) Resolve(doc *document.Document, ec *Context) (T, error) {
	switch {
	case v.fromDoc != nil:
		return v.fromDoc(doc, ec)
	case v.fromCtx != nil:
		return v.fromCtx(ec)
	default:
		return v.constant, nil
	}
}

// DocumentDependentValue is the tag shared by all Value instantiations,
// letting modules check a heterogeneous parameter list in one pass.
type DocumentDependentValue interface {
	DocumentDependent() bool
}

// AnyDocumentDependent reports whether any of the given values requires
// per-document resolution.
func AnyDocumentDependent(values ...DocumentDependentValue) bool {
	for _, v := range values {
		if v != nil && v.DocumentDependent() {
			return true
		}
	}
	return false
}
