// Package grammar provides compiled-in tree-sitter grammars for the
// languages that get structural analysis.
package grammar

import (
	"fmt"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Loader provides access to tree-sitter language grammars.
type Loader interface {
	// Load returns the Language for the given name.
	Load(name string) (*tree_sitter.Language, error)

	// Has reports whether name can be loaded.
	Has(name string) bool
}

// BuiltinProvider is a function that returns an unsafe.Pointer to a TSLanguage.
// This is the signature exposed by tree-sitter grammar Go bindings.
type BuiltinProvider func() unsafe.Pointer

// ErrGrammarNotFound is returned when a grammar is not available.
type ErrGrammarNotFound struct {
	Name string
}

func (e *ErrGrammarNotFound) Error() string {
	return fmt.Sprintf("grammar %q not found", e.Name)
}
