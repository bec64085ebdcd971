package grammar

import (
	"slices"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// builtins are the grammars compiled into qguard, keyed by canonical
// language tag. Only languages with a structural node table belong here.
var builtins = map[string]BuiltinProvider{
	"go":     tree_sitter_go.Language,
	"python": tree_sitter_python.Language,
}

// BuiltinRegistry serves the compiled-in grammars. Each Language is built on
// first Load and shared afterwards. The set of grammars is fixed at
// construction, so the registry is safe for concurrent use.
type BuiltinRegistry struct {
	load map[string]func() (*tree_sitter.Language, error)
}

// NewBuiltinRegistry returns a registry over every compiled-in grammar.
func NewBuiltinRegistry() *BuiltinRegistry {
	r := &BuiltinRegistry{load: make(map[string]func() (*tree_sitter.Language, error), len(builtins))}
	for name, provider := range builtins {
		r.load[name] = sync.OnceValues(func() (*tree_sitter.Language, error) {
			lang := tree_sitter.NewLanguage(provider())
			if lang == nil {
				return nil, &ErrGrammarNotFound{Name: name}
			}
			return lang, nil
		})
	}
	return r
}

// Load returns the Language for a compiled-in grammar.
func (r *BuiltinRegistry) Load(name string) (*tree_sitter.Language, error) {
	load, ok := r.load[name]
	if !ok {
		return nil, &ErrGrammarNotFound{Name: name}
	}
	return load()
}

// Has reports whether name is compiled in.
func (r *BuiltinRegistry) Has(name string) bool {
	_, ok := r.load[name]
	return ok
}

// Names returns the compiled-in language tags, sorted.
func (r *BuiltinRegistry) Names() []string {
	names := make([]string, 0, len(r.load))
	for name := range r.load {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
