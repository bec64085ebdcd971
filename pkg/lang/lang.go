// Package lang maps file paths and content to language tags.
package lang

import (
	"bufio"
	"bytes"
	"path/filepath"
	"sort"
	"strings"
)

// Language constants
const (
	TypeScript = "typescript"
	JavaScript = "javascript"
	Go         = "go"
	Python     = "python"
	Rust       = "rust"
	Java       = "java"
	C          = "c"
	CPP        = "cpp"
	CSharp     = "csharp"
	Ruby       = "ruby"
	PHP        = "php"
	Swift      = "swift"
	Kotlin     = "kotlin"
	Scala      = "scala"
	Elixir     = "elixir"
	Lua        = "lua"
	Bash       = "bash"
	SQL        = "sql"
	Groovy     = "groovy"
)

// Extensions maps file extensions to languages.
var Extensions = map[string]string{
	// TypeScript/JavaScript
	".ts":  TypeScript,
	".tsx": TypeScript,
	".mts": TypeScript,
	".cts": TypeScript,
	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
	// Go
	".go": Go,
	// Python
	".py":  Python,
	".pyw": Python,
	".pyi": Python,
	// Rust
	".rs": Rust,
	// Java
	".java": Java,
	// C/C++
	".c":   C,
	".h":   C,
	".cpp": CPP,
	".cc":  CPP,
	".cxx": CPP,
	".hpp": CPP,
	".hh":  CPP,
	".hxx": CPP,
	// C#
	".cs": CSharp,
	// Ruby
	".rb":   Ruby,
	".rake": Ruby,
	// PHP
	".php": PHP,
	// Swift
	".swift": Swift,
	// Kotlin
	".kt":  Kotlin,
	".kts": Kotlin,
	// Scala
	".scala": Scala,
	".sc":    Scala,
	// Elixir
	".ex":  Elixir,
	".exs": Elixir,
	// Lua
	".lua": Lua,
	// Shell
	".sh":   Bash,
	".bash": Bash,
	".zsh":  Bash,
	// SQL
	".sql": SQL,
	// Groovy
	".groovy": Groovy,
	".gradle": Groovy,
}

// Filenames maps well-known extensionless filenames to languages.
var Filenames = map[string]string{
	"Jenkinsfile": Groovy,
	"Vagrantfile": Ruby,
	"Rakefile":    Ruby,
	"Gemfile":     Ruby,
	"BUILD":       Python, // Bazel
	"BUILD.bazel": Python,
	"WORKSPACE":   Python,
	"SConstruct":  Python,
	"SConscript":  Python,
}

// Shebangs maps shebang interpreter names to languages.
var Shebangs = map[string]string{
	"python": Python,
	"ruby":   Ruby,
	"bash":   Bash,
	"sh":     Bash,
	"zsh":    Bash,
	"node":   JavaScript,
	"deno":   TypeScript,
	"bun":    TypeScript,
	"lua":    Lua,
	"php":    PHP,
	"elixir": Elixir,
	"groovy": Groovy,
}

// Detect returns the language for a file: by extension, then known filename,
// then shebang if content is given. It returns "" when nothing matches.
func Detect(path string, content []byte) string {
	if l, ok := Extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return l
	}
	if l, ok := Filenames[filepath.Base(path)]; ok {
		return l
	}
	if len(content) > 0 {
		return detectShebang(content)
	}
	return ""
}

// Supported reports whether path has a recognised source extension or name.
func Supported(path string) bool {
	return Detect(path, nil) != ""
}

// Normalize lowercases a user-supplied language tag and resolves common
// aliases ("py", "js", "ts", "golang").
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	switch tag {
	case "py", "python3":
		return Python
	case "js", "node":
		return JavaScript
	case "ts":
		return TypeScript
	case "golang":
		return Go
	}
	return tag
}

// Known returns every language tag in the extension table, sorted.
func Known() []string {
	seen := make(map[string]bool, len(Extensions))
	for _, l := range Extensions {
		seen[l] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// detectShebang parses the first line of content for a shebang interpreter.
func detectShebang(content []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	if !scanner.Scan() {
		return ""
	}
	line := scanner.Text()
	if !strings.HasPrefix(line, "#!") {
		return ""
	}

	// "#!/usr/bin/env python3" or "#!/usr/bin/python3"
	parts := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(parts) == 0 {
		return ""
	}
	interpreter := filepath.Base(parts[0])
	if interpreter == "env" && len(parts) > 1 {
		interpreter = filepath.Base(parts[1])
	}

	if l, ok := Shebangs[interpreter]; ok {
		return l
	}
	// python3 -> python, python3.12 -> python
	if l, ok := Shebangs[strings.TrimRight(interpreter, "0123456789.")]; ok {
		return l
	}
	return ""
}
