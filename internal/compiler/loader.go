// internal/compiler/loader.go
package compiler

import (
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"rzn/internal/errors"
	"rzn/internal/parser"
)

// ImportedProgram is a parsed module reachable from the entry file through
// `use`, ordered dependencies-first.
type ImportedProgram struct {
	Alias   string
	Path    string
	Program *parser.Program
}

// Loader resolves `use` statements relative to the entry file's directory.
// The import graph must be acyclic; a cycle is reported as a diagnostic on
// the offending statement.
type Loader struct {
	diags   *errors.DiagnosticList
	baseDir string
	loaded  map[string]bool
	active  map[string]bool
	order   []ImportedProgram
}

func NewLoader(entryPath string, diags *errors.DiagnosticList) *Loader {
	return &Loader{
		diags:   diags,
		baseDir: filepath.Dir(entryPath),
		loaded:  make(map[string]bool),
		active:  make(map[string]bool),
	}
}

// Load walks a parsed program's use statements and returns every imported
// module, dependencies before dependents.
func (l *Loader) Load(prog *parser.Program) ([]ImportedProgram, error) {
	if err := l.walk(prog); err != nil {
		return nil, err
	}
	return l.order, nil
}

func (l *Loader) walk(prog *parser.Program) error {
	for _, stmt := range prog.Stmts {
		use, ok := stmt.(*parser.UseStmt)
		if !ok {
			continue
		}
		path := use.Path
		if filepath.Ext(path) == "" {
			path += ".rzn"
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(l.baseDir, path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return pkgerrors.Wrapf(err, "resolving module path %q", use.Path)
		}
		if l.active[abs] {
			l.diags.Errorf(errors.ImportCycle, use.Span(),
				"import cycle through %q", use.Path)
			continue
		}
		if l.loaded[abs] {
			continue
		}
		source, err := os.ReadFile(abs)
		if err != nil {
			return pkgerrors.Wrapf(err, "loading module %q", use.Path)
		}
		sub := parser.ParseSource(string(source), abs, l.diags)
		l.active[abs] = true
		if err := l.walk(sub); err != nil {
			delete(l.active, abs)
			return err
		}
		delete(l.active, abs)
		l.loaded[abs] = true
		l.order = append(l.order, ImportedProgram{
			Alias:   use.Alias,
			Path:    abs,
			Program: sub,
		})
	}
	return nil
}
