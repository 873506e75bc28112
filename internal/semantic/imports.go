// internal/semantic/imports.go
package semantic

import (
	"rzn/internal/errors"
)

// RegisterImport declares an import alias in the global scope so that
// alias.member accesses resolve during analysis.
func (a *Analyzer) RegisterImport(alias string, span errors.Span) {
	sym := &Symbol{
		Name:        alias,
		Kind:        SymImportAlias,
		Initialized: true,
		Decl:        span,
	}
	if prev, ok := a.table.DeclareGlobal(sym); !ok {
		d := &errors.Diagnostic{
			Severity:  errors.SeverityError,
			Kind:      errors.DuplicateDefinition,
			Message:   "import alias " + alias + " is already in use",
			Span:      span,
			Secondary: []errors.Span{prev.Decl},
		}
		a.diags.Add(d)
	}
	if a.moduleFuncs[alias] == nil {
		a.moduleFuncs[alias] = make(map[string]*FuncSig)
	}
	if a.moduleVars[alias] == nil {
		a.moduleVars[alias] = make(map[string]*Symbol)
	}
}

// HasModule reports whether alias names an imported module.
func (a *Analyzer) HasModule(alias string) bool {
	_, f := a.moduleFuncs[alias]
	_, v := a.moduleVars[alias]
	return f || v
}
