// internal/compiler/compiler.go
package compiler

import (
	"github.com/pkg/errors"

	"rzn/internal/ir"
	"rzn/internal/parser"
	"rzn/internal/semantic"
)

// ScriptName is the synthetic function holding top-level statements; the
// engine enters the program through it.
const ScriptName = "<script>"

// DynamicCallID marks a Call instruction whose callee is a function value
// on the stack below the arguments instead of a named function.
const DynamicCallID = ir.DynamicCallID

// Compiler lowers an analyzed AST into the stack IR. One Compiler builds
// one ir.Module; imported modules are folded into the same module under
// alias-qualified names.
type Compiler struct {
	module *ir.Module
	an     *semantic.Analyzer

	// Per-function state.
	code      []ir.Instr
	scopes    []map[string]int // name -> slot, innermost last
	nextSlot  int
	nextLabel int64
	loops     []loopContext
	inFunc    bool
	qualifier string // alias prefix for the module being compiled
}

type loopContext struct {
	continueLabel int64
	breakLabel    int64
}

func New(an *semantic.Analyzer) *Compiler {
	return &Compiler{
		module: ir.NewModule(),
		an:     an,
	}
}

// Compile lowers the entry program plus any imported programs (dependencies
// first) into a single IR module. Every function is verified before the
// module is returned; a verification failure is a compiler bug.
func (c *Compiler) Compile(entry *parser.Program, imports []ImportedProgram) (*ir.Module, error) {
	// Functions and methods first so top-level code can call forward.
	for _, imp := range imports {
		c.qualifier = imp.Alias + "."
		if err := c.compileDecls(imp.Program); err != nil {
			return nil, err
		}
	}
	c.qualifier = ""
	if err := c.compileDecls(entry); err != nil {
		return nil, err
	}

	// All top-level statements share one script function: imported module
	// initializers run first, then the entry file's code, then main.
	c.beginFunction(nil)
	c.inFunc = false
	for _, imp := range imports {
		c.qualifier = imp.Alias + "."
		c.topLevel(imp.Program)
	}
	c.qualifier = ""
	c.topLevel(entry)
	scriptBody := c.code

	script := &ir.Function{Name: ScriptName, MaxSlot: c.nextSlot - 1}
	var code []ir.Instr
	for idx, f := range c.module.Funcs {
		code = append(code, ir.Instr{
			Op: ir.OpDefineFunction,
			A:  int64(idx),
			S:  c.module.Strings.Intern(f.Name),
		})
	}
	code = append(code, scriptBody...)
	if _, ok := c.module.ByName["main"]; ok {
		code = append(code,
			ir.Instr{Op: ir.OpCall, S: c.module.Strings.Intern("main"), B: 0},
			ir.Instr{Op: ir.OpPop},
		)
	}
	code = append(code, ir.Instr{Op: ir.OpPushNull}, ir.Instr{Op: ir.OpReturn})
	script.Code = code
	c.module.AddFunction(script)

	if err := ir.VerifyModule(c.module); err != nil {
		return nil, errors.Wrap(err, "compiled module failed verification")
	}
	return c.module, nil
}

func (c *Compiler) compileDecls(prog *parser.Program) error {
	for _, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *parser.FunDecl:
			if err := c.compileFunction(c.qualifier+s.Name, s, false); err != nil {
				return err
			}
		case *parser.ImplBlock:
			for _, m := range s.Methods {
				if err := c.compileFunction(s.Target+"."+m.Name, m, true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Compiler) topLevel(prog *parser.Program) {
	for _, stmt := range prog.Stmts {
		switch stmt.(type) {
		case *parser.FunDecl, *parser.ImplBlock, *parser.StructDecl,
			*parser.EnumDecl, *parser.UseStmt:
			continue
		}
		c.stmt(stmt)
	}
}

func (c *Compiler) compileFunction(name string, fn *parser.FunDecl, isMethod bool) error {
	c.beginFunction(fn)
	for _, p := range fn.Params {
		c.declareSlot(p.Name)
	}
	for _, stmt := range fn.Body.Stmts {
		c.stmt(stmt)
	}
	// Fall-off return yields null.
	c.emit(ir.Instr{Op: ir.OpPushNull})
	c.emit(ir.Instr{Op: ir.OpReturn})

	f := &ir.Function{
		Name:    name,
		Arity:   len(fn.Params),
		Code:    c.code,
		MaxSlot: c.nextSlot - 1,
	}
	for _, p := range fn.Params {
		f.Params = append(f.Params, p.Name)
	}
	f.ReturnType = fn.ReturnAnn
	if f.ReturnType == "" {
		f.ReturnType = "null"
	}
	c.module.AddFunction(f)
	return nil
}

func (c *Compiler) beginFunction(fn *parser.FunDecl) {
	c.code = nil
	c.scopes = []map[string]int{make(map[string]int)}
	c.nextSlot = 0
	c.nextLabel = 0
	c.loops = nil
	c.inFunc = fn != nil
}

// --- emit helpers ---

func (c *Compiler) emit(in ir.Instr) {
	c.code = append(c.code, in)
}

func (c *Compiler) intern(s string) uint32 {
	return c.module.Strings.Intern(s)
}

func (c *Compiler) newLabel() int64 {
	l := c.nextLabel
	c.nextLabel++
	return l
}

func (c *Compiler) label(l int64) {
	c.emit(ir.Instr{Op: ir.OpLabel, A: l})
}

func (c *Compiler) jump(op ir.Op, l int64) {
	c.emit(ir.Instr{Op: op, A: l})
}

// declareSlot assigns a fresh function-local slot for a variable name in
// the current compile scope.
func (c *Compiler) declareSlot(name string) int {
	slot := c.nextSlot
	c.nextSlot++
	c.scopes[len(c.scopes)-1][name] = slot
	return slot
}

// tempSlot allocates an anonymous slot for loop bookkeeping.
func (c *Compiler) tempSlot() int {
	slot := c.nextSlot
	c.nextSlot++
	return slot
}

// lookupSlot resolves a name through the compile-time scope stack.
func (c *Compiler) lookupSlot(name string) (int, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if slot, ok := c.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func (c *Compiler) pushScope() {
	c.scopes = append(c.scopes, make(map[string]int))
}

func (c *Compiler) popScope() {
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// globalName qualifies a top-level variable with the module alias.
func (c *Compiler) globalName(name string) string {
	return c.qualifier + name
}
