// internal/compiler/stmt_compiler.go
package compiler

import (
	"rzn/internal/ir"
	"rzn/internal/parser"
)

func (c *Compiler) stmt(s parser.Stmt) {
	switch st := s.(type) {
	case *parser.VarDecl:
		c.varDecl(st)
	case *parser.ExprStmt:
		c.exprStmt(st)
	case *parser.Block:
		c.pushScope()
		for _, inner := range st.Stmts {
			c.stmt(inner)
		}
		c.popScope()
	case *parser.IfStmt:
		c.ifStmt(st)
	case *parser.WhileStmt:
		c.whileStmt(st)
	case *parser.ForStmt:
		c.forStmt(st)
	case *parser.MatchStmt:
		c.matchStmt(st)
	case *parser.ReturnStmt:
		if st.Value != nil {
			c.expr(st.Value)
		} else {
			c.emit(ir.Instr{Op: ir.OpPushNull})
		}
		c.emit(ir.Instr{Op: ir.OpReturn})
	case *parser.BreakStmt:
		if len(c.loops) > 0 {
			c.jump(ir.OpJump, c.loops[len(c.loops)-1].breakLabel)
		}
	case *parser.ContinueStmt:
		if len(c.loops) > 0 {
			c.jump(ir.OpJump, c.loops[len(c.loops)-1].continueLabel)
		}
	case *parser.ThrowStmt:
		c.expr(st.Value)
		c.emit(ir.Instr{Op: ir.OpThrowException})
	case *parser.TryStmt:
		c.tryStmt(st)
	case *parser.FunDecl, *parser.StructDecl, *parser.EnumDecl,
		*parser.ImplBlock, *parser.UseStmt:
		// compiled separately / no code
	}
}

func (c *Compiler) varDecl(st *parser.VarDecl) {
	if !c.inFunc {
		if st.Init != nil {
			c.expr(st.Init)
			c.emit(ir.Instr{Op: ir.OpStoreGlobal, S: c.intern(c.globalName(st.Name))})
		}
		return
	}
	slot := c.declareSlot(st.Name)
	if st.Init != nil {
		c.expr(st.Init)
		c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(slot)})
	}
	// A var without an initializer leaves its slot unwritten; reading it
	// before the first store is a runtime error.
}

func (c *Compiler) exprStmt(st *parser.ExprStmt) {
	switch e := st.E.(type) {
	case *parser.Assign:
		c.assign(e, false)
	case *parser.Unary:
		if e.Op == "++" || e.Op == "--" {
			c.incDec(e, false)
			return
		}
		c.expr(e)
		c.emit(ir.Instr{Op: ir.OpPop})
	default:
		c.expr(st.E)
		c.emit(ir.Instr{Op: ir.OpPop})
	}
}

func (c *Compiler) ifStmt(st *parser.IfStmt) {
	elseLabel := c.newLabel()
	endLabel := c.newLabel()
	c.expr(st.Cond)
	c.jump(ir.OpJumpIfFalse, elseLabel)
	c.pushScope()
	for _, inner := range st.Then.Stmts {
		c.stmt(inner)
	}
	c.popScope()
	c.jump(ir.OpJump, endLabel)
	c.label(elseLabel)
	switch e := st.Else.(type) {
	case *parser.IfStmt:
		c.ifStmt(e)
	case *parser.Block:
		c.pushScope()
		for _, inner := range e.Stmts {
			c.stmt(inner)
		}
		c.popScope()
	}
	c.label(endLabel)
}

func (c *Compiler) whileStmt(st *parser.WhileStmt) {
	head := c.newLabel()
	end := c.newLabel()
	c.label(head)
	c.expr(st.Cond)
	c.jump(ir.OpJumpIfFalse, end)
	c.loops = append(c.loops, loopContext{continueLabel: head, breakLabel: end})
	c.pushScope()
	for _, inner := range st.Body.Stmts {
		c.stmt(inner)
	}
	c.popScope()
	c.loops = c.loops[:len(c.loops)-1]
	c.jump(ir.OpJump, head)
	c.label(end)
}

func (c *Compiler) forStmt(st *parser.ForStmt) {
	if rng, ok := st.Iter.(*parser.Binary); ok && (rng.Op == ".." || rng.Op == "..=") {
		c.forRange(st, rng)
		return
	}
	c.forSequence(st)
}

// forRange emits a counter loop over start..end without materializing the
// range.
func (c *Compiler) forRange(st *parser.ForStmt, rng *parser.Binary) {
	c.pushScope()
	loopVar := c.declareSlot(st.Var)
	endSlot := c.tempSlot()

	c.expr(rng.Left)
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(loopVar)})
	c.expr(rng.Right)
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(endSlot)})

	head := c.newLabel()
	cont := c.newLabel()
	end := c.newLabel()
	c.label(head)
	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(loopVar)})
	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(endSlot)})
	if rng.Op == "..=" {
		c.emit(ir.Instr{Op: ir.OpLe})
	} else {
		c.emit(ir.Instr{Op: ir.OpLt})
	}
	c.jump(ir.OpJumpIfFalse, end)

	c.loops = append(c.loops, loopContext{continueLabel: cont, breakLabel: end})
	for _, inner := range st.Body.Stmts {
		c.stmt(inner)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.label(cont)
	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(loopVar)})
	c.emit(ir.Instr{Op: ir.OpPushInt, A: 1})
	c.emit(ir.Instr{Op: ir.OpAdd})
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(loopVar)})
	c.jump(ir.OpJump, head)
	c.label(end)
	c.popScope()
}

// forSequence emits an index loop over arrays, strings, and maps. Indexing
// a map with an int yields its i-th key in insertion order, which makes the
// same loop shape serve all three.
func (c *Compiler) forSequence(st *parser.ForStmt) {
	c.pushScope()
	loopVar := c.declareSlot(st.Var)
	seqSlot := c.tempSlot()
	idxSlot := c.tempSlot()

	c.expr(st.Iter)
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(seqSlot)})
	c.emit(ir.Instr{Op: ir.OpPushInt, A: 0})
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(idxSlot)})

	head := c.newLabel()
	cont := c.newLabel()
	end := c.newLabel()
	c.label(head)
	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(idxSlot)})
	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(seqSlot)})
	c.emit(ir.Instr{Op: ir.OpLength})
	c.emit(ir.Instr{Op: ir.OpLt})
	c.jump(ir.OpJumpIfFalse, end)

	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(seqSlot)})
	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(idxSlot)})
	c.emit(ir.Instr{Op: ir.OpGetIndex})
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(loopVar)})

	c.loops = append(c.loops, loopContext{continueLabel: cont, breakLabel: end})
	for _, inner := range st.Body.Stmts {
		c.stmt(inner)
	}
	c.loops = c.loops[:len(c.loops)-1]

	c.label(cont)
	c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(idxSlot)})
	c.emit(ir.Instr{Op: ir.OpPushInt, A: 1})
	c.emit(ir.Instr{Op: ir.OpAdd})
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(idxSlot)})
	c.jump(ir.OpJump, head)
	c.label(end)
	c.popScope()
}

// matchStmt lowers match to a chain of equality tests. A wildcard arm
// branches unconditionally; falling past every arm throws.
func (c *Compiler) matchStmt(st *parser.MatchStmt) {
	c.pushScope()
	scrut := c.tempSlot()
	c.expr(st.Scrutinee)
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(scrut)})

	end := c.newLabel()
	for _, arm := range st.Arms {
		next := c.newLabel()
		pat := arm.Pattern
		switch {
		case pat.Wildcard:
			// unconditional arm
		case pat.EnumType != "":
			c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(scrut)})
			c.emit(ir.Instr{Op: ir.OpEnumMatch, S: c.intern(pat.Variant)})
			c.jump(ir.OpJumpIfFalse, next)
		default:
			c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(scrut)})
			c.expr(pat.Lit)
			c.emit(ir.Instr{Op: ir.OpEq})
			c.jump(ir.OpJumpIfFalse, next)
		}
		c.pushScope()
		if pat.Binding != "" {
			slot := c.declareSlot(pat.Binding)
			c.emit(ir.Instr{Op: ir.OpLoadVar, A: int64(scrut)})
			c.emit(ir.Instr{Op: ir.OpGetField, S: c.intern("payload")})
			c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(slot)})
		}
		for _, inner := range arm.Body.Stmts {
			c.stmt(inner)
		}
		c.popScope()
		c.jump(ir.OpJump, end)
		c.label(next)
	}
	c.emit(ir.Instr{Op: ir.OpPushStr, S: c.intern("no match arm applies")})
	c.emit(ir.Instr{Op: ir.OpThrowException})
	c.label(end)
	c.popScope()
}

func (c *Compiler) tryStmt(st *parser.TryStmt) {
	handler := c.newLabel()
	end := c.newLabel()
	c.emit(ir.Instr{Op: ir.OpSetupTryCatch, A: handler})
	c.pushScope()
	for _, inner := range st.Body.Stmts {
		c.stmt(inner)
	}
	c.popScope()
	c.emit(ir.Instr{Op: ir.OpClearTryCatch})
	c.jump(ir.OpJump, end)
	c.label(handler)
	c.pushScope()
	catchSlot := c.declareSlot(st.CatchName)
	c.emit(ir.Instr{Op: ir.OpStoreVar, A: int64(catchSlot)})
	for _, inner := range st.Handler.Stmts {
		c.stmt(inner)
	}
	c.popScope()
	c.label(end)
}
