// internal/parser/parser.go
package parser

import (
	"path/filepath"
	"strconv"
	"strings"

	"rzn/internal/errors"
	"rzn/internal/lexer"
)

// Parser builds a Program from a token stream. It recovers from errors at
// statement boundaries so a single malformed statement does not hide the
// rest of the file.
type Parser struct {
	tokens  []lexer.Token
	current int
	file    string
	diags   *errors.DiagnosticList
	// noStruct suppresses struct-literal parsing inside control-flow
	// headers, where `ident {` begins the body block instead.
	noStruct int
}

func New(tokens []lexer.Token, file string, diags *errors.DiagnosticList) *Parser {
	return &Parser{tokens: tokens, file: file, diags: diags}
}

// ParseSource is the convenience entrypoint: scan and parse a source file.
func ParseSource(source, file string, diags *errors.DiagnosticList) *Program {
	tokens := lexer.NewScanner(source, file, diags).ScanTokens()
	return New(tokens, file, diags).Parse()
}

func (p *Parser) Parse() *Program {
	prog := &Program{File: p.file}
	for !p.isAtEnd() {
		p.skipSeparators()
		if p.isAtEnd() {
			break
		}
		stmt := p.declaration()
		if stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
		}
	}
	return prog
}

// --- token plumbing ---

func (p *Parser) peek() lexer.Token { return p.tokens[p.current] }

func (p *Parser) previous() lexer.Token { return p.tokens[p.current-1] }

func (p *Parser) isAtEnd() bool { return p.peek().Type == lexer.TokenEOF }

func (p *Parser) advance() lexer.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) check(t lexer.TokenType) bool { return p.peek().Type == t }

func (p *Parser) checkNext(t lexer.TokenType) bool {
	if p.current+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.current+1].Type == t
}

func (p *Parser) match(tts ...lexer.TokenType) bool {
	for _, tt := range tts {
		if p.check(tt) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorf("%s, found %q", msg, p.peek().Lexeme)
	return p.peek()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.diags.Errorf("SyntaxError", p.peek().Span, format, args...)
}

func (p *Parser) skipSeparators() {
	for p.match(lexer.TokenSemicolon) {
	}
}

// synchronize skips tokens until a likely statement boundary.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		if p.previous().Type == lexer.TokenSemicolon {
			return
		}
		switch p.peek().Type {
		case lexer.TokenVar, lexer.TokenConst, lexer.TokenFun, lexer.TokenStruct,
			lexer.TokenEnum, lexer.TokenImpl, lexer.TokenIf, lexer.TokenWhile,
			lexer.TokenFor, lexer.TokenMatch, lexer.TokenReturn, lexer.TokenRBrace:
			return
		}
		p.advance()
	}
}

// --- declarations and statements ---

func (p *Parser) declaration() Stmt {
	start := p.current
	pub := p.match(lexer.TokenPub)
	switch {
	case p.match(lexer.TokenVar):
		return p.varDecl(pub, false)
	case p.match(lexer.TokenConst):
		return p.varDecl(pub, true)
	case p.match(lexer.TokenFun):
		return p.funDecl(pub)
	case p.match(lexer.TokenStruct):
		return p.structDecl(pub)
	case p.match(lexer.TokenEnum):
		return p.enumDecl(pub)
	case p.match(lexer.TokenImpl):
		return p.implBlock()
	case p.match(lexer.TokenUse):
		return p.useStmt()
	}
	if pub {
		p.errorf("'pub' must precede a declaration")
		p.current = start + 1
		p.synchronize()
		return nil
	}
	return p.statement()
}

func (p *Parser) varDecl(pub, isConst bool) Stmt {
	sp := p.previous().Span
	name := p.expect(lexer.TokenIdent, "expected variable name")
	decl := &VarDecl{
		stmtBase: stmtBase{Sp: sp},
		Pub:      pub,
		IsConst:  isConst,
		Name:     name.Lexeme,
	}
	if p.match(lexer.TokenColon) {
		decl.TypeAnn = p.typeAnnotation()
	}
	if p.match(lexer.TokenEqual) {
		decl.Init = p.expression()
	} else if isConst {
		p.errorf("const %q requires an initializer", decl.Name)
	}
	return decl
}

func (p *Parser) funDecl(pub bool) *FunDecl {
	sp := p.previous().Span
	name := p.expect(lexer.TokenIdent, "expected function name")
	fn := &FunDecl{stmtBase: stmtBase{Sp: sp}, Pub: pub, Name: name.Lexeme}
	p.expect(lexer.TokenLParen, "expected '(' after function name")
	for !p.check(lexer.TokenRParen) && !p.isAtEnd() {
		if p.match(lexer.TokenSelf) {
			fn.Params = append(fn.Params, Param{Name: "self", Span: p.previous().Span})
		} else {
			pn := p.expect(lexer.TokenIdent, "expected parameter name")
			param := Param{Name: pn.Lexeme, Span: pn.Span}
			if p.match(lexer.TokenColon) {
				param.TypeAnn = p.typeAnnotation()
			}
			fn.Params = append(fn.Params, param)
		}
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRParen, "expected ')' after parameters")
	if p.match(lexer.TokenThinArrow) {
		fn.ReturnAnn = p.typeAnnotation()
	}
	fn.Body = p.block()
	return fn
}

func (p *Parser) structDecl(pub bool) Stmt {
	sp := p.previous().Span
	name := p.expect(lexer.TokenIdent, "expected struct name")
	decl := &StructDecl{stmtBase: stmtBase{Sp: sp}, Pub: pub, Name: name.Lexeme}
	p.expect(lexer.TokenLBrace, "expected '{' after struct name")
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		fn := p.expect(lexer.TokenIdent, "expected field name")
		field := FieldDef{Name: fn.Lexeme, Span: fn.Span}
		p.expect(lexer.TokenColon, "expected ':' after field name")
		field.TypeAnn = p.typeAnnotation()
		decl.Fields = append(decl.Fields, field)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRBrace, "expected '}' after struct fields")
	return decl
}

func (p *Parser) enumDecl(pub bool) Stmt {
	sp := p.previous().Span
	name := p.expect(lexer.TokenIdent, "expected enum name")
	decl := &EnumDecl{stmtBase: stmtBase{Sp: sp}, Pub: pub, Name: name.Lexeme}
	p.expect(lexer.TokenLBrace, "expected '{' after enum name")
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		vn := p.expect(lexer.TokenIdent, "expected variant name")
		variant := VariantDef{Name: vn.Lexeme, Span: vn.Span}
		if p.match(lexer.TokenLParen) {
			variant.PayloadAnn = p.typeAnnotation()
			p.expect(lexer.TokenRParen, "expected ')' after variant payload type")
		}
		decl.Variants = append(decl.Variants, variant)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRBrace, "expected '}' after enum variants")
	return decl
}

func (p *Parser) implBlock() Stmt {
	sp := p.previous().Span
	target := p.expect(lexer.TokenIdent, "expected type name after 'impl'")
	impl := &ImplBlock{stmtBase: stmtBase{Sp: sp}, Target: target.Lexeme}
	p.expect(lexer.TokenLBrace, "expected '{' after impl target")
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		p.skipSeparators()
		if p.check(lexer.TokenRBrace) {
			break
		}
		pub := p.match(lexer.TokenPub)
		p.expect(lexer.TokenFun, "expected method declaration in impl block")
		impl.Methods = append(impl.Methods, p.funDecl(pub))
	}
	p.expect(lexer.TokenRBrace, "expected '}' after impl block")
	return impl
}

func (p *Parser) useStmt() Stmt {
	sp := p.previous().Span
	path := p.expect(lexer.TokenString, "expected module path string after 'use'")
	stmt := &UseStmt{stmtBase: stmtBase{Sp: sp}, Path: path.Lexeme}
	if p.match(lexer.TokenAs) {
		alias := p.expect(lexer.TokenIdent, "expected alias after 'as'")
		stmt.Alias = alias.Lexeme
	} else {
		base := filepath.Base(stmt.Path)
		stmt.Alias = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return stmt
}

func (p *Parser) statement() Stmt {
	switch {
	case p.match(lexer.TokenIf):
		return p.ifStmt()
	case p.match(lexer.TokenWhile):
		return p.whileStmt()
	case p.match(lexer.TokenFor):
		return p.forStmt()
	case p.match(lexer.TokenMatch):
		return p.matchStmt()
	case p.match(lexer.TokenReturn):
		sp := p.previous().Span
		var value Expr
		if !p.check(lexer.TokenSemicolon) && !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
			value = p.expression()
		}
		return &ReturnStmt{stmtBase: stmtBase{Sp: sp}, Value: value}
	case p.match(lexer.TokenBreak):
		return &BreakStmt{stmtBase: stmtBase{Sp: p.previous().Span}}
	case p.match(lexer.TokenContinue):
		return &ContinueStmt{stmtBase: stmtBase{Sp: p.previous().Span}}
	case p.match(lexer.TokenThrow):
		sp := p.previous().Span
		return &ThrowStmt{stmtBase: stmtBase{Sp: sp}, Value: p.expression()}
	case p.match(lexer.TokenTry):
		return p.tryStmt()
	case p.check(lexer.TokenLBrace):
		return p.block()
	}
	sp := p.peek().Span
	expr := p.expression()
	if expr == nil {
		p.synchronize()
		return nil
	}
	return &ExprStmt{stmtBase: stmtBase{Sp: sp}, E: expr}
}

func (p *Parser) block() *Block {
	sp := p.peek().Span
	p.expect(lexer.TokenLBrace, "expected '{'")
	blk := &Block{stmtBase: stmtBase{Sp: sp}}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		p.skipSeparators()
		if p.check(lexer.TokenRBrace) {
			break
		}
		stmt := p.declaration()
		if stmt != nil {
			blk.Stmts = append(blk.Stmts, stmt)
		}
	}
	p.expect(lexer.TokenRBrace, "expected '}'")
	return blk
}

func (p *Parser) headerExpr() Expr {
	p.noStruct++
	expr := p.expression()
	p.noStruct--
	return expr
}

func (p *Parser) ifStmt() Stmt {
	sp := p.previous().Span
	cond := p.headerExpr()
	then := p.block()
	stmt := &IfStmt{stmtBase: stmtBase{Sp: sp}, Cond: cond, Then: then}
	if p.match(lexer.TokenElif) {
		stmt.Else = p.ifStmt()
	} else if p.match(lexer.TokenElse) {
		if p.match(lexer.TokenIf) {
			stmt.Else = p.ifStmt()
		} else {
			stmt.Else = p.block()
		}
	}
	return stmt
}

func (p *Parser) whileStmt() Stmt {
	sp := p.previous().Span
	cond := p.headerExpr()
	body := p.block()
	return &WhileStmt{stmtBase: stmtBase{Sp: sp}, Cond: cond, Body: body}
}

func (p *Parser) forStmt() Stmt {
	sp := p.previous().Span
	name := p.expect(lexer.TokenIdent, "expected loop variable name")
	p.expect(lexer.TokenIn, "expected 'in' after loop variable")
	iter := p.headerExpr()
	body := p.block()
	return &ForStmt{stmtBase: stmtBase{Sp: sp}, Var: name.Lexeme, Iter: iter, Body: body}
}

func (p *Parser) matchStmt() Stmt {
	sp := p.previous().Span
	scrutinee := p.headerExpr()
	stmt := &MatchStmt{stmtBase: stmtBase{Sp: sp}, Scrutinee: scrutinee}
	p.expect(lexer.TokenLBrace, "expected '{' after match scrutinee")
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		p.skipSeparators()
		if p.check(lexer.TokenRBrace) {
			break
		}
		pattern := p.pattern()
		p.expect(lexer.TokenFatArrow, "expected '=>' after match pattern")
		var body *Block
		if p.check(lexer.TokenLBrace) {
			body = p.block()
		} else {
			esp := p.peek().Span
			expr := p.expression()
			body = &Block{
				stmtBase: stmtBase{Sp: esp},
				Stmts:    []Stmt{&ExprStmt{stmtBase: stmtBase{Sp: esp}, E: expr}},
			}
		}
		stmt.Arms = append(stmt.Arms, MatchArm{Pattern: pattern, Body: body})
		p.match(lexer.TokenComma)
	}
	p.expect(lexer.TokenRBrace, "expected '}' after match arms")
	return stmt
}

func (p *Parser) pattern() Pattern {
	sp := p.peek().Span
	if p.check(lexer.TokenIdent) && p.peek().Lexeme == "_" {
		p.advance()
		return Pattern{Wildcard: true, Span: sp}
	}
	if p.check(lexer.TokenIdent) && p.checkNext(lexer.TokenDoubleColon) {
		typeName := p.advance().Lexeme
		p.advance() // ::
		variant := p.expect(lexer.TokenIdent, "expected variant name").Lexeme
		pat := Pattern{EnumType: typeName, Variant: variant, Span: sp}
		if p.match(lexer.TokenLParen) {
			binding := p.expect(lexer.TokenIdent, "expected payload binding name")
			pat.Binding = binding.Lexeme
			p.expect(lexer.TokenRParen, "expected ')' after payload binding")
		}
		return pat
	}
	p.noStruct++
	lit := p.expression()
	p.noStruct--
	return Pattern{Lit: lit, Span: sp}
}

func (p *Parser) tryStmt() Stmt {
	sp := p.previous().Span
	body := p.block()
	p.expect(lexer.TokenCatch, "expected 'catch' after try block")
	name := p.expect(lexer.TokenIdent, "expected catch binding name")
	handler := p.block()
	return &TryStmt{
		stmtBase:  stmtBase{Sp: sp},
		Body:      body,
		CatchName: name.Lexeme,
		Handler:   handler,
	}
}

// typeAnnotation collects an annotation like int, Array<int>, Map<str,int>
// as source text; the semantic analyzer resolves it against declared types.
func (p *Parser) typeAnnotation() string {
	name := p.expect(lexer.TokenIdent, "expected type name")
	ann := name.Lexeme
	if p.check(lexer.TokenLT) {
		depth := 0
		for !p.isAtEnd() {
			tok := p.peek()
			switch tok.Type {
			case lexer.TokenLT:
				depth++
			case lexer.TokenGT:
				depth--
			case lexer.TokenShr:
				depth -= 2
			}
			p.advance()
			if tok.Type == lexer.TokenShr {
				ann += ">>"
			} else {
				ann += tok.Lexeme
			}
			if depth <= 0 {
				break
			}
		}
	}
	return ann
}

// --- expressions, precedence climbing ---

func (p *Parser) expression() Expr {
	return p.assignment()
}

func (p *Parser) assignment() Expr {
	expr := p.or()
	var op string
	switch p.peek().Type {
	case lexer.TokenEqual:
		op = "="
	case lexer.TokenPlusEq:
		op = "+"
	case lexer.TokenMinusEq:
		op = "-"
	case lexer.TokenStarEq:
		op = "*"
	case lexer.TokenSlashEq:
		op = "/"
	case lexer.TokenPercentEq:
		op = "%"
	case lexer.TokenPowerEq:
		op = "**"
	case lexer.TokenFloorDivEq:
		op = "//"
	case lexer.TokenAmpEq:
		op = "&"
	case lexer.TokenPipeEq:
		op = "|"
	case lexer.TokenCaretEq:
		op = "^"
	case lexer.TokenShlEq:
		op = "<<"
	case lexer.TokenShrEq:
		op = ">>"
	default:
		return expr
	}
	sp := p.advance().Span
	value := p.assignment()
	return &Assign{exprBase: exprBase{Sp: sp}, Op: op, Target: expr, Value: value}
}

func (p *Parser) or() Expr {
	expr := p.and()
	for p.match(lexer.TokenOr) {
		sp := p.previous().Span
		right := p.and()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: "||", Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) and() Expr {
	expr := p.rangeExpr()
	for p.match(lexer.TokenAnd) {
		sp := p.previous().Span
		right := p.rangeExpr()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: "&&", Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) rangeExpr() Expr {
	expr := p.equality()
	if p.match(lexer.TokenRange, lexer.TokenRangeIncl) {
		op := string(p.previous().Type)
		sp := p.previous().Span
		right := p.equality()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) equality() Expr {
	expr := p.comparison()
	for p.match(lexer.TokenDoubleEqual, lexer.TokenNotEqual) {
		op := string(p.previous().Type)
		sp := p.previous().Span
		right := p.comparison()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) comparison() Expr {
	expr := p.bitOr()
	for p.match(lexer.TokenLT, lexer.TokenLE, lexer.TokenGT, lexer.TokenGE) {
		op := string(p.previous().Type)
		sp := p.previous().Span
		right := p.bitOr()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) bitOr() Expr {
	expr := p.bitXor()
	for p.match(lexer.TokenPipe) {
		sp := p.previous().Span
		right := p.bitXor()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: "|", Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) bitXor() Expr {
	expr := p.bitAnd()
	for p.match(lexer.TokenCaret) {
		sp := p.previous().Span
		right := p.bitAnd()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: "^", Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) bitAnd() Expr {
	expr := p.shift()
	for p.match(lexer.TokenAmp) {
		sp := p.previous().Span
		right := p.shift()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: "&", Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) shift() Expr {
	expr := p.additive()
	for p.match(lexer.TokenShl, lexer.TokenShr) {
		op := string(p.previous().Type)
		sp := p.previous().Span
		right := p.additive()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) additive() Expr {
	expr := p.multiplicative()
	for p.match(lexer.TokenPlus, lexer.TokenMinus) {
		op := string(p.previous().Type)
		sp := p.previous().Span
		right := p.multiplicative()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) multiplicative() Expr {
	expr := p.power()
	for p.match(lexer.TokenStar, lexer.TokenSlash, lexer.TokenPercent, lexer.TokenFloorDiv) {
		op := string(p.previous().Type)
		sp := p.previous().Span
		right := p.power()
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) power() Expr {
	expr := p.unary()
	if p.match(lexer.TokenPower) {
		sp := p.previous().Span
		right := p.power() // right associative
		expr = &Binary{exprBase: exprBase{Sp: sp}, Op: "**", Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) unary() Expr {
	switch {
	case p.match(lexer.TokenMinus):
		sp := p.previous().Span
		return &Unary{exprBase: exprBase{Sp: sp}, Op: "-", Operand: p.unary()}
	case p.match(lexer.TokenNot):
		sp := p.previous().Span
		return &Unary{exprBase: exprBase{Sp: sp}, Op: "!", Operand: p.unary()}
	case p.match(lexer.TokenTilde):
		sp := p.previous().Span
		return &Unary{exprBase: exprBase{Sp: sp}, Op: "~", Operand: p.unary()}
	case p.match(lexer.TokenPlusPlus):
		sp := p.previous().Span
		return &Unary{exprBase: exprBase{Sp: sp}, Op: "++", Operand: p.unary()}
	case p.match(lexer.TokenMinusMinus):
		sp := p.previous().Span
		return &Unary{exprBase: exprBase{Sp: sp}, Op: "--", Operand: p.unary()}
	}
	return p.postfix()
}

func (p *Parser) postfix() Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenLParen):
			sp := p.previous().Span
			call := &Call{exprBase: exprBase{Sp: sp}, Callee: expr}
			for !p.check(lexer.TokenRParen) && !p.isAtEnd() {
				call.Args = append(call.Args, p.expression())
				if !p.match(lexer.TokenComma) {
					break
				}
			}
			p.expect(lexer.TokenRParen, "expected ')' after arguments")
			expr = call
		case p.match(lexer.TokenDot):
			sp := p.previous().Span
			name := p.expect(lexer.TokenIdent, "expected member name after '.'")
			expr = &Member{exprBase: exprBase{Sp: sp}, Object: expr, Name: name.Lexeme}
		case p.match(lexer.TokenLBracket):
			sp := p.previous().Span
			idx := p.expression()
			p.expect(lexer.TokenRBracket, "expected ']' after index")
			expr = &Index{exprBase: exprBase{Sp: sp}, Object: expr, Idx: idx}
		case p.match(lexer.TokenPlusPlus):
			expr = &Unary{exprBase: exprBase{Sp: p.previous().Span}, Op: "++", Operand: expr, Postfix: true}
		case p.match(lexer.TokenMinusMinus):
			expr = &Unary{exprBase: exprBase{Sp: p.previous().Span}, Op: "--", Operand: expr, Postfix: true}
		default:
			return expr
		}
	}
}

func (p *Parser) primary() Expr {
	switch {
	case p.match(lexer.TokenInt):
		tok := p.previous()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			p.diags.Errorf("SyntaxError", tok.Span, "integer literal %q out of range", tok.Lexeme)
		}
		return &IntLit{exprBase: exprBase{Sp: tok.Span}, Value: v}
	case p.match(lexer.TokenFloat):
		tok := p.previous()
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			p.diags.Errorf("SyntaxError", tok.Span, "invalid float literal %q", tok.Lexeme)
		}
		return &FloatLit{exprBase: exprBase{Sp: tok.Span}, Value: v}
	case p.match(lexer.TokenString):
		tok := p.previous()
		return &StringLit{exprBase: exprBase{Sp: tok.Span}, Value: tok.Lexeme}
	case p.match(lexer.TokenFString):
		return p.fstring(p.previous())
	case p.match(lexer.TokenChar):
		tok := p.previous()
		r := rune(0)
		for _, c := range tok.Lexeme {
			r = c
			break
		}
		return &CharLit{exprBase: exprBase{Sp: tok.Span}, Value: r}
	case p.match(lexer.TokenTrue):
		return &BoolLit{exprBase: exprBase{Sp: p.previous().Span}, Value: true}
	case p.match(lexer.TokenFalse):
		return &BoolLit{exprBase: exprBase{Sp: p.previous().Span}, Value: false}
	case p.match(lexer.TokenNull):
		return &NullLit{exprBase: exprBase{Sp: p.previous().Span}}
	case p.match(lexer.TokenSelf):
		return &SelfExpr{exprBase: exprBase{Sp: p.previous().Span}}
	case p.match(lexer.TokenLParen):
		sp := p.previous().Span
		inner := p.expression()
		p.expect(lexer.TokenRParen, "expected ')' after expression")
		return &Group{exprBase: exprBase{Sp: sp}, Inner: inner}
	case p.match(lexer.TokenLBracket):
		sp := p.previous().Span
		arr := &ArrayLit{exprBase: exprBase{Sp: sp}}
		for !p.check(lexer.TokenRBracket) && !p.isAtEnd() {
			arr.Elems = append(arr.Elems, p.expression())
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.expect(lexer.TokenRBracket, "expected ']' after array elements")
		return arr
	case p.match(lexer.TokenLBrace):
		return p.mapLit()
	case p.check(lexer.TokenIdent):
		return p.identExpr()
	}
	p.errorf("expected expression, found %q", p.peek().Lexeme)
	p.advance()
	return &NullLit{exprBase: exprBase{Sp: p.previous().Span}}
}

func (p *Parser) mapLit() Expr {
	sp := p.previous().Span
	m := &MapLit{exprBase: exprBase{Sp: sp}}
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		key := p.expression()
		p.expect(lexer.TokenColon, "expected ':' after map key")
		value := p.expression()
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, value)
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.expect(lexer.TokenRBrace, "expected '}' after map entries")
	return m
}

func (p *Parser) identExpr() Expr {
	tok := p.advance()
	// Enum instantiation: Type::Variant or Type::Variant(payload)
	if p.check(lexer.TokenDoubleColon) {
		p.advance()
		variant := p.expect(lexer.TokenIdent, "expected variant name after '::'")
		lit := &EnumLit{
			exprBase: exprBase{Sp: tok.Span},
			TypeName: tok.Lexeme,
			Variant:  variant.Lexeme,
		}
		if p.match(lexer.TokenLParen) {
			lit.Payload = p.expression()
			p.expect(lexer.TokenRParen, "expected ')' after variant payload")
		}
		return lit
	}
	// Struct instantiation: Name { field: value, ... }
	if p.noStruct == 0 && p.check(lexer.TokenLBrace) && isTypeName(tok.Lexeme) &&
		p.looksLikeStructLit() {
		p.advance()
		lit := &StructLit{exprBase: exprBase{Sp: tok.Span}, Name: tok.Lexeme}
		for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
			fn := p.expect(lexer.TokenIdent, "expected field name")
			p.expect(lexer.TokenColon, "expected ':' after field name")
			lit.Fields = append(lit.Fields, StructLitField{Name: fn.Lexeme, Value: p.expression()})
			if !p.match(lexer.TokenComma) {
				break
			}
		}
		p.expect(lexer.TokenRBrace, "expected '}' after struct fields")
		return lit
	}
	return &Ident{exprBase: exprBase{Sp: tok.Span}, Name: tok.Lexeme}
}

// looksLikeStructLit peeks past '{' for the `ident :` shape that opens a
// struct literal body, to keep `Name {` in statement position unambiguous.
func (p *Parser) looksLikeStructLit() bool {
	if p.current+2 >= len(p.tokens) {
		return false
	}
	if p.tokens[p.current+1].Type == lexer.TokenRBrace {
		return true
	}
	return p.tokens[p.current+1].Type == lexer.TokenIdent &&
		p.tokens[p.current+2].Type == lexer.TokenColon
}

func (p *Parser) fstring(tok lexer.Token) Expr {
	lit := &FStringLit{exprBase: exprBase{Sp: tok.Span}}
	for _, part := range tok.Parts {
		if !part.IsExpr {
			lit.Parts = append(lit.Parts, FStringPart{Lit: part.Text})
			continue
		}
		sub := ParseSource(part.Text, p.file, p.diags)
		var expr Expr
		if len(sub.Stmts) == 1 {
			if es, ok := sub.Stmts[0].(*ExprStmt); ok {
				expr = es.E
			}
		}
		if expr == nil {
			p.diags.Errorf("SyntaxError", tok.Span, "invalid expression in f-string interpolation")
			expr = &NullLit{exprBase: exprBase{Sp: tok.Span}}
		}
		lit.Parts = append(lit.Parts, FStringPart{IsExpr: true, Expr: expr})
	}
	return lit
}

// isTypeName reports whether an identifier follows the type naming
// convention (leading upper-case letter).
func isTypeName(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c >= 'A' && c <= 'Z'
}
