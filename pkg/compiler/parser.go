package compiler

import (
	"errors"
	"strconv"
)

// Parser pulls tokens from a Lexer on demand and builds an AST.
//
// Grammar:
//
//	program        = (funDecl | statement)* EOF
//	funDecl        = "fun" IDENTIFIER "(" [IDENTIFIER ("," IDENTIFIER)*] ")" block
//	statement      = varDecl | if | while | return | print | block | exprStmt
//	varDecl        = "var" IDENTIFIER ["=" expression] ";"
//	if             = "if" "(" expression ")" block ["else" (if | block)]
//	while          = "while" "(" expression ")" block
//	return         = "return" [expression] ";"
//	print          = "print" "(" expression ")" ";"
//	block          = "{" statement* "}"
//	exprStmt       = expression ";"
//	expression     = assignment
//	assignment     = IDENTIFIER "=" assignment | logical_or
//	logical_or     = logical_and ("||" logical_and)*
//	logical_and    = equality ("&&" equality)*
//	equality       = comparison (("==" | "!=") comparison)*
//	comparison     = additive (("<" | "<=" | ">" | ">=") additive)*
//	additive       = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = unary (("*" | "/" | "%") unary)*
//	unary          = ("-" | "!") unary | primary
//	primary        = INTEGER | STRING | "true" | "false" | call | IDENTIFIER | "(" expression ")"
//	call           = IDENTIFIER "(" [expression ("," expression)*] ")"
type Parser struct {
	lex *Lexer
	buf []lookahead
}

// lookahead is a buffered token. A lexer failure is buffered as an EOF
// token carrying the error, so the parser reports it when it reaches it.
type lookahead struct {
	tok Token
	err error
}

func NewParser(lex *Lexer) *Parser {
	return &Parser{lex: lex}
}

// Parse lexes and parses src as one translation unit.
func Parse(src string) (*Program, error) {
	return NewParser(NewLexer(src)).ParseProgram()
}

// fill makes sure at least n tokens are buffered.
func (p *Parser) fill(n int) {
	for len(p.buf) < n {
		if k := len(p.buf); k > 0 && (p.buf[k-1].err != nil || p.buf[k-1].tok.Type == EOF) {
			p.buf = append(p.buf, p.buf[k-1])
			continue
		}
		tok, err := p.lex.Next()
		if err != nil {
			tok = Token{Type: EOF, Pos: errorPos(err)}
		}
		p.buf = append(p.buf, lookahead{tok: tok, err: err})
	}
}

func errorPos(err error) Pos {
	var lexErr *LexicalError
	if errors.As(err, &lexErr) {
		return lexErr.Pos
	}
	return Pos{}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	p.fill(offset + 1)
	return p.buf[offset].tok
}

// advance consumes and returns the current token. EOF is never consumed.
func (p *Parser) advance() Token {
	tok := p.peek()
	if tok.Type != EOF {
		p.buf = p.buf[1:]
	}
	return tok
}

// fail builds the error for the current token: the buffered lexical error
// when the lexer gave up here, a SyntaxError otherwise.
func (p *Parser) fail(expected string) error {
	p.fill(1)
	if p.buf[0].err != nil {
		return p.buf[0].err
	}
	tok := p.buf[0].tok
	return &SyntaxError{Expected: expected, Found: tok, Pos: tok.Pos}
}

// expect consumes the current token if it matches tt, otherwise returns an error.
func (p *Parser) expect(tt TokenType) (Token, error) {
	if p.peek().Type != tt {
		return Token{}, p.fail(expectedName(tt))
	}
	return p.advance(), nil
}

func expectedName(tt TokenType) string {
	switch tt {
	case IDENTIFIER:
		return "identifier"
	case INTEGER:
		return "integer"
	case STRING:
		return "string"
	case EOF:
		return "end of input"
	}
	return strconv.Quote(tt.Symbol())
}

// ParseProgram parses the whole token sequence into a Program.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for p.peek().Type != EOF {
		var s Stmt
		var err error
		if p.peek().Type == FUN {
			s, err = p.parseFunctionDecl()
		} else {
			s, err = p.parseStatement()
		}
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, s)
	}
	// A lexical error may surface as the final EOF.
	p.fill(1)
	if p.buf[0].err != nil {
		return nil, p.buf[0].err
	}
	return prog, nil
}

func (p *Parser) parseFunctionDecl() (Stmt, error) {
	funTok := p.advance() // fun
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	var params []string
	if p.peek().Type != RPAREN {
		for {
			param, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			params = append(params, param.Lexeme)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionDecl{Name: nameTok.Lexeme, Params: params, Body: body, Pos: funTok.Pos}, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch p.peek().Type {
	case VAR:
		return p.parseVarDecl()
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case RETURN:
		return p.parseReturn()
	case PRINT:
		return p.parsePrint()
	case LBRACE:
		return p.parseBlock()
	case FUN, ELSE, RBRACE, SEMICOLON:
		return nil, p.fail("statement")
	}

	start := p.peek()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{Expr: expr, Pos: start.Pos}, nil
}

func (p *Parser) parseVarDecl() (Stmt, error) {
	varTok := p.advance() // var
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	decl := &VarDecl{Name: nameTok.Lexeme, Pos: varTok.Pos}
	if p.peek().Type == ASSIGN {
		p.advance()
		decl.Init, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseBlock() (*Block, error) {
	lbrace, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	block := &Block{Pos: lbrace.Pos}
	for p.peek().Type != RBRACE {
		if p.peek().Type == EOF {
			return nil, p.fail(`"}"`)
		}
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Stmts = append(block.Stmts, s)
	}
	p.advance() // }
	return block, nil
}

// parseCondition parses "(" expression ")".
func (p *Parser) parseCondition() (Expr, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return cond, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	ifTok := p.advance() // if
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Cond: cond, Then: then, Pos: ifTok.Pos}
	if p.peek().Type != ELSE {
		return stmt, nil
	}
	p.advance() // else
	if p.peek().Type == IF {
		stmt.Else, err = p.parseIf()
	} else {
		stmt.Else, err = p.parseBlock()
	}
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	whileTok := p.advance() // while
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Cond: cond, Body: body, Pos: whileTok.Pos}, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	retTok := p.advance() // return
	stmt := &ReturnStmt{Pos: retTok.Pos}
	if p.peek().Type != SEMICOLON {
		var err error
		stmt.Value, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parsePrint() (Stmt, error) {
	printTok := p.advance() // print
	value, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &PrintStmt{Value: value, Pos: printTok.Pos}, nil
}

// parseExpression is the entry point for expression parsing.
func (p *Parser) parseExpression() (Expr, error) {
	return p.parseAssignment()
}

// parseAssignment handles IDENT = expr, right-associative.
func (p *Parser) parseAssignment() (Expr, error) {
	if p.peek().Type == IDENTIFIER && p.peekAt(1).Type == ASSIGN {
		nameTok := p.advance()
		p.advance() // =
		value, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &Assign{Name: nameTok.Lexeme, Value: value, Pos: nameTok.Pos}, nil
	}
	return p.parseLogicalOr()
}

// parseBinaryLevel parses next (op next)* for the operators in ops,
// building a left-associative chain.
func (p *Parser) parseBinaryLevel(next func() (Expr, error), ops ...TokenType) (Expr, error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}
	for matches(p.peek().Type, ops) {
		opTok := p.advance()
		right, err := next()
		if err != nil {
			return nil, err
		}
		expr = &BinaryOp{Op: opTok.Type, Left: expr, Right: right, Pos: opTok.Pos}
	}
	return expr, nil
}

func matches(tt TokenType, ops []TokenType) bool {
	for _, op := range ops {
		if tt == op {
			return true
		}
	}
	return false
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() (Expr, error) {
	return p.parseBinaryLevel(p.parseLogicalAnd, OR_LOGICAL)
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() (Expr, error) {
	return p.parseBinaryLevel(p.parseEquality, AND_LOGICAL)
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinaryLevel(p.parseComparison, EQUALS, NOT_EQ)
}

// parseComparison handles < <= > >=
func (p *Parser) parseComparison() (Expr, error) {
	return p.parseBinaryLevel(p.parseAdditive, LESS, LESS_EQ, GREATER, GREATER_EQ)
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplicative, PLUS, MINUS)
}

// parseMultiplicative handles * / %
func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseBinaryLevel(p.parseUnary, STAR, SLASH, PERCENT)
}

// parseUnary handles prefix - and !
func (p *Parser) parseUnary() (Expr, error) {
	if p.peek().Type == MINUS || p.peek().Type == NOT {
		opTok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: opTok.Type, Operand: operand, Pos: opTok.Pos}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			// The lexer has already range-checked the literal.
			return nil, p.fail("integer")
		}
		return &Literal{Kind: IntLiteral, Int: v, Pos: tok.Pos}, nil
	case STRING:
		p.advance()
		return &Literal{Kind: StringLiteral, Str: tok.Lexeme, Pos: tok.Pos}, nil
	case TRUE, FALSE:
		p.advance()
		v := int64(0)
		if tok.Type == TRUE {
			v = 1
		}
		return &Literal{Kind: IntLiteral, Int: v, Pos: tok.Pos}, nil
	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			return p.parseCall(tok)
		}
		return &Identifier{Name: tok.Lexeme, Pos: tok.Pos}, nil
	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.fail("expression")
}

// parseCall parses the argument list after a callee name.
func (p *Parser) parseCall(callee Token) (Expr, error) {
	p.advance() // (
	call := &Call{Callee: callee.Lexeme, Pos: callee.Pos}
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return call, nil
}
