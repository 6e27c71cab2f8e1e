package forge

import (
	"strconv"
	"strings"
)

// Parser builds an expression tree from a token stream using recursive
// descent. precedence, loosest first: comparison, concatenation,
// addition, multiplication, power (right associative), unary prefix,
// postfix, primary.
type Parser struct {
	tokens []Token
	pos    int
}

// ParseFormula parses formula text into an expression tree. a leading
// '=' marker is accepted and stripped.
func ParseFormula(text string) (Expr, *ModelError) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "=")

	tokens, err := NewLexer(body).Tokenize()
	if err != nil {
		return nil, err
	}

	p := &Parser{tokens: tokens}
	expr, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenEOF {
		return nil, newSyntaxError(p.current().Pos, "unexpected token after expression: "+p.current().Value)
	}
	return expr, nil
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// parseComparison handles = <> < <= > >=
func (p *Parser) parseComparison() (Expr, *ModelError) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenBinaryOp {
		op, ok := binOpFromToken[p.current().Value]
		if !ok || !isComparisonOp(op) {
			break
		}
		opTok := p.advance()
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: op, Left: left, Right: right, Position: opTok.Pos}
	}
	return left, nil
}

// parseConcatenation handles &
func (p *Parser) parseConcatenation() (Expr, *ModelError) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenBinaryOp && p.current().Value == "&" {
		opTok := p.advance()
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: BinOpConcat, Left: left, Right: right, Position: opTok.Pos}
	}
	return left, nil
}

// parseAddition handles + and -
func (p *Parser) parseAddition() (Expr, *ModelError) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenBinaryOp && (p.current().Value == "+" || p.current().Value == "-") {
		opTok := p.advance()
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: binOpFromToken[opTok.Value], Left: left, Right: right, Position: opTok.Pos}
	}
	return left, nil
}

// parseMultiplication handles * and /
func (p *Parser) parseMultiplication() (Expr, *ModelError) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenBinaryOp && (p.current().Value == "*" || p.current().Value == "/") {
		opTok := p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: binOpFromToken[opTok.Value], Left: left, Right: right, Position: opTok.Pos}
	}
	return left, nil
}

// parsePower handles ^ with right associativity via recursion
func (p *Parser) parsePower() (Expr, *ModelError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if p.current().Type == TokenBinaryOp && p.current().Value == "^" {
		opTok := p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryNode{Op: BinOpPower, Left: left, Right: right, Position: opTok.Pos}, nil
	}
	return left, nil
}

// parseUnary handles prefix + and -
func (p *Parser) parseUnary() (Expr, *ModelError) {
	if p.current().Type == TokenUnaryPrefixOp {
		opTok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		op := UnOpPlus
		if opTok.Value == "-" {
			op = UnOpMinus
		}
		return &UnaryNode{Op: op, Operand: operand, Position: opTok.Pos}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles the % postfix operator and bracket indexing
func (p *Parser) parsePostfix() (Expr, *ModelError) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.current().Type == TokenUnaryPostfixOp:
			opTok := p.advance()
			expr = &UnaryNode{Op: UnOpPercent, Operand: expr, Position: opTok.Pos}
		case p.current().Type == TokenLeftBracket:
			ref, ok := expr.(*ReferenceNode)
			if !ok {
				return nil, newSyntaxError(p.current().Pos, "indexing is only valid on a reference")
			}
			openTok := p.advance()
			index, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			if p.current().Type != TokenRightBracket {
				return nil, newSyntaxError(p.current().Pos, "expected closing bracket")
			}
			p.advance()
			expr = &IndexNode{Ref: ref, Index: index, Position: openTok.Pos}
		default:
			return expr, nil
		}
	}
}

// parsePrimary handles literals, references, function calls, array
// literals, and parenthesized expressions
func (p *Parser) parsePrimary() (Expr, *ModelError) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.advance()
		value, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, newSyntaxError(tok.Pos, "invalid number: "+tok.Value)
		}
		return &NumberNode{Value: value, Position: tok.Pos}, nil

	case TokenString:
		p.advance()
		return &StringNode{Value: tok.Value, Position: tok.Pos}, nil

	case TokenBoolean:
		p.advance()
		return &BooleanNode{Value: tok.Value == "TRUE", Position: tok.Pos}, nil

	case TokenIdentifier:
		p.advance()
		if table, name, found := strings.Cut(tok.Value, "."); found {
			return &ReferenceNode{Table: table, Name: name, Position: tok.Pos}, nil
		}
		return &ReferenceNode{Name: tok.Value, Position: tok.Pos}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftBracket:
		return p.parseArrayLiteral()

	case TokenLeftParen:
		openTok := p.advance()
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.current().Type != TokenRightParen {
			return nil, newSyntaxError(p.current().Pos, "expected closing parenthesis")
		}
		p.advance()
		return &GroupNode{Inner: inner, Position: openTok.Pos}, nil

	case TokenEOF:
		return nil, newSyntaxError(tok.Pos, "unexpected end of formula")

	default:
		return nil, newSyntaxError(tok.Pos, "unexpected token: "+tok.Value)
	}
}

// parseFunctionCall parses NAME(arg, arg, ...)
func (p *Parser) parseFunctionCall() (Expr, *ModelError) {
	nameTok := p.advance()

	if p.current().Type != TokenLeftParen {
		return nil, newSyntaxError(p.current().Pos, "expected opening parenthesis after function name")
	}
	p.advance()

	var args []Expr
	if p.current().Type == TokenRightParen {
		p.advance()
		return &CallNode{Name: nameTok.Value, Args: args, Position: nameTok.Pos}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		switch p.current().Type {
		case TokenComma:
			p.advance()
		case TokenRightParen:
			p.advance()
			return &CallNode{Name: nameTok.Value, Args: args, Position: nameTok.Pos}, nil
		default:
			return nil, newSyntaxError(p.current().Pos, "expected comma or closing parenthesis in argument list")
		}
	}
}

// parseArrayLiteral parses [e1, e2, ...]
func (p *Parser) parseArrayLiteral() (Expr, *ModelError) {
	openTok := p.advance()

	var elements []Expr
	for {
		el, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)

		switch p.current().Type {
		case TokenComma:
			p.advance()
		case TokenRightBracket:
			p.advance()
			return &ArrayNode{Elements: elements, Position: openTok.Pos}, nil
		default:
			return nil, newSyntaxError(p.current().Pos, "expected comma or closing bracket in array literal")
		}
	}
}

func isComparisonOp(op BinOp) bool {
	switch op {
	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		return true
	default:
		return false
	}
}
