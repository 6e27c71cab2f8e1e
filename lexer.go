package forge

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenBoolean
	TokenIdentifier // column, table.column, or scalar reference
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenWhitespace
	TokenError
)

// BinOp represents binary operators in AST nodes
type BinOp int

const (
	BinOpAdd BinOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnOp represents unary operators in AST nodes
type UnOp int

const (
	UnOpPlus UnOp = iota
	UnOpMinus
	UnOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charLBracket   = '['
	charRBracket   = ']'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
)

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterIdentifier
	StateAfterLeftBracket
	StateAfterRightBracket
)

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart: {
		TokenUnaryPrefixOp: true, // unary +/-
		TokenNumber:        true,
		TokenString:        true,
		TokenBoolean:       true,
		TokenIdentifier:    true,
		TokenFunction:      true,
		TokenLeftParen:     true,
		TokenLeftBracket:   true, // array literal
	},
	StateAfterValue: { // after number, string, boolean
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true,
		TokenRightBracket:   true,
		TokenComma:          true,
		TokenEOF:            true,
		// whitespace is significant - no consecutive values
	},
	StateAfterOperator: {
		TokenNumber:        true,
		TokenString:        true,
		TokenBoolean:       true,
		TokenIdentifier:    true,
		TokenFunction:      true,
		TokenLeftParen:     true,
		TokenLeftBracket:   true,
		TokenUnaryPrefixOp: true, // only unary after binary
	},
	StateAfterLeftParen: {
		TokenNumber:        true,
		TokenString:        true,
		TokenBoolean:       true,
		TokenIdentifier:    true,
		TokenFunction:      true,
		TokenLeftParen:     true, // nested
		TokenLeftBracket:   true,
		TokenUnaryPrefixOp: true,
		TokenRightParen:    true, // empty parens for arg-less functions like PI()
	},
	StateAfterRightParen: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true, // if nested
		TokenRightBracket:   true,
		TokenComma:          true, // if in function
		TokenEOF:            true,
	},
	StateAfterComma: { // in function args or array literal
		TokenNumber:        true,
		TokenString:        true,
		TokenBoolean:       true,
		TokenIdentifier:    true,
		TokenFunction:      true,
		TokenLeftParen:     true,
		TokenLeftBracket:   true,
		TokenUnaryPrefixOp: true,
	},
	StateAfterIdentifier: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true,
		TokenRightBracket:   true,
		TokenLeftBracket:    true, // row indexing
		TokenComma:          true,
		TokenEOF:            true,
	},
	StateAfterLeftBracket: { // array literal element or row index
		TokenNumber:        true,
		TokenString:        true,
		TokenBoolean:       true,
		TokenIdentifier:    true,
		TokenFunction:      true,
		TokenLeftParen:     true,
		TokenUnaryPrefixOp: true,
	},
	StateAfterRightBracket: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true,
		TokenRightBracket:   true,
		TokenComma:          true,
		TokenEOF:            true,
	},
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// Lexer tokenizes model formula expressions. the leading '=' marker is
// stripped by the caller before lexing.
type Lexer struct {
	input        string
	runes        []rune // UTF-8 aware representation
	pos          int
	state        TokenState
	parenDepth   int
	bracketDepth int
	tokens       []Token
}

// NewLexer creates a new lexer for the given formula body
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input), // runes for UTF-8 support. could do without but a real pain
		pos:    0,
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns tokens or a syntax
// error carrying the offending position
func (l *Lexer) Tokenize() ([]Token, *ModelError) {
	for l.pos < len(l.runes) {
		tok := l.nextToken()
		if tok.Type == TokenError {
			return nil, newSyntaxError(tok.Pos, tok.Value)
		}
		if tok.Type == TokenWhitespace {
			continue
		}
		// validate state transition
		if !tokenTransitions[l.state][tok.Type] {
			return nil, newSyntaxError(tok.Pos, "unexpected token: "+tok.Value)
		}
		l.tokens = append(l.tokens, tok)
		l.updateState(tok.Type)
	}

	if l.parenDepth > 0 {
		return nil, newSyntaxError(l.pos, "unbalanced parentheses: missing closing parenthesis")
	}
	if l.bracketDepth > 0 {
		return nil, newSyntaxError(l.pos, "unbalanced brackets: missing closing bracket")
	}
	if !tokenTransitions[l.state][TokenEOF] && len(l.tokens) > 0 {
		return nil, newSyntaxError(l.pos, "unexpected end of formula")
	}
	if len(l.tokens) == 0 {
		return nil, newSyntaxError(0, "empty formula")
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos})
	return l.tokens, nil
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenNumber, TokenString, TokenBoolean:
		l.state = StateAfterValue
	case TokenIdentifier:
		l.state = StateAfterIdentifier
	case TokenFunction:
		l.state = StateAfterIdentifier
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators keep the current state
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	case TokenComma:
		l.state = StateAfterComma
	case TokenLeftBracket:
		l.state = StateAfterLeftBracket
	case TokenRightBracket:
		l.state = StateAfterRightBracket
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	if ch == charQuote {
		return l.scanString()
	}

	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charLBracket:
		l.pos++
		l.bracketDepth++
		return Token{Type: TokenLeftBracket, Value: "[", Pos: startPos}
	case charRBracket:
		l.pos++
		l.bracketDepth--
		if l.bracketDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing bracket", Pos: startPos}
		}
		return Token{Type: TokenRightBracket, Value: "]", Pos: startPos}
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash, charCaret, charAmpersand:
		return l.scanBinaryOp()
	case charPercent:
		l.pos++
		return Token{Type: TokenUnaryPostfixOp, Value: "%", Pos: startPos}
	case charEqual, charLess, charGreater, charExclaim:
		return l.scanBinaryOp()
	}

	if l.isAlpha(ch) || ch == charUnderscore {
		return l.scanIdentifier()
	}

	// unknown character
	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isAlphaNumeric(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch)
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}

	// decimal part
	if l.current() == charPeriod && l.isDigit(l.peek(1)) {
		l.pos++ // consume '.'
		for l.pos < len(l.runes) && l.isDigit(l.current()) {
			l.pos++
		}
	}

	// scientific notation (e or E)
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++ // consume 'e' or 'E'

		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}

		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	value := l.substring(startPos, l.pos)
	return Token{Type: TokenNumber, Value: value, Pos: startPos}
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var result []rune

	for l.pos < len(l.runes) {
		ch := l.current()

		if ch == charQuote {
			// double quote is an escape
			if l.peek(1) == charQuote {
				result = append(result, charQuote)
				l.pos += 2
			} else {
				l.pos++ // consume closing quote
				return Token{Type: TokenString, Value: string(result), Pos: startPos}
			}
		} else {
			result = append(result, ch)
			l.pos++
		}
	}

	return Token{Type: TokenError, Value: "unclosed string literal", Pos: startPos}
}

// scanIdentifier scans identifiers, dotted references, functions, and
// booleans
func (l *Lexer) scanIdentifier() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && (l.isAlphaNumeric(l.current()) || l.current() == charUnderscore) {
		l.pos++
	}

	// dotted reference: table.column or section.scalar
	if l.current() == charPeriod && (l.isAlpha(l.peek(1)) || l.peek(1) == charUnderscore) {
		l.pos++ // consume '.'
		for l.pos < len(l.runes) && (l.isAlphaNumeric(l.current()) || l.current() == charUnderscore) {
			l.pos++
		}
	}

	value := l.substring(startPos, l.pos)
	upperValue := toUpperASCII(value)

	if upperValue == "TRUE" || upperValue == "FALSE" {
		return Token{Type: TokenBoolean, Value: upperValue, Pos: startPos}
	}

	// function call when directly followed by an open paren
	if l.current() == charLParen {
		return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
	}

	return Token{Type: TokenIdentifier, Value: value, Pos: startPos}
}

// toUpperASCII converts a string to uppercase
func toUpperASCII(s string) string {
	result := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch >= 'a' && ch <= 'z' {
			ch -= 32
		}
		result = append(result, ch)
	}
	return string(result)
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanBinaryOp scans binary operators
func (l *Lexer) scanBinaryOp() Token {
	startPos := l.pos
	ch := l.current()

	// two-character operators first
	if ch == charLess {
		l.pos++
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<=", Pos: startPos}
		} else if l.current() == charGreater {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "<", Pos: startPos}
	}

	if ch == charGreater {
		l.pos++
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: ">", Pos: startPos}
	}

	if ch == charEqual {
		l.pos++
		if l.current() == charEqual {
			l.pos++ // == is accepted as =
		}
		return Token{Type: TokenBinaryOp, Value: "=", Pos: startPos}
	}

	// != as not equal
	if ch == charExclaim {
		l.pos++
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		l.pos = startPos
		return Token{Type: TokenError, Value: "unexpected '!'", Pos: startPos}
	}

	switch ch {
	case charAsterisk:
		l.pos++
		return Token{Type: TokenBinaryOp, Value: "*", Pos: startPos}
	case charSlash:
		l.pos++
		return Token{Type: TokenBinaryOp, Value: "/", Pos: startPos}
	case charCaret:
		l.pos++
		return Token{Type: TokenBinaryOp, Value: "^", Pos: startPos}
	case charAmpersand:
		l.pos++
		return Token{Type: TokenBinaryOp, Value: "&", Pos: startPos}
	}

	return Token{Type: TokenError, Value: "unknown operator", Pos: startPos}
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	switch l.state {
	case StateStart, StateAfterOperator, StateAfterLeftParen, StateAfterComma, StateAfterLeftBracket:
		return true
	default:
		return false
	}
}
