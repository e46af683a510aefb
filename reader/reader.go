// Package reader turns Scheme source text into raw datums (value.Pair
// lists, value.Symbol, numbers, strings, booleans, characters, vectors)
// ready for package analyzer. spec.md §1 lists the reader as an external
// collaborator the core consumes rather than a core component itself;
// SPEC_FULL.md's AMBIENT STACK section is what brings it into this
// repository. Its rune-scanning
// fields (characters/position/readPosition/currentChar) and the
// advance/peek method pair are carried directly from the teacher's own
// lexer.Lexer (informatter-nilan/lexer/lexer.go); what differs is that
// s-expression syntax is simple enough that lexing and parsing collapse
// into a single recursive-descent pass, rather than the teacher's
// separate token-stream-then-Pratt-parser pipeline — there is no
// operator precedence to resolve once parentheses are explicit.
package reader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ilex/value"
)

// ErrIncompleteInput is wrapped into the error Read/ReadAll return when
// source ends while a datum is still open: an unterminated list or
// string, or a quote/quasiquote/unquote prefix with no following datum.
// A REPL can errors.Is against this to tell "need another line" apart
// from a genuine syntax error instead of treating every parse failure
// as more-input-needed and accumulating forever.
var ErrIncompleteInput = errors.New("incomplete input")

// Reader reads successive datums from a fixed source string.
type Reader struct {
	characters   []rune
	position     int
	readPosition int
	currentChar  rune
}

// New creates a Reader over src.
func New(src string) *Reader {
	r := &Reader{characters: []rune(src)}
	r.advance()
	return r
}

const eof = rune(0)

func (r *Reader) advance() {
	if r.readPosition >= len(r.characters) {
		r.currentChar = eof
	} else {
		r.currentChar = r.characters[r.readPosition]
	}
	r.position = r.readPosition
	r.readPosition++
}

func (r *Reader) peek() rune {
	if r.readPosition >= len(r.characters) {
		return eof
	}
	return r.characters[r.readPosition]
}

func (r *Reader) skipAtmosphere() {
	for {
		switch {
		case r.currentChar == ';':
			for r.currentChar != '\n' && r.currentChar != eof {
				r.advance()
			}
		case isSpace(r.currentChar):
			r.advance()
		default:
			return
		}
	}
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDelimiter(c rune) bool {
	return c == eof || isSpace(c) || c == '(' || c == ')' || c == '"' || c == ';' || c == '\''
}

// ReadAll reads every top-level datum in the source, the shape `runtime`
// uses for `run`/`emit` on a whole file.
func ReadAll(src string) ([]any, error) {
	r := New(src)
	var out []any
	for {
		datum, err := r.Read()
		if err != nil {
			return nil, err
		}
		if datum == nil {
			return out, nil
		}
		out = append(out, datum)
	}
}

// Read parses and returns the next datum, or (nil, nil) at end of input.
func (r *Reader) Read() (any, error) {
	r.skipAtmosphere()
	if r.currentChar == eof {
		return nil, nil
	}
	return r.readDatum()
}

func (r *Reader) readDatum() (any, error) {
	r.skipAtmosphere()
	switch {
	case r.currentChar == eof:
		return nil, fmt.Errorf("unexpected end of input: %w", ErrIncompleteInput)
	case r.currentChar == '(':
		return r.readList(')')
	case r.currentChar == '[':
		return r.readList(']')
	case r.currentChar == ')' || r.currentChar == ']':
		return nil, fmt.Errorf("unexpected '%c'", r.currentChar)
	case r.currentChar == '\'':
		r.advance()
		datum, err := r.readDatum()
		if err != nil {
			return nil, err
		}
		return value.List(value.Intern("quote"), datum), nil
	case r.currentChar == '`':
		r.advance()
		datum, err := r.readDatum()
		if err != nil {
			return nil, err
		}
		return value.List(value.Intern("quasiquote"), datum), nil
	case r.currentChar == ',':
		r.advance()
		name := "unquote"
		if r.currentChar == '@' {
			r.advance()
			name = "unquote-splicing"
		}
		datum, err := r.readDatum()
		if err != nil {
			return nil, err
		}
		return value.List(value.Intern(name), datum), nil
	case r.currentChar == '"':
		return r.readString()
	case r.currentChar == '#':
		return r.readHash()
	default:
		return r.readAtom()
	}
}

func (r *Reader) readList(close rune) (any, error) {
	r.advance() // consume '(' or '['
	var items []any
	var tail any = value.Nil
	for {
		r.skipAtmosphere()
		if r.currentChar == eof {
			return nil, fmt.Errorf("unterminated list: %w", ErrIncompleteInput)
		}
		if r.currentChar == close {
			r.advance()
			break
		}
		if r.currentChar == '.' && isDelimiter(r.peek()) {
			r.advance()
			datum, err := r.readDatum()
			if err != nil {
				return nil, err
			}
			tail = datum
			r.skipAtmosphere()
			if r.currentChar != close {
				return nil, fmt.Errorf("malformed dotted list")
			}
			r.advance()
			break
		}
		datum, err := r.readDatum()
		if err != nil {
			return nil, err
		}
		items = append(items, datum)
	}
	result := tail
	for i := len(items) - 1; i >= 0; i-- {
		result = &value.Pair{Car: items[i], Cdr: result}
	}
	return result, nil
}

func (r *Reader) readString() (any, error) {
	r.advance() // consume opening quote
	var b strings.Builder
	for r.currentChar != '"' {
		if r.currentChar == eof {
			return nil, fmt.Errorf("unterminated string literal: %w", ErrIncompleteInput)
		}
		if r.currentChar == '\\' {
			r.advance()
			b.WriteRune(unescape(r.currentChar))
			r.advance()
			continue
		}
		b.WriteRune(r.currentChar)
		r.advance()
	}
	r.advance() // consume closing quote
	return value.NewString(b.String()), nil
}

func unescape(c rune) rune {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

func (r *Reader) readHash() (any, error) {
	r.advance() // consume '#'
	switch r.currentChar {
	case 't':
		r.advance()
		return true, nil
	case 'f':
		r.advance()
		return false, nil
	case '\\':
		r.advance()
		return r.readChar()
	case '(':
		datum, err := r.readList(')')
		if err != nil {
			return nil, err
		}
		items, ok := value.ListToSlice(datum)
		if !ok {
			return nil, fmt.Errorf("malformed vector literal")
		}
		return &value.Vector{Items: items}, nil
	default:
		return nil, fmt.Errorf("unsupported # syntax: #%c", r.currentChar)
	}
}

func (r *Reader) readChar() (any, error) {
	start := r.position
	r.advance()
	for !isDelimiter(r.currentChar) {
		r.advance()
	}
	name := string(r.characters[start:r.position])
	switch name {
	case "space":
		return value.Char(' '), nil
	case "newline":
		return value.Char('\n'), nil
	case "tab":
		return value.Char('\t'), nil
	default:
		runes := []rune(name)
		if len(runes) != 1 {
			return nil, fmt.Errorf("unsupported character literal: #\\%s", name)
		}
		return value.Char(runes[0]), nil
	}
}

func (r *Reader) readAtom() (any, error) {
	start := r.position
	for !isDelimiter(r.currentChar) {
		r.advance()
	}
	text := string(r.characters[start:r.position])
	if text == "" {
		return nil, fmt.Errorf("empty atom")
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f, nil
	}
	return value.Intern(text), nil
}
