package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/wudi/privkit/recovery"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // stream payload
	TokenKeyword                  // obj, endobj, >>, ], trailer, xref, ...
)

// Token is a lexical PDF token. Only the fields relevant to Type are set.
type Token struct {
	Type  TokenType
	Str   string // names and keywords
	Bytes []byte // string contents and stream payloads
	Int   int64  // integers and the object number of a ref
	Float float64
	IsInt bool
	Bool  bool
	Gen   int // generation of a ref
	Hex   bool
	Pos   int64
}

// Number returns the numeric value of a number token.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool { return t.Type == TokenKeyword && t.Str == kw }

var (
	ErrStringTooLong = errors.New("string too long")
	ErrStreamTooLong = errors.New("stream too long")
	ErrUnterminated  = errors.New("unterminated token")
)

type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
	Recovery        recovery.Strategy
}

// Scanner tokenizes an in-memory PDF byte slice.
type Scanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	ctx           context.Context
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg, nextStreamLen: -1, ctx: context.Background()}
}

// WithContext sets the context handed to the recovery strategy.
func (s *Scanner) WithContext(ctx context.Context) *Scanner {
	if ctx != nil {
		s.ctx = ctx
	}
	return s
}

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Len() int64      { return int64(len(s.data)) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength tells the scanner the declared /Length of the stream
// that follows. A negative value means unknown.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) && depth > 0 {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				continue
			}
			esc := s.data[s.pos]
			s.pos++
			switch {
			case esc == '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(c)
			}
		default:
			buf.WriteByte(c)
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, ErrStringTooLong
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++
	var nibbles []byte
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isHex(c) {
			nibbles = append(nibbles, c)
		}
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(nibbles)/2) > s.cfg.MaxStringLength {
		return Token{}, ErrStringTooLong
	}
	out := make([]byte, len(nibbles)/2)
	for i := range out {
		out[i] = fromHex(nibbles[2*i])<<4 | fromHex(nibbles[2*i+1])
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
}

var endstream = []byte("endstream")

// scanStream reads the payload after the stream keyword. A declared length
// is trusted only when endstream follows it; otherwise the payload runs to
// the next endstream marker.
func (s *Scanner) scanStream(start int64) (Token, error) {
	declared := s.nextStreamLen
	s.nextStreamLen = -1
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	dataStart := s.pos
	if s.cfg.MaxStreamLength > 0 && declared > s.cfg.MaxStreamLength {
		return Token{}, ErrStreamTooLong
	}
	if declared >= 0 && dataStart+declared <= int64(len(s.data)) {
		end := dataStart + declared
		p := end
		for p < int64(len(s.data)) && isWhitespace(s.data[p]) {
			p++
		}
		if bytes.HasPrefix(s.data[p:], endstream) {
			s.pos = p + int64(len(endstream))
			return Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start}, nil
		}
		if err := s.recover(errors.New("stream length does not match endstream"), "stream"); err != nil {
			return Token{}, err
		}
	}
	idx := bytes.Index(s.data[dataStart:], endstream)
	if idx < 0 {
		if err := s.recover(errors.New("endstream not found"), "stream"); err != nil {
			return Token{}, err
		}
		s.pos = int64(len(s.data))
		return Token{Type: TokenStream, Bytes: s.data[dataStart:], Pos: start}, nil
	}
	end := dataStart + int64(idx)
	s.pos = end + int64(len(endstream))
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, ErrStreamTooLong
	}
	return Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start}, nil
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberString()
	if first == "" {
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start}, nil
	}
	tok := numberToken(first, start)
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	// lookahead for "gen R"
	save := s.pos
	s.skipWSAndComments()
	second := s.scanNumberString()
	if second != "" {
		if gen, err := strconv.Atoi(second); err == nil && gen >= 0 {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				return Token{Type: TokenRef, Int: tok.Int, Gen: gen, IsInt: true, Pos: start}, nil
			}
		}
	}
	s.pos = save
	return tok, nil
}

func numberToken(str string, pos int64) Token {
	if i, err := strconv.ParseInt(str, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: pos}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		// malformed numbers such as "--5" or "1.2.3" read as zero
		f = 0
	}
	return Token{Type: TokenNumber, Float: f, Pos: pos}
}

func (s *Scanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c >= '0' && c <= '9' {
			seenDigit = true
		} else if c != '+' && c != '-' && c != '.' {
			break
		}
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func (s *Scanner) recover(err error, component string) error {
	loc := recovery.Location{ByteOffset: s.pos, Component: "scanner:" + component}
	if recovery.Tolerates(s.ctx, s.cfg.Recovery, err, loc) {
		return nil
	}
	return err
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
func isEOL(c byte) bool     { return c == '\r' || c == '\n' }
func isRegular(c byte) bool { return !isDelimiter(c) }

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

// IsWhitespace reports whether c is PDF whitespace.
func IsWhitespace(c byte) bool { return isWhitespace(c) }

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
