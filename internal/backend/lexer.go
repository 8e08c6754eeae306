package backend

import (
	"fmt"

	"github.com/danmuck/clangipc/internal/protocol/message"
)

type tokenKind uint8

const (
	tokIdent tokenKind = iota
	tokNumber
	tokPunct
)

// token positions are one-based; columns count bytes.
type token struct {
	kind   tokenKind
	text   string
	line   uint32
	column uint32
	// next is the first non-space byte after the token, 0 at EOF.
	next byte
}

type lexProblem struct {
	text   string
	line   uint32
	column uint32
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

// lex splits C-family source into identifier, number and punctuation tokens.
// Comments and string or character literals are skipped.
func lex(src string) ([]token, []lexProblem) {
	var (
		toks     []token
		problems []lexProblem
		line     uint32 = 1
		col      uint32 = 1
	)
	advance := func(n int, i *int) {
		for k := 0; k < n && *i < len(src); k++ {
			if src[*i] == '\n' {
				line++
				col = 1
			} else {
				col++
			}
			*i++
		}
	}

	for i := 0; i < len(src); {
		b := src[i]
		switch {
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			advance(1, &i)
		case b == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				advance(1, &i)
			}
		case b == '/' && i+1 < len(src) && src[i+1] == '*':
			startLine, startCol := line, col
			advance(2, &i)
			closed := false
			for i < len(src) {
				if src[i] == '*' && i+1 < len(src) && src[i+1] == '/' {
					advance(2, &i)
					closed = true
					break
				}
				advance(1, &i)
			}
			if !closed {
				problems = append(problems, lexProblem{"unterminated comment", startLine, startCol})
			}
		case b == '"' || b == '\'':
			startLine, startCol := line, col
			advance(1, &i)
			closed := false
			for i < len(src) && src[i] != '\n' {
				if src[i] == '\\' {
					advance(2, &i)
					continue
				}
				if src[i] == b {
					advance(1, &i)
					closed = true
					break
				}
				advance(1, &i)
			}
			if !closed {
				kind := "string"
				if b == '\'' {
					kind = "character"
				}
				problems = append(problems, lexProblem{fmt.Sprintf("missing terminating %c in %s literal", b, kind), startLine, startCol})
			}
		case isIdentStart(b):
			start, startCol := i, col
			for i < len(src) && isIdentPart(src[i]) {
				advance(1, &i)
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], line: line, column: startCol})
		case b >= '0' && b <= '9':
			start, startCol := i, col
			for i < len(src) && (isIdentPart(src[i]) || src[i] == '.') {
				advance(1, &i)
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], line: line, column: startCol})
		default:
			toks = append(toks, token{kind: tokPunct, text: src[i : i+1], line: line, column: col})
			advance(1, &i)
		}
	}
	for k := range toks {
		if k+1 < len(toks) {
			toks[k].next = toks[k+1].text[0]
		}
	}
	return toks, problems
}

// identifierAt returns the identifier covering the one-based position.
func identifierAt(toks []token, line, column uint32) (token, bool) {
	for _, t := range toks {
		if t.kind != tokIdent || t.line != line {
			continue
		}
		if column >= t.column && column <= t.column+uint32(len(t.text)) {
			return t, true
		}
	}
	return token{}, false
}

func occurrences(toks []token, filePath, name string) []message.SourceLocation {
	var out []message.SourceLocation
	for _, t := range toks {
		if t.kind == tokIdent && t.text == name {
			out = append(out, message.SourceLocation{FilePath: filePath, Line: t.line, Column: t.column})
		}
	}
	return out
}

var brackets = map[string]string{")": "(", "]": "[", "}": "{"}

// diagnose reports lexical problems and unbalanced brackets.
func diagnose(filePath, src string) []message.Diagnostic {
	toks, problems := lex(src)
	var diags []message.Diagnostic
	for _, p := range problems {
		diags = append(diags, message.Diagnostic{
			Text:     p.text,
			Category: "Lexical or Preprocessor Issue",
			Severity: message.SeverityError,
			Location: message.SourceLocation{FilePath: filePath, Line: p.line, Column: p.column},
		})
	}

	var open []token
	for _, t := range toks {
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(", "[", "{":
			open = append(open, t)
		case ")", "]", "}":
			want := brackets[t.text]
			if len(open) == 0 || open[len(open)-1].text != want {
				diags = append(diags, message.Diagnostic{
					Text:     fmt.Sprintf("extraneous closing '%s'", t.text),
					Category: "Parse Issue",
					Severity: message.SeverityError,
					Location: message.SourceLocation{FilePath: filePath, Line: t.line, Column: t.column},
				})
				continue
			}
			open = open[:len(open)-1]
		}
	}
	for _, t := range open {
		diags = append(diags, message.Diagnostic{
			Text:     fmt.Sprintf("unmatched '%s'", t.text),
			Category: "Parse Issue",
			Severity: message.SeverityError,
			Location: message.SourceLocation{FilePath: filePath, Line: t.line, Column: t.column},
		})
	}
	return diags
}
