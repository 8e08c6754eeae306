package backend

import (
	"sort"
	"strings"

	"github.com/danmuck/clangipc/internal/protocol/message"
)

var keywords = []string{
	"auto", "bool", "break", "case", "char", "class", "const", "constexpr", "continue",
	"default", "delete", "do", "double", "else", "enum", "explicit", "false", "float",
	"for", "if", "inline", "int", "long", "namespace", "new", "nullptr", "private",
	"protected", "public", "return", "short", "signed", "sizeof", "static", "struct",
	"switch", "template", "this", "true", "typedef", "typename", "union", "unsigned",
	"using", "virtual", "void", "while",
}

var keywordSet = func() map[string]bool {
	m := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		m[k] = true
	}
	return m
}()

// offsetOf converts a one-based line/column to a byte offset, clamped to src.
func offsetOf(src string, line, column uint32) int {
	if line == 0 {
		line = 1
	}
	off := 0
	for l := uint32(1); l < line; l++ {
		nl := strings.IndexByte(src[off:], '\n')
		if nl < 0 {
			return len(src)
		}
		off += nl + 1
	}
	end := len(src)
	if nl := strings.IndexByte(src[off:], '\n'); nl >= 0 {
		end = off + nl
	}
	if column == 0 {
		column = 1
	}
	off += int(column - 1)
	if off > end {
		off = end
	}
	return off
}

func prefixAt(src string, line, column uint32) string {
	end := offsetOf(src, line, column)
	start := end
	for start > 0 && isIdentPart(src[start-1]) {
		start--
	}
	return src[start:end]
}

// complete proposes identifiers from src and keywords that extend the prefix at
// the cursor. Priority is the occurrence count; keywords rank 1.
func complete(src string, line, column uint32) []message.CodeCompletion {
	prefix := prefixAt(src, line, column)
	toks, _ := lex(src)

	type candidate struct {
		count int
		kind  message.CompletionKind
	}
	seen := make(map[string]*candidate)
	var prev string
	for _, t := range toks {
		if t.kind != tokIdent {
			prev = t.text
			continue
		}
		if keywordSet[t.text] || !strings.HasPrefix(t.text, prefix) {
			prev = t.text
			continue
		}
		c, ok := seen[t.text]
		if !ok {
			c = &candidate{kind: message.CompletionVariable}
			seen[t.text] = c
		}
		c.count++
		switch {
		case prev == "class" || prev == "struct" || prev == "union" || prev == "enum":
			c.kind = message.CompletionClass
		case t.next == '(' && c.kind != message.CompletionClass:
			c.kind = message.CompletionFunction
		}
		prev = t.text
	}
	// The word being typed is not its own completion.
	if c, ok := seen[prefix]; ok {
		c.count--
		if c.count <= 0 {
			delete(seen, prefix)
		}
	}

	out := make([]message.CodeCompletion, 0, len(seen))
	for text, c := range seen {
		out = append(out, message.CodeCompletion{Text: text, Priority: uint32(c.count), Kind: c.kind})
	}
	for _, k := range keywords {
		if k != prefix && strings.HasPrefix(k, prefix) {
			out = append(out, message.CodeCompletion{Text: k, Priority: 1, Kind: message.CompletionKeyword})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Text < out[j].Text
	})
	return out
}
