package engine

import "strings"

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource rewrites script source into what zygomys accepts:
//
//   - :keyword becomes the string "__kw_keyword", so keywords need no
//     global symbols and cannot clash with script variables.
//   - kebab-case identifiers become snake_case (phantom-limb becomes
//     phantom_limb); zygomys reads a hyphen as subtraction.
//   - ; and ;; line comments become // comments.
//
// String literals pass through untouched.
func preprocessSource(source string) string {
	p := &preprocessor{src: []byte(source)}
	p.out = make([]byte, 0, len(source)+len(source)/4)
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.quoted('"', true)
		case c == '`':
			p.quoted('`', false)
		case c == ';':
			p.comment()
		case c == ':' && p.peek(1) == '=':
			p.emit(2)
		case c == ':' && isLetter(p.peek(1)):
			p.keyword()
		case c == '-' && p.pos > 0 && isIdentChar(p.src[p.pos-1]) && isLetter(p.peek(1)):
			p.out = append(p.out, '_')
			p.pos++
		default:
			p.emit(1)
		}
	}
	return string(p.out)
}

type preprocessor struct {
	src, out []byte
	pos      int
}

// peek returns the byte off positions ahead, or 0 past the end.
func (p *preprocessor) peek(off int) byte {
	if p.pos+off < len(p.src) {
		return p.src[p.pos+off]
	}
	return 0
}

func (p *preprocessor) emit(n int) {
	end := min(p.pos+n, len(p.src))
	p.out = append(p.out, p.src[p.pos:end]...)
	p.pos = end
}

// quoted copies a string literal including its delimiters.
func (p *preprocessor) quoted(delim byte, escapes bool) {
	p.emit(1)
	for p.pos < len(p.src) && p.src[p.pos] != delim {
		if escapes && p.src[p.pos] == '\\' {
			p.emit(2)
			continue
		}
		p.emit(1)
	}
	p.emit(1)
}

func (p *preprocessor) comment() {
	p.out = append(p.out, '/', '/')
	for p.pos < len(p.src) && p.src[p.pos] == ';' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] != '\n' {
		p.emit(1)
	}
}

func (p *preprocessor) keyword() {
	j := p.pos + 1
	for j < len(p.src) && isKWChar(p.src[j]) {
		j++
	}
	p.out = append(p.out, '"')
	p.out = append(p.out, kwPrefix...)
	p.out = append(p.out, p.src[p.pos+1:j]...)
	p.out = append(p.out, '"')
	p.pos = j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// keywordName strips the keyword marker, returning the name and whether s
// was a keyword.
func keywordName(s string) (string, bool) {
	return strings.CutPrefix(s, kwPrefix)
}
