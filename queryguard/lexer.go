package queryguard

import "strings"

// stripComments follows PostgreSQL's lexical rules closely enough to tell
// comments from quoted text. Block comments nest and are replaced by a space
// so tokens on either side stay separate. With backslashEscapes set, a
// backslash escapes the next byte in every single-quoted literal, as it does
// when standard_conforming_strings is off; otherwise only in E'' literals.
func stripComments(sql string, backslashEscapes bool) string {
	var b strings.Builder
	b.Grow(len(sql))

	inIdent := false
	identStart := -1
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			inIdent = false

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
			b.WriteByte(' ')
			inIdent = false

		case c == '\'':
			escapes := backslashEscapes || (identStart == i-1 && (sql[i-1] == 'E' || sql[i-1] == 'e'))
			end := quotedEnd(sql, i, '\'', escapes)
			b.WriteString(sql[i:end])
			i = end
			inIdent = false

		case c == '"':
			end := quotedEnd(sql, i, '"', false)
			b.WriteString(sql[i:end])
			i = end
			inIdent = false

		case c == '$' && !inIdent:
			if tag, ok := dollarTag(sql, i); ok {
				end := strings.Index(sql[i+len(tag):], tag)
				if end < 0 {
					end = len(sql)
				} else {
					end = i + len(tag) + end + len(tag)
				}
				b.WriteString(sql[i:end])
				i = end
				inIdent = false
				continue
			}
			b.WriteByte(c)
			i++

		default:
			if inIdent {
				inIdent = isIdentByte(c)
			} else if inIdent = isIdentStart(c); inIdent {
				identStart = i
			}
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// skipBlockComment returns the index just past the comment opening at
// start, honoring nesting. An unterminated comment runs to the end.
func skipBlockComment(sql string, start int) int {
	depth := 0
	i := start
	for i < len(sql) {
		switch {
		case strings.HasPrefix(sql[i:], "/*"):
			depth++
			i += 2
		case strings.HasPrefix(sql[i:], "*/"):
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return len(sql)
}

// quotedEnd returns the index just past the quoted run opening at start.
// A doubled quote is an escaped quote. An unterminated run ends the input.
func quotedEnd(sql string, start int, quote byte, backslash bool) int {
	for i := start + 1; i < len(sql); i++ {
		switch sql[i] {
		case '\\':
			if backslash {
				i++
			}
		case quote:
			if i+1 < len(sql) && sql[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(sql)
}

// dollarTag returns the opening $tag$ at i, if there is one. Positional
// parameters such as $1 are not tags.
func dollarTag(sql string, i int) (string, bool) {
	j := i + 1
	if j < len(sql) && sql[j] == '$' {
		return "$$", true
	}
	if j >= len(sql) || !isIdentStart(sql[j]) {
		return "", false
	}
	for j < len(sql) && isIdentByte(sql[j]) && sql[j] != '$' {
		j++
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 0x80 || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || c == '$' || ('0' <= c && c <= '9')
}
