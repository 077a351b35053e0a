// internal/util/normalize.go
package util

import (
	"crypto/sha256"
	"strings"
)

// NormalizeSQL produces the canonical form of a statement: line and block
// comments removed, ASCII letters upper-cased, whitespace runs collapsed to a
// single space, ends trimmed. The canonical form is what the validator
// inspects and what approval tokens are hashed against; the original text is
// what executes.
//
// Only ASCII letters are folded. Non-ASCII bytes pass through unchanged so a
// homoglyph of a keyword letter never becomes the keyword.
func NormalizeSQL(sqlText string) string {
	stripped := stripComments(sqlText)

	var b strings.Builder
	b.Grow(len(stripped))

	inSpace := false
	for i := 0; i < len(stripped); i++ {
		c := stripped[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - ('a' - 'A'))
			inSpace = false
		default:
			b.WriteByte(c)
			inSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

// stripComments removes -- line comments and /* */ block comments. Block
// comments do not nest; an unterminated block comment is stripped to the end
// of the input so no hidden text survives normalization.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] == '-' && i+1 < len(s) && s[i+1] == '-' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			continue
		}
		if s[i] == '/' && i+1 < len(s) && s[i+1] == '*' {
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				break
			}
			i += 2 + end + 2
			continue
		}
		b.WriteByte(s[i])
		i++
	}

	return b.String()
}

// CanonicalHash returns the SHA-256 digest of the canonical form of sqlText.
// Approval tokens bind to this digest.
func CanonicalHash(sqlText string) [sha256.Size]byte {
	return sha256.Sum256([]byte(NormalizeSQL(sqlText)))
}
