package utils

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
)

const (
	openToken  = "{{"
	closeToken = "}}"
)

/**
 * RenderTemplate substitutes placeholders in s with values resolved from root.
 *
 * Grammar:
 *   placeholder = "{{" ws* path ws* "}}"
 *   path        = identifier ( "." identifier )*
 *   identifier  = ( letter | digit | "_" | "-" | "$" )+
 *
 * A placeholder whose path does not resolve, or a token that does not
 * match the grammar, is copied to the output unchanged.
 */
func RenderTemplate(s string, root any) string {
	if !strings.Contains(s, openToken) {
		return s
	}

	sb := strings.Builder{}
	for {
		start := strings.Index(s, openToken)
		if start < 0 {
			sb.WriteString(s)
			break
		}
		sb.WriteString(s[:start])
		rest := s[start+len(openToken):]

		end := strings.Index(rest, closeToken)
		if end < 0 {
			sb.WriteString(s[start:])
			break
		}
		expr := strings.TrimSpace(rest[:end])
		if !isPathExpr(expr) {
			// re-scan from the character after "{{"
			sb.WriteString(openToken)
			s = rest
			continue
		}

		token := s[start : start+len(openToken)+end+len(closeToken)]
		if v, exists := ResolvePath(root, expr); exists {
			sb.WriteString(Stringify(v))
		} else {
			sb.WriteString(token)
		}
		s = rest[end+len(closeToken):]
	}
	return sb.String()
}

// RenderValue renders every string inside v, walking maps and slices.
func RenderValue(v any, root any) any {
	switch val := v.(type) {
	case string:
		return RenderTemplate(val, root)
	case map[string]any:
		rendered := make(map[string]any, len(val))
		for k, item := range val {
			rendered[k] = RenderValue(item, root)
		}
		return rendered
	case map[string]string:
		rendered := make(map[string]string, len(val))
		for k, item := range val {
			rendered[k] = RenderTemplate(item, root)
		}
		return rendered
	case []any:
		rendered := make([]any, len(val))
		for i, item := range val {
			rendered[i] = RenderValue(item, root)
		}
		return rendered
	default:
		return v
	}
}

// Stringify converts a payload value to its string form. Scalars use their
// natural representation, composite values are JSON encoded.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(val)
		if err != nil {
			return cast.ToString(val)
		}
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		b, jerr := json.Marshal(v)
		if jerr != nil {
			return ""
		}
		return string(b)
	}
	return s
}

func isPathExpr(expr string) bool {
	if expr == "" {
		return false
	}
	for _, ident := range strings.Split(expr, ".") {
		if ident == "" {
			return false
		}
		for _, r := range ident {
			if !isIdentRune(r) {
				return false
			}
		}
	}
	return true
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '-' || r == '$' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
