package provision

import "strings"

const (
	maxFormBody   = 1024
	maxFormFields = 16
)

// Form holds decoded key/value pairs in submission order.
type Form struct {
	fields [][2]string
}

// Get returns the first value for key.
func (f Form) Get(key string) (string, bool) {
	for _, kv := range f.fields {
		if kv[0] == key {
			return kv[1], true
		}
	}
	return "", false
}

// Len returns the number of decoded fields.
func (f Form) Len() int {
	return len(f.fields)
}

// ParseForm decodes an application/x-www-form-urlencoded body. Parsing stops
// at the first pair without '='.
func ParseForm(body string) Form {
	var f Form
	for body != "" && len(f.fields) < maxFormFields {
		pair := body
		rest := ""
		if i := strings.IndexByte(body, '&'); i >= 0 {
			pair, rest = body[:i], body[i+1:]
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			break
		}
		f.fields = append(f.fields, [2]string{DecodeFormValue(key), DecodeFormValue(value)})
		body = rest
	}
	return f
}

// DecodeFormValue turns '+' into a space and %XX into the byte it encodes.
// A '%' not followed by two hex digits is kept as is.
func DecodeFormValue(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}
