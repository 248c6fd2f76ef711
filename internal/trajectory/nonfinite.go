package trajectory

import "bytes"

var nonFiniteLiterals = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// nullNonFinite rewrites the bare NaN, Infinity and -Infinity tokens that
// Python's json module emits into null, leaving string contents untouched.
func nullNonFinite(in []byte) []byte {
	if !bytes.Contains(in, []byte("NaN")) && !bytes.Contains(in, []byte("Infinity")) {
		return in
	}
	out := make([]byte, 0, len(in))
	inString, escaped := false, false
	for i := 0; i < len(in); i++ {
		c := in[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if lit := literalAt(in[i:]); lit > 0 {
			out = append(out, "null"...)
			i += lit - 1
			continue
		}
		out = append(out, c)
	}
	return out
}

func literalAt(b []byte) int {
	for _, lit := range nonFiniteLiterals {
		if bytes.HasPrefix(b, lit) {
			return len(lit)
		}
	}
	return 0
}
