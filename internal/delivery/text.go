package delivery

import "unicode/utf8"

// Truncate returns the first n code points of s. It never splits a code point.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Preview shortens s for log lines: PreviewLen code points plus "..." when cut.
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLen {
		return s
	}
	return Truncate(s, PreviewLen) + "..."
}
