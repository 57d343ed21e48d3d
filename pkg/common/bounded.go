package common

import "unicode/utf8"

// StringBound is the maximum number of characters a bounded string keeps.
// Zero means unbounded.
type StringBound int

// DefaultStringBound matches the 32-character name buffers of the sample data set.
const DefaultStringBound StringBound = 32

// BoundedString is a string value with a fixed maximum stored length.
// Construction truncates overlong input to its first N characters without
// reporting an error; equality and hashing see only the truncated form.
type BoundedString struct {
	s string
}

// Make builds a BoundedString from s, truncating to n characters.
func (n StringBound) Make(s string) BoundedString {
	return BoundedString{s: truncate(s, int(n))}
}

// Clamp re-applies the bound to an existing value. Truncation is idempotent,
// so clamping an already short value returns it unchanged.
func (n StringBound) Clamp(b BoundedString) BoundedString {
	return BoundedString{s: truncate(b.s, int(n))}
}

// Truncates reports whether s would lose characters under n.
func (n StringBound) Truncates(s string) bool {
	return n > 0 && utf8.RuneCountInString(s) > int(n)
}

func (b BoundedString) String() string {
	return b.s
}

// Len returns the stored length in characters.
func (b BoundedString) Len() int {
	return utf8.RuneCountInString(b.s)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
