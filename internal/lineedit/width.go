package lineedit

import "unicode"

// wideRanges are the blocks drawn two columns wide by the terminal. The table
// is deliberately narrow: broader CJK and emoji are not listed.
var wideRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x1100, Hi: 0x11ff, Stride: 1}, // Hangul Jamo
		{Lo: 0x3130, Hi: 0x318f, Stride: 1}, // Hangul Compatibility Jamo
		{Lo: 0xac00, Hi: 0xd7a3, Stride: 1}, // Hangul Syllables
		{Lo: 0xff01, Hi: 0xff60, Stride: 1}, // Fullwidth punctuation
		{Lo: 0xffe0, Hi: 0xffe6, Stride: 1}, // Fullwidth symbols
	},
}

// IsWide reports whether r occupies two terminal columns.
func IsWide(r rune) bool {
	return unicode.Is(wideRanges, r)
}

// columns returns the number of terminal columns r occupies.
func columns(r rune) int {
	if IsWide(r) {
		return 2
	}
	return 1
}
