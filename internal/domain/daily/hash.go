package daily

import "unicode/utf16"

// HashString is the 32-bit string hash h = h*31 + c over UTF-16 code units,
// wrapping on overflow, returned as an absolute value.
func HashString(s string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v)
}
