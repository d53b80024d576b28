package receipt

import "strings"

// ESC/POS helpers for 80mm thermal paper (42 columns). Formatting
// commands are emitted as line prefixes; the print agent forwards the
// bytes to the printer untouched.
//
// Quick ref:
//
//	ESC ! n   font style
//	ESC a n   alignment (0=left, 1=center, 2=right)
const Width = 42

const esc = "\x1b"

const (
	AlignLeft   = esc + "a\x00"
	AlignCenter = esc + "a\x01"
	AlignRight  = esc + "a\x02"

	FontNormal    = esc + "!\x00"
	FontBold      = esc + "!\x08"
	FontDblHeight = esc + "!\x10"
	FontDblWidth  = esc + "!\x20"
	FontLarge     = esc + "!\x30"
	FontLargeBold = esc + "!\x38"
)

// Line returns a full-width separator of the given rune.
func Line(c string) string {
	if c == "" {
		c = "-"
	}
	return strings.Repeat(c, Width)
}

// Center pads text to the middle of the paper width.
func Center(text string) string {
	if len(text) >= Width {
		return text[:Width]
	}
	pad := (Width - len(text)) / 2
	return strings.Repeat(" ", pad) + text
}

// TwoCols lays out a left and a right column on one line, truncating the
// left side if the pair does not fit.
func TwoCols(left, right string) string {
	avail := Width - len(right) - 1
	if avail < 0 {
		avail = 0
	}
	if len(left) > avail {
		left = left[:avail]
	} else {
		left += strings.Repeat(" ", avail-len(left))
	}
	return left + " " + right
}

// Wrap splits text into paper-width chunks.
func Wrap(text string) []string {
	if text == "" {
		return []string{""}
	}
	var out []string
	for len(text) > Width {
		out = append(out, text[:Width])
		text = text[Width:]
	}
	return append(out, text)
}
