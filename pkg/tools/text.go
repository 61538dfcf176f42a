package tools

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// LogInfoWidget pads the lines of text to one width and frames them with border (first character
// only, "*" if empty). The result is meant to be logged line by line as the startup banner.
func LogInfoWidget(text []string, border string) []string {
	if border == "" {
		border = "*"
	} else if r, _ := utf8.DecodeRuneInString(border); r != utf8.RuneError {
		border = string(r)
	}

	width := 0
	for _, v := range text {
		if n := utf8.RuneCountInString(v); n > width {
			width = n
		}
	}

	edge := strings.Repeat(border, width+4)

	framed := make([]string, 0, len(text)+2)
	framed = append(framed, edge)
	for _, v := range text {
		framed = append(framed, fmt.Sprintf("%s %s%s %s", border, v, strings.Repeat(" ", width-utf8.RuneCountInString(v)), border))
	}
	return append(framed, edge)
}
