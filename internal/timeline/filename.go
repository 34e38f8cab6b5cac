// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package timeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxTitleRunes = 80

// Filename returns the download name for a rendered ad: "<title>-full-video.<ext>".
func Filename(title, ext string) string {
	base := slug(title)
	if base == "" {
		base = "ad"
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return base + "-full-video"
	}
	return base + "-full-video." + ext
}

func slug(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	n := 0
	for _, r := range folded {
		if n >= maxTitleRunes {
			break
		}
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
			n++
		case r == '_' || r == '.':
			b.WriteRune(r)
			dash = false
			n++
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
				n++
			}
		}
	}
	return strings.Trim(b.String(), "-.")
}
