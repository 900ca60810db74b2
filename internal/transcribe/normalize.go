package transcribe

import (
	"html"
	"regexp"
	"strings"
)

var (
	horizontalWS     = regexp.MustCompile(`[\t\r\f\v]+`)
	newlines         = regexp.MustCompile(`\n+`)
	multiSpace       = regexp.MustCompile(`\s{2,}`)
	spaceBeforePunct = regexp.MustCompile(`\s+([,，。！？!?:：；;])`)
	spaceAfterOpen   = regexp.MustCompile(`([(（\[【{])\s+`)
	spaceBeforeClose = regexp.MustCompile(`\s+([)）\]】}])`)
)

func isRunPunct(r rune) bool {
	switch r {
	case '!', '?', '！', '？', '。', '.', ',', '，':
		return true
	}
	return false
}

// collapsePunctRuns shortens any run of 3+ identical punctuation marks to
// exactly 2. Go's RE2 engine has no backreferences, so this is a
// run-length pass instead of a regex.
func collapsePunctRuns(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	runLen := 0
	for i, r := range runes {
		if i > 0 && r == runes[i-1] && isRunPunct(r) {
			runLen++
		} else {
			runLen = 1
		}
		if runLen > 2 {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// isCJK reports whether r falls in the CJK ranges the de-spacing pass
// targets: U+4E00-9FFF, U+3040-30FF, U+31F0-31FF, U+AC00-D7AF.
func isCJK(r rune) bool {
	return (r >= 0x4e00 && r <= 0x9fff) ||
		(r >= 0x3040 && r <= 0x30ff) ||
		(r >= 0x31f0 && r <= 0x31ff) ||
		(r >= 0xac00 && r <= 0xd7af)
}

func isCJKPunct(r rune) bool {
	switch r {
	case '，', '。', '！', '？', '、', '；', '：':
		return true
	}
	return false
}

// deSpaceBetween removes a single ASCII space between a rune accepted by
// left and one accepted by right, in one left-to-right pass. Because each
// decision consults the already-filtered output (not the original string),
// this converges in a single pass regardless of run length — unlike
// regexp.ReplaceAllString, whose non-overlapping matches miss every other
// gap in a chain of 3+ adjacent qualifying runes.
func deSpaceBetween(s string, left, right func(rune) bool) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == ' ' && len(out) > 0 && i+1 < len(runes) &&
			left(out[len(out)-1]) && right(runes[i+1]) {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Normalize applies the transcript cleanup pipeline: HTML unescape, CJK
// de-spacing, punctuation spacing cleanup, and punctuation run
// collapsing. It is idempotent: Normalize(Normalize(t)) == Normalize(t).
func Normalize(text, language, model string) string {
	if text == "" {
		return ""
	}
	x := html.UnescapeString(text)
	x = strings.ReplaceAll(x, "　", " ")
	x = horizontalWS.ReplaceAllString(x, " ")
	x = newlines.ReplaceAllString(x, " ")
	x = strings.TrimSpace(multiSpace.ReplaceAllString(x, " "))

	x = deSpaceBetween(x, isCJK, isCJK)

	x = spaceBeforePunct.ReplaceAllString(x, "$1")
	x = spaceAfterOpen.ReplaceAllString(x, "$1")
	x = spaceBeforeClose.ReplaceAllString(x, "$1")

	x = collapsePunctRuns(x)

	modelLower := strings.ToLower(model)
	if language == "zh" || language == "ja" || language == "auto" ||
		strings.Contains(modelLower, "whisper") || strings.Contains(modelLower, "kotoba") {
		x = deSpaceBetween(x, isCJK, isCJK)
		x = deSpaceBetween(x, isCJK, isCJKPunct)
		x = deSpaceBetween(x, isCJKPunct, isCJK)
	}

	return strings.TrimSpace(x)
}
