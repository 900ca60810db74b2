package transcribe

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Cue is one timed SRT entry after line splitting and time allocation.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

var (
	// CJK sentence enders split with or without trailing whitespace; an
	// ASCII period/bang/question needs whitespace after it so decimals and
	// abbreviations stay intact.
	sentenceSplit   = regexp.MustCompile(`[。！？；…]\s*|[!?;.]\s+`)
	sentenceEnglish = regexp.MustCompile(`[,;]\s+`)
	alnumTail       = regexp.MustCompile(`[A-Za-z0-9]$`)
)

// CharBudget returns the per-line character budget for the given language
// and model, clamped to [10,100].
func CharBudget(language, model string) int {
	modelLower := strings.ToLower(model)
	budget := 42
	switch {
	case language == "ja":
		budget = 20
	case language == "zh":
		budget = 24
	case language == "auto" && (strings.Contains(modelLower, "kotoba") || strings.Contains(modelLower, "whisper")):
		budget = 22
	}
	if budget < 10 {
		budget = 10
	}
	if budget > 100 {
		budget = 100
	}
	return budget
}

// splitSentences splits on sentence-final punctuation, keeping the
// punctuation attached; English text additionally splits long (>72 char)
// pieces on commas/semicolons.
func splitSentences(text, language string) []string {
	if text == "" {
		return nil
	}
	parts := splitKeepDelim(text, sentenceSplit)
	if language == "en" {
		var widened []string
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if len(p) > 72 && strings.ContainsAny(p, ",;") {
				widened = append(widened, splitKeepDelim(p, sentenceEnglish)...)
			} else if p != "" {
				widened = append(widened, p)
			}
		}
		parts = widened
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// splitKeepDelim splits text at re's matches without discarding the
// sentence-ending punctuation, mirroring a lookbehind split.
func splitKeepDelim(text string, re *regexp.Regexp) []string {
	locs := re.FindAllStringIndex(text, -1)
	if locs == nil {
		return []string{text}
	}
	var out []string
	prev := 0
	for _, loc := range locs {
		_, runeLen := utf8.DecodeRuneInString(text[loc[0]:])
		cut := loc[0] + runeLen // keep the delimiter rune, drop the trailing space(s)
		if cut > loc[1] {
			cut = loc[1]
		}
		out = append(out, text[prev:cut])
		prev = loc[1]
	}
	out = append(out, text[prev:])
	return out
}

// SplitLines packs sentences into lines bounded by budget, hard-cutting
// oversized sentences and merging short trailing lines.
func SplitLines(text, language, model string, budget int) []string {
	if text == "" {
		return nil
	}
	if budget <= 0 {
		budget = CharBudget(language, model)
	}

	sentences := splitSentences(text, language)
	var lines []string
	cur := ""

	flush := func() {
		if c := strings.TrimSpace(cur); c != "" {
			lines = append(lines, c)
		}
		cur = ""
	}

	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len([]rune(s)) > int(float64(budget)*1.8) {
			flush()
			runes := []rune(s)
			for start := 0; start < len(runes); start += budget {
				end := start + budget
				if end > len(runes) {
					end = len(runes)
				}
				lines = append(lines, string(runes[start:end]))
			}
			continue
		}
		if cur == "" {
			cur = s
			continue
		}
		sep := ""
		if alnumTail.MatchString(cur) {
			sep = " "
		}
		candidate := cur + sep + s
		if len([]rune(candidate)) <= budget {
			cur = candidate
		} else {
			flush()
			cur = s
		}
	}
	flush()

	return mergeShortLines(lines, budget)
}

func mergeShortLines(lines []string, budget int) []string {
	minLen := budget / 5
	if minLen < 4 {
		minLen = 4
	}
	var merged []string
	for _, line := range lines {
		if len(merged) == 0 {
			merged = append(merged, line)
			continue
		}
		last := merged[len(merged)-1]
		if len([]rune(line)) < minLen && len([]rune(last))+len([]rune(line))+1 <= budget+6 {
			sep := ""
			if alnumTail.MatchString(last) {
				sep = " "
			}
			merged[len(merged)-1] = last + sep + line
		} else {
			merged = append(merged, line)
		}
	}
	return merged
}

// AllocateLineTimes distributes [segStart, segEnd] across lines weighted
// by length, then sweeps for overlap correction.
func AllocateLineTimes(segStart, segEnd float64, lines []string) []Cue {
	if len(lines) == 0 {
		return nil
	}
	dur := segEnd - segStart
	if dur < 0.2 {
		dur = 0.2
	}
	if len(lines) == 1 {
		return []Cue{{Start: segStart, End: segEnd, Text: lines[0]}}
	}

	weights := make([]float64, len(lines))
	totalW := 0.0
	for i, l := range lines {
		w := float64(len([]rune(l)))
		if w < 1 {
			w = 1
		}
		weights[i] = w
		totalW += w
	}

	raw := make([]Cue, 0, len(lines))
	t := segStart
	for i, l := range lines {
		var next float64
		if i == len(lines)-1 {
			next = segEnd
		} else {
			piece := dur * (weights[i] / totalW)
			if piece < 0.3 {
				piece = 0.3
			}
			next = t + piece
			if next > segEnd {
				next = segEnd
			}
		}
		raw = append(raw, Cue{Start: t, End: next, Text: l})
		t = next
	}

	fixed := make([]Cue, 0, len(raw))
	prevEnd := segStart
	for _, c := range raw {
		s := c.Start
		if s < prevEnd {
			s = prevEnd
		}
		e := c.End
		if e < s+0.18 {
			e = s + 0.18
		}
		fixed = append(fixed, Cue{Start: s, End: e, Text: c.Text})
		prevEnd = e
	}
	if n := len(fixed); n > 0 {
		last := fixed[n-1]
		end := segEnd
		if end < last.Start+0.18 {
			end = last.Start + 0.18
		}
		fixed[n-1] = Cue{Start: last.Start, End: end, Text: last.Text}
	}
	return fixed
}

// AssembleCues turns sorted ok-outcome segment results into the final cue
// list: expand each into lines, allocate times, sweep for non-overlap,
// then compact adjacent identical-text cues.
func AssembleCues(results []SegmentResult, language, model string) []Cue {
	budget := CharBudget(language, model)
	var all []Cue
	for _, r := range results {
		if r.Outcome != OutcomeOK || r.Transcript == "" {
			continue
		}
		lines := SplitLines(r.Transcript, language, model, budget)
		all = append(all, AllocateLineTimes(r.Start, r.End, lines)...)
	}

	swept := make([]Cue, 0, len(all))
	prevEnd := 0.0
	for _, c := range all {
		s := c.Start
		if s < prevEnd {
			s = prevEnd
		}
		e := c.End
		if e < s+0.2 {
			e = s + 0.2
		}
		swept = append(swept, Cue{Start: s, End: e, Text: c.Text})
		prevEnd = e
	}

	return compactCues(swept)
}

// compactCues merges consecutive cues with identical text when their gap
// is at most 0.12s.
func compactCues(cues []Cue) []Cue {
	if len(cues) == 0 {
		return cues
	}
	out := []Cue{cues[0]}
	for _, c := range cues[1:] {
		last := &out[len(out)-1]
		if c.Text == last.Text && c.Start-last.End <= 0.12 {
			last.End = c.End
			continue
		}
		out = append(out, c)
	}
	return out
}

// SerializeSRT renders cues as an SRT file: numbered from 1,
// HH:MM:SS,mmm timing, one text line per cue, blank line between cues,
// exactly one trailing newline.
func SerializeSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, formatSRTTime(c.Start), formatSRTTime(c.End), c.Text)
	}
	return b.String()
}

func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(seconds*1000 + 0.5)
	ms := totalMillis % 1000
	totalSeconds := totalMillis / 1000
	s := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	m := totalMinutes % 60
	h := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
