package export

import "unicode"

// joining holds the presentation forms of one Arabic letter. Letters that
// only join to the preceding letter have no initial or medial form.
type joining struct {
	isolated, final, initial, medial rune
}

func (j joining) dual() bool { return j.initial != 0 }

const (
	tatweel = '\u0640'
	lam     = '\u0644'
)

var arabicForms = buildArabicForms()

func buildArabicForms() map[rune]joining {
	forms := map[rune]joining{'\u0621': {isolated: 0xFE80}}
	right := []struct{ letter, base rune }{
		{'آ', 0xFE81}, {'أ', 0xFE83}, {'ؤ', 0xFE85}, {'إ', 0xFE87},
		{'ا', 0xFE8D}, {'ة', 0xFE93}, {'د', 0xFEA9}, {'ذ', 0xFEAB},
		{'ر', 0xFEAD}, {'ز', 0xFEAF}, {'و', 0xFEED}, {'ى', 0xFEEF},
	}
	for _, l := range right {
		forms[l.letter] = joining{isolated: l.base, final: l.base + 1}
	}
	dual := []struct{ letter, base rune }{
		{'ئ', 0xFE89}, {'ب', 0xFE8F}, {'ت', 0xFE95}, {'ث', 0xFE99},
		{'ج', 0xFE9D}, {'ح', 0xFEA1}, {'خ', 0xFEA5}, {'س', 0xFEB1},
		{'ش', 0xFEB5}, {'ص', 0xFEB9}, {'ض', 0xFEBD}, {'ط', 0xFEC1},
		{'ظ', 0xFEC5}, {'ع', 0xFEC9}, {'غ', 0xFECD}, {'ف', 0xFED1},
		{'ق', 0xFED5}, {'ك', 0xFED9}, {'ل', 0xFEDD}, {'م', 0xFEE1},
		{'ن', 0xFEE5}, {'ه', 0xFEE9}, {'ي', 0xFEF1},
	}
	for _, l := range dual {
		forms[l.letter] = joining{isolated: l.base, final: l.base + 1, initial: l.base + 2, medial: l.base + 3}
	}
	return forms
}

// lamAlef maps the alef variants to their isolated lam-alef ligature; the
// final form is the next code point.
var lamAlef = map[rune]rune{
	'آ': 0xFEF5,
	'أ': 0xFEF7,
	'إ': 0xFEF9,
	'ا': 0xFEFB,
}

func isHaraka(r rune) bool {
	return (r >= 0x064B && r <= 0x065F) || r == 0x0670
}

func joinsForward(r rune) bool {
	if r == tatweel {
		return true
	}
	f, ok := arabicForms[r]
	return ok && f.dual()
}

func joinable(r rune) bool {
	if r == tatweel {
		return true
	}
	_, ok := arabicForms[r]
	return ok
}

// shapeArabic replaces Arabic letters with their contextual presentation
// forms. gofpdf draws code points one by one, so without this every letter
// prints in its isolated form.
func shapeArabic(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in))
	// neighbour skips diacritics, which do not break a join.
	neighbour := func(i, step int) rune {
		for j := i + step; j >= 0 && j < len(in); j += step {
			if !isHaraka(in[j]) {
				return in[j]
			}
		}
		return 0
	}

	var prev rune
	for i := 0; i < len(in); i++ {
		r := in[i]
		if isHaraka(r) {
			out = append(out, r)
			continue
		}
		forms, ok := arabicForms[r]
		if !ok {
			out = append(out, r)
			prev = r
			continue
		}
		joinPrev := joinsForward(prev)
		if r == lam && i+1 < len(in) {
			if lig, ok := lamAlef[in[i+1]]; ok {
				if joinPrev {
					lig++
				}
				out = append(out, lig)
				prev = in[i+1]
				i++
				continue
			}
		}
		joinNext := forms.dual() && joinable(neighbour(i, 1))
		switch {
		case joinPrev && joinNext:
			out = append(out, forms.medial)
		case joinPrev && forms.final != 0:
			out = append(out, forms.final)
		case joinNext:
			out = append(out, forms.initial)
		default:
			out = append(out, forms.isolated)
		}
		prev = r
	}
	return string(out)
}

func isArabicLetter(r rune) bool {
	switch {
	case r >= 0x0660 && r <= 0x0669, r >= 0x06F0 && r <= 0x06F9:
		return false
	case r >= 0x0600 && r <= 0x06FF, r >= 0xFB50 && r <= 0xFDFF, r >= 0xFE70 && r <= 0xFEFC:
		return true
	}
	return false
}

func isLTR(r rune) bool {
	return !isArabicLetter(r) && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

var mirrored = map[rune]rune{'(': ')', ')': '(', '[': ']', ']': '[', '{': '}', '}': '{', '<': '>', '>': '<'}

func reverseRunes(r []rune) {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

// rtlText shapes s and orders it for gofpdf's RTL mode, which reverses
// every cell string rune by rune. Runs of digits and Latin text are
// pre-reversed so they come out in reading order, and text without any
// Arabic letter is returned unchanged after that reversal.
func rtlText(s string) string {
	runes := []rune(shapeArabic(s))
	hasArabic := false
	for _, r := range runes {
		if isArabicLetter(r) {
			hasArabic = true
			break
		}
	}
	if !hasArabic {
		reverseRunes(runes)
		return string(runes)
	}

	inRun := make([]bool, len(runes))
	for start := 0; start < len(runes); {
		if !isLTR(runes[start]) {
			start++
			continue
		}
		end, last := start, start
		for end < len(runes) && !isArabicLetter(runes[end]) {
			if isLTR(runes[end]) {
				last = end
			}
			end++
		}
		reverseRunes(runes[start : last+1])
		for k := start; k <= last; k++ {
			inRun[k] = true
		}
		start = end
	}
	for i, r := range runes {
		if m, ok := mirrored[r]; ok && !inRun[i] {
			runes[i] = m
		}
	}
	return string(runes)
}
