package labels

import (
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const displayDateLayout = "Jan 02, 2006"

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(displayDateLayout)
}

// FoldText は結合文字を落として ASCII 寄りにする（"Crème brûlée" → "Creme brulee"）。
// サーマル用のビットマップフォントはラテン1の合成済み文字を持たないため。
func FoldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
