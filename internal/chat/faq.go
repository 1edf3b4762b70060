package chat

import (
	"strings"
	"unicode"
)

// FAQEntry pairs a canonical question with its canned answer.
type FAQEntry struct {
	Question string
	Answer   string
}

// DefaultFAQ is the built-in Arabic question table. The first entries are
// also offered as quick questions in an empty room.
var DefaultFAQ = []FAQEntry{
	{
		Question: "ما هي ساعات العمل",
		Answer:   "نعمل من الأحد إلى الخميس، من الساعة 8 صباحاً حتى 3 مساءً.",
	},
	{
		Question: "كيف أجدد بطاقة الهوية الوطنية",
		Answer:   "يمكنك تجديد بطاقة الهوية من خدمة «الأحوال المدنية» في البوابة الإلكترونية قبل انتهائها بـ 180 يوماً.",
	},
	{
		Question: "كيف أحجز موعدا في مركز الخدمة",
		Answer:   "اختر «المواعيد» من البوابة، ثم حدد المركز والخدمة والوقت المناسب لك.",
	},
	{
		Question: "كيف أتابع حالة معاملتي",
		Answer:   "أدخل رقم المعاملة في صفحة «معاملاتي» لعرض حالتها والجهة التي تعمل عليها.",
	},
	{
		Question: "ما هي المستندات المطلوبة لاستخراج جواز السفر",
		Answer:   "صورة شخصية حديثة، وبطاقة الهوية سارية المفعول، وإيصال سداد الرسوم.",
	},
	{
		Question: "كيف أدفع رسوم الخدمات الحكومية",
		Answer:   "تُسدد الرسوم إلكترونياً عبر نظام «سداد» أو من خلال البطاقة البنكية في البوابة.",
	},
}

// QuickQuestionCount is how many table entries are offered as shortcuts.
const QuickQuestionCount = 4

// Normalize lowercases s, drops punctuation and Arabic diacritics, and
// collapses runs of whitespace.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case isTashkeel(r) || r == 'ـ':
			continue
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isTashkeel(r rune) bool {
	return r >= 0x064B && r <= 0x0652
}

// FAQ matches customer text against a question table.
type FAQ struct {
	entries    []FAQEntry
	normalized []string
}

func NewFAQ(entries []FAQEntry) *FAQ {
	f := &FAQ{entries: entries, normalized: make([]string, len(entries))}
	for i, e := range entries {
		f.normalized[i] = Normalize(e.Question)
	}
	return f
}

// Match returns the first entry whose normalized question contains the
// normalized input or is contained in it. Blank input never matches.
func (f *FAQ) Match(text string) (FAQEntry, bool) {
	q := Normalize(text)
	if q == "" {
		return FAQEntry{}, false
	}
	for i, n := range f.normalized {
		if n == "" {
			continue
		}
		if strings.Contains(n, q) || strings.Contains(q, n) {
			return f.entries[i], true
		}
	}
	return FAQEntry{}, false
}

// QuickQuestions returns the shortcut questions in table order.
func (f *FAQ) QuickQuestions() []string {
	n := min(QuickQuestionCount, len(f.entries))
	out := make([]string, 0, n)
	for _, e := range f.entries[:n] {
		out = append(out, e.Question)
	}
	return out
}
