package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  ما هي   ساعات العمل؟ ", "ما هي ساعات العمل"},
		{"Hello,  World!", "hello world"},
		{"مَا هِيَ", "ما هي"},
		{"\t\n", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestFAQ_Match(t *testing.T) {
	faq := NewFAQ(DefaultFAQ)
	hours := DefaultFAQ[0]

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"exact", "ما هي ساعات العمل", true},
		{"exact with punctuation", "ما هي ساعات العمل؟", true},
		{"input contains question", "مرحبا، ما هي ساعات العمل لديكم", true},
		{"question contains input", "ساعات العمل", true},
		{"english", "What are your working hours?", false},
		{"blank", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := faq.Match(tt.input)
			assert.Equal(t, tt.want, ok)
			if tt.want && tt.name != "blank" {
				assert.Equal(t, hours, entry)
			}
		})
	}
}

func TestFAQ_QuickQuestions(t *testing.T) {
	faq := NewFAQ(DefaultFAQ)
	qs := faq.QuickQuestions()
	assert.Len(t, qs, QuickQuestionCount)
	assert.Equal(t, DefaultFAQ[0].Question, qs[0])

	short := NewFAQ(DefaultFAQ[:1])
	assert.Len(t, short.QuickQuestions(), 1)
}

func TestFAQ_MatchServiceQuestions(t *testing.T) {
	faq := NewFAQ(DefaultFAQ)

	entry, ok := faq.Match("مرحبا، كيف أجدد بطاقة الهوية الوطنية؟")
	require.True(t, ok)
	assert.Contains(t, entry.Answer, "الأحوال المدنية")

	entry, ok = faq.Match("جواز السفر")
	require.True(t, ok)
	assert.Equal(t, DefaultFAQ[4], entry)
}
