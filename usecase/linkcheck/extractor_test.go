package linkcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "trailing sentence punctuation",
			text: "Shop here: https://example.com/shop. More at (http://a.io/x), thanks!",
			want: []string{"https://example.com/shop", "http://a.io/x"},
		},
		{
			name: "greedy strip of mixed punctuation",
			text: "see https://example.com/path?!).,;",
			want: []string{"https://example.com/path"},
		},
		{
			name: "duplicates preserved in order",
			text: "https://b.com https://a.com\nhttps://b.com",
			want: []string{"https://b.com", "https://a.com", "https://b.com"},
		},
		{
			name: "no urls",
			text: "ftp://files.example.com and www.example.com are not matched",
			want: nil,
		},
		{
			name: "unicode spaces end a url",
			text: "see https://a.com/b\u00a0and more, then https://c.com/d\u3000next\u2028https://e.com",
			want: []string{"https://a.com/b", "https://c.com/d", "https://e.com"},
		},
		{
			name: "inner punctuation kept",
			text: "https://example.com/a.b,c?q=1&r=2#frag",
			want: []string{"https://example.com/a.b,c?q=1&r=2#frag"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollectURLs(tt.text))
		})
	}
}

func TestExtractURLs_Restartable(t *testing.T) {
	seq := ExtractURLs("one https://a.com two https://b.com")

	var first, second []string
	for u := range seq {
		first = append(first, u)
	}
	for u := range seq {
		second = append(second, u)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestExtractURLs_StopsEarly(t *testing.T) {
	var got []string
	for u := range ExtractURLs("https://a.com https://b.com https://c.com") {
		got = append(got, u)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, got)
}
