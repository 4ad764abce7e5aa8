package linkcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_IsTolerant(t *testing.T) {
	c := NewClassifier([]string{"instagram.com", "bit.ly", "amazon.", " Etsy.com "})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.instagram.com/someone", true},
		{"https://WWW.INSTAGRAM.COM/someone", true},
		{"https://app.www.bit.ly/abc", true},
		{"https://www.amazon.co.uk/dp/123", true},
		{"https://smile.amazon.de/x", true},
		{"https://shop.etsy.com/listing", true},
		{"https://example.com/instagram.com", false},
		{"https://example.com", false},
		{"http://[::1", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsTolerant(tt.url))
		})
	}
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeHost("WWW.Example.com"))
	assert.Equal(t, "example.com", NormalizeHost("app.www.example.com"))
	assert.Equal(t, "api.example.com", NormalizeHost("api.example.com"))
}

func TestDefaultTolerantDomains(t *testing.T) {
	c := NewClassifier(DefaultTolerantDomains)
	assert.True(t, c.IsTolerant("https://www.facebook.com/page"))
	assert.True(t, c.IsTolerant("https://t.co/abc"))
	assert.True(t, c.IsTolerant("https://x.com/someone"))
	assert.True(t, c.IsTolerant("https://mobile.x.com/someone"))
	assert.True(t, c.IsTolerant("https://t.me/channel"))
	assert.True(t, c.IsTolerant("https://wa.me/15550100"))
	assert.True(t, c.IsTolerant("https://m.fb.com/page"))
	assert.False(t, c.IsTolerant("https://golang.org/doc"))

	for _, u := range []string{
		"https://www.microsoft.com/x",
		"https://www.dropbox.com/s/abc",
		"https://www.netflix.com/title/1",
		"https://www.fedex.com",
		"https://chat.me/room",
	} {
		assert.False(t, c.IsTolerant(u), u)
	}
}
