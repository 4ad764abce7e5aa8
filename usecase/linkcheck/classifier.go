package linkcheck

import (
	"net/url"
	"strings"
)

// DefaultTolerantDomains lists platforms known to reject automated clients with 4xx codes.
// A leading dot anchors an entry to a label boundary.
var DefaultTolerantDomains = []string{
	// social
	"facebook.com", ".fb.com", "instagram.com", "twitter.com", ".x.com", "tiktok.com",
	"linkedin.com", "pinterest.com", "reddit.com", "snapchat.com", "threads.net",
	"discord.gg", "discord.com", ".t.me", "telegram.me", "whatsapp.com", ".wa.me",
	"twitch.tv", "patreon.com", "onlyfans.com", "linktr.ee", "beacons.ai",
	// shorteners
	"bit.ly", "tinyurl.com", "goo.gl", ".ow.ly", ".t.co", "buff.ly", "rebrand.ly",
	"cutt.ly", ".is.gd", "shorturl.at", "amzn.to", "geni.us",
	// marketplaces
	"amazon.", "ebay.", "etsy.com", "aliexpress.", "walmart.com", "bestbuy.com",
	"target.com", "shopify.com", "gumroad.com", "teespring.com", "spreadshirt.",
	// screenshot and image tools
	"imgur.com", "prnt.sc", "prntscr.com", "gyazo.com", "lightshot", "flickr.com",
	"canva.com", "unsplash.com",
}

// Classifier tags URLs whose host belongs to a tolerant platform.
type Classifier struct {
	domains []string
}

func NewClassifier(domains []string) *Classifier {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return &Classifier{domains: normalized}
}

// IsTolerant reports whether the URL's normalized host, prefixed with a dot,
// contains any configured domain. Unparseable URLs are never tolerant.
func (c *Classifier) IsTolerant(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := NormalizeHost(u.Hostname())
	if host == "" {
		return false
	}
	host = "." + host
	for _, d := range c.domains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

// NormalizeHost lower-cases host and strips leading "www." and "app." labels.
func NormalizeHost(host string) string {
	host = strings.ToLower(host)
	for {
		switch {
		case strings.HasPrefix(host, "www."):
			host = host[len("www."):]
		case strings.HasPrefix(host, "app."):
			host = host[len("app."):]
		default:
			return host
		}
	}
}
