package utils

import (
	"net/url"
	"regexp"
	"strings"

	"linkhealth/infrastructure/logger"

	"github.com/golang-jwt/jwt"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

func GenerateToken(payload map[string]interface{}, secretKey string) (string, error) {
	var claims jwt.MapClaims = payload
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while generate token")
		return "", err
	}
	return tokenString, nil
}

// IsVideoID reports whether s has the shape of a YouTube video id.
func IsVideoID(s string) bool {
	return videoIDPattern.MatchString(s)
}

// ParseYouTubeVideoID extracts the video id from watch, youtu.be, shorts,
// embed and live URLs. A bare id is returned unchanged.
func ParseYouTubeVideoID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if IsVideoID(raw) {
		return raw, true
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case segments[0] == "watch":
			id = u.Query().Get("v")
		case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
			id = segments[1]
		}
	}
	if !IsVideoID(id) {
		return "", false
	}
	return id, true
}
