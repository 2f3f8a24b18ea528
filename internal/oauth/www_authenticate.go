package oauth

import (
	"regexp"
	"strings"
)

var challengeParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// Challenge is a parsed WWW-Authenticate header from a protected resource.
type Challenge struct {
	Scheme           string
	Realm            string
	Error            string // RFC 6750 error code
	ErrorDescription string
	OAuthProblem     string // OAuth1 problem reporting extension
}

// ParseChallenge parses a Bearer (RFC 6750) or OAuth (OAuth 1.0 problem
// reporting) WWW-Authenticate value. It returns nil for an empty header.
//
//	Bearer realm="example", error="invalid_token"
//	OAuth realm="example", oauth_problem="token_rejected"
func ParseChallenge(header string) *Challenge {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}

	parts := strings.SplitN(header, " ", 2)
	c := &Challenge{Scheme: strings.TrimSpace(parts[0])}
	if len(parts) == 1 {
		return c
	}

	for _, match := range challengeParamRegex.FindAllStringSubmatch(parts[1], -1) {
		value := match[2]
		switch strings.ToLower(match[1]) {
		case "realm":
			c.Realm = value
		case "error":
			c.Error = value
		case "error_description":
			c.ErrorDescription = value
		case "oauth_problem":
			c.OAuthProblem = value
		}
	}
	return c
}

// TokenRejected reports whether the resource refused the access token
// itself, meaning the cached grant is no longer usable.
func (c *Challenge) TokenRejected() bool {
	if c == nil {
		return false
	}
	switch {
	case strings.EqualFold(c.Scheme, "Bearer"):
		return c.Error == "invalid_token"
	case strings.EqualFold(c.Scheme, "OAuth"):
		switch c.OAuthProblem {
		case "token_rejected", "token_revoked", "token_expired", "token_used":
			return true
		}
	}
	return false
}
