package oauth

import (
	"testing"
)

func TestParseChallenge(t *testing.T) {
	tests := []struct {
		name         string
		header       string
		wantNil      bool
		wantScheme   string
		wantRealm    string
		wantError    string
		wantProblem  string
		wantRejected bool
	}{
		{
			name:    "empty",
			header:  "  ",
			wantNil: true,
		},
		{
			name:       "scheme only",
			header:     "Bearer",
			wantScheme: "Bearer",
		},
		{
			name:         "bearer invalid token",
			header:       `Bearer realm="api", error="invalid_token", error_description="expired"`,
			wantScheme:   "Bearer",
			wantRealm:    "api",
			wantError:    "invalid_token",
			wantRejected: true,
		},
		{
			name:       "bearer insufficient scope",
			header:     `Bearer realm="api", error="insufficient_scope"`,
			wantScheme: "Bearer",
			wantRealm:  "api",
			wantError:  "insufficient_scope",
		},
		{
			name:         "oauth1 token rejected",
			header:       `OAuth realm="photos", oauth_problem="token_rejected"`,
			wantScheme:   "OAuth",
			wantRealm:    "photos",
			wantProblem:  "token_rejected",
			wantRejected: true,
		},
		{
			name:        "oauth1 timestamp refused",
			header:      `OAuth oauth_problem="timestamp_refused"`,
			wantScheme:  "OAuth",
			wantProblem: "timestamp_refused",
		},
		{
			name:       "basic",
			header:     `Basic realm="x"`,
			wantScheme: "Basic",
			wantRealm:  "x",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := ParseChallenge(tc.header)
			if tc.wantNil {
				if c != nil {
					t.Errorf("Expected nil, got %+v", c)
				}
				return
			}
			if c == nil {
				t.Fatal("Expected challenge, got nil")
			}
			if c.Scheme != tc.wantScheme {
				t.Errorf("Scheme = %q, want %q", c.Scheme, tc.wantScheme)
			}
			if c.Realm != tc.wantRealm {
				t.Errorf("Realm = %q, want %q", c.Realm, tc.wantRealm)
			}
			if c.Error != tc.wantError {
				t.Errorf("Error = %q, want %q", c.Error, tc.wantError)
			}
			if c.OAuthProblem != tc.wantProblem {
				t.Errorf("OAuthProblem = %q, want %q", c.OAuthProblem, tc.wantProblem)
			}
			if c.TokenRejected() != tc.wantRejected {
				t.Errorf("TokenRejected() = %v, want %v", c.TokenRejected(), tc.wantRejected)
			}
		})
	}
}

func TestChallenge_NilTokenRejected(t *testing.T) {
	var c *Challenge
	if c.TokenRejected() {
		t.Error("Expected nil challenge not to reject")
	}
}
