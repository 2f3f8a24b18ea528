package clientstate

import (
	"errors"
	"fmt"
	"strings"

	"gadgethost/internal/oauth"
)

// ErrInvalidClientState is returned for client state that cannot be decoded,
// decrypted or verified.
var ErrInvalidClientState = errors.New("invalid client state")

// State identifies the user and gadget a request is made for. It is what the
// gadget runtime holds between page loads.
type State struct {
	Owner     string
	Viewer    string
	App       string // App id, often the gadget path
	Domain    string
	URL       string // Absolute app URL; App is used when empty
	Module    string
	Container string
}

// Field keys in encoding order. The order is part of the wire format.
var fieldKeys = []string{"o", "a", "v", "d", "u", "m", "c"}

func (s *State) field(key string) *string {
	switch key {
	case "o":
		return &s.Owner
	case "a":
		return &s.App
	case "v":
		return &s.Viewer
	case "d":
		return &s.Domain
	case "u":
		return &s.URL
	case "m":
		return &s.Module
	case "c":
		return &s.Container
	}
	return nil
}

// Encode returns the colon-delimited form, e.g.
// "o:john.doe:a:~/content/gadgets/oauth/oauth.xml:v::d::u::m::c:".
func (s State) Encode() string {
	var b strings.Builder
	for i, k := range fieldKeys {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(escape(*s.field(k)))
	}
	return b.String()
}

// Decode parses the colon-delimited form. Unknown keys are ignored.
func Decode(encoded string) (State, error) {
	var s State
	parts := strings.Split(encoded, ":")
	if len(parts)%2 != 0 {
		return State{}, fmt.Errorf("%w: odd number of fields", ErrInvalidClientState)
	}
	for i := 0; i < len(parts); i += 2 {
		v, err := unescape(parts[i+1])
		if err != nil {
			return State{}, fmt.Errorf("%w: field %q: %v", ErrInvalidClientState, parts[i], err)
		}
		if f := s.field(parts[i]); f != nil {
			*f = v
		}
	}
	return s, nil
}

// AppURL is the URL gadget services are registered under.
func (s State) AppURL() string {
	if s.URL != "" {
		return s.URL
	}
	return s.App
}

// ToToken builds the security token for a request that uses protocol and
// the named service.
func (s State) ToToken(protocol oauth.ProtocolType, service string) *oauth.SecurityToken {
	return &oauth.SecurityToken{
		AppURL:      s.AppURL(),
		AppID:       s.App,
		OwnerID:     s.Owner,
		ViewerID:    s.Viewer,
		ServiceName: service,
		Protocol:    protocol,
	}
}

var escaper = strings.NewReplacer("%", "%25", ":", "%3A")

func escape(v string) string { return escaper.Replace(v) }

func unescape(v string) (string, error) {
	if !strings.Contains(v, "%") {
		return v, nil
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] != '%' {
			b.WriteByte(v[i])
			continue
		}
		if i+2 >= len(v) {
			return "", fmt.Errorf("truncated escape")
		}
		switch strings.ToUpper(v[i+1 : i+3]) {
		case "25":
			b.WriteByte('%')
		case "3A":
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("unknown escape %q", v[i:i+3])
		}
		i += 2
	}
	return b.String(), nil
}
