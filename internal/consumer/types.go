package consumer

import (
	"context"
	"fmt"
	"strings"

	"gadgethost/internal/oauth"
)

// AnyApp registers a consumer for every gadget that declares the service.
const AnyApp = "*"

// Registration is one consumer key/secret (OAuth1) or client id/secret
// (OAuth2) the container holds for a gadget service.
type Registration struct {
	AppURL   string `yaml:"appUrl"`
	Service  string `yaml:"service"`
	Protocol string `yaml:"protocol"` // "oauth" or "oauth2"

	ConsumerKey     string `yaml:"consumerKey,omitempty"`
	ConsumerSecret  string `yaml:"consumerSecret,omitempty"`
	SignatureMethod string `yaml:"signatureMethod,omitempty"`
	CallbackURL     string `yaml:"callbackUrl,omitempty"`

	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	RedirectURI  string `yaml:"redirectUri,omitempty"`
}

// Validate checks that the registration carries the fields its protocol needs.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.AppURL) == "" {
		return fmt.Errorf("appUrl is required")
	}
	if strings.TrimSpace(r.Service) == "" {
		return fmt.Errorf("service is required")
	}
	switch oauth.ParseProtocol(r.Protocol) {
	case oauth.ProtocolOAuth1:
		if r.ConsumerKey == "" || r.ConsumerSecret == "" {
			return fmt.Errorf("consumerKey and consumerSecret are required for protocol %q", r.Protocol)
		}
	case oauth.ProtocolOAuth2:
		if r.ClientID == "" {
			return fmt.Errorf("clientId is required for protocol %q", r.Protocol)
		}
	default:
		return fmt.Errorf("unknown protocol %q", r.Protocol)
	}
	return nil
}

func (r Registration) credential() oauth.ConsumerCredential {
	return oauth.ConsumerCredential{
		AppURL:          r.AppURL,
		ServiceName:     r.Service,
		ConsumerKey:     r.ConsumerKey,
		ConsumerSecret:  r.ConsumerSecret,
		SignatureMethod: r.SignatureMethod,
		CallbackURL:     r.CallbackURL,
	}
}

func (r Registration) credential2() oauth.Consumer2Credential {
	return oauth.Consumer2Credential{
		AppURL:       r.AppURL,
		ServiceName:  r.Service,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		RedirectURI:  r.RedirectURI,
	}
}

// Store is a source of consumer registrations.
type Store interface {
	oauth.ConsumerStore
	List(ctx context.Context) ([]Registration, error)
	Close() error
}

// Writer is implemented by stores that accept new registrations.
type Writer interface {
	Put(ctx context.Context, r Registration) error
	Delete(ctx context.Context, appURL, service string, protocol oauth.ProtocolType) error
}

type regKey struct {
	app      string
	service  string
	protocol oauth.ProtocolType
}

// index resolves registrations, preferring an exact app match over AnyApp.
type index map[regKey]Registration

func buildIndex(regs []Registration) index {
	idx := make(index, len(regs))
	for _, r := range regs {
		idx[regKey{r.AppURL, r.Service, oauth.ParseProtocol(r.Protocol)}] = r
	}
	return idx
}

func (idx index) find(appURL, service string, p oauth.ProtocolType) (Registration, error) {
	if r, ok := idx[regKey{appURL, service, p}]; ok {
		return r, nil
	}
	if r, ok := idx[regKey{AnyApp, service, p}]; ok {
		return r, nil
	}
	return Registration{}, fmt.Errorf("%w: app=%s service=%s protocol=%s", oauth.ErrConsumerNotFound, appURL, service, p)
}
