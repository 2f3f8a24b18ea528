package gadget

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"gadgethost/internal/oauth"
)

// maxSpecBytes bounds how much of a gadget spec is read.
const maxSpecBytes = 1 << 20

// Spec is the part of a gadget spec the container needs: its identity and
// the OAuth services declared in ModulePrefs.
type Spec struct {
	AppURL    string
	Title     string
	Services  []oauth.ServiceDefinition
	Services2 []oauth.Service2Definition
}

type xmlModule struct {
	XMLName xml.Name       `xml:"Module"`
	Prefs   xmlModulePrefs `xml:"ModulePrefs"`
}

type xmlModulePrefs struct {
	Title  string     `xml:"title,attr"`
	OAuth  *xmlOAuth  `xml:"OAuth"`
	OAuth2 *xmlOAuth2 `xml:"OAuth2"`
}

type xmlOAuth struct {
	Services []xmlService `xml:"Service"`
}

type xmlService struct {
	Name          string      `xml:"name,attr"`
	Request       xmlEndpoint `xml:"Request"`
	Access        xmlEndpoint `xml:"Access"`
	Authorization xmlEndpoint `xml:"Authorization"`
}

type xmlEndpoint struct {
	URL                  string `xml:"url,attr"`
	Method               string `xml:"method,attr"`
	ParamLocation        string `xml:"param_location,attr"`
	ClientAuthentication string `xml:"client_authentication,attr"`
}

type xmlOAuth2 struct {
	Services []xmlService2 `xml:"Service"`
}

type xmlService2 struct {
	Name          string      `xml:"name,attr"`
	Scope         string      `xml:"scope,attr"`
	TokenLocation string      `xml:"token_location,attr"`
	Authorization xmlEndpoint `xml:"Authorization"`
	Token         xmlEndpoint `xml:"Token"`
}

// ParseSpec reads a gadget spec and returns its OAuth declarations.
func ParseSpec(appURL string, r io.Reader) (*Spec, error) {
	var m xmlModule
	dec := xml.NewDecoder(io.LimitReader(r, maxSpecBytes))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse gadget spec %s: %w", appURL, err)
	}

	spec := &Spec{AppURL: appURL, Title: strings.TrimSpace(m.Prefs.Title)}
	if m.Prefs.OAuth != nil {
		seen := make(map[string]bool)
		for _, s := range m.Prefs.OAuth.Services {
			svc, err := s.definition()
			if err != nil {
				return nil, fmt.Errorf("gadget %s: %w", appURL, err)
			}
			if seen[svc.Name] {
				return nil, fmt.Errorf("gadget %s: duplicate OAuth service %q", appURL, svc.Name)
			}
			seen[svc.Name] = true
			spec.Services = append(spec.Services, svc)
		}
	}
	if m.Prefs.OAuth2 != nil {
		seen := make(map[string]bool)
		for _, s := range m.Prefs.OAuth2.Services {
			svc, err := s.definition()
			if err != nil {
				return nil, fmt.Errorf("gadget %s: %w", appURL, err)
			}
			if seen[svc.Name] {
				return nil, fmt.Errorf("gadget %s: duplicate OAuth2 service %q", appURL, svc.Name)
			}
			seen[svc.Name] = true
			spec.Services2 = append(spec.Services2, svc)
		}
	}
	return spec, nil
}

func (s xmlService) definition() (oauth.ServiceDefinition, error) {
	name := strings.TrimSpace(s.Name)
	if s.Request.URL == "" || s.Access.URL == "" || s.Authorization.URL == "" {
		return oauth.ServiceDefinition{}, fmt.Errorf("OAuth service %q needs Request, Access and Authorization urls", name)
	}
	loc, err := paramLocation(s.Request.ParamLocation)
	if err != nil {
		return oauth.ServiceDefinition{}, fmt.Errorf("OAuth service %q: %w", name, err)
	}
	return oauth.ServiceDefinition{
		Name:          name,
		RequestToken:  oauth.Endpoint{URL: s.Request.URL, Method: strings.ToUpper(s.Request.Method)},
		Authorization: oauth.Endpoint{URL: s.Authorization.URL},
		AccessToken:   oauth.Endpoint{URL: s.Access.URL, Method: strings.ToUpper(s.Access.Method)},
		ParamLocation: loc,
	}, nil
}

func (s xmlService2) definition() (oauth.Service2Definition, error) {
	name := strings.TrimSpace(s.Name)
	if s.Authorization.URL == "" || s.Token.URL == "" {
		return oauth.Service2Definition{}, fmt.Errorf("OAuth2 service %q needs Authorization and Token urls", name)
	}
	auth, err := clientAuthentication(s.Token.ClientAuthentication)
	if err != nil {
		return oauth.Service2Definition{}, fmt.Errorf("OAuth2 service %q: %w", name, err)
	}
	loc, err := tokenLocation(s.TokenLocation)
	if err != nil {
		return oauth.Service2Definition{}, fmt.Errorf("OAuth2 service %q: %w", name, err)
	}
	return oauth.Service2Definition{
		Name:                 name,
		Authorization:        oauth.Endpoint{URL: s.Authorization.URL},
		Token:                oauth.Endpoint{URL: s.Token.URL, Method: strings.ToUpper(s.Token.Method)},
		Scope:                strings.TrimSpace(s.Scope),
		ClientAuthentication: auth,
		TokenLocation:        loc,
	}, nil
}

func paramLocation(v string) (oauth.ParamLocation, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", string(oauth.ParamLocationHeader):
		return oauth.ParamLocationHeader, nil
	case string(oauth.ParamLocationPostBody):
		return oauth.ParamLocationPostBody, nil
	case string(oauth.ParamLocationQuery):
		return oauth.ParamLocationQuery, nil
	default:
		return "", fmt.Errorf("unknown param_location %q", v)
	}
}

func clientAuthentication(v string) (oauth.ClientAuthentication, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "basic", "header":
		return oauth.ClientAuthHeader, nil
	case "params", "standard", "post":
		return oauth.ClientAuthParams, nil
	default:
		return "", fmt.Errorf("unknown client_authentication %q", v)
	}
}

// tokenLocation defaults to the Authorization header.
func tokenLocation(v string) (oauth.TokenLocation, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "header", string(oauth.TokenLocationHeader):
		return oauth.TokenLocationHeader, nil
	case "query", string(oauth.TokenLocationQuery):
		return oauth.TokenLocationQuery, nil
	default:
		return "", fmt.Errorf("unknown token_location %q", v)
	}
}
