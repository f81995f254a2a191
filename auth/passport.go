package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultNexusURL is the published discovery endpoint for the passport
// service.
const DefaultNexusURL = "https://nexus.passport.com/rdr/pprdr.asp"

const orgURL = "http://messenger.msn.com"

// TokenExchanger swaps a login name, password and server-issued auth ticket
// for a passport token. The session login flow depends only on this
// interface, so tests can stand in a canned exchanger.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context, loginName, password, authTicket string) (string, error)
}

// AuthenticationError reports a failed token exchange, most commonly a
// rejected password.
type AuthenticationError struct {
	err error
}

func (e *AuthenticationError) Error() string {
	return "auth: authentication failed: " + e.err.Error()
}

func (e *AuthenticationError) Unwrap() error {
	return e.err
}

// Passport performs the live token exchange: a discovery request against the
// nexus yields the login endpoint, and a signed request against that
// endpoint yields the token.
type Passport struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client

	// NexusURL defaults to DefaultNexusURL.
	NexusURL string
}

func (p *Passport) ExchangeToken(ctx context.Context, loginName, password, authTicket string) (string, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	nexus := p.NexusURL
	if nexus == "" {
		nexus = DefaultNexusURL
	}

	endpoints, err := p.discover(ctx, client, nexus)
	if err != nil {
		return "", &AuthenticationError{err: err}
	}

	loginURL, ok := endpoints["DALogin"]
	if !ok {
		return "", &AuthenticationError{err: fmt.Errorf("nexus reply names no DALogin endpoint")}
	}

	if !strings.HasPrefix(loginURL, "http") {
		loginURL = "https://" + loginURL
	}

	token, err := p.login(ctx, client, loginURL, loginName, password, authTicket)
	if err != nil {
		return "", &AuthenticationError{err: err}
	}

	return token, nil
}

// discover fetches the comma-separated key=value catalogue of passport
// endpoints from the PassportURLs header.
func (p *Passport) discover(ctx context.Context, client *http.Client, nexus string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nexus, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	header := resp.Header.Get("PassportURLs")
	if header == "" {
		return nil, fmt.Errorf("nexus reply carries no PassportURLs header")
	}

	endpoints := map[string]string{}

	for _, pair := range strings.Split(header, ",") {
		if i := strings.IndexByte(pair, '='); i >= 0 {
			endpoints[pair[:i]] = pair[i+1:]
		}
	}

	return endpoints, nil
}

// login presents the credentials and the server's ticket; the token comes
// back single-quoted inside the Authentication-Info header.
func (p *Passport) login(ctx context.Context, client *http.Client, loginURL, loginName, password, authTicket string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", fmt.Sprintf(
		"Passport1.4 OrgVerb=GET,OrgURL=%s,sign-in=%s,pwd=%s,%s",
		url.QueryEscape(orgURL), loginName, password, authTicket))

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login endpoint answered %s", resp.Status)
	}

	info := resp.Header.Get("Authentication-Info")
	parts := strings.Split(info, "'")

	if len(parts) < 2 {
		return "", fmt.Errorf("login reply carries no token")
	}

	return parts[1], nil
}
