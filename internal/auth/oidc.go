// OIDC principal linking: a user authenticates with an external OIDC
// provider, and the resulting verified identity (email/subject) is
// linked to (or creates) a models.User row with
// oauth_provider/oauth_id set. The actual login/callback HTTP routes
// live in the handlers package; this file only owns the OIDC
// mechanics and the database linking step.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// OIDCConfig holds the single configured OIDC provider. BugSpotter is
// self-hosted and links one external identity provider at a time,
// configured via InstanceSettings rather than a provider catalog.
type OIDCConfig struct {
	ProviderURL  string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// OIDCAuthenticator verifies OIDC ID tokens against a discovered provider.
type OIDCAuthenticator struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	provider     *oidc.Provider
}

// NewOIDCAuthenticator discovers the provider's configuration and
// builds the OAuth2/OIDC client.
func NewOIDCAuthenticator(ctx context.Context, cfg OIDCConfig) (*OIDCAuthenticator, error) {
	if cfg.ProviderURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("oidc: provider_url, client_id, and client_secret are required")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	provider, err := oidc.NewProvider(ctx, cfg.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("oidc: discover provider: %w", err)
	}

	return &OIDCAuthenticator{
		provider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthorizationURL builds the redirect URL for the login flow. state
// must be generated with GenerateOAuthState and validated on callback.
func (a *OIDCAuthenticator) AuthorizationURL(state string) string {
	return a.oauth2Config.AuthCodeURL(state)
}

// OIDCUserInfo is the identity extracted from a verified ID token.
type OIDCUserInfo struct {
	Subject string
	Email   string
	Name    string
}

// Exchange trades an authorization code for a verified identity.
func (a *OIDCAuthenticator) Exchange(ctx context.Context, code string) (*OIDCUserInfo, error) {
	token, err := a.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oidc: exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("oidc: token response missing id_token")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc: verify id_token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc: parse claims: %w", err)
	}

	return &OIDCUserInfo{Subject: idToken.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// LinkOrCreateUser resolves info to a models.User, creating one with
// oauth_provider="oidc" on first login.
func LinkOrCreateUser(ctx context.Context, users *db.UserRepository, provider string, info *OIDCUserInfo) (*models.User, error) {
	if user, err := users.FindByOAuth(ctx, provider, info.Subject); err == nil {
		return user, nil
	}
	name := info.Name
	if name == "" {
		name = info.Email
	}
	return users.CreateOAuth(ctx, info.Email, name, provider, info.Subject)
}

// GenerateOAuthState returns a random, URL-safe CSRF state value for
// the authorization redirect, to be round-tripped via a short-lived cookie.
func GenerateOAuthState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
