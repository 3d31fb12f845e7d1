// SAML principal linking, for self-hosted installs whose identity
// provider only speaks SAML 2.0. Works the same way oidc.go does: a
// single configured IdP, verified by crewjam/saml's service provider
// and middleware, with the resulting assertion linked to (or creating)
// a models.User row with oauth_provider="saml". Login/callback HTTP
// routes live in the handlers package; this file owns the SAML
// mechanics and the attribute-to-identity mapping.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// SAMLConfig holds the single configured identity provider. Attribute
// names vary across IdPs (Okta, Azure AD, Keycloak, ...) so the two
// that matter are left configurable rather than guessed; everything
// else is fixed SP behavior.
type SAMLConfig struct {
	EntityID          string
	ACSURL            string
	MetadataURL       string
	MetadataXML       []byte
	Certificate       *x509.Certificate
	PrivateKey        *rsa.PrivateKey
	EmailAttribute    string
	UsernameAttribute string
	AllowIDPInitiated bool
}

// SAMLAuthenticator wraps a crewjam/saml service provider and its gin
// adapter for the configured IdP.
type SAMLAuthenticator struct {
	config          SAMLConfig
	middleware      *samlsp.Middleware
	serviceProvider *saml.ServiceProvider
}

// NewSAMLAuthenticator builds the service provider, loading IdP
// metadata from MetadataURL if set, otherwise parsing MetadataXML.
func NewSAMLAuthenticator(cfg SAMLConfig) (*SAMLAuthenticator, error) {
	if cfg.Certificate == nil || cfg.PrivateKey == nil {
		return nil, fmt.Errorf("saml: signing certificate and private key are required")
	}
	acsURL, err := url.Parse(cfg.ACSURL)
	if err != nil {
		return nil, fmt.Errorf("saml: parse acs url: %w", err)
	}

	opts := samlsp.Options{
		URL:               *acsURL,
		Key:               cfg.PrivateKey,
		Certificate:       cfg.Certificate,
		EntityID:          cfg.EntityID,
		AllowIDPInitiated: cfg.AllowIDPInitiated,
	}

	switch {
	case cfg.MetadataURL != "":
		idpMetadataURL, err := url.Parse(cfg.MetadataURL)
		if err != nil {
			return nil, fmt.Errorf("saml: parse idp metadata url: %w", err)
		}
		idpMetadata, err := samlsp.FetchMetadata(context.Background(), http.DefaultClient, *idpMetadataURL)
		if err != nil {
			return nil, fmt.Errorf("saml: fetch idp metadata: %w", err)
		}
		opts.IDPMetadata = idpMetadata
	case len(cfg.MetadataXML) > 0:
		idpMetadata, err := samlsp.ParseMetadata(cfg.MetadataXML)
		if err != nil {
			return nil, fmt.Errorf("saml: parse idp metadata: %w", err)
		}
		opts.IDPMetadata = idpMetadata
	default:
		return nil, fmt.Errorf("saml: one of metadata_url or metadata_xml is required")
	}

	mw, err := samlsp.New(opts)
	if err != nil {
		return nil, fmt.Errorf("saml: build service provider: %w", err)
	}

	return &SAMLAuthenticator{
		config:          cfg,
		middleware:      mw,
		serviceProvider: &mw.ServiceProvider,
	}, nil
}

// Middleware returns the http.Handler serving /saml/acs and /saml/slo.
func (a *SAMLAuthenticator) Middleware() *samlsp.Middleware {
	return a.middleware
}

// Metadata returns the service provider's metadata XML, for an
// administrator to upload to the IdP when configuring BugSpotter as a
// trusted SP.
func (a *SAMLAuthenticator) Metadata() *saml.EntityDescriptor {
	return a.serviceProvider.Metadata()
}

// SAMLUserInfo is the identity extracted from a verified assertion.
type SAMLUserInfo struct {
	NameID string
	Email  string
	Name   string
}

// ExtractUserInfo reads the assertion's attributes, falling back to
// NameID for email/name when the configured attribute is absent
// (common with IdPs that emit an email-formatted NameID and nothing else).
func (a *SAMLAuthenticator) ExtractUserInfo(assertion *saml.Assertion) (*SAMLUserInfo, error) {
	if assertion == nil {
		return nil, fmt.Errorf("saml: assertion is nil")
	}
	info := &SAMLUserInfo{}
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		info.NameID = assertion.Subject.NameID.Value
	}

	emailAttr := a.config.EmailAttribute
	if emailAttr == "" {
		emailAttr = "email"
	}
	usernameAttr := a.config.UsernameAttribute
	if usernameAttr == "" {
		usernameAttr = "name"
	}

	for _, statement := range assertion.AttributeStatements {
		for _, attr := range statement.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			switch attr.Name {
			case emailAttr:
				info.Email = attr.Values[0].Value
			case usernameAttr:
				info.Name = attr.Values[0].Value
			}
		}
	}

	if info.Email == "" {
		info.Email = info.NameID
	}
	if info.Name == "" {
		info.Name = info.Email
	}
	if info.NameID == "" {
		info.NameID = info.Email
	}
	if info.Email == "" {
		return nil, fmt.Errorf("saml: assertion has neither %s attribute nor an email NameID", emailAttr)
	}
	return info, nil
}

// LinkOrCreateSAMLUser resolves info to a models.User, creating one
// with oauth_provider="saml" on first login. NameID, not email, is the
// durable identifier: an IdP may change a user's email but keeps NameID
// stable, so lookups key on it.
func LinkOrCreateSAMLUser(ctx context.Context, users *db.UserRepository, info *SAMLUserInfo) (*models.User, error) {
	if user, err := users.FindByOAuth(ctx, "saml", info.NameID); err == nil {
		return user, nil
	}
	return users.CreateOAuth(ctx, info.Email, info.Name, "saml", info.NameID)
}
