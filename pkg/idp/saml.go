package idp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"time"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/samlbridge/samlbridge/pkg/assertion"
)

// Config holds the SAML service-provider settings for one IdP.
type Config struct {
	// IdPEntityID is the identity provider's issuer.
	IdPEntityID string
	// SSOURL is the IdP endpoint authentication requests are sent to.
	SSOURL string
	// SLOURL is the IdP single-logout endpoint; empty disables SLO.
	SLOURL string
	// Certificate is the IdP signing certificate, PEM encoded.
	Certificate string
	// PrivateKey optionally signs our authentication requests, PEM encoded.
	PrivateKey string
	// SPBaseURL is this service's externally visible base URL.
	SPBaseURL string
	// ACSPath is the assertion consumer path under SPBaseURL.
	ACSPath string
	// NameIDFormat overrides the requested NameID format when non-empty.
	NameIDFormat string
	// SignRequests turns on AuthnRequest signing (requires PrivateKey).
	SignRequests bool
}

// SAMLProvider drives authentication against one SAML IdP.
type SAMLProvider struct {
	cfg Config
	sp  *saml2.SAMLServiceProvider
}

// NewSAMLProvider builds a provider from the configuration, parsing the IdP
// certificate and optional SP signing key up front so misconfiguration fails
// at startup, not mid-login.
func NewSAMLProvider(cfg Config) (*SAMLProvider, error) {
	if cfg.IdPEntityID == "" || cfg.SSOURL == "" {
		return nil, fmt.Errorf("idp entity id and sso url are required")
	}

	certBlock, _ := pem.Decode([]byte(cfg.Certificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode IdP certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IdP certificate: %w", err)
	}
	certStore := dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}}

	var keyStore dsig.X509KeyStore
	if cfg.PrivateKey != "" {
		keyStore, err = parseKeyStore(cfg.PrivateKey, cfg.Certificate)
		if err != nil {
			return nil, err
		}
	}

	acsPath := cfg.ACSPath
	if acsPath == "" {
		acsPath = "/saml/acs"
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.SSOURL,
		IdentityProviderIssuer:      cfg.IdPEntityID,
		ServiceProviderIssuer:       cfg.SPBaseURL + "/saml/metadata",
		AssertionConsumerServiceURL: cfg.SPBaseURL + acsPath,
		AudienceURI:                 cfg.SPBaseURL,
		SignAuthnRequests:           cfg.SignRequests,
		IDPCertificateStore:         &certStore,
		SPKeyStore:                  keyStore,
	}
	if cfg.NameIDFormat != "" {
		sp.NameIdFormat = cfg.NameIDFormat
	}

	return &SAMLProvider{cfg: cfg, sp: sp}, nil
}

func parseKeyStore(privateKeyPEM, certPEM string) (dsig.X509KeyStore, error) {
	keyBlock, _ := pem.Decode([]byte(privateKeyPEM))
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode SP private key PEM")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SP private key: %w", err)
		}
		var ok bool
		privateKey, ok = pkcs8Key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("SP private key is not RSA")
		}
	}

	return &dsig.TLSCertKeyStore{
		PrivateKey:  privateKey,
		Certificate: [][]byte{[]byte(certPEM)},
	}, nil
}

// RequireAuthentication redirects the browser to the IdP, suspending the
// current request. relayState round-trips through the IdP unchanged.
func (p *SAMLProvider) RequireAuthentication(w http.ResponseWriter, r *http.Request, relayState string) error {
	authURL, err := p.sp.BuildAuthURL(relayState)
	if err != nil {
		return fmt.Errorf("failed to build authentication URL: %w", err)
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// ParseResponse validates the posted SAML response and returns the resulting
// request-scoped session. Signature and audience validation happen inside
// gosaml2; time or audience warnings are treated as failures.
func (p *SAMLProvider) ParseResponse(r *http.Request) (*Session, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse ACS form: %w", err)
	}
	encoded := r.FormValue("SAMLResponse")
	if encoded == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}

	info, err := p.sp.RetrieveAssertionInfo(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion is outside its validity window")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion is not addressed to this service")
		}
	}

	// Keep every value of every attribute: role rules and the authmap need
	// the full ordered lists, not just the first element.
	attrs := make(assertion.Assertion, len(info.Values))
	for _, attr := range info.Values {
		values := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			values = append(values, v.Value)
		}
		attrs[attr.Name] = values
	}

	return &Session{
		authenticated: true,
		attributes:    attrs,
		nameID:        info.NameID,
		sessionIndex:  info.SessionIndex,
	}, nil
}

// Logout redirects the browser to the IdP single-logout endpoint, or straight
// to returnPath when no SLO endpoint is configured. Tearing the IdP session
// down on a rejected login prevents an immediate re-authentication loop.
func (p *SAMLProvider) Logout(w http.ResponseWriter, r *http.Request, sessionIndex, returnPath string) error {
	if p.cfg.SLOURL == "" {
		http.Redirect(w, r, returnPath, http.StatusFound)
		return nil
	}

	logoutRequest := fmt.Sprintf(`<?xml version="1.0"?>
<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"
                     xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"
                     ID="_%s"
                     Version="2.0"
                     IssueInstant="%s"
                     Destination="%s">
  <saml:Issuer>%s</saml:Issuer>
  <saml:NameID Format="urn:oasis:names:tc:SAML:2.0:nameid-format:transient"></saml:NameID>
  <samlp:SessionIndex>%s</samlp:SessionIndex>
</samlp:LogoutRequest>`,
		randomID(),
		time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		p.cfg.SLOURL,
		p.sp.ServiceProviderIssuer,
		sessionIndex)

	logoutURL, err := url.Parse(p.cfg.SLOURL)
	if err != nil {
		return fmt.Errorf("invalid SLO URL: %w", err)
	}
	query := logoutURL.Query()
	query.Set("SAMLRequest", base64.StdEncoding.EncodeToString([]byte(logoutRequest)))
	if returnPath != "" {
		query.Set("RelayState", returnPath)
	}
	logoutURL.RawQuery = query.Encode()

	http.Redirect(w, r, logoutURL.String(), http.StatusFound)
	return nil
}

// Metadata returns the SP metadata document served to IdP administrators.
func (p *SAMLProvider) Metadata() ([]byte, error) {
	doc := fmt.Sprintf(`<?xml version="1.0"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
                     entityID="%s">
  <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
                                 Location="%s"
                                 index="1"/>
  </md:SPSSODescriptor>
</md:EntityDescriptor>`,
		p.sp.ServiceProviderIssuer,
		p.sp.AssertionConsumerServiceURL)
	return []byte(doc), nil
}

func randomID() string {
	b := make([]byte, 20)
	rand.Read(b)
	return hex.EncodeToString(b)
}
