package bots

import (
	"strings"

	"montero/internal/platform/config"
)

// Selector and path keys understood in [[portals]] selector tables. Form
// fields use "field.<jsonName>".
const (
	KeyLoginPath       = "path.login"
	KeyAffiliationPath = "path.affiliation"
	KeyCertificatePath = "path.certificate"
	KeyIncapacityPath  = "path.incapacity"

	KeyLoginUser     = "login.user"
	KeyLoginPassword = "login.password"
	KeyLoginSubmit   = "login.submit"
	KeyLoginError    = "login.error"
	KeyLoginSuccess  = "login.success"

	KeyFormSubmit   = "form.submit"
	KeyFormError    = "form.error"
	KeyConfirmation = "confirmation"
	KeyAttachments  = "incapacity.attachments"
)

func DefaultSelectors() map[string]string {
	return map[string]string{
		KeyLoginPath:       "/login",
		KeyAffiliationPath: "/afiliaciones/nueva",
		KeyCertificatePath: "/certificados",
		KeyIncapacityPath:  "/incapacidades/nueva",
		KeyLoginUser:       "#username",
		KeyLoginPassword:   "#password",
		KeyLoginSubmit:     "button[type=submit]",
		KeyLoginError:      ".login-error",
		KeyLoginSuccess:    "a[href*=logout], .logout, #logout",
		KeyFormSubmit:      "#submit",
		KeyFormError:       ".form-error",
		KeyConfirmation:    "#confirmation",
		KeyAttachments:     "input[type=file]",
	}
}

// Profile is one portal's URL and selector set.
type Profile struct {
	Platform  string
	BaseURL   string
	Selectors map[string]string
}

func (p Profile) Sel(key string) string {
	if v, ok := p.Selectors[key]; ok && v != "" {
		return v
	}
	return DefaultSelectors()[key]
}

// Field returns the selector of a form input named after a payload field.
func (p Profile) Field(name string) string {
	if v, ok := p.Selectors["field."+name]; ok && v != "" {
		return v
	}
	return `[name="` + name + `"]`
}

// URL joins the base URL with the path stored under key.
func (p Profile) URL(key string) string {
	base := strings.TrimRight(p.BaseURL, "/")
	path := p.Sel(key)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

type Profiles struct {
	byPlatform map[string]Profile
}

func NewProfiles(portals []config.PortalConfig) *Profiles {
	ps := &Profiles{byPlatform: map[string]Profile{}}
	for _, pc := range portals {
		selectors := DefaultSelectors()
		for k, v := range pc.Selectors {
			selectors[k] = v
		}
		ps.byPlatform[pc.Platform] = Profile{Platform: pc.Platform, BaseURL: pc.BaseURL, Selectors: selectors}
	}
	return ps
}

// For returns the configured profile or the built-in one. fallbackURL (the
// URL stored with the credential) fills a missing base URL.
func (ps *Profiles) For(platform, fallbackURL string) Profile {
	p, ok := ps.byPlatform[platform]
	if !ok {
		p = Profile{Platform: platform, Selectors: DefaultSelectors()}
	}
	if p.BaseURL == "" {
		p.BaseURL = fallbackURL
	}
	return p
}
