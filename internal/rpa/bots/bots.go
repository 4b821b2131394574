// Package bots holds the per-action portal protocols the workers run inside a
// browser session.
package bots

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"montero/internal/domain/artifacts"
	"montero/internal/domain/rpa"
	"montero/internal/domain/vault"
	"montero/internal/platform/logger"
	"montero/internal/rpa/browser"
)

// Output is what a successful protocol hands back for persistence.
type Output struct {
	Message  string
	Filename string
	Mime     string
	Document []byte
}

type Runner struct {
	Profiles    *Profiles
	Attachments artifacts.Reader
}

func NewRunner(profiles *Profiles, attachments artifacts.Reader) *Runner {
	if profiles == nil {
		profiles = NewProfiles(nil)
	}
	return &Runner{Profiles: profiles, Attachments: attachments}
}

type field struct {
	name  string
	value string
}

// Run drives sess through the protocol of job.Action. Failures come back as
// *rpa.Error or as the context error.
func (r *Runner) Run(ctx context.Context, sess browser.Session, job rpa.Job, cred vault.Credential) (Output, error) {
	profile := r.Profiles.For(job.Platform, cred.URL)
	if profile.BaseURL == "" {
		return Output{}, rpa.NewError(rpa.KindPortalRejected, "no portal URL configured for "+job.Platform, nil)
	}

	switch job.Action {
	case rpa.ActionAffiliate:
		p, err := rpa.DecodePayload[rpa.AffiliationPayload](job.Payload)
		if err != nil {
			return Output{}, rpa.NewError(rpa.KindPayloadRejected, "", err)
		}
		return r.affiliate(ctx, sess, profile, cred, p)
	case rpa.ActionCertDownload:
		p, err := rpa.DecodePayload[rpa.CertificatePayload](job.Payload)
		if err != nil {
			return Output{}, rpa.NewError(rpa.KindPayloadRejected, "", err)
		}
		return r.certificate(ctx, sess, profile, cred, p)
	case rpa.ActionIncapacityFile:
		p, err := rpa.DecodePayload[rpa.IncapacityPayload](job.Payload)
		if err != nil {
			return Output{}, rpa.NewError(rpa.KindPayloadRejected, "", err)
		}
		return r.incapacity(ctx, sess, profile, cred, p)
	}
	return Output{}, rpa.NewError(rpa.KindPayloadRejected, fmt.Sprintf("unsupported action %q", job.Action), nil)
}

func (r *Runner) affiliate(ctx context.Context, sess browser.Session, profile Profile, cred vault.Credential, p rpa.AffiliationPayload) (Output, error) {
	if err := login(ctx, sess, profile, cred); err != nil {
		return Output{}, err
	}
	fields := []field{
		{"documentType", p.DocumentType},
		{"documentNumber", p.DocumentNumber},
		{"firstName", p.FirstName},
		{"lastName", p.LastName},
		{"birthDate", p.BirthDate},
		{"gender", p.Gender},
		{"email", p.Email},
		{"phone", p.Phone},
		{"address", p.Address},
		{"city", p.City},
		{"employerNit", p.EmployerNIT},
		{"companyName", p.CompanyName},
		{"startDate", p.StartDate},
		{"salary", fmt.Sprintf("%d", p.Salary)},
		{"riskClass", p.RiskClass},
		{"position", p.Position},
	}
	radicado, err := submitForm(ctx, sess, profile, KeyAffiliationPath, fields, nil)
	if err != nil {
		return Output{}, err
	}
	return capture(ctx, sess, "Afiliación radicada "+radicado, "AF-"+p.DocumentNumber+".pdf")
}

func (r *Runner) certificate(ctx context.Context, sess browser.Session, profile Profile, cred vault.Credential, p rpa.CertificatePayload) (Output, error) {
	if err := login(ctx, sess, profile, cred); err != nil {
		return Output{}, err
	}
	fields := []field{
		{"documentType", p.DocumentType},
		{"documentNumber", p.DocumentNumber},
		{"certificateType", p.CertificateType},
		{"period", p.Period},
	}
	radicado, err := submitForm(ctx, sess, profile, KeyCertificatePath, fields, nil)
	if err != nil {
		return Output{}, err
	}
	return capture(ctx, sess, "Certificado generado "+radicado, "CERT-"+p.DocumentNumber+".pdf")
}

func (r *Runner) incapacity(ctx context.Context, sess browser.Session, profile Profile, cred vault.Credential, p rpa.IncapacityPayload) (Output, error) {
	paths, cleanup, err := r.stageAttachments(ctx, p.Attachments)
	if err != nil {
		return Output{}, err
	}
	defer cleanup()

	if err := login(ctx, sess, profile, cred); err != nil {
		return Output{}, err
	}
	fields := []field{
		{"documentType", p.DocumentType},
		{"documentNumber", p.DocumentNumber},
		{"startDate", p.StartDate},
		{"endDate", p.EndDate},
		{"diagnosis", p.Diagnosis},
		{"origin", p.Origin},
	}
	beforeSubmit := func() error {
		if len(paths) == 0 {
			return nil
		}
		if err := sess.Upload(profile.Sel(KeyAttachments), paths); err != nil {
			return portalErr(ctx, "upload attachments", err)
		}
		return nil
	}
	radicado, err := submitForm(ctx, sess, profile, KeyIncapacityPath, fields, beforeSubmit)
	if err != nil {
		return Output{}, err
	}
	return capture(ctx, sess, "Incapacidad radicada "+radicado, "INC-"+p.DocumentNumber+".pdf")
}

// stageAttachments copies referenced artifacts to a private temp dir so the
// browser can upload them from disk.
func (r *Runner) stageAttachments(ctx context.Context, refs []string) ([]string, func(), error) {
	noop := func() {}
	if len(refs) == 0 {
		return nil, noop, nil
	}
	if r.Attachments == nil {
		return nil, noop, rpa.NewError(rpa.KindPayloadRejected, "attachments are not available on this worker", nil)
	}
	dir, err := os.MkdirTemp("", "montero-upload-*")
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	paths := make([]string, 0, len(refs))
	for i, ref := range refs {
		art, err := r.Attachments.Get(ctx, ref)
		if errors.Is(err, artifacts.ErrArtifactNotFound) || errors.Is(err, artifacts.ErrInvalidRef) {
			cleanup()
			return nil, noop, rpa.NewError(rpa.KindPayloadRejected, "attachment "+ref+" not found", nil)
		}
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		name := filepath.Base(art.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = ref + ".bin"
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d-%s", i+1, name))
		if err := os.WriteFile(path, art.Bytes, 0o600); err != nil {
			cleanup()
			return nil, noop, err
		}
		paths = append(paths, path)
	}
	return paths, cleanup, nil
}

func login(ctx context.Context, sess browser.Session, profile Profile, cred vault.Credential) error {
	if err := sess.Navigate(profile.URL(KeyLoginPath)); err != nil {
		return portalErr(ctx, "open login page", err)
	}
	if err := sess.Fill(profile.Sel(KeyLoginUser), cred.Username); err != nil {
		return portalErr(ctx, "fill username", err)
	}
	if err := sess.Fill(profile.Sel(KeyLoginPassword), cred.Password); err != nil {
		return portalErr(ctx, "fill password", err)
	}
	if err := sess.Click(profile.Sel(KeyLoginSubmit)); err != nil {
		return portalErr(ctx, "submit login", err)
	}
	rejected, err := sess.WaitOutcome(profile.Sel(KeyLoginError), profile.Sel(KeyLoginSuccess))
	if err != nil {
		return portalErr(ctx, "wait login", err)
	}
	if rejected {
		text, _ := sess.Text(profile.Sel(KeyLoginError))
		return rpa.NewError(rpa.KindCredentialRejected, strings.TrimSpace("portal rejected credentials "+text), nil)
	}
	logger.C(ctx).Debug().Str("platform", profile.Platform).Msg("portal login ok")
	return nil
}

// submitForm fills and submits the form behind pathKey and returns the filing
// number shown on the confirmation page.
func submitForm(ctx context.Context, sess browser.Session, profile Profile, pathKey string, fields []field, beforeSubmit func() error) (string, error) {
	if err := sess.Navigate(profile.URL(pathKey)); err != nil {
		return "", portalErr(ctx, "open form", err)
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := sess.Fill(profile.Field(f.name), f.value); err != nil {
			return "", portalErr(ctx, "fill "+f.name, err)
		}
	}
	if beforeSubmit != nil {
		if err := beforeSubmit(); err != nil {
			return "", err
		}
	}
	if err := sess.Click(profile.Sel(KeyFormSubmit)); err != nil {
		return "", portalErr(ctx, "submit form", err)
	}
	invalid, err := sess.WaitOutcome(profile.Sel(KeyFormError), profile.Sel(KeyConfirmation))
	if err != nil {
		return "", portalErr(ctx, "wait confirmation", err)
	}
	if invalid {
		text, _ := sess.Text(profile.Sel(KeyFormError))
		return "", rpa.NewError(rpa.KindPayloadRejected, strings.TrimSpace("portal rejected form "+text), nil)
	}
	page, err := sess.HTML()
	if err != nil {
		return "", portalErr(ctx, "read confirmation", err)
	}
	radicado, err := ParseConfirmation(page, profile.Sel(KeyConfirmation))
	if err != nil {
		return "", rpa.NewError(rpa.KindPortalTransient, "read confirmation", err)
	}
	return radicado, nil
}

func capture(ctx context.Context, sess browser.Session, message, filename string) (Output, error) {
	doc, err := sess.PDF()
	if err != nil {
		return Output{}, portalErr(ctx, "capture pdf", err)
	}
	return Output{Message: message, Filename: filename, Mime: "application/pdf", Document: doc}, nil
}

// ParseConfirmation extracts the filing number from a confirmation page: the
// data-radicado attribute when present, else the element text.
func ParseConfirmation(page, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("confirmation %q not found", selector)
	}
	if v, ok := sel.Attr("data-radicado"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	text := strings.Join(strings.Fields(sel.Text()), " ")
	if text == "" {
		return "", fmt.Errorf("confirmation %q is empty", selector)
	}
	return text, nil
}

// portalErr classifies a browser failure. Context errors pass through so the
// worker can tell timeouts and shutdown apart.
func portalErr(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return rpa.NewError(rpa.KindPortalTransient, step, err)
}
