package browser

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
)

// Scenario scripts how the simulated portal of one platform behaves.
type Scenario struct {
	// TransientFailures fails that many navigations before succeeding. The
	// counter is shared by every session of the platform.
	TransientFailures int
	// Present lists failure selectors shown after a submit, with their text.
	Present map[string]string
	// Hidden lists selectors that never become visible.
	Hidden []string
	// Delay is applied to every operation and honours cancellation.
	Delay time.Duration
	// Confirmation overrides the confirmation page body.
	Confirmation string
	// RenderDelay is how long the page reached by a click takes to render.
	// Nothing on it is visible before then.
	RenderDelay time.Duration
}

// Simulated is a portal stand-in for dry runs and tests. Every selector exists
// and becomes visible unless the platform's Scenario says otherwise.
type Simulated struct {
	mu        sync.Mutex
	scenarios map[string]*Scenario
	opened    int
	closed    int
	sessions  []*SimSession
}

func NewSimulated() *Simulated {
	return &Simulated{scenarios: map[string]*Scenario{}}
}

// Script replaces the scenario for platform.
func (d *Simulated) Script(platform string, sc Scenario) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scenarios[platform] = &sc
}

func (d *Simulated) Open(ctx context.Context, platform string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.scenarios[platform]
	if !ok {
		sc = &Scenario{}
		d.scenarios[platform] = sc
	}
	d.opened++
	s := &SimSession{ctx: ctx, driver: d, platform: platform, scenario: sc, fields: map[string]string{}}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *Simulated) Close() error { return nil }

// Active reports sessions opened and not yet closed.
func (d *Simulated) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened - d.closed
}

// Sessions returns every session opened so far.
func (d *Simulated) Sessions() []*SimSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*SimSession, len(d.sessions))
	copy(out, d.sessions)
	return out
}

type SimSession struct {
	ctx      context.Context
	driver   *Simulated
	platform string
	scenario *Scenario

	mu      sync.Mutex
	url     string
	visited []string
	fields  map[string]string
	clicks    []string
	clickedAt time.Time
	uploads   map[string][]string
	closed  bool
}

func (s *SimSession) step() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	s.driver.mu.Lock()
	delay := s.scenario.Delay
	s.driver.mu.Unlock()
	if delay <= 0 {
		return s.ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SimSession) Navigate(url string) error {
	if err := s.step(); err != nil {
		return err
	}
	s.driver.mu.Lock()
	fail := s.scenario.TransientFailures > 0
	if fail {
		s.scenario.TransientFailures--
	}
	s.driver.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: %s: 503 service unavailable", ErrNavigation, url)
	}
	s.mu.Lock()
	s.url = url
	s.visited = append(s.visited, url)
	s.mu.Unlock()
	return nil
}

func (s *SimSession) Fill(selector, value string) error {
	if err := s.step(); err != nil {
		return err
	}
	if s.hidden(selector) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	s.mu.Lock()
	s.fields[selector] = value
	s.mu.Unlock()
	return nil
}

func (s *SimSession) Click(selector string) error {
	if err := s.step(); err != nil {
		return err
	}
	if s.hidden(selector) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	s.mu.Lock()
	s.clicks = append(s.clicks, selector)
	s.clickedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *SimSession) WaitOutcome(failure, success string) (bool, error) {
	if err := s.step(); err != nil {
		return false, err
	}
	if err := s.waitRendered(); err != nil {
		return false, err
	}
	s.driver.mu.Lock()
	_, failed := s.scenario.Present[failure]
	s.driver.mu.Unlock()
	if failed {
		return true, nil
	}
	if s.hidden(success) {
		return false, fmt.Errorf("%w: %s or %s", ErrTimeout, failure, success)
	}
	return false, nil
}

func (s *SimSession) waitRendered() error {
	s.driver.mu.Lock()
	delay := s.scenario.RenderDelay
	s.driver.mu.Unlock()
	s.mu.Lock()
	remaining := time.Until(s.clickedAt.Add(delay))
	s.mu.Unlock()
	if remaining <= 0 {
		return nil
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-t.C:
		return nil
	}
}

// Rendered reports whether the page reached by the last click has rendered.
func (s *SimSession) Rendered() bool {
	s.driver.mu.Lock()
	delay := s.scenario.RenderDelay
	s.driver.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return !time.Now().Before(s.clickedAt.Add(delay))
}

func (s *SimSession) Text(selector string) (string, error) {
	if err := s.step(); err != nil {
		return "", err
	}
	s.driver.mu.Lock()
	text, ok := s.scenario.Present[selector]
	s.driver.mu.Unlock()
	if ok {
		return text, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.fields[selector]; ok {
		return v, nil
	}
	return "", nil
}

func (s *SimSession) Upload(selector string, paths []string) error {
	if err := s.step(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == nil {
		s.uploads = map[string][]string{}
	}
	s.uploads[selector] = append(s.uploads[selector], paths...)
	return nil
}

// HTML renders a confirmation page carrying a filing number.
func (s *SimSession) HTML() (string, error) {
	if err := s.step(); err != nil {
		return "", err
	}
	s.driver.mu.Lock()
	body := s.scenario.Confirmation
	s.driver.mu.Unlock()
	if body != "" {
		return body, nil
	}
	radicado := "SIM-" + strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf(`<html><body><div id="confirmation" class="alert alert-success" data-radicado="%s">Solicitud radicada No. %s</div><p>%s</p></body></html>`,
		radicado, radicado, html.EscapeString(s.platform)), nil
}

func (s *SimSession) PDF() ([]byte, error) {
	if err := s.step(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	url := s.url
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+s.fields[k])
	}
	s.mu.Unlock()

	pdf := gofpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, tr("Portal simulado "+s.platform))
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, tr(url))
	pdf.Ln(8)
	for _, line := range lines {
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(6)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SimSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.driver.mu.Lock()
	s.driver.closed++
	s.driver.mu.Unlock()
	return nil
}

func (s *SimSession) hidden(selector string) bool {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	for _, h := range s.scenario.Hidden {
		if h == selector {
			return true
		}
	}
	return false
}

// Platform returns the platform the session was opened for.
func (s *SimSession) Platform() string { return s.platform }

func (s *SimSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SimSession) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

func (s *SimSession) Field(selector string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[selector]
}

func (s *SimSession) Uploads(selector string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads[selector]...)
}
