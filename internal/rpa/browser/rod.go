package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"montero/internal/platform/logger"
)

// RodDriver launches one Chromium process per session.
type RodDriver struct {
	Bin         string
	Headless    bool
	StepTimeout time.Duration
}

func NewRodDriver(bin string, headless bool, stepTimeout time.Duration) *RodDriver {
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &RodDriver{Bin: bin, Headless: headless, StepTimeout: stepTimeout}
}

func (d *RodDriver) Open(ctx context.Context, platform string) (Session, error) {
	l := launcher.New().Context(ctx).Headless(d.Headless).Leakless(true)
	if d.Bin != "" {
		l = l.Bin(d.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}
	logger.C(ctx).Debug().Str("platform", platform).Bool("headless", d.Headless).Msg("browser session opened")
	return &rodSession{browser: b, page: page, launcher: l, timeout: d.StepTimeout}, nil
}

func (d *RodDriver) Close() error { return nil }

type rodSession struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	timeout  time.Duration
	closed   bool
}

func (s *rodSession) element(selector string) (*rod.Element, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	el, err := s.page.Timeout(s.timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrElementNotFound, selector, err)
	}
	return el, nil
}

func (s *rodSession) Navigate(url string) error {
	if s.closed {
		return ErrSessionClosed
	}
	p := s.page.Timeout(s.timeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

func (s *rodSession) Fill(selector, value string) error {
	el, err := s.element(selector)
	if err != nil {
		return err
	}
	if tag, _ := el.Eval(`() => this.tagName`); tag != nil && tag.Value.Str() == "SELECT" {
		return el.Select([]string{value}, true, rod.SelectorTypeText)
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

func (s *rodSession) Click(selector string) error {
	el, err := s.element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *rodSession) WaitOutcome(failure, success string) (bool, error) {
	if s.closed {
		return false, ErrSessionClosed
	}
	failed := false
	race := s.page.Timeout(s.timeout).Race()
	race.ElementFunc(visible(failure)).Handle(func(*rod.Element) error {
		failed = true
		return nil
	})
	race.ElementFunc(visible(success))
	if _, err := race.Do(); err != nil {
		return false, fmt.Errorf("%w: %s or %s: %v", ErrTimeout, failure, success, err)
	}
	return failed, nil
}

// visible matches selector only once it is rendered and shown. Errors raised
// while the old document is torn down count as not found so the race retries.
func visible(selector string) func(*rod.Page) (*rod.Element, error) {
	return func(p *rod.Page) (*rod.Element, error) {
		el, err := p.Element(selector)
		if err == nil {
			var ok bool
			ok, err = el.Visible()
			if err == nil && ok {
				return el, nil
			}
		}
		if ctxErr := p.GetContext().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &rod.ElementNotFoundError{}
	}
}

func (s *rodSession) Text(selector string) (string, error) {
	el, err := s.element(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (s *rodSession) Upload(selector string, paths []string) error {
	el, err := s.element(selector)
	if err != nil {
		return err
	}
	return el.SetFiles(paths)
}

func (s *rodSession) HTML() (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.page.HTML()
}

func (s *rodSession) PDF() ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	stream, err := s.page.Timeout(s.timeout).PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, err
	}
	return io.ReadAll(stream)
}

// Close tears the browser down even when the job context is already cancelled.
func (s *rodSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}
