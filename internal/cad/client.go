// Package cad drives the CHP CAD traffic page: an ASP.NET WebForms document
// whose incident grid renders only after a communications center is selected
// through a stateful postback. Callers see parsed listings and detail
// panels; the form mechanics stay behind the Source interface.
package cad

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/vladse1/CHP/internal/extract"
	"github.com/vladse1/CHP/internal/resilience"
)

// DefaultPageURL is the live CAD traffic page.
const DefaultPageURL = "https://cad.chp.ca.gov/Traffic.aspx"

// defaultUserAgents is rotated across requests so scripted polling blends in
// with browser traffic.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17 Safari/605.1.15",
}

// Source fetches incident listings for a communications center.
type Source interface {
	// Centers returns the comm centers offered by the page's dropdown.
	Centers(ctx context.Context) ([]string, error)
	// Listing selects the center and returns its parsed incident grid.
	Listing(ctx context.Context, center string) (*Listing, error)
	// Detail issues a row's detail postback and returns the refreshed page.
	Detail(ctx context.Context, listing *Listing, target string) (*Panel, error)
}

// Row is one incident line of the grid, in page order. Fields is keyed by
// the canonical model field names; DetailTarget is empty for rows without a
// details link.
type Row struct {
	Fields       map[string]string
	DetailTarget string
}

// Listing is the parsed incident grid for one center together with the form
// state of the page it came from, which detail postbacks are issued against.
type Listing struct {
	Center string
	Rows   []Row
	form   url.Values
}

// Panel is the rendered page carrying one incident's detail fragment.
type Panel struct {
	Doc *html.Node
}

// Options configures the page client.
type Options struct {
	// PageURL overrides the live page, mainly for tests.
	PageURL string
	// Timeout bounds each HTTP request. Default: 30s.
	Timeout time.Duration
	// MaxRetries is the attempt budget per request. Default: 4.
	MaxRetries int
	// RateLimit paces requests toward the CAD host, in requests/second.
	// Default: 0.5.
	RateLimit float64
	// UserAgents overrides the rotation pool.
	UserAgents []string
}

// Client implements Source against the live page.
type Client struct {
	http       *http.Client
	pageURL    string
	userAgents []string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// New creates a page client.
func New(opts Options) *Client {
	if opts.PageURL == "" {
		opts.PageURL = DefaultPageURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 4
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 0.5
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = defaultUserAgents
	}

	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pageURL:    opts.PageURL,
		userAgents: opts.UserAgents,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		retry: resilience.RetryConfig{
			MaxAttempts:    opts.MaxRetries,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			JitterFraction: 0.2,
		},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			// Only host-side trouble trips the breaker; a 404 or a parse
			// failure means the page changed, not that it is overloaded.
			ShouldTrip: resilience.IsTransient,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("page circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// Centers fetches the page and returns the communications centers offered
// by its dropdown, in page order.
func (c *Client) Centers(ctx context.Context) ([]string, error) {
	doc, err := c.do(ctx, nil)
	if err != nil {
		return nil, err
	}
	sel, ok := findCenterSelect(doc, "")
	if !ok {
		return nil, eris.New("cad: center dropdown not found")
	}
	return optionTexts(sel), nil
}

// Listing selects the center on the page and parses the incident grid it
// renders. The postback is attempted first through the page's apply button,
// then as a dropdown change event; some pages render a grid without either.
// A page that never renders a grid yields an empty listing, not an error.
func (c *Client) Listing(ctx context.Context, center string) (*Listing, error) {
	doc, err := c.do(ctx, nil)
	if err != nil {
		return nil, err
	}

	sel, ok := findCenterSelect(doc, center)
	if !ok {
		return nil, eris.Errorf("cad: center dropdown not found for %q", center)
	}
	selName := extract.Attr(sel, "name")
	if selName == "" {
		selName = extract.Attr(sel, "id")
	}
	value, ok := optionValue(sel, center)
	if !ok {
		// Submit the raw text and let the server decide; the page may
		// have renamed the option since configuration was written.
		zap.L().Warn("center option not found in dropdown, submitting text",
			zap.String("center", center))
		value = center
	}

	base := collectStateFields(doc)
	base.Set(selName, value)

	for _, btn := range submitButtons(doc) {
		form := cloneValues(base)
		form.Set(btn, "OK")
		after, err := c.do(ctx, form)
		if err != nil {
			return nil, err
		}
		if l, ok := parseListing(after, center); ok {
			return l, nil
		}
	}

	form := cloneValues(base)
	form.Set("__EVENTTARGET", selName)
	form.Set("__EVENTARGUMENT", "")
	after, err := c.do(ctx, form)
	if err != nil {
		return nil, err
	}
	if l, ok := parseListing(after, center); ok {
		return l, nil
	}

	// Some centers render their grid on the bare page already.
	if l, ok := parseListing(doc, center); ok {
		return l, nil
	}

	zap.L().Warn("incident grid not found after center select",
		zap.String("center", center))
	return &Listing{Center: center, form: collectStateFields(doc)}, nil
}

// Detail issues the row's detail postback against the listing's form state
// and returns the refreshed page, which carries the incident's detail panel.
func (c *Client) Detail(ctx context.Context, listing *Listing, target string) (*Panel, error) {
	if target == "" {
		return nil, eris.New("cad: empty detail target")
	}
	form := cloneValues(listing.form)
	form.Set("__EVENTTARGET", target)
	form.Set("__EVENTARGUMENT", "")
	doc, err := c.do(ctx, form)
	if err != nil {
		return nil, err
	}
	return &Panel{Doc: doc}, nil
}

// do performs one paced page request: a GET when form is nil, otherwise a
// form POST. Transient failures (network errors, 403/429/5xx) are retried
// with backoff inside the request budget. A circuit breaker sits outside the
// retry loop: once whole budgets keep failing, further requests fail fast
// until the host answers a probe again.
func (c *Client) do(ctx context.Context, form url.Values) (*html.Node, error) {
	cfg := c.retry
	operation := "get"
	if form != nil {
		operation = "postback"
	}
	cfg.OnRetry = resilience.RetryLogger("cad", operation)

	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*html.Node, error) {
		return c.fetch(ctx, cfg, form)
	})
}

func (c *Client) fetch(ctx context.Context, cfg resilience.RetryConfig, form url.Values) (*html.Node, error) {
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*html.Node, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "cad: rate limiter wait")
		}

		var (
			req *http.Request
			err error
		)
		if form == nil {
			req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL, nil)
		} else {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.pageURL, strings.NewReader(form.Encode()))
		}
		if err != nil {
			return nil, eris.Wrap(err, "cad: create request")
		}
		req.Header.Set("User-Agent", c.userAgent())
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "cad: request page")
		}
		defer resp.Body.Close() //nolint:errcheck

		if retryableStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("cad: http %d from %s", resp.StatusCode, c.pageURL),
				resp.StatusCode,
			)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("cad: unexpected status %d from %s", resp.StatusCode, c.pageURL)
		}

		doc, err := html.Parse(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "cad: parse page")
		}
		return doc, nil
	})
}

func (c *Client) userAgent() string {
	return c.userAgents[rand.IntN(len(c.userAgents))]
}

// retryableStatus covers the page's observed failure modes: the CAD host
// intermittently answers 403 to scripted clients and recovers on retry.
func retryableStatus(code int) bool {
	return code == http.StatusForbidden || resilience.IsTransientHTTPStatus(code)
}

// parseListing extracts the incident grid and form state from a rendered
// page. ok is false when the page carries no incident grid.
func parseListing(doc *html.Node, center string) (*Listing, bool) {
	grid, ok := extract.FindGrid(doc)
	if !ok {
		return nil, false
	}
	l := &Listing{Center: center, form: collectStateFields(doc)}
	for _, tr := range grid.Rows() {
		row := Row{Fields: grid.Fields(tr)}
		if target, ok := extract.DetailTarget(tr); ok {
			row.DetailTarget = target
		}
		l.Rows = append(l.Rows, row)
	}
	return l, true
}
