// Package executor dispatches synthesized test cases against a live target
// with a fixed worker pool.
package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/net/http/httpproxy"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/y0f/apiprobe/internal/synth"
)

const (
	DefaultConcurrency    = 4
	MaxConcurrency        = 256
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxRetries     = 2
	MaxRetries            = 5
	DefaultRetryBackoff   = 200 * time.Millisecond
	DefaultMaxBodySize    = 1 << 20 // 1MB
)

type Config struct {
	BaseURL string
	Headers map[string]string

	Concurrency    int
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration

	// RateLimit caps requests per second across all workers; 0 disables it.
	RateLimit float64
	RateBurst int

	MaxBodySize        int64
	InsecureSkipVerify bool
	BlockPrivate       bool

	// Proxy overrides the HTTP(S)_PROXY environment when set.
	Proxy   string
	NoProxy string
}

func (c *Config) applyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		c.RateBurst = 1
	}
}

func (c *Config) validate() error {
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d, got %d", MaxConcurrency, c.Concurrency)
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetries {
		return fmt.Errorf("max retries must be between 0 and %d, got %d", MaxRetries, c.MaxRetries)
	}
	if c.RequestTimeout < 0 || c.RetryBackoff < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("rate limit must not be negative")
	}
	if c.MaxBodySize < 0 {
		return errors.New("max body size must not be negative")
	}
	return nil
}

// Executor is safe for use by one run at a time; build one per run.
type Executor struct {
	cfg      Config
	client   *http.Client
	limiter  *rate.Limiter
	resolver *net.Resolver
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if _, err := joinTarget(cfg.BaseURL, ""); err != nil {
		return nil, err
	}

	proxy := httpproxy.FromEnvironment()
	if cfg.Proxy != "" {
		proxy = &httpproxy.Config{HTTPProxy: cfg.Proxy, HTTPSProxy: cfg.Proxy, NoProxy: cfg.NoProxy}
	}
	proxyFunc := proxy.ProxyFunc()

	transport := &http.Transport{
		Proxy: func(r *http.Request) (*url.URL, error) { return proxyFunc(r.URL) },
		DialContext: (&net.Dialer{
			Timeout: cfg.RequestTimeout,
			Control: dialControl(cfg.BlockPrivate),
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		TLSHandshakeTimeout: cfg.RequestTimeout,
		MaxIdleConnsPerHost: cfg.Concurrency,
	}

	e := &Executor{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			// Redirects are part of the contract and validated as such.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		resolver: net.DefaultResolver,
		logger:   logger,
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return e, nil
}

// Preflight fails with a *TargetError when the target host cannot be
// resolved (or resolves only to blocked addresses).
func (e *Executor) Preflight(ctx context.Context) error {
	u, err := joinTarget(e.cfg.BaseURL, "")
	if err != nil {
		return err
	}
	return resolveTarget(ctx, e.resolver, u.Hostname(), e.cfg.BlockPrivate)
}

// Execute runs cases on the worker pool and hands every outcome to sink on
// the calling goroutine. Once ctx is done no further case is started: the
// remaining ones are reported as skipped and in-flight requests finish under
// their own timeout. The return value reports whether the run was cut short.
func (e *Executor) Execute(ctx context.Context, basePath string, cases []*synth.TestCase, sink func(*Outcome)) (aborted bool) {
	base, err := joinTarget(e.cfg.BaseURL, basePath)
	if err != nil {
		for _, tc := range cases {
			sink(&Outcome{Case: tc, Skipped: true, SkipReason: err.Error()})
		}
		return false
	}

	jobs := make(chan *synth.TestCase)
	results := make(chan *Outcome)

	// throttled is set by workers that skip a case because the rate limiter
	// cannot admit it before the run deadline.
	var throttled atomic.Bool

	var g errgroup.Group
	for i := 0; i < e.cfg.Concurrency; i++ {
		g.Go(func() error {
			e.worker(ctx, base, jobs, results, &throttled)
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for i, tc := range cases {
			if tc.SkipReason != "" {
				results <- &Outcome{Case: tc, Skipped: true, SkipReason: tc.SkipReason}
				continue
			}
			if ctx.Err() == nil {
				select {
				case jobs <- tc:
					continue
				case <-ctx.Done():
				}
			}
			aborted = true
			e.logger.Warn("run cut short", "remaining", len(cases)-i, "reason", context.Cause(ctx))
			for _, rest := range cases[i:] {
				reason := rest.SkipReason
				if reason == "" {
					reason = abortReason(ctx)
				}
				results <- &Outcome{Case: rest, Skipped: true, SkipReason: reason}
			}
			return
		}
	}()

	go func() {
		g.Wait()
		close(results)
	}()

	for o := range results {
		sink(o)
	}
	return aborted || throttled.Load()
}

func abortReason(ctx context.Context) string {
	switch {
	case ctx.Err() == nil:
		// rate.Limiter.Wait fails early when the wait would outlast the deadline.
		return "run aborted: global timeout would be exceeded before start"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "run aborted: global timeout exceeded"
	}
	return "run aborted: cancelled"
}

func (e *Executor) worker(ctx context.Context, base *url.URL, jobs <-chan *synth.TestCase, results chan<- *Outcome, throttled *atomic.Bool) {
	for tc := range jobs {
		results <- e.execute(ctx, base, tc, throttled)
	}
}

// execute dispatches one case. Requests are detached from ctx so a run
// cancellation never interrupts a response mid-read.
func (e *Executor) execute(ctx context.Context, base *url.URL, tc *synth.TestCase, throttled *atomic.Bool) *Outcome {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			throttled.Store(true)
			e.logger.Debug("case not admitted by rate limiter", "case", tc.ID, "error", err)
			return &Outcome{Case: tc, Skipped: true, SkipReason: abortReason(ctx)}
		}
	}

	out := &Outcome{Case: tc, Method: tc.Operation.Method}
	if _, err := e.buildRequest(ctx, base, tc); err != nil {
		out.Attempts = 1
		out.Err = &TransportError{Kind: KindOther, Err: err}
		return out
	}
	idempotent := tc.Operation.Method == http.MethodGet || tc.Operation.Method == http.MethodHead
	for {
		out.Attempts++
		err := e.attempt(context.WithoutCancel(ctx), base, tc, out)
		if err == nil {
			out.Err = nil
			break
		}
		out.Err = classify(err)
		if !idempotent || out.Attempts > e.cfg.MaxRetries {
			break
		}
		if !e.backoff(ctx, out.Attempts) {
			break
		}
		e.logger.Debug("retrying request", "case", tc.ID, "attempt", out.Attempts+1, "error", out.Err)
	}

	e.logger.Debug("case executed",
		"case", tc.ID,
		"method", out.Method,
		"url", out.URL,
		"status", out.StatusCode,
		"elapsed", out.Elapsed,
		"attempts", out.Attempts,
	)
	return out
}

// backoff sleeps before the next retry; it returns false when the run ends
// first.
func (e *Executor) backoff(ctx context.Context, attempt int) bool {
	t := time.NewTimer(e.cfg.RetryBackoff * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Executor) attempt(ctx context.Context, base *url.URL, tc *synth.TestCase, out *Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	req, err := e.buildRequest(ctx, base, tc)
	if err != nil {
		return err
	}
	out.URL = req.URL.String()

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		out.Elapsed = time.Since(start)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodySize+1))
	out.Elapsed = time.Since(start)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > e.cfg.MaxBodySize {
		body = body[:e.cfg.MaxBodySize]
		out.Truncated = true
	}

	out.StatusCode = resp.StatusCode
	out.Header = resp.Header
	out.Body = body
	return nil
}
