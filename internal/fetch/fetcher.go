// Package fetch retrieves notice XML documents using gocolly.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/procurio/ted-harvester/internal/locate"
	"github.com/procurio/ted-harvester/internal/metrics"
	"github.com/procurio/ted-harvester/internal/ted"
)

// ErrDocumentNotFound is returned when every retrieval strategy is exhausted.
var ErrDocumentNotFound = errors.New("document not found")

// Strategy labels used in logs and metrics.
const (
	strategyLink        = "link"
	strategyConstructed = "constructed"
	strategyScrape      = "scrape"
)

// Config controls fetcher behavior.
type Config struct {
	// DetailHost is the public notice host, e.g. "https://ted.europa.eu".
	DetailHost string
	// Languages is the ordered set tried when constructing document URLs.
	Languages []string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher resolves a notice to its XML document body. One base collector is
// shared across the batch so connections are kept alive; each attempt runs on
// a clone.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en", "de", "fr"}
	}
	cfg.DetailHost = strings.TrimSuffix(cfg.DetailHost, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch tries each retrieval strategy in priority order and returns the first
// non-empty document body. A single failing URL never aborts the chain; the
// next candidate is tried. When nothing yields a document the error wraps
// ErrDocumentNotFound.
func (f *Fetcher) Fetch(ctx context.Context, pubno string, notice ted.RawNotice) ([]byte, error) {
	for _, u := range locate.Candidates(notice) {
		if body, ok := f.tryXML(ctx, u, strategyLink); ok {
			return body, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	for _, lang := range f.cfg.Languages {
		u := fmt.Sprintf("%s/%s/notice/%s/xml", f.cfg.DetailHost, lang, pubno)
		if body, ok := f.tryXML(ctx, u, strategyConstructed); ok {
			return body, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if u := f.scrapeDetailPage(ctx, pubno); u != "" {
		if body, ok := f.tryXML(ctx, u, strategyScrape); ok {
			return body, nil
		}
	}

	return nil, fmt.Errorf("no xml for notice %s: %w", pubno, ErrDocumentNotFound)
}

// tryXML issues one GET with an XML Accept header and accepts an HTTP 200
// response with a non-whitespace body.
func (f *Fetcher) tryXML(ctx context.Context, url, strategy string) ([]byte, bool) {
	headers := http.Header{"Accept": {"application/xml"}}
	body, status, err := f.get(ctx, url, headers)
	if err != nil {
		metrics.ObserveDocumentFetch(strategy, "error")
		f.logger.Debug("document fetch attempt failed",
			zap.String("url", url),
			zap.String("strategy", strategy),
			zap.Error(err))
		return nil, false
	}
	if status != http.StatusOK || len(bytes.TrimSpace(body)) == 0 {
		metrics.ObserveDocumentFetch(strategy, "miss")
		return nil, false
	}
	metrics.ObserveDocumentFetch(strategy, "ok")
	return body, true
}

// scrapeDetailPage fetches the notice's HTML detail page and regex-searches
// it for an embedded document URL of the same host/lang/id/xml shape.
func (f *Fetcher) scrapeDetailPage(ctx context.Context, pubno string) string {
	detailURL := fmt.Sprintf("%s/en/notice/-/detail/%s", f.cfg.DetailHost, pubno)
	body, status, err := f.get(ctx, detailURL, nil)
	if err != nil || status != http.StatusOK {
		return ""
	}

	langs := make([]string, 0, len(f.cfg.Languages))
	for _, l := range f.cfg.Languages {
		langs = append(langs, regexp.QuoteMeta(l))
	}
	pattern := fmt.Sprintf("%s/(?:%s)/notice/%s/xml",
		regexp.QuoteMeta(f.cfg.DetailHost),
		strings.Join(langs, "|"),
		regexp.QuoteMeta(pubno))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	return re.FindString(string(body))
}

// get executes a single HTTP GET on a cloned collector.
func (f *Fetcher) get(ctx context.Context, url string, headers http.Header) ([]byte, int, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, status, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return nil, status, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return body, status, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
