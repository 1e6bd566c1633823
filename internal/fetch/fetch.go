// Package fetch loads quiz pages over HTTP and extracts the material the
// solve loop consumes: visible text, embedded parameters, a submit endpoint
// if the page names one, and linked artifacts classified by kind.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/stellarlinkco/quizpilot/internal/artifact"
)

// Page is everything extracted from one URL.
type Page struct {
	URL       string
	Text      string
	SubmitURL string
	Params    map[string]string
	Artifacts []artifact.Artifact
}

// Fetcher loads a URL. Implementations must be idempotent enough to retry.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

const (
	defaultMaxBody      = 8 * 1024 * 1024
	defaultMaxArtifacts = 8
	userAgent           = "quizpilot/1.0"
)

// HTTPFetcher is the plain-HTTP implementation of Fetcher.
type HTTPFetcher struct {
	Client       *http.Client
	MaxBody      int64
	MaxArtifacts int
}

// NewHTTPFetcher returns a fetcher with sane limits.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:       &http.Client{Timeout: 30 * time.Second},
		MaxBody:      defaultMaxBody,
		MaxArtifacts: defaultMaxArtifacts,
	}
}

// Fetch loads pageURL. HTML bodies are parsed for text, links, params and a
// submit endpoint; non-HTML bodies become a single artifact of the matching
// kind so a fetch action can point straight at a data file.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	body, contentType, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	page := &Page{URL: pageURL, Params: map[string]string{}}

	if !strings.Contains(contentType, "text/html") {
		a := classify(pageURL, contentType, body)
		if a.Kind == artifact.KindText {
			page.Text = string(body)
		}
		page.Artifacts = append(page.Artifacts, a)
		return page, nil
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links, media []string
	page.Text = walk(doc, &links, &media, page)
	page.Params = extractParams(page.Text)

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if page.SubmitURL != "" {
		page.SubmitURL = resolve(base, page.SubmitURL)
	}

	seen := map[string]bool{}
	for _, href := range append(media, links...) {
		abs := resolve(base, href)
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		kind, ok := artifact.KindForName(abs)
		if !ok {
			continue
		}
		if len(page.Artifacts) >= f.maxArtifacts() {
			log.Printf("[fetch] artifact cap reached, skipping %s", abs)
			break
		}
		data, ct, err := f.get(ctx, abs)
		if err != nil {
			log.Printf("[fetch] download %s: %v", abs, err)
			continue
		}
		a := classify(abs, ct, data)
		if a.Kind == "" {
			a.Kind = kind
		}
		page.Artifacts = append(page.Artifacts, a)
	}

	log.Printf("[fetch] %s: %d chars of text, %d artifacts, %d params",
		pageURL, len(page.Text), len(page.Artifacts), len(page.Params))
	return page, nil
}

func (f *HTTPFetcher) maxArtifacts() int {
	if f.MaxArtifacts > 0 {
		return f.MaxArtifacts
	}
	return defaultMaxArtifacts
}

const getRetries = 2

// get retries transient transport failures with quadratic backoff; client
// errors (4xx other than 429) are final.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	attempts := 0
	for {
		body, contentType, err := f.getOnce(ctx, rawURL)
		if err == nil {
			return body, contentType, nil
		}
		if ctx.Err() != nil {
			return nil, "", err
		}
		if !transient(err) || attempts >= getRetries {
			return nil, "", err
		}
		attempts++
		wait := time.Duration(attempts*attempts) * 100 * time.Millisecond
		log.Printf("[fetch] transient error (attempt %d, retrying in %s): %v", attempts, wait, err)
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

// statusError marks a non-2xx response so retry policy can tell server-side
// hiccups from final client errors.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fetch %s: http %d", e.url, e.code)
}

func transient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	// anything else is a transport-level failure
	return true
}

func (f *HTTPFetcher) getOnce(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &statusError{url: rawURL, code: resp.StatusCode}
	}

	maxBody := f.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// walk collects visible text, hrefs and media sources in document order, and
// records a form action as the page's submit endpoint.
func walk(n *html.Node, links, media *[]string, page *Page) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "a":
				if href := attr(n, "href"); href != "" {
					*links = append(*links, href)
				}
			case "audio", "source", "video":
				if src := attr(n, "src"); src != "" {
					*media = append(*media, src)
				}
			case "form":
				if action := attr(n, "action"); action != "" && page.SubmitURL == "" {
					page.SubmitURL = action
				}
			case "p", "div", "br", "li", "h1", "h2", "h3", "tr", "pre":
				sb.WriteString("\n")
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return collapse(sb.String())
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func classify(rawURL, contentType string, data []byte) artifact.Artifact {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = strings.TrimPrefix(u.Path, "/")
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
	}
	kind, ok := artifact.KindForName(rawURL)
	if !ok {
		switch {
		case strings.Contains(contentType, "audio/"):
			kind = artifact.KindAudio
		case strings.Contains(contentType, "zip"):
			kind = artifact.KindArchive
		case strings.Contains(contentType, "csv"):
			kind = artifact.KindTabular
		default:
			kind = artifact.KindText
		}
	}
	return artifact.Artifact{Kind: kind, Name: name, URL: rawURL, Data: data}
}

var (
	cutoffRe = regexp.MustCompile(`(?i)cutoff[:\s=]+(\d+)`)
	emailRe  = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
	wsRe     = regexp.MustCompile(`[ \t]+`)
	nlRe     = regexp.MustCompile(`\n{3,}`)
)

// extractParams pulls embedded parameters out of page text: a numeric cutoff
// and the first email address, matching what quiz pages actually embed.
func extractParams(text string) map[string]string {
	params := map[string]string{}
	if m := cutoffRe.FindStringSubmatch(text); m != nil {
		params["cutoff"] = m[1]
	}
	if m := emailRe.FindString(text); m != "" {
		params["email"] = m
	}
	return params
}

func collapse(s string) string {
	s = wsRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = nlRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
