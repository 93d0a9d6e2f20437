package skills

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	webTimeout   = 10 * time.Second
	maxPageBytes = 1 << 20
	userAgent    = "DeepHat-Agent/1.0"
)

var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
}

// WebInspector performs a light, passive review of a web page.
type WebInspector struct {
	client *http.Client
}

// NewWebInspector uses client, or a client with a 10s timeout when nil.
func NewWebInspector(client *http.Client) *WebInspector {
	if client == nil {
		client = &http.Client{Timeout: webTimeout}
	}
	return &WebInspector{client: client}
}

// Inspect fetches rawURL and reports its status line, server banner, missing
// security headers, weak cookies, title and password forms.
func (w *WebInspector) Inspect(ctx context.Context, rawURL string) (string, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	lines := []string{
		fmt.Sprintf("Web inspection for %s:", u),
		"Status: " + resp.Status,
	}
	if server := resp.Header.Get("Server"); server != "" {
		lines = append(lines, "Server banner: "+server)
	}

	var missing []string
	for _, h := range securityHeaders {
		if resp.Header.Get(h) == "" {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		lines = append(lines, "Missing security headers: "+strings.Join(missing, ", "))
	} else {
		lines = append(lines, "All common security headers present")
	}

	for _, c := range resp.Cookies() {
		var flags []string
		if !c.Secure {
			flags = append(flags, "Secure")
		}
		if !c.HttpOnly {
			flags = append(flags, "HttpOnly")
		}
		if len(flags) > 0 {
			lines = append(lines, fmt.Sprintf("Cookie %s missing flags: %s", c.Name, strings.Join(flags, ", ")))
		}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
		if err == nil {
			page := scanPage(doc)
			if page.title != "" {
				lines = append(lines, "Title: "+page.title)
			}
			if page.passwordForm {
				if resp.Request.URL.Scheme == "http" {
					lines = append(lines, "WARNING: password form served over plain HTTP")
				} else {
					lines = append(lines, "Page contains a password form")
				}
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

func normalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u, nil
}

type pageFacts struct {
	title        string
	passwordForm bool
}

func scanPage(doc *html.Node) pageFacts {
	var facts pageFacts
	var walk func(n *html.Node, inForm bool)
	walk = func(n *html.Node, inForm bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if facts.title == "" && n.FirstChild != nil {
					facts.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "form":
				inForm = true
			case "input":
				if inForm && strings.EqualFold(attr(n, "type"), "password") {
					facts.passwordForm = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inForm)
		}
	}
	walk(doc, false)
	return facts
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
