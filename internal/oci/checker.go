package oci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single registry round trip.
const DefaultTimeout = 15 * time.Second

// defaultParallelism bounds concurrent existence checks.
const defaultParallelism = 8

// Checker queries a container registry for tag existence using the
// Registry HTTP API v2. Anonymous bearer-token handshakes (as used by
// ghcr.io and Docker Hub) are handled transparently.
type Checker struct {
	client      *http.Client
	parallelism int
	plainHTTP   bool

	mu     sync.Mutex
	tokens map[string]string // auth service+scope -> bearer token
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) CheckerOption {
	return func(ch *Checker) { ch.client = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) CheckerOption {
	return func(ch *Checker) {
		ch.client.Timeout = d
	}
}

// WithPlainHTTP switches to http:// for registries without TLS
// (local registries, tests).
func WithPlainHTTP() CheckerOption {
	return func(ch *Checker) { ch.plainHTTP = true }
}

// WithParallelism bounds concurrent CheckAll requests.
func WithParallelism(n int) CheckerOption {
	return func(ch *Checker) {
		if n > 0 {
			ch.parallelism = n
		}
	}
}

// NewChecker creates a registry tag checker.
func NewChecker(opts ...CheckerOption) *Checker {
	ch := &Checker{
		client:      &http.Client{Timeout: DefaultTimeout},
		parallelism: defaultParallelism,
		tokens:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Exists reports whether repository:tag is present in the registry.
// The repository must include the registry host,
// e.g. "ghcr.io/siliconcompiler/sc_tool_yosys".
func (ch *Checker) Exists(ctx context.Context, reference string) (bool, error) {
	host, repo, tag, err := splitReference(reference)
	if err != nil {
		return false, err
	}

	scheme := "https"
	if ch.plainHTTP {
		scheme = "http"
	}
	manifestURL := fmt.Sprintf("%s://%s/v2/%s/manifests/%s", scheme, host, repo, url.PathEscape(tag))

	resp, err := ch.head(ctx, manifestURL, "")
	if err != nil {
		return false, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		token, tokenErr := ch.token(ctx, resp, host, repo)
		if tokenErr != nil {
			return false, tokenErr
		}
		resp, err = ch.head(ctx, manifestURL, token)
		if err != nil {
			return false, err
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("registry %s returned status %d for %s", host, resp.StatusCode, reference)
	}
}

// CheckAll checks many references concurrently. The result map is keyed by
// reference. The first registry error aborts the remaining checks.
func (ch *Checker) CheckAll(ctx context.Context, references []string) (map[string]bool, error) {
	results := make(map[string]bool, len(references))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ch.parallelism)

	for _, ref := range references {
		g.Go(func() error {
			exists, err := ch.Exists(ctx, ref)
			if err != nil {
				return err
			}
			mu.Lock()
			results[ref] = exists
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (ch *Checker) head(ctx context.Context, rawURL, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", strings.Join([]string{
		"application/vnd.oci.image.index.v1+json",
		"application/vnd.oci.image.manifest.v1+json",
		"application/vnd.docker.distribution.manifest.list.v2+json",
		"application/vnd.docker.distribution.manifest.v2+json",
	}, ", "))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ch.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry unreachable: %w", err)
	}
	_ = resp.Body.Close()
	return resp, nil
}

var challengeParamRe = regexp.MustCompile(`(\w+)="([^"]*)"`)

// token performs the anonymous bearer-token handshake described by the
// WWW-Authenticate challenge on a 401 response.
func (ch *Checker) token(ctx context.Context, resp *http.Response, host, repo string) (string, error) {
	challenge := resp.Header.Get("WWW-Authenticate")
	if !strings.HasPrefix(strings.ToLower(challenge), "bearer ") {
		return "", fmt.Errorf("registry %s requires unsupported auth: %q", host, challenge)
	}

	params := make(map[string]string)
	for _, m := range challengeParamRe.FindAllStringSubmatch(challenge, -1) {
		params[m[1]] = m[2]
	}

	realm := params["realm"]
	if realm == "" {
		return "", fmt.Errorf("registry %s sent bearer challenge without realm", host)
	}

	scope := params["scope"]
	if scope == "" {
		scope = "repository:" + repo + ":pull"
	}

	cacheKey := realm + "|" + params["service"] + "|" + scope
	ch.mu.Lock()
	cached, ok := ch.tokens[cacheKey]
	ch.mu.Unlock()
	if ok {
		return cached, nil
	}

	tokenURL, err := url.Parse(realm)
	if err != nil {
		return "", fmt.Errorf("registry %s sent invalid token realm %q: %w", host, realm, err)
	}
	q := tokenURL.Query()
	if params["service"] != "" {
		q.Set("service", params["service"])
	}
	q.Set("scope", scope)
	tokenURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL.String(), nil)
	if err != nil {
		return "", err
	}

	tokenResp, err := ch.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer func() { _ = tokenResp.Body.Close() }()

	if tokenResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint %s returned status %d", realm, tokenResp.StatusCode)
	}

	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(tokenResp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("token endpoint %s returned no token", realm)
	}

	ch.mu.Lock()
	ch.tokens[cacheKey] = token
	ch.mu.Unlock()

	return token, nil
}

// splitReference splits "host/path/name:tag" into host, repository and
// tag. The tag separator is the last colon after the last slash, so
// registry hosts with ports (localhost:5000) parse correctly.
func splitReference(reference string) (host, repo, tag string, err error) {
	slash := strings.Index(reference, "/")
	colon := strings.LastIndex(reference, ":")
	if colon <= slash {
		return "", "", "", fmt.Errorf("reference %q has no tag", reference)
	}

	name, tag := reference[:colon], reference[colon+1:]
	if tag == "" {
		return "", "", "", fmt.Errorf("reference %q has no tag", reference)
	}

	host, repo, ok := strings.Cut(name, "/")
	if !ok {
		return "", "", "", fmt.Errorf("reference %q has no registry host", reference)
	}
	if !strings.Contains(host, ".") && !strings.Contains(host, ":") && host != "localhost" {
		return "", "", "", fmt.Errorf("reference %q has no registry host", reference)
	}

	return host, repo, tag, nil
}
