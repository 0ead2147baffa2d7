// Package lookup is the HTTP client for the external email finder/verifier.
package lookup

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/target/bulkmail/internal/core"
	"github.com/target/bulkmail/internal/domain/model"
)

//go:embed response.schema.json
var defaultSchema []byte

const (
	maxResponseBodyBytes = 64 * 1024
	defaultTimeout       = 10 * time.Second
	findPath             = "/v1/find"
	verifyPath           = "/v1/verify"
	minConfidence        = 0.0
	maxConfidence        = 100.0
)

var (
	// ErrMalformedResponse is returned when the provider answers with a body
	// that is not JSON or does not match the response schema.
	ErrMalformedResponse = errors.New("malformed lookup response")
	// ErrUnexpectedStatus is returned for non-2xx provider responses.
	ErrUnexpectedStatus = errors.New("unexpected lookup response status")
)

// ResultPaths are JMESPath expressions locating fields in the provider body.
type ResultPaths struct {
	Status     string
	Email      string
	Confidence string
}

func (p ResultPaths) withDefaults() ResultPaths {
	if strings.TrimSpace(p.Status) == "" {
		p.Status = "status"
	}
	if strings.TrimSpace(p.Email) == "" {
		p.Email = "email"
	}
	if strings.TrimSpace(p.Confidence) == "" {
		p.Confidence = "confidence"
	}
	return p
}

// Options configures the client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per call; defaults to 10s
	RateLimit  float64       // requests per second; 0 disables limiting
	Burst      int
	Paths      ResultPaths
	Schema     []byte // JSON schema for response bodies; defaults to the embedded one
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type compiledPaths struct {
	status, email, confidence jmespath.JMESPath
}

// Client implements core.LookupClient over HTTP.
type Client struct {
	base    *url.URL
	apiKey  string
	timeout time.Duration
	limiter *rate.Limiter
	paths   compiledPaths
	schema  *jsonschema.Schema
	http    *http.Client
	logger  *slog.Logger
}

var _ core.LookupClient = (*Client)(nil)

// NewClient validates opts and compiles the schema and result paths.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid lookup base url %q", opts.BaseURL)
	}

	paths, err := compilePaths(opts.Paths.withDefaults())
	if err != nil {
		return nil, err
	}

	schemaDoc := opts.Schema
	if len(schemaDoc) == 0 {
		schemaDoc = defaultSchema
	}
	schema, err := compileSchema(schemaDoc)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:    base,
		apiKey:  opts.APIKey,
		timeout: timeout,
		limiter: limiter,
		paths:   paths,
		schema:  schema,
		http:    hc,
		logger:  logger.With("component", "lookup_client"),
	}, nil
}

func compilePaths(p ResultPaths) (compiledPaths, error) {
	var out compiledPaths
	for _, f := range []struct {
		expr string
		dst  *jmespath.JMESPath
	}{
		{p.Status, &out.status},
		{p.Email, &out.email},
		{p.Confidence, &out.confidence},
	} {
		compiled, err := jmespath.Compile(f.expr)
		if err != nil {
			return out, fmt.Errorf("compile result path %q: %w", f.expr, err)
		}
		*f.dst = compiled
	}
	return out, nil
}

func compileSchema(doc []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.schema.json", bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add response schema: %w", err)
	}
	schema, err := compiler.Compile("response.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	return schema, nil
}

type findRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Role   string `json:"role,omitempty"`
}

type verifyRequest struct {
	Email string `json:"email"`
}

// Find asks the provider for the address of a person at a domain.
func (c *Client) Find(ctx context.Context, in model.ItemInput) (*model.LookupResult, error) {
	return c.call(ctx, findPath, findRequest{Name: in.Name, Domain: in.Domain, Role: in.Role})
}

// Verify asks the provider whether email is deliverable.
func (c *Client) Verify(ctx context.Context, email string) (*model.LookupResult, error) {
	res, err := c.call(ctx, verifyPath, verifyRequest{Email: email})
	if err != nil {
		return nil, err
	}
	if res.Email == "" {
		res.Email = email
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, path string, body any) (*model.LookupResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal lookup request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(path).String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return c.decode(raw)
}

func (c *Client) decode(raw []byte) (*model.LookupResult, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	statusVal, err := c.paths.status.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: status: %w", ErrMalformedResponse, err)
	}
	statusStr, ok := statusVal.(string)
	if !ok {
		return nil, fmt.Errorf("%w: status is %T", ErrMalformedResponse, statusVal)
	}

	res := &model.LookupResult{
		Status: NormalizeStatus(statusStr),
		Raw:    append(json.RawMessage(nil), raw...),
	}
	if v, err := c.paths.email.Search(doc); err == nil {
		if s, ok := v.(string); ok {
			res.Email = strings.ToLower(strings.TrimSpace(s))
		}
	}
	// The schema only bounds the top-level field, custom paths are clamped here.
	if v, err := c.paths.confidence.Search(doc); err == nil {
		if f, ok := v.(float64); ok {
			f = min(max(f, minConfidence), maxConfidence)
			res.Confidence = &f
		}
	}
	return res, nil
}

// NormalizeStatus maps provider verdicts onto LookupStatus. Unknown verdicts
// are reported as error so the item is failed rather than silently accepted.
func NormalizeStatus(s string) model.LookupStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "valid", "deliverable", "found", "ok":
		return model.LookupStatusValid
	case "invalid", "undeliverable", "not_found", "notfound":
		return model.LookupStatusInvalid
	case "risky", "accept_all", "catch_all", "catchall", "unknown":
		return model.LookupStatusRisky
	default:
		return model.LookupStatusError
	}
}
