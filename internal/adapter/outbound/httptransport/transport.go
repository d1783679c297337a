package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Azure/go-ntlmssp"

	"github.com/i2y/restbridge/internal/domain"
)

// Transport implements the usecase.Transport interface using standard net/http.
type Transport struct {
	client *http.Client
	ntlm   *http.Client
	logger *slog.Logger
}

// New creates a new HTTP Transport. A nil client gets NewClient defaults.
func New(client *http.Client, logger *slog.Logger) *Transport {
	if client == nil {
		client = NewClient(ClientOptions{})
	}
	ntlmClient := *client
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	ntlmClient.Transport = ntlmssp.Negotiator{RoundTripper: base}
	return &Transport{
		client: client,
		ntlm:   &ntlmClient,
		logger: logger.With("component", "http_transport"),
	}
}

// Execute sends the compiled request. Basic principals answer a Basic challenge,
// NTLM principals run the NTLM handshake.
func (t *Transport) Execute(ctx context.Context, req *domain.CompiledRequest, principal *domain.Principal, secure, followRedirects bool) (*http.Response, error) {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	host := req.Header.Get("Host")
	rawURL := scheme + "://" + host + req.Target
	log := t.logger.With(
		slog.String("method", req.Method),
		slog.String("url", rawURL),
		slog.String("principal", principal.String()),
	)

	// --- 1. Build the http.Request --- //
	var body io.Reader
	if req.Body != nil {
		body = req.Body
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, rawURL, body)
	if err != nil {
		req.Close()
		log.Error("Failed to create HTTP request", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	applyHeaders(httpReq, req.Header)

	client := t.client
	if principal != nil && principal.Kind == domain.PrincipalNTLM {
		client = t.ntlm
		httpReq.SetBasicAuth(principal.Domain+`\`+principal.Username, principal.Password)
	}
	if !followRedirects {
		c := *client
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		client = &c
	}

	challengeable := principal != nil && principal.Kind == domain.PrincipalBasic && httpReq.Header.Get("Authorization") == ""
	if challengeable {
		if err := makeReplayable(httpReq); err != nil {
			log.Error("Failed to buffer request body", slog.Any("error", err))
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		if httpReq.GetBody == nil {
			// A stream cannot be sent twice, so credentials go with the first attempt.
			httpReq.SetBasicAuth(principal.Username, principal.Password)
			challengeable = false
		}
	}

	// --- 2. Execute --- //
	log.Debug("Executing HTTP request")
	resp, err := client.Do(httpReq)
	if err != nil {
		log.Error("HTTP request failed", slog.Any("error", err))
		return nil, fmt.Errorf("request execution failed: %w", err)
	}

	// --- 3. Answer a Basic challenge --- //
	if challengeable && resp.StatusCode == http.StatusUnauthorized && basicChallenge(resp.Header) {
		log.Debug("Answering Basic authentication challenge")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		retry := httpReq.Clone(ctx)
		if retry.Body, err = httpReq.GetBody(); err != nil {
			return nil, fmt.Errorf("failed to replay request body: %w", err)
		}
		retry.SetBasicAuth(principal.Username, principal.Password)
		if resp, err = client.Do(retry); err != nil {
			log.Error("HTTP request failed", slog.Any("error", err))
			return nil, fmt.Errorf("request execution failed: %w", err)
		}
	}

	log.Debug("Received HTTP response", slog.Int("status_code", resp.StatusCode))
	return resp, nil
}

// applyHeaders copies header lines, mapping the ones net/http keeps as fields.
func applyHeaders(httpReq *http.Request, headers domain.Headers) {
	for _, line := range headers {
		switch http.CanonicalHeaderKey(line.Name) {
		case "Host":
			httpReq.Host = line.Value
		case "Content-Length":
			if n, err := strconv.ParseInt(line.Value, 10, 64); err == nil && httpReq.Body != nil {
				httpReq.ContentLength = n
			}
		case "Transfer-Encoding":
			if httpReq.Body != nil && strings.EqualFold(line.Value, "chunked") {
				httpReq.ContentLength = -1
				httpReq.TransferEncoding = []string{"chunked"}
			}
		default:
			httpReq.Header.Add(line.Name, line.Value)
		}
	}
}

// makeReplayable buffers a body of known length so that it can be sent twice.
func makeReplayable(httpReq *http.Request) error {
	if httpReq.Body == nil || httpReq.Body == http.NoBody {
		httpReq.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		return nil
	}
	if httpReq.GetBody != nil || httpReq.ContentLength <= 0 {
		return nil
	}
	data, err := io.ReadAll(httpReq.Body)
	httpReq.Body.Close()
	if err != nil {
		return err
	}
	httpReq.Body = io.NopCloser(bytes.NewReader(data))
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func basicChallenge(h http.Header) bool {
	for _, v := range h.Values("WWW-Authenticate") {
		if len(v) >= 5 && strings.EqualFold(v[:5], "basic") {
			return true
		}
	}
	return false
}
