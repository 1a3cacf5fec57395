package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Amund211/asyncloader/internal/constants"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client with traced and measured outgoing requests
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type httpHandler struct {
	httpClient HttpClient
}

func NewHTTPHandler(httpClient HttpClient) Handler {
	return httpHandler{
		httpClient: httpClient,
	}
}

func (h httpHandler) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", constants.USER_AGENT)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return resp.Body, nil
}
