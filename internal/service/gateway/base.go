package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	xhttp "Confluence/pkg/http"
)

// httpBase centralizes the base URL, auth header and JSON GET handling.
type httpBase struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

// getJSON fetches path under baseURL and decodes the body into dest.
func (b *httpBase) getJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return errors.New("gateway http client not initialized")
	}
	headers := map[string]string{"Accept": "application/json"}
	if b.apiKey != "" {
		headers["X-API-Key"] = b.apiKey
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		Headers:     headers,
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}

func symbolQuery(symbol string, extra ...string) map[string][]string {
	q := map[string][]string{"symbol": {symbol}}
	for i := 0; i+1 < len(extra); i += 2 {
		q[extra[i]] = []string{extra[i+1]}
	}
	return q
}

func itoa(n int) string { return strconv.Itoa(n) }
