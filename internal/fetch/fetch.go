// Package fetch performs single-shot JSON requests against remote pages.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bryan-buckman/spacetraveling/internal/model"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 200

// StatusError is returned when the remote answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// GetJSON issues one GET to url and decodes the body into T. There is no
// retry and no caching; timeouts come from ctx or the client.
func GetJSON[T any](ctx context.Context, client *http.Client, url string) (T, error) {
	var out T
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return out, fmt.Errorf("new request %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return out, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return out, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s: %w", url, err)
	}
	return out, nil
}

// FetchPage dereferences a listing cursor URL and maps the response to a
// listing page.
func FetchPage(ctx context.Context, client *http.Client, url string) (model.Page, error) {
	wire, err := GetJSON[model.PaginationWire](ctx, client, url)
	if err != nil {
		return model.Page{}, err
	}
	return wire.Page(), nil
}
