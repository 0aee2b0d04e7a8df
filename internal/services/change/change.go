// Package change submits profile patches to the change API.
package change

import (
	"context"
	"net/http"

	"avatarmig/internal/profile"
	"avatarmig/internal/services/httpapi"
)

const usersPath = "/v2/users"

// Updater submits one chunk of patches as a single request.
type Updater interface {
	Update(ctx context.Context, chunk []profile.Patch) error
}

// Client implements Updater against the change API bulk endpoint.
type Client struct {
	api *httpapi.Client
}

// NewClient wraps an httpapi client pointed at the change API.
func NewClient(api *httpapi.Client) *Client {
	return &Client{api: api}
}

// Update posts chunk as a JSON array. An empty chunk is a no-op.
func (c *Client) Update(ctx context.Context, chunk []profile.Patch) error {
	if len(chunk) == 0 {
		return nil
	}
	return c.api.Do(ctx, http.MethodPost, usersPath, nil, chunk, nil)
}
