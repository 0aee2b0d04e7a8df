// Package person lists profiles from the person API one page at a time.
package person

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"avatarmig/internal/profile"
	"avatarmig/internal/services"
	"avatarmig/internal/services/httpapi"
)

const (
	usersPath        = "/v2/users"
	nextPageHeader   = "nextPage"
	componentName    = "person"
	operationListing = "list users"
)

// Batch is one page of profiles. An empty Next marks the last page.
type Batch struct {
	Items     []profile.Profile
	Next      string
	Malformed []error
}

// Lister fetches a single page. An empty continuation requests the first.
type Lister interface {
	List(ctx context.Context, continuation string) (Batch, error)
}

// Client implements Lister against the person API.
type Client struct {
	api *httpapi.Client
}

// NewClient wraps an httpapi client pointed at the person API.
func NewClient(api *httpapi.Client) *Client {
	return &Client{api: api}
}

type listResponse struct {
	Items    *[]json.RawMessage `json:"Items"`
	NextPage json.RawMessage    `json:"nextPage"`
}

// List implements Lister.
func (c *Client) List(ctx context.Context, continuation string) (Batch, error) {
	var headers map[string]string
	if continuation != "" {
		headers = map[string]string{nextPageHeader: continuation}
	}
	var resp listResponse
	if err := c.api.Do(ctx, http.MethodGet, usersPath, headers, nil, &resp); err != nil {
		return Batch{}, err
	}
	return decodeBatch(resp)
}

func decodeBatch(resp listResponse) (Batch, error) {
	if resp.Items == nil {
		return Batch{}, services.Wrap(services.ErrSerialization, componentName, operationListing, "response has no Items array", nil)
	}
	next, err := decodeNextPage(resp.NextPage)
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{Next: next, Items: make([]profile.Profile, 0, len(*resp.Items))}
	for i, raw := range *resp.Items {
		var p profile.Profile
		if err := json.Unmarshal(raw, &p); err != nil {
			batch.Malformed = append(batch.Malformed, services.Wrap(services.ErrSerialization, componentName, "decode profile", fmt.Sprintf("item %d", i), err))
			continue
		}
		batch.Items = append(batch.Items, p)
	}
	return batch, nil
}

func decodeNextPage(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", services.Wrap(services.ErrSerialization, componentName, operationListing, "nextPage is not a string", err)
	}
	return token, nil
}

// Pager walks a listing lazily. It is finite and not restartable: once a
// page without a continuation token (or an error) is seen, Next reports
// ok=false forever.
type Pager struct {
	lister Lister
	next   string
	pages  int
	done   bool
}

// NewPager starts a walk at the first page.
func NewPager(lister Lister) *Pager {
	return &Pager{lister: lister}
}

// Pages returns how many pages have been fetched so far.
func (p *Pager) Pages() int {
	return p.pages
}

// Next fetches the following page.
func (p *Pager) Next(ctx context.Context) (Batch, bool, error) {
	if p.done {
		return Batch{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		p.done = true
		return Batch{}, false, err
	}
	batch, err := p.lister.List(ctx, p.next)
	if err != nil {
		p.done = true
		return Batch{}, false, err
	}
	p.pages++
	p.next = batch.Next
	if batch.Next == "" {
		p.done = true
	}
	return batch, true, nil
}

// All adapts the pager to a range-over-func sequence. Iteration stops after
// the last page or after yielding the first error.
func (p *Pager) All(ctx context.Context) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		for {
			batch, ok, err := p.Next(ctx)
			if err != nil {
				yield(Batch{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}
