package contact

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kalambet/podio/internal/podio"
)

// API looks up contact profiles other than the active user's own.
type API struct {
	client *podio.Client
}

func NewAPI(c *podio.Client) *API {
	return &API{client: c}
}

// GetContact returns the full profile with the given id.
func (a *API) GetContact(ctx context.Context, profileID int) (Profile, error) {
	var p Profile
	if err := a.client.Get(ctx, fmt.Sprintf("/contact/%d/v2", profileID), &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ListOptions pages a contact listing. Zero values leave paging to the service.
type ListOptions struct {
	Limit  int
	Offset int
}

// GetContacts lists the contacts visible to the active user in the
// projection chosen by pt.
func GetContacts[T any](ctx context.Context, a *API, pt ProfileType[T], opts ListOptions) ([]T, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", podio.ErrInvalidArgument)
	}

	q := url.Values{"type": {pt.Name()}}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var out []T
	if err := a.client.Do(ctx, http.MethodGet, "/contact/", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
