package user

import (
	"context"
	"fmt"

	"github.com/kalambet/podio/internal/contact"
	"github.com/kalambet/podio/internal/podio"
)

const (
	userPath     = "/user/"
	statusPath   = "/user/status"
	profilePath  = "/user/profile/"
	propertyPath = "/user/property/"
)

// API is the facade over the active user's account, profile and
// properties. Each method issues exactly one request.
type API struct {
	client *podio.Client
}

func NewAPI(c *podio.Client) *API {
	return &API{client: c}
}

// UpdateUser updates the active user. The service rejects a mail or
// password change that does not carry the old password.
func (a *API) UpdateUser(ctx context.Context, update Update) error {
	return a.client.Put(ctx, userPath, update)
}

// GetStatus returns the active user together with profile and
// notification data.
func (a *API) GetStatus(ctx context.Context) (Status, error) {
	var s Status
	if err := a.client.Get(ctx, statusPath, &s); err != nil {
		return Status{}, err
	}
	return s, nil
}

func (a *API) GetProfile(ctx context.Context) (contact.Profile, error) {
	var p contact.Profile
	if err := a.client.Get(ctx, profilePath, &p); err != nil {
		return contact.Profile{}, err
	}
	return p, nil
}

// UpdateProfile replaces the whole profile; fields not set in update are
// cleared.
func (a *API) UpdateProfile(ctx context.Context, update contact.ProfileUpdate) error {
	return a.client.Put(ctx, profilePath, update)
}

// UpdateProfileValues changes only the fields present in values.
func (a *API) UpdateProfileValues(ctx context.Context, values contact.ProfileFieldValues) error {
	return a.client.Put(ctx, profilePath, values)
}

func (a *API) GetUser(ctx context.Context) (User, error) {
	var u User
	if err := a.client.Get(ctx, userPath, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByMail returns the user registered with mail. A missing user
// yields an error matching podio.ErrNotFound.
func (a *API) GetUserByMail(ctx context.Context, mail string) (User, error) {
	var u User
	if err := a.client.Get(ctx, userPath+podio.Segment(mail), &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetProperty returns the named property of the active user. Properties
// are scoped to the auth client making the call.
func (a *API) GetProperty(ctx context.Context, key string) (bool, error) {
	var v PropertyValue
	if err := a.client.Get(ctx, propertyPath+podio.Segment(key), &v); err != nil {
		return false, err
	}
	return v.Value, nil
}

func (a *API) SetProperty(ctx context.Context, key string, value bool) error {
	return a.client.Put(ctx, propertyPath+podio.Segment(key), PropertyValue{Value: value})
}

func (a *API) DeleteProperty(ctx context.Context, key string) error {
	return a.client.Delete(ctx, propertyPath+podio.Segment(key))
}

// GetProfileField returns the values of one field of the active user's
// profile, parsed into the field's application type. The service always
// answers with a list, also for single-valued fields.
func GetProfileField[T, R any](ctx context.Context, a *API, field contact.ProfileField[T, R]) ([]T, error) {
	var raw []R
	if err := a.client.Get(ctx, profilePath+podio.Segment(field.Name()), &raw); err != nil {
		return nil, err
	}

	values := make([]T, 0, len(raw))
	for i, r := range raw {
		v, err := field.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// UpdateProfileField sets one value on a profile field. A multi-valued
// field ends up holding just this value.
func UpdateProfileField[T, R any](ctx context.Context, a *API, field contact.ProfileField[T, R], value T) error {
	path := profilePath + podio.Segment(field.Name())
	if field.IsSingle() {
		return a.client.Put(ctx, path, fieldSingleValue[R]{Value: field.Format(value)})
	}
	return a.client.Put(ctx, path, fieldMultiValue[R]{Value: []R{field.Format(value)}})
}

// UpdateProfileFieldValues replaces all values of a multi-valued field.
// Calling it on a single-valued field fails with podio.ErrInvalidArgument
// and sends nothing.
func UpdateProfileFieldValues[T, R any](ctx context.Context, a *API, field contact.ProfileField[T, R], values ...T) error {
	if field.IsSingle() {
		return fmt.Errorf("%w: field %s is only valid for a single value", podio.ErrInvalidArgument, field.Name())
	}

	raw := make([]R, len(values))
	for i, v := range values {
		raw[i] = field.Format(v)
	}
	return a.client.Put(ctx, profilePath+podio.Segment(field.Name()), fieldMultiValue[R]{Value: raw})
}
