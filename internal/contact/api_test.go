package contact

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/podio/internal/podio"
)

func TestGetContact(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"profile_id":12,"name":"Grace","title":["Rear Admiral"]}`)
	}))
	defer srv.Close()

	p, err := NewAPI(podio.New(srv.URL)).GetContact(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, "/contact/12/v2", gotPath)
	assert.Equal(t, "Grace", p.Name)
	assert.Equal(t, []string{"Rear Admiral"}, p.Title)
}

func TestGetContact_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewAPI(podio.New(srv.URL)).GetContact(context.Background(), 1)
	assert.ErrorIs(t, err, podio.ErrNotFound)
}

func TestGetContacts_TypeSelectsProjection(t *testing.T) {
	var gotType, gotLimit, gotOffset string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotType, gotLimit, gotOffset = q.Get("type"), q.Get("limit"), q.Get("offset")
		fmt.Fprint(w, `[{"user_id":1,"profile_id":11,"name":"Ada"},{"user_id":2,"name":"Grace"}]`)
	}))
	defer srv.Close()

	api := NewAPI(podio.New(srv.URL))
	minis, err := GetContacts(context.Background(), api, Mini, ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)

	assert.Equal(t, "mini", gotType)
	assert.Equal(t, "2", gotLimit)
	assert.Equal(t, "4", gotOffset)
	assert.Equal(t, []UserMini{
		{UserID: 1, ProfileID: 11, Name: "Ada"},
		{UserID: 2, Name: "Grace"},
	}, minis)
}

func TestGetContacts_EmptyAndNoPaging(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, `null`)
	}))
	defer srv.Close()

	out, err := GetContacts(context.Background(), NewAPI(podio.New(srv.URL)), Short, ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Equal(t, "type=short", rawQuery)
}

func TestGetContacts_NegativePaging(t *testing.T) {
	_, err := GetContacts(context.Background(), NewAPI(podio.New("http://unused")), Full, ListOptions{Limit: -1})
	assert.ErrorIs(t, err, podio.ErrInvalidArgument)
}
