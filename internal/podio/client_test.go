package podio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestGet_DecodesAndSetsHeaders(t *testing.T) {
	var gotAccept, gotAuth, gotReqID, gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-Id")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"id":7,"name":"seven"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithTokenSource(StaticToken("tok")), WithUserAgent("podio-test"))

	var got item
	require.NoError(t, c.Get(context.Background(), "/item/7", &got))

	assert.Equal(t, item{ID: 7, Name: "seven"}, got)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "OAuth2 tok", gotAuth)
	assert.Equal(t, "podio-test", gotUA)
	assert.NotEmpty(t, gotReqID)
}

func TestPut_SendsJSONBody(t *testing.T) {
	var gotMethod, gotType, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.Put(context.Background(), "/item/7", item{ID: 7, Name: "x"}))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"id":7,"name":"x"}`, gotBody)
}

func TestDelete_NoBody(t *testing.T) {
	var gotMethod, gotType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).Delete(context.Background(), "/item/7"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Empty(t, gotType)
}

func TestDo_Query(t *testing.T) {
	var gotQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	var out []item
	err := New(srv.URL).Do(context.Background(), http.MethodGet, "/item/", url.Values{"limit": {"5"}}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "5", gotQuery.Get("limit"))
	assert.Empty(t, out)
}

func TestDo_RemoteErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"error":"some_code","error_description":"went wrong"}`)
			}))
			defer srv.Close()

			err := New(srv.URL).Get(context.Background(), "/x", &item{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)

			var re *RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.status, re.StatusCode)
			assert.Equal(t, "some_code", re.Code)
			assert.Equal(t, "went wrong", re.Description)
			assert.Contains(t, string(re.Body), "some_code")
			assert.Equal(t, tc.status, StatusCode(err))
		})
	}
}

func TestDo_ServerErrorHasNoKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).Delete(context.Background(), "/x")
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Nil(t, re.Unwrap())
	assert.Contains(t, err.Error(), "boom")
}

func TestDo_EmptyBodyWhenResultExpected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(srv.URL).Get(context.Background(), "/x", &item{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response body")
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := New(srv.URL).Get(context.Background(), "/x", &item{})
	require.Error(t, err)

	var re *RemoteError
	assert.False(t, errors.As(err, &re), "transport failures must not look like remote errors")
}

func TestDo_TransportErrorIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := New(srv.URL, WithLogger(logger)).Get(context.Background(), "/x", &item{})
	require.Error(t, err)

	out := logs.String()
	assert.Contains(t, out, "podio request failed")
	assert.Contains(t, out, "path=/x")
	assert.Regexp(t, `request_id=[0-9a-f-]{36}`, out)
}

func TestDo_TokenSourceError(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	err := New(srv.URL, WithTokenSource(StaticToken(""))).Delete(context.Background(), "/x")
	require.Error(t, err)
	assert.False(t, called, "no request should be sent without a token")
}

func TestNew_DefaultBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("").BaseURL())
	assert.Equal(t, "http://host", New("http://host/").BaseURL())
}

func TestSegment(t *testing.T) {
	assert.Equal(t, "a@b.com", Segment("a@b.com"))
	assert.Equal(t, "a%2Fb", Segment("a/b"))
	assert.Equal(t, "two%20words", Segment("two words"))
}
