package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/podio/internal/api"
	"github.com/kalambet/podio/internal/contact"
	"github.com/kalambet/podio/internal/podio"
	"github.com/kalambet/podio/internal/storage"
	"github.com/kalambet/podio/internal/user"
)

// useSandbox points every command at an in-memory sandbox seeded with one
// account.
func useSandbox(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens := api.NewTokenIssuer([]byte("cli-test-secret"), time.Hour)
	srv := httptest.NewServer(api.NewSandboxHandler(api.SandboxDeps{
		Store:  store,
		Tokens: tokens,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)

	acct, err := api.Seed(store, "jane@example.com", "jane-password", "Jane Doe")
	require.NoError(t, err)
	tok, err := tokens.Issue(acct.UserID, "cli")
	require.NoError(t, err)

	c := podio.New(srv.URL, podio.WithTokenSource(podio.StaticToken(tok)))
	prev := newAPIs
	newAPIs = func(*cobra.Command) (*apiClients, error) {
		return &apiClients{users: user.NewAPI(c), contacts: contact.NewAPI(c)}, nil
	}
	t.Cleanup(func() { newAPIs = prev })
	return store
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestUserShow(t *testing.T) {
	useSandbox(t)

	out, err := runCmd(t, "", "user", "show")
	require.NoError(t, err)

	var u user.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "jane@example.com", u.Mail)
}

func TestUserShow_YAML(t *testing.T) {
	useSandbox(t)

	out, err := runCmd(t, "", "--output", "yaml", "user", "show")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "jane@example.com", doc["mail"])
	assert.Contains(t, doc, "user_id")
}

func TestInvalidOutputFlag(t *testing.T) {
	useSandbox(t)

	_, err := runCmd(t, "", "--output", "xml", "user", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--output")
}

func TestUserMail(t *testing.T) {
	useSandbox(t)

	out, err := runCmd(t, "", "user", "mail", "jane@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `"mail": "jane@example.com"`)

	_, err = runCmd(t, "", "user", "mail", "a@b.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user with mail a@b.com")
}

func TestUserUpdate(t *testing.T) {
	useSandbox(t)

	_, err := runCmd(t, "", "user", "update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")

	_, err = runCmd(t, "", "user", "update", "--locale", "da_DK")
	require.NoError(t, err)

	out, err := runCmd(t, "", "user", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"locale": "da_DK"`)

	_, err = runCmd(t, "", "user", "update", "--new-password", "another-one")
	require.Error(t, err)
	assert.ErrorIs(t, err, podio.ErrForbidden)

	_, err = runCmd(t, "", "user", "update", "--new-password", "another-one", "--old-password", "jane-password")
	require.NoError(t, err)
}

func TestStatus(t *testing.T) {
	useSandbox(t)

	out, err := runCmd(t, "", "status")
	require.NoError(t, err)

	var st user.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "Jane Doe", st.Profile.Name)
	assert.NotEmpty(t, st.CalendarCode)
}

func TestProfileFieldSetAndGet(t *testing.T) {
	useSandbox(t)

	_, err := runCmd(t, "", "profile", "field", "set", "skill", "go", "sql")
	require.NoError(t, err)
	_, err = runCmd(t, "", "profile", "field", "set", "city", "Aarhus")
	require.NoError(t, err)

	out, err := runCmd(t, "", "profile", "field", "get", "skill")
	require.NoError(t, err)
	assert.JSONEq(t, `["go","sql"]`, out)

	out, err = runCmd(t, "", "profile", "field", "get", "name", "skill", "city", "phone")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":["Jane Doe"],"skill":["go","sql"],"city":["Aarhus"],"phone":[]}`, out)
}

func TestProfileFieldSet_Errors(t *testing.T) {
	useSandbox(t)

	_, err := runCmd(t, "", "profile", "field", "set", "name", "a", "b")
	assert.ErrorIs(t, err, podio.ErrInvalidArgument)

	_, err = runCmd(t, "", "profile", "field", "set", "avatar", "me.png")
	assert.ErrorIs(t, err, podio.ErrInvalidArgument)

	_, err = runCmd(t, "", "profile", "field", "get", "nickname")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown profile field")
}

func TestProfileFieldList(t *testing.T) {
	out, err := runCmd(t, "", "profile", "field", "list")
	require.NoError(t, err)

	var fields []struct {
		Name   string `json:"name"`
		Single bool   `json:"single"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &fields))
	assert.Len(t, fields, len(contact.Fields()))
}

func TestProfileUpdate_Partial(t *testing.T) {
	useSandbox(t)

	_, err := runCmd(t, `{"city":"Aarhus","title":["CTO"]}`, "profile", "update", "--file", "-", "--partial")
	require.NoError(t, err)

	out, err := runCmd(t, "", "profile", "show")
	require.NoError(t, err)
	var p contact.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "Aarhus", p.City)
	assert.Equal(t, []string{"CTO"}, p.Title)
}

func TestProfileUpdate_Full(t *testing.T) {
	useSandbox(t)

	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"J. Doe","skill":["go"]}`), 0o644))

	_, err := runCmd(t, "", "profile", "update", "--file", path)
	require.NoError(t, err)

	out, err := runCmd(t, "", "profile", "show")
	require.NoError(t, err)
	var p contact.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "J. Doe", p.Name)
	assert.Equal(t, []string{"go"}, p.Skill)
	assert.Empty(t, p.Mail, "fields missing from the document are cleared")
}

func TestProfileUpdate_RejectsUnknownKeys(t *testing.T) {
	useSandbox(t)

	_, err := runCmd(t, `{"nickname":"JD"}`, "profile", "update", "--file", "-")
	require.Error(t, err)

	_, err = runCmd(t, `{"nickname":"JD"}`, "profile", "update", "--file", "-", "--partial")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nickname")

	_, err = runCmd(t, "", "profile", "update")
	require.Error(t, err, "--file is required")
}

func TestProperty(t *testing.T) {
	useSandbox(t)

	_, err := runCmd(t, "", "property", "set", "beta", "true")
	require.NoError(t, err)

	out, err := runCmd(t, "", "property", "get", "beta")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":true}`, out)

	_, err = runCmd(t, "", "property", "set", "beta", "maybe")
	require.Error(t, err)

	_, err = runCmd(t, "", "property", "delete", "beta")
	require.NoError(t, err)

	_, err = runCmd(t, "", "property", "get", "beta")
	assert.ErrorIs(t, err, podio.ErrNotFound)
}

func TestContacts(t *testing.T) {
	store := useSandbox(t)
	_, err := api.Seed(store, "bob@example.com", "bob-password", "Bob")
	require.NoError(t, err)

	out, err := runCmd(t, "", "contacts", "--type", "mini")
	require.NoError(t, err)
	var mini []contact.UserMini
	require.NoError(t, json.Unmarshal([]byte(out), &mini))
	require.Len(t, mini, 2)

	out, err = runCmd(t, "", "contacts", "--limit", "1", "--offset", "1")
	require.NoError(t, err)
	var short []contact.ProfileShort
	require.NoError(t, json.Unmarshal([]byte(out), &short))
	require.Len(t, short, 1)
	assert.Equal(t, "Bob", short[0].Name)

	out, err = runCmd(t, "", "contacts", "show", "2")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Bob"`)

	_, err = runCmd(t, "", "contacts", "--type", "huge")
	require.Error(t, err)

	_, err = runCmd(t, "", "contacts", "show", "abc")
	require.Error(t, err)
}

func TestParseFieldValues(t *testing.T) {
	values, err := parseFieldValues([]byte(`{"name":"X","skill":["a"]}`))
	require.NoError(t, err)
	assert.Len(t, values, 2)

	_, err = parseFieldValues([]byte(`{}`))
	assert.Error(t, err)

	_, err = parseFieldValues([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestPrintValue_YAMLUsesJSONNames(t *testing.T) {
	prev := outputFormat
	outputFormat = "yaml"
	t.Cleanup(func() { outputFormat = prev })

	var buf bytes.Buffer
	require.NoError(t, printValue(&buf, contact.UserMini{UserID: 1, Name: "A"}))
	assert.Contains(t, buf.String(), "user_id: 1")
	assert.Contains(t, buf.String(), "name: A")
}
