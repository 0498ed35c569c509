package storage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestAccount(t *testing.T, s *Store, mail string) Account {
	t.Helper()
	a, err := s.CreateAccount(Account{Mail: mail, PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", mail, err)
	}
	return a
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) == 0 || len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("007_add_things.sql")
	if err != nil || v != 7 {
		t.Errorf("got (%d, %v), want (7, nil)", v, err)
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil {
		t.Error("expected error for unversioned filename")
	}
}

func TestCreateAccount_AssignsIDsAndDefaults(t *testing.T) {
	s := openTestStore(t)

	a := createTestAccount(t, s, "a@b.com")
	if a.UserID == 0 || a.ProfileID == 0 {
		t.Fatalf("ids not assigned: %+v", a)
	}
	if a.Status != "active" || a.Locale != "en_US" || a.Timezone != "UTC" {
		t.Errorf("defaults not applied: %+v", a)
	}

	got, err := s.GetAccount(a.UserID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Mail != "a@b.com" || got.ProfileID != a.ProfileID {
		t.Errorf("GetAccount = %+v, want mail a@b.com profile %d", got, a.ProfileID)
	}
	if time.Since(got.CreatedAt) > time.Minute {
		t.Errorf("created_at = %v, want recent", got.CreatedAt)
	}
}

func TestCreateAccount_DuplicateMail(t *testing.T) {
	s := openTestStore(t)
	createTestAccount(t, s, "a@b.com")

	_, err := s.CreateAccount(Account{Mail: "A@B.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetAccountByMail(t *testing.T) {
	s := openTestStore(t)
	a := createTestAccount(t, s, "Jane@Example.com")

	got, err := s.GetAccountByMail("jane@example.com")
	if err != nil {
		t.Fatalf("GetAccountByMail: %v", err)
	}
	if got.UserID != a.UserID {
		t.Errorf("user_id = %d, want %d", got.UserID, a.UserID)
	}

	if _, err := s.GetAccountByMail("nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAccount(t *testing.T) {
	s := openTestStore(t)
	a := createTestAccount(t, s, "a@b.com")
	createTestAccount(t, s, "taken@b.com")

	a.Locale = "da_DK"
	a.Timezone = "Europe/Copenhagen"
	if err := s.UpdateAccount(a); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	got, _ := s.GetAccount(a.UserID)
	if got.Locale != "da_DK" || got.Timezone != "Europe/Copenhagen" {
		t.Errorf("update not stored: %+v", got)
	}

	a.Mail = "taken@b.com"
	if err := s.UpdateAccount(a); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	if err := s.UpdateAccount(Account{UserID: 9999, Mail: "x@y.z"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileFields_SetAndClear(t *testing.T) {
	s := openTestStore(t)
	a := createTestAccount(t, s, "a@b.com")

	p, err := s.GetProfile(a.UserID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if len(p.Fields) != 0 {
		t.Fatalf("new profile has fields: %v", p.Fields)
	}

	err = s.UpdateProfileFields(a.UserID, map[string]json.RawMessage{
		"name":  json.RawMessage(`"Jane"`),
		"skill": json.RawMessage(`["go","sql"]`),
	}, nil)
	if err != nil {
		t.Fatalf("UpdateProfileFields: %v", err)
	}

	err = s.UpdateProfileFields(a.UserID, map[string]json.RawMessage{
		"city": json.RawMessage(`"Aarhus"`),
	}, []string{"skill"})
	if err != nil {
		t.Fatalf("UpdateProfileFields: %v", err)
	}

	p, err = s.GetProfile(a.UserID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if string(p.Fields["name"]) != `"Jane"` || string(p.Fields["city"]) != `"Aarhus"` {
		t.Errorf("fields = %v", p.Fields)
	}
	if _, ok := p.Fields["skill"]; ok {
		t.Error("skill should have been cleared")
	}
	if p.ProfileID != a.ProfileID || p.UserID != a.UserID {
		t.Errorf("ids = (%d, %d), want (%d, %d)", p.ProfileID, p.UserID, a.ProfileID, a.UserID)
	}
}

func TestUpdateProfileFields_UnknownUser(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateProfileFields(42, map[string]json.RawMessage{"name": json.RawMessage(`"x"`)}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListProfiles_Paging(t *testing.T) {
	s := openTestStore(t)
	for _, mail := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		a := createTestAccount(t, s, mail)
		if err := s.UpdateProfileFields(a.UserID, map[string]json.RawMessage{
			"mail": json.RawMessage(`["` + mail + `"]`),
		}, nil); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListProfiles(0, 0)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if string(all[2].Fields["mail"]) != `["c@x.com"]` {
		t.Errorf("fields not loaded: %v", all[2].Fields)
	}

	page, err := s.ListProfiles(1, 1)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(page) != 1 || page[0].ProfileID != all[1].ProfileID {
		t.Errorf("page = %+v, want second profile", page)
	}

	byID, err := s.GetProfileByID(all[0].ProfileID)
	if err != nil || byID.UserID != all[0].UserID {
		t.Errorf("GetProfileByID = (%+v, %v)", byID, err)
	}
	if _, err := s.GetProfileByID(9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProperties_ScopedByClient(t *testing.T) {
	s := openTestStore(t)
	a := createTestAccount(t, s, "a@b.com")

	if _, err := s.GetProperty(a.UserID, "cli", "beta"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetProperty(a.UserID, "cli", "beta", true); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if err := s.SetProperty(a.UserID, "web", "beta", false); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}

	v, err := s.GetProperty(a.UserID, "cli", "beta")
	if err != nil || !v {
		t.Errorf("cli beta = (%v, %v), want true", v, err)
	}
	v, err = s.GetProperty(a.UserID, "web", "beta")
	if err != nil || v {
		t.Errorf("web beta = (%v, %v), want false", v, err)
	}

	if err := s.SetProperty(a.UserID, "cli", "beta", false); err != nil {
		t.Fatalf("SetProperty overwrite: %v", err)
	}
	props, err := s.ListProperties(a.UserID, "cli")
	if err != nil {
		t.Fatalf("ListProperties: %v", err)
	}
	if len(props) != 1 || props["beta"] {
		t.Errorf("props = %v, want {beta:false}", props)
	}

	if err := s.DeleteProperty(a.UserID, "cli", "beta"); err != nil {
		t.Fatalf("DeleteProperty: %v", err)
	}
	if err := s.DeleteProperty(a.UserID, "cli", "beta"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetProperty(a.UserID, "web", "beta"); err != nil {
		t.Errorf("web property should survive cli delete: %v", err)
	}
}
