package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kalambet/podio/internal/contact"
	"github.com/kalambet/podio/internal/storage"
)

const maxContactsPage = 500

// profileFromRecord decodes the stored field values of rec into a Profile.
func profileFromRecord(rec storage.ProfileRecord) (contact.Profile, error) {
	doc := make(map[string]json.RawMessage, len(rec.Fields)+2)
	for name, v := range rec.Fields {
		doc[name] = v
	}
	doc["profile_id"] = json.RawMessage(strconv.Itoa(rec.ProfileID))
	doc["user_id"] = json.RawMessage(strconv.Itoa(rec.UserID))

	data, err := json.Marshal(doc)
	if err != nil {
		return contact.Profile{}, err
	}
	var p contact.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return contact.Profile{}, fmt.Errorf("profile %d: %w", rec.ProfileID, err)
	}
	return p, nil
}

func shortProfile(p contact.Profile) contact.ProfileShort {
	return contact.ProfileShort{
		ProfileID:    p.ProfileID,
		UserID:       p.UserID,
		Name:         p.Name,
		Avatar:       p.Avatar,
		Organization: p.Organization,
		Title:        p.Title,
		Mail:         p.Mail,
		Phone:        p.Phone,
		LastSeenOn:   p.LastSeenOn,
	}
}

func miniProfile(p contact.Profile) contact.UserMini {
	return contact.UserMini{
		UserID:    p.UserID,
		ProfileID: p.ProfileID,
		Name:      p.Name,
		Avatar:    p.Avatar,
	}
}

// normalizeFieldValue checks raw against the shape of f. It reports clear
// when raw is null or an empty value, which removes the field.
func normalizeFieldValue(f contact.Field, raw json.RawMessage) (json.RawMessage, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("field %s: %w", f.Name(), err)
	}

	if f.IsSingle() {
		if _, isList := v.([]any); isList {
			return nil, false, fmt.Errorf("field %s holds a single value, got a list", f.Name())
		}
		if err := checkScalar(f.Name(), v); err != nil {
			return nil, false, err
		}
		if v == "" || v == float64(0) {
			return nil, true, nil
		}
		return raw, false, nil
	}

	list, ok := v.([]any)
	if !ok {
		return nil, false, fmt.Errorf("field %s holds a list of values", f.Name())
	}
	if len(list) == 0 {
		return nil, true, nil
	}
	for i, item := range list {
		if err := checkScalar(f.Name(), item); err != nil {
			return nil, false, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return raw, false, nil
}

func checkScalar(name string, v any) error {
	switch name {
	case contact.Avatar.Name():
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("field %s takes an integer", name)
		}
		return nil
	case contact.Birthdate.Name():
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %s takes a date string", name)
		}
		if s == "" {
			return nil
		}
		if _, err := time.Parse(contact.DateLayout, s); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		return nil
	}
	if _, ok := v.(string); !ok {
		return fmt.Errorf("field %s takes a string", name)
	}
	return nil
}

func (s *sandbox) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetProfile(claimsFrom(r.Context()).UserID)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load profile: %v", err)
		return
	}
	p, err := profileFromRecord(rec)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to build profile: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleUpdateProfile applies every key in the body: present values are
// stored and null or empty values clear the field. Keys not in the body
// are left alone.
func (s *sandbox) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "invalid request body: %v", err)
		return
	}

	set := make(map[string]json.RawMessage, len(body))
	var clear []string
	for name, raw := range body {
		f, ok := contact.LookupField(name)
		if !ok {
			s.httpError(w, http.StatusBadRequest, "invalid_value", "unknown profile field %q", name)
			return
		}
		v, isClear, err := normalizeFieldValue(f, raw)
		if err != nil {
			s.httpError(w, http.StatusBadRequest, "invalid_value", "%v", err)
			return
		}
		if isClear {
			clear = append(clear, name)
			continue
		}
		set[name] = v
	}

	s.storeProfileFields(w, r, set, clear)
}

func (s *sandbox) storeProfileFields(w http.ResponseWriter, r *http.Request, set map[string]json.RawMessage, clear []string) {
	err := s.store.UpdateProfileFields(claimsFrom(r.Context()).UserID, set, clear)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to update profile: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProfileField answers with a list for every field; a
// single-valued field yields at most one element.
func (s *sandbox) handleGetProfileField(w http.ResponseWriter, r *http.Request) {
	f, ok := contact.LookupField(pathParam(r, "field"))
	if !ok {
		s.httpError(w, http.StatusNotFound, "not_found", "unknown profile field %q", pathParam(r, "field"))
		return
	}
	rec, err := s.store.GetProfile(claimsFrom(r.Context()).UserID)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "profile not found")
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load profile: %v", err)
		return
	}

	values := []json.RawMessage{}
	if raw, ok := rec.Fields[f.Name()]; ok {
		if f.IsSingle() {
			values = append(values, raw)
		} else if err := json.Unmarshal(raw, &values); err != nil {
			s.httpError(w, http.StatusInternalServerError, "server_error", "corrupt value for %s: %v", f.Name(), err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, values)
}

// handleUpdateProfileField takes {"value": v} for a single-valued field and
// {"value": [v, ...]} for a multi-valued one.
func (s *sandbox) handleUpdateProfileField(w http.ResponseWriter, r *http.Request) {
	f, ok := contact.LookupField(pathParam(r, "field"))
	if !ok {
		s.httpError(w, http.StatusNotFound, "not_found", "unknown profile field %q", pathParam(r, "field"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "invalid request body: %v", err)
		return
	}

	v, isClear, err := normalizeFieldValue(f, body.Value)
	if err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "%v", err)
		return
	}
	if isClear {
		s.storeProfileFields(w, r, nil, []string{f.Name()})
		return
	}
	s.storeProfileFields(w, r, map[string]json.RawMessage{f.Name(): v}, nil)
}

func (s *sandbox) handleGetContact(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(pathParam(r, "profileID"))
	if err != nil || id <= 0 {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "invalid profile id %q", pathParam(r, "profileID"))
		return
	}
	rec, err := s.store.GetProfileByID(id)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "contact %d not found", id)
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load contact: %v", err)
		return
	}
	p, err := profileFromRecord(rec)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to build contact: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *sandbox) handleListContacts(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = contact.Full.Name()
	}
	limit := parseIntParam(r, "limit", 0, maxContactsPage)
	offset := parseIntParam(r, "offset", 0, 0)

	recs, err := s.store.ListProfiles(limit, offset)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to list contacts: %v", err)
		return
	}
	profiles := make([]contact.Profile, 0, len(recs))
	for _, rec := range recs {
		p, err := profileFromRecord(rec)
		if err != nil {
			s.httpError(w, http.StatusInternalServerError, "server_error", "failed to build contact: %v", err)
			return
		}
		profiles = append(profiles, p)
	}

	switch typ {
	case contact.Full.Name():
		s.writeJSON(w, http.StatusOK, profiles)
	case contact.Short.Name():
		s.writeJSON(w, http.StatusOK, project(profiles, shortProfile))
	case contact.Mini.Name():
		s.writeJSON(w, http.StatusOK, project(profiles, miniProfile))
	default:
		s.httpError(w, http.StatusBadRequest, "invalid_value", "unknown profile type %q", typ)
	}
}

func project[T any](profiles []contact.Profile, fn func(contact.Profile) T) []T {
	out := make([]T, len(profiles))
	for i, p := range profiles {
		out[i] = fn(p)
	}
	return out
}
