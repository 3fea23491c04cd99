package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/media"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
	"github.com/linkup/backend/internal/repositories"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a form post. files maps a field name to a filename; each file holds a
// few bytes of placeholder content.
func multipartRequest(t *testing.T, method, target string, fields, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for field, name := range files {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("payload")); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func asUser(req *http.Request, user models.User) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, rec, &body)
	return body["error"]
}

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
	views map[string][]string
}

func newInMemoryUserStore(users ...models.User) *inMemoryUserStore {
	s := &inMemoryUserStore{users: make(map[string]models.User), views: make(map[string][]string)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) SetPassword(_ context.Context, userID, hash string, at time.Time) error {
	return s.update(userID, func(u *models.User) { u.Password = hash; u.UpdatedAt = at })
}

func (s *inMemoryUserStore) MarkVerified(_ context.Context, userID string, at time.Time) error {
	return s.update(userID, func(u *models.User) { u.Verified = true; u.UpdatedAt = at })
}

func (s *inMemoryUserStore) update(userID string, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(&user)
	s.users[userID] = user
	return nil
}

func (s *inMemoryUserStore) FindProfile(ctx context.Context, id string) (models.User, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	user.Views = append([]string(nil), s.views[id]...)
	s.mu.Unlock()
	return user, nil
}

func (s *inMemoryUserStore) UpdateProfile(_ context.Context, user models.User) (models.User, error) {
	var updated models.User
	err := s.update(user.ID, func(u *models.User) {
		u.FirstName, u.LastName = user.FirstName, user.LastName
		u.Location, u.Profession = user.Location, user.Profession
		if user.ProfileURL != "" {
			u.ProfileURL = user.ProfileURL
		}
		u.UpdatedAt = user.UpdatedAt
		updated = *u
	})
	return updated, err
}

func (s *inMemoryUserStore) RecordProfileView(_ context.Context, ownerID, viewerID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[ownerID]; !ok {
		return repositories.ErrNotFound
	}
	for _, v := range s.views[ownerID] {
		if v == viewerID {
			return nil
		}
	}
	s.views[ownerID] = append(s.views[ownerID], viewerID)
	return nil
}

func (s *inMemoryUserStore) Search(_ context.Context, term, excludeID string, limit int) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	term = strings.ToLower(term)
	out := []models.UserSummary{}
	for _, u := range s.users {
		if u.ID == excludeID || len(out) >= limit {
			continue
		}
		if strings.Contains(strings.ToLower(u.FirstName+" "+u.LastName+" "+u.Email), term) {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

func (s *inMemoryUserStore) Suggest(_ context.Context, userID string, limit int) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.UserSummary{}
	for _, u := range s.users {
		if u.ID != userID && len(out) < limit {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

type inMemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.OneTimeToken
}

func newInMemoryTokenStore() *inMemoryTokenStore {
	return &inMemoryTokenStore{tokens: make(map[string]models.OneTimeToken)}
}

func (s *inMemoryTokenStore) Save(_ context.Context, token models.OneTimeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.UserID+"/"+token.Purpose] = token
	return nil
}

func (s *inMemoryTokenStore) Find(_ context.Context, userID, purpose string) (models.OneTimeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[userID+"/"+purpose]
	if !ok {
		return models.OneTimeToken{}, repositories.ErrNotFound
	}
	return token, nil
}

func (s *inMemoryTokenStore) Delete(_ context.Context, userID, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + purpose
	if _, ok := s.tokens[key]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.tokens, key)
	return nil
}

type sentMail struct {
	kind string
	to   string
	link string
}

type recordingMailer struct {
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendVerification(_ context.Context, to models.User, link string) error {
	m.sent = append(m.sent, sentMail{kind: "verify", to: to.Email, link: link})
	return m.err
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, to models.User, link string) error {
	m.sent = append(m.sent, sentMail{kind: "reset", to: to.Email, link: link})
	return m.err
}

type sentNotification struct {
	recipient string
	sender    string
	kind      notifications.Kind
	postID    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) NotifyBestEffort(_ context.Context, recipientID, senderID string, event notifications.Event) {
	if recipientID == senderID {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{recipient: recipientID, sender: senderID, kind: event.Kind(), postID: event.PostID()})
}

// fakeUploader stores nothing and classifies files by name.
type fakeUploader struct {
	duration time.Duration
	err      error
	folders  []string
}

func (u *fakeUploader) Upload(_ context.Context, folder string, fh *multipart.FileHeader) (media.Asset, error) {
	if u.err != nil {
		return media.Asset{}, u.err
	}
	u.folders = append(u.folders, folder)
	kind := media.Classify(media.ContentType(fh), fh.Filename)
	asset := media.Asset{
		URL:  "https://cdn.example.test/" + folder + "/" + fh.Filename,
		Type: kind,
		Size: fh.Size,
	}
	if kind == models.MediaVideo || kind == models.MediaAudio {
		asset.Duration = u.duration
	}
	return asset, nil
}
