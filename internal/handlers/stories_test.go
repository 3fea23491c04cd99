package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/linkup/backend/internal/media"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/notifications"
	"github.com/linkup/backend/internal/repositories"
)

type inMemoryStoryStore struct {
	mu      sync.Mutex
	friends *inMemoryFriendStore
	stories map[string]models.Story
}

func (s *inMemoryStoryStore) Create(_ context.Context, story models.Story) (models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range story.Content {
		story.Content[i].Likes = []string{}
		story.Content[i].Comments = []models.StoryComment{}
	}
	s.stories[story.ID] = story
	return story, nil
}

func (s *inMemoryStoryStore) visible(story models.Story, viewerID string, now time.Time) bool {
	if !now.Before(story.ExpiresAt) {
		return false
	}
	return story.UserID == viewerID || s.friends.friends[story.UserID][viewerID]
}

func (s *inMemoryStoryStore) ListVisible(_ context.Context, viewerID string, now time.Time) ([]models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Story{}
	for _, story := range s.stories {
		if s.visible(story, viewerID, now) {
			out = append(out, story)
		}
	}
	return out, nil
}

func (s *inMemoryStoryStore) item(storyID string, index int, viewerID string, now time.Time) (models.Story, error) {
	story, ok := s.stories[storyID]
	if !ok || !s.visible(story, viewerID, now) {
		return models.Story{}, repositories.ErrNotFound
	}
	if index < 0 || index >= len(story.Content) {
		return models.Story{}, repositories.ErrInvalidContentIndex
	}
	return story, nil
}

func (s *inMemoryStoryStore) ToggleItemLike(_ context.Context, storyID string, index int, viewerID string, now time.Time) (models.Story, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, err := s.item(storyID, index, viewerID, now)
	if err != nil {
		return models.Story{}, false, err
	}
	var liked bool
	story.Content[index].Likes, liked = toggleID(story.Content[index].Likes, viewerID)
	s.stories[storyID] = story
	return story, liked, nil
}

func (s *inMemoryStoryStore) AddItemComment(_ context.Context, storyID string, index int, comment models.StoryComment, now time.Time) (models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, err := s.item(storyID, index, comment.UserID, now)
	if err != nil {
		return models.Story{}, err
	}
	story.Content[index].Comments = append(story.Content[index].Comments, comment)
	s.stories[storyID] = story
	return story, nil
}

func (s *inMemoryStoryStore) ItemLikes(_ context.Context, storyID string, index int, viewerID string, now time.Time) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, err := s.item(storyID, index, viewerID, now)
	if err != nil {
		return nil, err
	}
	out := []models.UserSummary{}
	for _, id := range story.Content[index].Likes {
		out = append(out, models.UserSummary{ID: id})
	}
	return out, nil
}

func (s *inMemoryStoryStore) ItemComments(_ context.Context, storyID string, index int, viewerID string, now time.Time) ([]models.StoryComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, err := s.item(storyID, index, viewerID, now)
	if err != nil {
		return nil, err
	}
	return story.Content[index].Comments, nil
}

func newStoryFixture() (StoryHandler, *inMemoryStoryStore, *fakeUploader) {
	friends := newInMemoryFriendStore(newInMemoryUserStore(alice, bob, carol))
	friends.befriend("alice", "bob")
	store := &inMemoryStoryStore{friends: friends, stories: make(map[string]models.Story)}
	uploader := &fakeUploader{duration: 12 * time.Second}
	handler := StoryHandler{Stories: store, Media: uploader, TTL: 24 * time.Hour, NowFunc: clock}
	return handler, store, uploader
}

func TestStoryHandlerCreate(t *testing.T) {
	cases := []struct {
		name         string
		fields       map[string]string
		file         string
		wantType     string
		wantDuration int
	}{
		{name: "image default", file: "me.jpg", wantType: models.MediaImage, wantDuration: int(media.DefaultImageDuration / time.Millisecond)},
		{name: "video probed", file: "clip.mp4", wantType: models.MediaVideo, wantDuration: 12000},
		{name: "explicit duration", fields: map[string]string{"duration": "3000"}, file: "clip.mp4", wantType: models.MediaVideo, wantDuration: 3000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, _, _ := newStoryFixture()
			req := multipartRequest(t, http.MethodPost, "/stories/create", tc.fields, map[string]string{"media": tc.file})
			rec := httptest.NewRecorder()
			handler.Create(rec, asUser(req, alice))

			if rec.Code != http.StatusCreated {
				t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
			}
			var resp struct {
				Story models.Story `json:"story"`
			}
			decodeBody(t, rec, &resp)
			if !resp.Story.ExpiresAt.Equal(fixedNow.Add(24 * time.Hour)) {
				t.Fatalf("expected 24h expiry got %s", resp.Story.ExpiresAt)
			}
			item := resp.Story.Content[0]
			if item.Type != tc.wantType || item.DurationMS != tc.wantDuration {
				t.Fatalf("unexpected item %+v", item)
			}
		})
	}
}

func TestStoryHandlerCreateRequiresMedia(t *testing.T) {
	handler, _, _ := newStoryFixture()
	req := multipartRequest(t, http.MethodPost, "/stories/create", map[string]string{"description": "no file"}, nil)
	rec := httptest.NewRecorder()
	handler.Create(rec, asUser(req, alice))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}

	handler.Media = &fakeUploader{err: media.ErrStorageUnavailable}
	req = multipartRequest(t, http.MethodPost, "/stories/create", nil, map[string]string{"media": "me.jpg"})
	rec = httptest.NewRecorder()
	handler.Create(rec, asUser(req, alice))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestStoryHandlerVisibilityAndEngagement(t *testing.T) {
	handler, store, _ := newStoryFixture()
	store.stories["s1"] = models.Story{
		ID:        "s1",
		UserID:    "alice",
		ExpiresAt: fixedNow.Add(time.Hour),
		Content:   []models.StoryItem{{Type: models.MediaImage, URL: "u", Likes: []string{}, Comments: []models.StoryComment{}}},
	}
	store.stories["old"] = models.Story{ID: "old", UserID: "alice", ExpiresAt: fixedNow.Add(-time.Minute)}

	list := func(user models.User) int {
		rec := httptest.NewRecorder()
		handler.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/stories/", nil), user))
		var resp struct {
			Stories []models.Story `json:"stories"`
		}
		decodeBody(t, rec, &resp)
		return len(resp.Stories)
	}
	if got := list(bob); got != 1 {
		t.Fatalf("expected friend to see one live story got %d", got)
	}
	if got := list(carol); got != 0 {
		t.Fatalf("expected stranger to see nothing got %d", got)
	}

	like := func(user models.User, index int) *httptest.ResponseRecorder {
		req := asUser(jsonRequest(t, http.MethodPost, "/stories/s1/like", map[string]int{"contentIndex": index}), user)
		req.SetPathValue("storyId", "s1")
		rec := httptest.NewRecorder()
		handler.Like(rec, req)
		return rec
	}

	rec := like(bob, 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	var liked struct {
		Likes int `json:"likes"`
	}
	decodeBody(t, rec, &liked)
	if liked.Likes != 1 {
		t.Fatalf("expected one like got %d", liked.Likes)
	}
	if rec := like(bob, 5); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid index to fail got %d", rec.Code)
	}
	if rec := like(carol, 0); rec.Code != http.StatusNotFound {
		t.Fatalf("expected hidden story to be not found got %d", rec.Code)
	}

	req := asUser(jsonRequest(t, http.MethodPost, "/stories/s1/comment", map[string]any{"contentIndex": 0, "comment": "wow"}), bob)
	req.SetPathValue("storyId", "s1")
	rec = httptest.NewRecorder()
	handler.Comment(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}
	var commented struct {
		Comments []models.StoryComment `json:"comments"`
	}
	decodeBody(t, rec, &commented)
	if len(commented.Comments) != 1 || commented.Comments[0].Text != "wow" {
		t.Fatalf("unexpected comments %+v", commented.Comments)
	}

	req = httptest.NewRequest(http.MethodGet, "/stories/s1/likes/0", nil)
	req.SetPathValue("storyId", "s1")
	req.SetPathValue("contentIndex", "0")
	rec = httptest.NewRecorder()
	handler.Likes(rec, asUser(req, alice))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stories/s1/comments/x", nil)
	req.SetPathValue("storyId", "s1")
	req.SetPathValue("contentIndex", "x")
	rec = httptest.NewRecorder()
	handler.Comments(rec, asUser(req, alice))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestStoryHandlerEngagementNotifiesOwner(t *testing.T) {
	handler, store, _ := newStoryFixture()
	notifier := &recordingNotifier{}
	handler.Notifier = notifier
	store.stories["s1"] = models.Story{
		ID:        "s1",
		UserID:    "alice",
		ExpiresAt: fixedNow.Add(time.Hour),
		Content:   []models.StoryItem{{Type: models.MediaImage, URL: "u", Likes: []string{}, Comments: []models.StoryComment{}}},
	}

	post := func(path string, user models.User, body map[string]any, serve http.HandlerFunc, want int) {
		req := asUser(jsonRequest(t, http.MethodPost, path, body), user)
		req.SetPathValue("storyId", "s1")
		rec := httptest.NewRecorder()
		serve(rec, req)
		if rec.Code != want {
			t.Fatalf("%s: expected status %d got %d", path, want, rec.Code)
		}
	}

	post("/stories/s1/like", bob, map[string]any{"contentIndex": 0}, handler.Like, http.StatusOK)
	post("/stories/s1/like", bob, map[string]any{"contentIndex": 0}, handler.Like, http.StatusOK)
	post("/stories/s1/like", alice, map[string]any{"contentIndex": 0}, handler.Like, http.StatusOK)
	post("/stories/s1/comment", bob, map[string]any{"contentIndex": 0, "comment": "wow"}, handler.Comment, http.StatusCreated)
	post("/stories/s1/comment", alice, map[string]any{"contentIndex": 0, "comment": "thanks"}, handler.Comment, http.StatusCreated)
	post("/stories/s1/comment", bob, map[string]any{"contentIndex": 0, "comment": "  "}, handler.Comment, http.StatusBadRequest)

	want := []sentNotification{
		{recipient: "alice", sender: "bob", kind: notifications.KindStoryLike},
		{recipient: "alice", sender: "bob", kind: notifications.KindStoryComment},
	}
	if !reflect.DeepEqual(notifier.sent, want) {
		t.Fatalf("unexpected notifications\n got %+v\nwant %+v", notifier.sent, want)
	}
}

func TestStoryHandlerLikeRequiresIndex(t *testing.T) {
	handler, _, _ := newStoryFixture()
	req := asUser(jsonRequest(t, http.MethodPost, "/stories/s1/like", map[string]string{}), bob)
	req.SetPathValue("storyId", "s1")
	rec := httptest.NewRecorder()
	handler.Like(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
	if got := errorMessage(t, rec); got != "contentIndex is required" {
		t.Fatalf("unexpected error %q", got)
	}
}
