package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/credits"
	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "Alice@Example.com")

	dup := newTestUser("alice@example.com")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != user.ID || fetched.Email != "alice@example.com" || fetched.Password != user.Password {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	updated := fetched
	updated.FirstName = "Alicia"
	updated.Profession = "Engineer"
	updated.UpdatedAt = time.Now().UTC().Add(time.Minute)
	result, err := repo.UpdateProfile(ctx, updated)
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if result.FirstName != "Alicia" || result.Profession != "Engineer" || result.Email != fetched.Email {
		t.Fatalf("expected profile fields to persist, got %+v", result)
	}

	if err := repo.MarkVerified(ctx, user.ID, time.Now()); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	if err := repo.SetPassword(ctx, user.ID, "rotated-hash", time.Now()); err != nil {
		t.Fatalf("set password: %v", err)
	}
	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !fetched.Verified || fetched.Password != "rotated-hash" {
		t.Fatalf("expected verified user with rotated password, got %+v", fetched)
	}

	missing := newTestUser("missing@example.com")
	if _, err := repo.UpdateProfile(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
	if err := repo.MarkVerified(ctx, missing.ID, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound verifying missing user, got %v", err)
	}
}

func TestPostgresUserRepository_SearchSuggestAndViews(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	friends := NewPostgresFriendRepository(testPool)

	viewer := createTestUser(t, users, "viewer@example.com")
	friend := createTestUser(t, users, "friend@example.com")
	pending := createTestUser(t, users, "pending@example.com")
	stranger := createTestUser(t, users, "stranger_100%@example.com")

	befriend(t, friends, viewer.ID, friend.ID)
	if err := friends.CreateRequest(ctx, newRequest(viewer.ID, pending.ID)); err != nil {
		t.Fatalf("create pending request: %v", err)
	}

	suggested, err := users.Suggest(ctx, viewer.ID, 15)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggested) != 1 || suggested[0].ID != stranger.ID {
		t.Fatalf("expected only the stranger to be suggested, got %+v", suggested)
	}

	found, err := users.Search(ctx, "100%", viewer.ID, 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].ID != stranger.ID {
		t.Fatalf("expected literal percent match, got %+v", found)
	}

	found, err = users.Search(ctx, "VIEWER", viewer.ID, 20)
	if err != nil {
		t.Fatalf("search self: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected caller to be excluded, got %+v", found)
	}

	for i := 0; i < 2; i++ {
		if err := users.RecordProfileView(ctx, viewer.ID, stranger.ID, time.Now()); err != nil {
			t.Fatalf("record profile view: %v", err)
		}
	}
	profile, err := users.FindProfile(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("find profile: %v", err)
	}
	if len(profile.Friends) != 1 || profile.Friends[0] != friend.ID {
		t.Fatalf("unexpected friends %v", profile.Friends)
	}
	if len(profile.Views) != 1 || profile.Views[0] != stranger.ID {
		t.Fatalf("expected a single deduplicated view, got %v", profile.Views)
	}
}

func TestPostgresCreditStore_ResetAndConsume(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	user := newTestUser("credits@example.com")
	user.DailyPostCredits = 0
	user.LastCreditReset = time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	store := NewPostgresCreditStore(testPool)
	ledger := credits.NewLedger(store, credits.Policy{DailyAllowance: 5, Cost: 5, Location: time.UTC})

	sameDay := time.Date(2024, 5, 1, 23, 59, 30, 0, time.UTC)
	ledger.Now = func() time.Time { return sameDay }
	if _, err := ledger.Consume(ctx, user.ID, 5); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits on the same day, got %v", err)
	}

	nextDay := time.Date(2024, 5, 2, 0, 0, 30, 0, time.UTC)
	ledger.Now = func() time.Time { return nextDay }
	remaining, err := ledger.Consume(ctx, user.ID, 5)
	if err != nil {
		t.Fatalf("consume after rollover: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining got %d", remaining)
	}

	balance, err := ledger.AddPurchased(ctx, user.ID, 25)
	if err != nil {
		t.Fatalf("add purchased: %v", err)
	}
	if balance != 25 {
		t.Fatalf("expected balance 25 got %d", balance)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, user.ID, 5); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful charges, got %d", succeeded)
	}
	balance, err = store.Balance(ctx, user.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected drained balance, got %d", balance)
	}

	if _, err := store.Consume(ctx, uuid.NewString(), 5); !errors.Is(err, credits.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser got %v", err)
	}
}

func TestPostgresFriendRepository_RequestLifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")
	carol := createTestUser(t, users, "carol@example.com")

	repo := NewPostgresFriendRepository(testPool)

	if err := repo.CreateRequest(ctx, newRequest(alice.ID, alice.ID)); !errors.Is(err, ErrSelfRequest) {
		t.Fatalf("expected ErrSelfRequest got %v", err)
	}

	request := newRequest(alice.ID, bob.ID)
	if err := repo.CreateRequest(ctx, request); err != nil {
		t.Fatalf("create friend request: %v", err)
	}
	if err := repo.CreateRequest(ctx, newRequest(bob.ID, alice.ID)); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest for reverse direction, got %v", err)
	}
	if err := repo.CreateRequest(ctx, newRequest(alice.ID, uuid.NewString())); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown addressee, got %v", err)
	}

	pending, err := repo.ListPendingFor(ctx, bob.ID, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].From == nil || pending[0].From.ID != alice.ID {
		t.Fatalf("unexpected pending requests %+v", pending)
	}

	if _, err := repo.Respond(ctx, request.ID, carol.ID, models.FriendRequestAccepted, time.Now()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a third party, got %v", err)
	}

	resolved, err := repo.Respond(ctx, request.ID, bob.ID, models.FriendRequestAccepted, time.Now())
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if resolved.Status != models.FriendRequestAccepted || resolved.RespondedAt == nil {
		t.Fatalf("unexpected resolved request %+v", resolved)
	}

	if _, err := repo.Respond(ctx, request.ID, bob.ID, models.FriendRequestDeclined, time.Now()); !errors.Is(err, ErrRequestResolved) {
		t.Fatalf("expected ErrRequestResolved got %v", err)
	}
	if _, err := repo.Respond(ctx, uuid.NewString(), bob.ID, models.FriendRequestAccepted, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown request, got %v", err)
	}

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		ok, err := repo.AreFriends(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("are friends: %v", err)
		}
		if !ok {
			t.Fatalf("expected %s and %s to be friends", pair[0], pair[1])
		}
	}

	if err := repo.CreateRequest(ctx, newRequest(bob.ID, alice.ID)); !errors.Is(err, ErrAlreadyFriends) {
		t.Fatalf("expected ErrAlreadyFriends got %v", err)
	}

	declined := newRequest(carol.ID, alice.ID)
	if err := repo.CreateRequest(ctx, declined); err != nil {
		t.Fatalf("create second request: %v", err)
	}
	if _, err := repo.Respond(ctx, declined.ID, alice.ID, models.FriendRequestDeclined, time.Now()); err != nil {
		t.Fatalf("decline: %v", err)
	}
	list, err := repo.ListFriends(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(list) != 1 || list[0].ID != bob.ID {
		t.Fatalf("expected only bob as friend, got %+v", list)
	}
}

func TestPostgresPostRepository_CreateWithCredits(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	author := newTestUser("author@example.com")
	author.DailyPostCredits = 5
	author.LastCreditReset = time.Now().UTC()
	if err := users.Create(ctx, author); err != nil {
		t.Fatalf("create user: %v", err)
	}

	repo := NewPostgresPostRepository(testPool)
	ledger := credits.NewLedger(NewPostgresCreditStore(testPool), credits.Policy{DailyAllowance: 5, Cost: 5})

	post, remaining, err := repo.CreateWithCredits(ctx, newPost(author.ID, "hello world"), ledger.Charge(5))
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if remaining != 0 || post.Author == nil || post.Author.ID != author.ID || len(post.Likes) != 0 {
		t.Fatalf("unexpected post %+v remaining %d", post, remaining)
	}

	rejected := newPost(author.ID, "second")
	if _, _, err := repo.CreateWithCredits(ctx, rejected, ledger.Charge(5)); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits got %v", err)
	}
	if _, err := repo.FindByID(ctx, rejected.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected the rejected post to be rolled back, got %v", err)
	}

	if _, _, err := repo.CreateWithCredits(ctx, newPost(uuid.NewString(), "ghost"), ledger.Charge(5)); !errors.Is(err, credits.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser got %v", err)
	}
}

func TestPostgresPostRepository_Engagement(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	author := createTestUser(t, users, "author@example.com")
	fan := createTestUser(t, users, "fan@example.com")

	repo := NewPostgresPostRepository(testPool)
	post := insertPost(t, repo, author.ID, "Sunset at the pier", time.Now().UTC().Add(-time.Hour))
	insertPost(t, repo, fan.ID, "Coffee", time.Now().UTC())

	liked, ok, err := repo.ToggleLike(ctx, post.ID, fan.ID)
	if err != nil || !ok || len(liked.Likes) != 1 {
		t.Fatalf("expected first toggle to like, got %+v %v %v", liked.Likes, ok, err)
	}
	unliked, ok, err := repo.ToggleLike(ctx, post.ID, fan.ID)
	if err != nil || ok || len(unliked.Likes) != 0 {
		t.Fatalf("expected second toggle to unlike, got %+v %v %v", unliked.Likes, ok, err)
	}
	if _, _, err := repo.ToggleLike(ctx, uuid.NewString(), fan.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound liking a missing post, got %v", err)
	}

	comment, err := repo.AddComment(ctx, models.Comment{
		ID: uuid.NewString(), PostID: post.ID, UserID: fan.ID, Comment: "Beautiful", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if comment.Author == nil || comment.Author.ID != fan.ID {
		t.Fatalf("expected comment author to be populated, got %+v", comment)
	}

	reply := models.Reply{ID: uuid.NewString(), CommentID: comment.ID, UserID: author.ID, Comment: "Thanks", ReplyAt: time.Now().UTC()}
	withReply, err := repo.AddReply(ctx, reply)
	if err != nil {
		t.Fatalf("add reply: %v", err)
	}
	if len(withReply.Replies) != 1 || withReply.Replies[0].Comment != "Thanks" {
		t.Fatalf("unexpected replies %+v", withReply.Replies)
	}

	if c, ok, err := repo.ToggleCommentLike(ctx, comment.ID, author.ID); err != nil || !ok || len(c.Likes) != 1 {
		t.Fatalf("toggle comment like: %+v %v %v", c.Likes, ok, err)
	}
	if c, ok, err := repo.ToggleReplyLike(ctx, comment.ID, reply.ID, fan.ID); err != nil || !ok || len(c.Replies[0].Likes) != 1 {
		t.Fatalf("toggle reply like: %+v %v %v", c, ok, err)
	}
	if _, _, err := repo.ToggleReplyLike(ctx, uuid.NewString(), reply.ID, fan.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a reply under another comment, got %v", err)
	}

	full, err := repo.FindByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("find post: %v", err)
	}
	if len(full.Comments) != 1 || len(full.Comments[0].Replies) != 1 {
		t.Fatalf("expected nested comment and reply, got %+v", full.Comments)
	}

	feed, total, err := repo.ListFeed(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("list feed: %v", err)
	}
	if total != 2 || len(feed) != 2 || feed[0].UserID != fan.ID {
		t.Fatalf("expected newest-first feed of 2, got total %d %+v", total, feed)
	}
	feed, total, err = repo.ListFeed(ctx, "sunset", 0, 10)
	if err != nil {
		t.Fatalf("search feed: %v", err)
	}
	if total != 1 || len(feed) != 1 || feed[0].ID != post.ID {
		t.Fatalf("expected only the matching post, got total %d %+v", total, feed)
	}

	if err := repo.Delete(ctx, post.ID, fan.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden deleting another user's post, got %v", err)
	}
	if err := repo.Delete(ctx, post.ID, author.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindComment(ctx, comment.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected comments to be removed with the post, got %v", err)
	}
}

func TestPostgresPostRepository_ConcurrentLikeToggles(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	author := createTestUser(t, users, "author@example.com")
	fan := createTestUser(t, users, "fan@example.com")

	repo := NewPostgresPostRepository(testPool)
	post := insertPost(t, repo, author.ID, "Race me", time.Now().UTC())

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := repo.ToggleLike(ctx, post.ID, fan.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent toggle failed: %v", err)
	}

	current, err := repo.FindByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("find post: %v", err)
	}
	if len(current.Likes) > 1 {
		t.Fatalf("expected at most one like per user, got %v", current.Likes)
	}
}

func TestPostgresStoryRepository_Visibility(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	friends := NewPostgresFriendRepository(testPool)
	owner := createTestUser(t, users, "owner@example.com")
	friend := createTestUser(t, users, "friend@example.com")
	stranger := createTestUser(t, users, "stranger@example.com")
	befriend(t, friends, owner.ID, friend.ID)

	repo := NewPostgresStoryRepository(testPool)
	now := time.Now().UTC()

	story, err := repo.Create(ctx, models.Story{
		ID:        uuid.NewString(),
		UserID:    owner.ID,
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
		Content: []models.StoryItem{
			{Type: models.MediaImage, URL: "https://cdn.example.com/a.jpg", DurationMS: 5000},
			{Type: models.MediaVideo, URL: "https://cdn.example.com/b.mp4", DurationMS: 12000},
		},
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if len(story.Content) != 2 || story.Content[1].DurationMS != 12000 {
		t.Fatalf("unexpected story content %+v", story.Content)
	}

	expired, err := repo.Create(ctx, models.Story{
		ID: uuid.NewString(), UserID: owner.ID, ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-25 * time.Hour),
		Content: []models.StoryItem{{Type: models.MediaImage, URL: "https://cdn.example.com/old.jpg"}},
	})
	if err != nil {
		t.Fatalf("create expired story: %v", err)
	}

	visible, err := repo.ListVisible(ctx, friend.ID, now)
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != story.ID {
		t.Fatalf("expected the friend to see only the live story, got %+v", visible)
	}
	visible, err = repo.ListVisible(ctx, stranger.ID, now)
	if err != nil {
		t.Fatalf("list visible for stranger: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("expected strangers to see nothing, got %+v", visible)
	}

	updated, liked, err := repo.ToggleItemLike(ctx, story.ID, 1, friend.ID, now)
	if err != nil || !liked || len(updated.Content[1].Likes) != 1 || len(updated.Content[0].Likes) != 0 {
		t.Fatalf("toggle item like: %+v %v %v", updated.Content, liked, err)
	}
	if _, _, err := repo.ToggleItemLike(ctx, story.ID, 2, friend.ID, now); !errors.Is(err, ErrInvalidContentIndex) {
		t.Fatalf("expected ErrInvalidContentIndex got %v", err)
	}
	if _, _, err := repo.ToggleItemLike(ctx, story.ID, 0, stranger.ID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected strangers to get ErrNotFound, got %v", err)
	}
	if _, _, err := repo.ToggleItemLike(ctx, expired.ID, 0, owner.ID, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired stories to be hidden, got %v", err)
	}

	comment := models.StoryComment{ID: uuid.NewString(), UserID: friend.ID, Text: "nice", CreatedAt: now}
	if _, err := repo.AddItemComment(ctx, story.ID, 0, comment, now); err != nil {
		t.Fatalf("add item comment: %v", err)
	}
	comments, err := repo.ItemComments(ctx, story.ID, 0, owner.ID, now)
	if err != nil {
		t.Fatalf("item comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Author == nil || comments[0].Author.ID != friend.ID {
		t.Fatalf("unexpected comments %+v", comments)
	}
	likes, err := repo.ItemLikes(ctx, story.ID, 1, owner.ID, now)
	if err != nil {
		t.Fatalf("item likes: %v", err)
	}
	if len(likes) != 1 || likes[0].ID != friend.ID {
		t.Fatalf("unexpected likes %+v", likes)
	}

	purged, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged story got %d", purged)
	}
}

func TestPostgresConversationRepository_Messages(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")
	carol := createTestUser(t, users, "carol@example.com")

	repo := NewPostgresConversationRepository(testPool)

	if _, _, err := repo.FindOrCreate(ctx, uuid.NewString(), alice.ID, alice.ID, time.Now()); !errors.Is(err, ErrInvalidParticipants) {
		t.Fatalf("expected ErrInvalidParticipants got %v", err)
	}
	if _, _, err := repo.FindOrCreate(ctx, uuid.NewString(), alice.ID, uuid.NewString(), time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown participant, got %v", err)
	}

	conversation, created, err := repo.FindOrCreate(ctx, uuid.NewString(), alice.ID, bob.ID, time.Now())
	if err != nil || !created {
		t.Fatalf("create conversation: %v created=%v", err, created)
	}
	again, created, err := repo.FindOrCreate(ctx, uuid.NewString(), bob.ID, alice.ID, time.Now())
	if err != nil || created || again.ID != conversation.ID {
		t.Fatalf("expected the existing conversation, got %+v created=%v err=%v", again, created, err)
	}

	for _, tc := range []struct {
		user string
		want bool
	}{{alice.ID, true}, {bob.ID, true}, {carol.ID, false}} {
		ok, err := repo.IsParticipant(ctx, conversation.ID, tc.user)
		if err != nil {
			t.Fatalf("is participant: %v", err)
		}
		if ok != tc.want {
			t.Fatalf("IsParticipant(%s) = %v want %v", tc.user, ok, tc.want)
		}
	}

	base := time.Now().UTC()
	for i, sender := range []string{alice.ID, bob.ID} {
		_, err := repo.AddMessage(ctx, models.Message{
			ID: uuid.NewString(), ConversationID: conversation.ID, SenderID: sender,
			Content: fmt.Sprintf("message %d", i), MessageType: models.MessageText, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	messages, err := repo.ListMessages(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "message 0" || messages[1].Sender.ID != bob.ID {
		t.Fatalf("unexpected messages %+v", messages)
	}

	list, err := repo.ListForUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 1 || len(list[0].Participants) != 2 {
		t.Fatalf("unexpected conversations %+v", list)
	}
}

func TestPostgresNotificationStore_Feed(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	recipient := createTestUser(t, users, "recipient@example.com")
	sender := createTestUser(t, users, "sender@example.com")

	store := NewPostgresNotificationStore(testPool)
	base := time.Now().UTC().Add(-40 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		err := store.Create(ctx, models.Notification{
			ID: uuid.NewString(), RecipientID: recipient.ID, SenderID: sender.ID, Type: "friend_request",
			CreatedAt: base.Add(time.Duration(i) * 15 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	page, total, err := store.ListForRecipient(ctx, recipient.ID, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(page) != 2 || !page[0].CreatedAt.After(page[1].CreatedAt) || page[0].Sender == nil {
		t.Fatalf("unexpected page total=%d %+v", total, page)
	}

	if err := store.MarkRead(ctx, page[0].ID, sender.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another recipient, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.MarkRead(ctx, page[0].ID, recipient.ID); err != nil {
			t.Fatalf("mark read: %v", err)
		}
	}
	unread, err := store.CountUnread(ctx, recipient.ID)
	if err != nil || unread != 2 {
		t.Fatalf("expected 2 unread got %d (%v)", unread, err)
	}
	if n, err := store.MarkAllRead(ctx, recipient.ID); err != nil || n != 2 {
		t.Fatalf("mark all read: %d %v", n, err)
	}

	deleted, err := store.DeleteOlderThan(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 swept notification got %d", deleted)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, userRepo, "owner@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}

	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires.UTC(), time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}

	stale := auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: time.Now().UTC().Add(-time.Hour)}
	if err := store.Save(ctx, stale); err != nil {
		t.Fatalf("save stale session: %v", err)
	}
	purged, err := store.DeleteExpired(ctx, time.Now())
	if err != nil || purged != 1 {
		t.Fatalf("expected 1 purged session, got %d (%v)", purged, err)
	}
}

func TestPostgresSessionStore_HashesTokensAndRevokesPerUser(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	owner := createTestUser(t, userRepo, "owner@example.com")
	other := createTestUser(t, userRepo, "other@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(time.Hour)
	tokens := []auth.Session{
		{RefreshToken: uuid.NewString(), UserID: owner.ID, ExpiresAt: expires},
		{RefreshToken: uuid.NewString(), UserID: owner.ID, ExpiresAt: expires},
		{RefreshToken: uuid.NewString(), UserID: other.ID, ExpiresAt: expires},
	}
	for _, session := range tokens {
		if err := store.Save(ctx, session); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	var plain int
	if err := testPool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE refresh_token = $1`, tokens[0].RefreshToken).Scan(&plain); err != nil {
		t.Fatalf("count plaintext tokens: %v", err)
	}
	if plain != 0 {
		t.Fatal("expected refresh tokens to be stored as digests")
	}

	revoked, err := store.DeleteForUser(ctx, owner.ID)
	if err != nil || revoked != 2 {
		t.Fatalf("expected 2 revoked sessions, got %d (%v)", revoked, err)
	}
	if _, err := store.Find(ctx, tokens[2].RefreshToken); err != nil {
		t.Fatalf("expected other user's session to survive: %v", err)
	}

	taken, err := store.Take(ctx, tokens[2].RefreshToken)
	if err != nil || taken.UserID != other.ID {
		t.Fatalf("take session: %+v (%v)", taken, err)
	}
	if _, err := store.Take(ctx, tokens[2].RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected token to be single use, got %v", err)
	}
}

func TestPostgresTokenRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	user := createTestUser(t, users, "token@example.com")
	repo := NewPostgresTokenRepository(testPool)

	now := time.Now().UTC()
	first := models.OneTimeToken{UserID: user.ID, Purpose: models.TokenPasswordReset, TokenHash: "one", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save token: %v", err)
	}
	second := first
	second.TokenHash = "two"
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("replace token: %v", err)
	}

	loaded, err := repo.Find(ctx, user.ID, models.TokenPasswordReset)
	if err != nil {
		t.Fatalf("find token: %v", err)
	}
	if loaded.TokenHash != "two" {
		t.Fatalf("expected the replacement token, got %q", loaded.TokenHash)
	}

	if err := repo.Delete(ctx, user.ID, models.TokenPasswordReset); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if _, err := repo.Find(ctx, user.ID, models.TokenPasswordReset); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	expired := models.OneTimeToken{UserID: user.ID, Purpose: models.TokenEmailVerification, TokenHash: "x", ExpiresAt: now.Add(-time.Minute), CreatedAt: now}
	if err := repo.Save(ctx, expired); err != nil {
		t.Fatalf("save expired token: %v", err)
	}
	if n, err := repo.DeleteExpired(ctx, now); err != nil || n != 1 {
		t.Fatalf("expected 1 expired token removed, got %d (%v)", n, err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrations(os.DirFS(filepath.Join("..", "..", "migrations")))
	if err != nil {
		return err
	}

	migrator, err := db.NewMigrator(ctx, pool)
	if err != nil {
		return err
	}
	defer migrator.Close()

	_, err = migrator.Up(ctx, migrations, nil)
	return err
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        TRUNCATE TABLE notifications, messages, conversations, story_item_comments, story_item_likes,
            story_items, stories, reply_likes, comment_replies, comment_likes, comments, post_likes, posts,
            friend_requests, friendships, profile_views, one_time_tokens, sessions, users CASCADE
    `); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func newTestUser(email string) models.User {
	now := time.Now().UTC()
	return models.User{
		ID:               uuid.NewString(),
		FirstName:        "Test",
		LastName:         "User",
		Email:            email,
		Password:         "password-hash",
		DailyPostCredits: 5,
		LastCreditReset:  now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := newTestUser(email)
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func newRequest(from, to string) models.FriendRequest {
	return models.FriendRequest{
		ID:          uuid.NewString(),
		RequestFrom: from,
		RequestTo:   to,
		Status:      models.FriendRequestPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func befriend(t *testing.T, repo *PostgresFriendRepository, a, b string) {
	t.Helper()
	request := newRequest(a, b)
	if err := repo.CreateRequest(context.Background(), request); err != nil {
		t.Fatalf("create friend request: %v", err)
	}
	if _, err := repo.Respond(context.Background(), request.ID, b, models.FriendRequestAccepted, time.Now()); err != nil {
		t.Fatalf("accept friend request: %v", err)
	}
}

func newPost(userID, description string) models.Post {
	now := time.Now().UTC()
	return models.Post{ID: uuid.NewString(), UserID: userID, Description: description, CreatedAt: now, UpdatedAt: now}
}

func insertPost(t *testing.T, repo *PostgresPostRepository, userID, description string, at time.Time) models.Post {
	t.Helper()
	post := newPost(userID, description)
	post.CreatedAt = at
	// A zero charge keeps these fixtures independent of the credit rules.
	charge := credits.Charge{Amount: 0, Allowance: 5, Window: credits.Policy{}.Window(time.Now()), Now: time.Now().UTC()}
	created, _, err := repo.CreateWithCredits(context.Background(), post, charge)
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return created
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
