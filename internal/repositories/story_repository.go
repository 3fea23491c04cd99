package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

// PostgresStoryRepository persists stories. Expiry is enforced on every read; DeleteExpired
// reclaims storage.
type PostgresStoryRepository struct {
	pool db.Pool
}

// NewPostgresStoryRepository constructs a story repository backed by PostgreSQL.
func NewPostgresStoryRepository(pool db.Pool) *PostgresStoryRepository {
	return &PostgresStoryRepository{pool: pool}
}

// Create stores a story and its items in order.
func (r *PostgresStoryRepository) Create(ctx context.Context, story models.Story) (models.Story, error) {
	var created models.Story
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO stories (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)
        `, story.ID, story.UserID, story.ExpiresAt.UTC(), story.CreatedAt.UTC())
		if err != nil {
			if translate(err) == ErrNotFound {
				return ErrNotFound
			}
			return fmt.Errorf("insert story: %w", err)
		}

		for i, item := range story.Content {
			if _, err := tx.Exec(ctx, `
                INSERT INTO story_items (story_id, position, type, url, description, duration_ms)
                VALUES ($1, $2, $3, $4, $5, $6)
            `, story.ID, i, item.Type, item.URL, item.Description, item.DurationMS); err != nil {
				return fmt.Errorf("insert story item %d: %w", i, err)
			}
		}

		stories, err := loadStories(ctx, tx, `WHERE s.id = $1`, story.ID)
		if err != nil {
			return err
		}
		if len(stories) == 0 {
			return ErrNotFound
		}
		created = stories[0]
		return nil
	})
	if err != nil {
		return models.Story{}, err
	}
	return created, nil
}

// ListVisible returns the unexpired stories of viewerID and their friends, newest first.
func (r *PostgresStoryRepository) ListVisible(ctx context.Context, viewerID string, now time.Time) ([]models.Story, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return loadStories(ctx, conn, `
        WHERE s.expires_at > $2
          AND (s.user_id = $1 OR EXISTS (
              SELECT 1 FROM friendships f WHERE f.user_id = $1 AND f.friend_id = s.user_id
          ))
    `, viewerID, now.UTC())
}

// ToggleItemLike flips viewerID's like on the item at index and returns the updated story.
func (r *PostgresStoryRepository) ToggleItemLike(ctx context.Context, storyID string, index int, viewerID string, now time.Time) (models.Story, bool, error) {
	var (
		story models.Story
		liked bool
	)
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if err := checkStoryItem(ctx, tx, storyID, index, viewerID, now); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
            DELETE FROM story_item_likes WHERE story_id = $1 AND position = $2 AND user_id = $3
        `, storyID, index, viewerID)
		if err != nil {
			return fmt.Errorf("unlike story item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := tx.Exec(ctx, `
                INSERT INTO story_item_likes (story_id, position, user_id) VALUES ($1, $2, $3)
                ON CONFLICT DO NOTHING
            `, storyID, index, viewerID); err != nil {
				return fmt.Errorf("like story item: %w", err)
			}
			liked = true
		}

		story, err = findStory(ctx, tx, storyID)
		return err
	})
	if err != nil {
		return models.Story{}, false, err
	}
	return story, liked, nil
}

// AddItemComment appends a comment to the item at index and returns the updated story.
func (r *PostgresStoryRepository) AddItemComment(ctx context.Context, storyID string, index int, comment models.StoryComment, now time.Time) (models.Story, error) {
	var story models.Story
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if err := checkStoryItem(ctx, tx, storyID, index, comment.UserID, now); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO story_item_comments (id, story_id, position, user_id, body, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, comment.ID, storyID, index, comment.UserID, comment.Text, comment.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert story comment: %w", err)
		}

		var err error
		story, err = findStory(ctx, tx, storyID)
		return err
	})
	if err != nil {
		return models.Story{}, err
	}
	return story, nil
}

// ItemLikes lists the users who liked the item at index.
func (r *PostgresStoryRepository) ItemLikes(ctx context.Context, storyID string, index int, viewerID string, now time.Time) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := checkStoryItem(ctx, conn, storyID, index, viewerID, now); err != nil {
		return nil, err
	}
	return querySummaries(ctx, conn, "list story likes", `
        SELECT `+summaryColumns+`
        FROM story_item_likes l
        JOIN users u ON u.id = l.user_id
        WHERE l.story_id = $1 AND l.position = $2
        ORDER BY l.created_at, u.id
    `, storyID, index)
}

// ItemComments lists the comments on the item at index in posting order.
func (r *PostgresStoryRepository) ItemComments(ctx context.Context, storyID string, index int, viewerID string, now time.Time) ([]models.StoryComment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := checkStoryItem(ctx, conn, storyID, index, viewerID, now); err != nil {
		return nil, err
	}
	byItem, err := loadStoryComments(ctx, conn, []string{storyID})
	if err != nil {
		return nil, err
	}
	comments := byItem[itemKey{storyID: storyID, position: index}]
	if comments == nil {
		comments = []models.StoryComment{}
	}
	return comments, nil
}

// DeleteExpired removes stories whose expiry is at or before now.
func (r *PostgresStoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM stories WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired stories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// checkStoryItem hides stories that are expired or not visible to viewerID behind ErrNotFound.
func checkStoryItem(ctx context.Context, q querier, storyID string, index int, viewerID string, now time.Time) error {
	var (
		ownerID   string
		expiresAt time.Time
		items     int
		friends   bool
	)
	err := q.QueryRow(ctx, `
        SELECT s.user_id, s.expires_at,
            (SELECT count(*) FROM story_items i WHERE i.story_id = s.id),
            EXISTS (SELECT 1 FROM friendships f WHERE f.user_id = $2 AND f.friend_id = s.user_id)
        FROM stories s
        WHERE s.id = $1
    `, storyID, viewerID).Scan(&ownerID, &expiresAt, &items, &friends)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("select story: %w", err)
	}
	if !expiresAt.After(now) || (ownerID != viewerID && !friends) {
		return ErrNotFound
	}
	if index < 0 || index >= items {
		return ErrInvalidContentIndex
	}
	return nil
}

func findStory(ctx context.Context, q querier, id string) (models.Story, error) {
	stories, err := loadStories(ctx, q, `WHERE s.id = $1`, id)
	if err != nil {
		return models.Story{}, err
	}
	if len(stories) == 0 {
		return models.Story{}, ErrNotFound
	}
	return stories[0], nil
}

type itemKey struct {
	storyID  string
	position int
}

// loadStories selects stories matching where and assembles their items, likes and comments.
func loadStories(ctx context.Context, q querier, where string, args ...any) ([]models.Story, error) {
	rows, err := q.Query(ctx, `
        SELECT s.id, s.user_id, s.expires_at, s.created_at, `+summaryColumns+`
        FROM stories s
        JOIN users u ON u.id = s.user_id
        `+where+`
        ORDER BY s.created_at DESC, s.id
    `, args...)
	if err != nil {
		return nil, fmt.Errorf("select stories: %w", err)
	}
	defer rows.Close()

	stories := []models.Story{}
	index := map[string]int{}
	for rows.Next() {
		var (
			story  models.Story
			author models.UserSummary
		)
		if err := rows.Scan(&story.ID, &story.UserID, &story.ExpiresAt, &story.CreatedAt,
			&author.ID, &author.FirstName, &author.LastName, &author.Location, &author.ProfileURL, &author.Profession); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		story.Author = &author
		story.Content = []models.StoryItem{}
		story.ExpiresAt = story.ExpiresAt.UTC()
		story.CreatedAt = story.CreatedAt.UTC()
		index[story.ID] = len(stories)
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	rows.Close()
	if len(stories) == 0 {
		return stories, nil
	}

	ids := make([]string, len(stories))
	for i, s := range stories {
		ids[i] = s.ID
	}

	itemRows, err := q.Query(ctx, `
        SELECT i.story_id, i.type, i.url, i.description, i.duration_ms,
            ARRAY(SELECT l.user_id FROM story_item_likes l
                  WHERE l.story_id = i.story_id AND l.position = i.position
                  ORDER BY l.created_at, l.user_id)
        FROM story_items i
        WHERE i.story_id = ANY($1)
        ORDER BY i.story_id, i.position
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("select story items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			storyID string
			item    models.StoryItem
		)
		if err := itemRows.Scan(&storyID, &item.Type, &item.URL, &item.Description, &item.DurationMS, &item.Likes); err != nil {
			return nil, fmt.Errorf("scan story item: %w", err)
		}
		item.Likes = emptyIfNil(item.Likes)
		item.Comments = []models.StoryComment{}
		i := index[storyID]
		stories[i].Content = append(stories[i].Content, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story items: %w", err)
	}
	itemRows.Close()

	comments, err := loadStoryComments(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for key, list := range comments {
		i, ok := index[key.storyID]
		if !ok || key.position >= len(stories[i].Content) {
			continue
		}
		stories[i].Content[key.position].Comments = list
	}

	return stories, nil
}

func loadStoryComments(ctx context.Context, q querier, storyIDs []string) (map[itemKey][]models.StoryComment, error) {
	rows, err := q.Query(ctx, `
        SELECT c.id, c.story_id, c.position, c.user_id, c.body, c.created_at, `+summaryColumns+`
        FROM story_item_comments c
        JOIN users u ON u.id = c.user_id
        WHERE c.story_id = ANY($1)
        ORDER BY c.created_at, c.id
    `, storyIDs)
	if err != nil {
		return nil, fmt.Errorf("select story comments: %w", err)
	}
	defer rows.Close()

	byItem := map[itemKey][]models.StoryComment{}
	for rows.Next() {
		var (
			key     itemKey
			comment models.StoryComment
			author  models.UserSummary
		)
		if err := rows.Scan(&comment.ID, &key.storyID, &key.position, &comment.UserID, &comment.Text, &comment.CreatedAt,
			&author.ID, &author.FirstName, &author.LastName, &author.Location, &author.ProfileURL, &author.Profession); err != nil {
			return nil, fmt.Errorf("scan story comment: %w", err)
		}
		comment.Author = &author
		comment.CreatedAt = comment.CreatedAt.UTC()
		byItem[key] = append(byItem[key], comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story comments: %w", err)
	}
	return byItem, nil
}
