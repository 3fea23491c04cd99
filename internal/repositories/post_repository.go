package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/linkup/backend/internal/credits"
	"github.com/linkup/backend/internal/db"
	"github.com/linkup/backend/internal/models"
)

const postSelect = `
        SELECT p.id, p.user_id, p.description, p.media_url, p.media_type, p.created_at, p.updated_at,
            ` + summaryColumns + `,
            ARRAY(SELECT pl.user_id FROM post_likes pl WHERE pl.post_id = p.id ORDER BY pl.created_at, pl.user_id)
        FROM posts p
        JOIN users u ON u.id = p.user_id`

const commentSelect = `
        SELECT c.id, c.post_id, c.user_id, c.body, c.created_at,
            ` + summaryColumns + `,
            ARRAY(SELECT cl.user_id FROM comment_likes cl WHERE cl.comment_id = c.id ORDER BY cl.created_at, cl.user_id)
        FROM comments c
        JOIN users u ON u.id = c.user_id`

const replySelect = `
        SELECT r.id, r.comment_id, r.user_id, r.body, r.created_at,
            ` + summaryColumns + `,
            ARRAY(SELECT rl.user_id FROM reply_likes rl WHERE rl.reply_id = r.id ORDER BY rl.created_at, rl.user_id)
        FROM comment_replies r
        JOIN users u ON u.id = r.user_id`

// likeTable names a toggle set and the column keying it.
type likeTable struct {
	table  string
	column string
}

var (
	postLikes    = likeTable{table: "post_likes", column: "post_id"}
	commentLikes = likeTable{table: "comment_likes", column: "comment_id"}
	replyLikes   = likeTable{table: "reply_likes", column: "reply_id"}
)

// PostgresPostRepository persists posts and their engagement.
type PostgresPostRepository struct {
	pool db.Pool
}

// NewPostgresPostRepository constructs a post repository backed by PostgreSQL.
func NewPostgresPostRepository(pool db.Pool) *PostgresPostRepository {
	return &PostgresPostRepository{pool: pool}
}

// CreateWithCredits applies the daily reset, charges the author and inserts the post in a single
// transaction. It returns the stored post and the author's remaining balance.
func (r *PostgresPostRepository) CreateWithCredits(ctx context.Context, post models.Post, charge credits.Charge) (models.Post, int, error) {
	var (
		created   models.Post
		remaining int
	)
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := resetIfStale(ctx, tx, post.UserID, charge.Window, charge.Allowance, charge.Now); err != nil {
			return err
		}
		balance, err := consumeCredits(ctx, tx, post.UserID, charge.Amount)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO posts (id, user_id, description, media_url, media_type, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $6)
        `, post.ID, post.UserID, post.Description, post.MediaURL, post.MediaType, post.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert post: %w", err)
		}

		created, err = findPost(ctx, tx, post.ID)
		if err != nil {
			return err
		}
		remaining = balance
		return nil
	})
	if err != nil {
		return models.Post{}, 0, err
	}
	return created, remaining, nil
}

// FindByID fetches a post with its comments, newest first, and their replies.
func (r *PostgresPostRepository) FindByID(ctx context.Context, id string) (models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Post{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	post, err := findPost(ctx, conn, id)
	if err != nil {
		return models.Post{}, err
	}
	byPost, err := loadComments(ctx, conn, []string{id})
	if err != nil {
		return models.Post{}, err
	}
	post.Comments = emptyComments(byPost[id])
	return post, nil
}

// Owner returns the author of a post.
func (r *PostgresPostRepository) Owner(ctx context.Context, postID string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var owner string
	if err := conn.QueryRow(ctx, `SELECT user_id FROM posts WHERE id = $1`, postID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select post owner: %w", err)
	}
	return owner, nil
}

// ListFeed returns a newest-first page of posts whose description matches search, and the total
// number of matching posts. An empty search matches everything.
func (r *PostgresPostRepository) ListFeed(ctx context.Context, search string, offset, limit int) ([]models.Post, int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	pattern := containsPattern(search)
	var total int
	if err := conn.QueryRow(ctx, `
        SELECT count(*) FROM posts p WHERE $1 = '' OR p.description ILIKE $2
    `, search, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	posts, err := queryPosts(ctx, conn, postSelect+`
        WHERE $1 = '' OR p.description ILIKE $2
        ORDER BY p.created_at DESC, p.id
        OFFSET $3 LIMIT $4
    `, search, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	if err := attachComments(ctx, conn, posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// Search matches query against the description and the author's name or profession.
func (r *PostgresPostRepository) Search(ctx context.Context, query string, limit int) ([]models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	posts, err := queryPosts(ctx, conn, postSelect+`
        WHERE p.description ILIKE $1 OR u.first_name ILIKE $1 OR u.last_name ILIKE $1 OR u.profession ILIKE $1
        ORDER BY p.created_at DESC, p.id
        LIMIT $2
    `, containsPattern(query), limit)
	if err != nil {
		return nil, err
	}
	if err := attachComments(ctx, conn, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// ListByUser returns the posts authored by userID, newest first.
func (r *PostgresPostRepository) ListByUser(ctx context.Context, userID string) ([]models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	posts, err := queryPosts(ctx, conn, postSelect+`
        WHERE p.user_id = $1
        ORDER BY p.created_at DESC, p.id
    `, userID)
	if err != nil {
		return nil, err
	}
	if err := attachComments(ctx, conn, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Delete removes a post owned by ownerID together with its engagement.
func (r *PostgresPostRepository) Delete(ctx context.Context, postID, ownerID string) error {
	return db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var owner string
		if err := tx.QueryRow(ctx, `SELECT user_id FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select post owner: %w", err)
		}
		if owner != ownerID {
			return ErrForbidden
		}
		if _, err := tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID); err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
}

// ToggleLike flips userID's like on the post and returns the updated post and whether it is now liked.
func (r *PostgresPostRepository) ToggleLike(ctx context.Context, postID, userID string) (models.Post, bool, error) {
	var (
		post  models.Post
		liked bool
	)
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if err := requireRow(ctx, tx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID); err != nil {
			return err
		}
		var err error
		if liked, err = toggle(ctx, tx, postLikes, postID, userID); err != nil {
			return err
		}
		post, err = findPost(ctx, tx, postID)
		return err
	})
	if err != nil {
		return models.Post{}, false, err
	}
	return post, liked, nil
}

// AddComment stores a comment on a post and returns it.
func (r *PostgresPostRepository) AddComment(ctx context.Context, comment models.Comment) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO comments (id, post_id, user_id, body, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, comment.ID, comment.PostID, comment.UserID, comment.Comment, comment.CreatedAt.UTC())
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	return findComment(ctx, conn, comment.ID)
}

// FindComment fetches a comment with its replies.
func (r *PostgresPostRepository) FindComment(ctx context.Context, id string) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return findComment(ctx, conn, id)
}

// ListComments returns a post's comments, newest first, with their replies.
func (r *PostgresPostRepository) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := requireRow(ctx, conn, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID); err != nil {
		return nil, err
	}
	byPost, err := loadComments(ctx, conn, []string{postID})
	if err != nil {
		return nil, err
	}
	return emptyComments(byPost[postID]), nil
}

// AddReply appends a reply to a comment and returns the comment with all of its replies.
func (r *PostgresPostRepository) AddReply(ctx context.Context, reply models.Reply) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO comment_replies (id, comment_id, user_id, body, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, reply.ID, reply.CommentID, reply.UserID, reply.Comment, reply.ReplyAt.UTC())
	if err != nil {
		if translate(err) == ErrNotFound {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("insert reply: %w", err)
	}

	return findComment(ctx, conn, reply.CommentID)
}

// ToggleCommentLike flips userID's like on a comment.
func (r *PostgresPostRepository) ToggleCommentLike(ctx context.Context, commentID, userID string) (models.Comment, bool, error) {
	return r.toggleOnComment(ctx, commentID, func(ctx context.Context, tx pgx.Tx) (bool, error) {
		if err := requireRow(ctx, tx, `SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1)`, commentID); err != nil {
			return false, err
		}
		return toggle(ctx, tx, commentLikes, commentID, userID)
	})
}

// ToggleReplyLike flips userID's like on a reply belonging to commentID.
func (r *PostgresPostRepository) ToggleReplyLike(ctx context.Context, commentID, replyID, userID string) (models.Comment, bool, error) {
	return r.toggleOnComment(ctx, commentID, func(ctx context.Context, tx pgx.Tx) (bool, error) {
		if err := requireRow(ctx, tx, `
            SELECT EXISTS (SELECT 1 FROM comment_replies WHERE id = $1 AND comment_id = $2)
        `, replyID, commentID); err != nil {
			return false, err
		}
		return toggle(ctx, tx, replyLikes, replyID, userID)
	})
}

func (r *PostgresPostRepository) toggleOnComment(ctx context.Context, commentID string, fn func(context.Context, pgx.Tx) (bool, error)) (models.Comment, bool, error) {
	var (
		comment models.Comment
		liked   bool
	)
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if liked, err = fn(ctx, tx); err != nil {
			return err
		}
		comment, err = findComment(ctx, tx, commentID)
		return err
	})
	if err != nil {
		return models.Comment{}, false, err
	}
	return comment, liked, nil
}

// toggle removes userID from the like set when present and inserts it otherwise. When a
// concurrent toggle inserts the same like first, the conflict is absorbed and both report liked.
func toggle(ctx context.Context, q querier, likes likeTable, key, userID string) (bool, error) {
	tag, err := q.Exec(ctx, `DELETE FROM `+likes.table+` WHERE `+likes.column+` = $1 AND user_id = $2`, key, userID)
	if err != nil {
		return false, fmt.Errorf("unlike %s: %w", likes.table, err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	_, err = q.Exec(ctx, `INSERT INTO `+likes.table+` (`+likes.column+`, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, key, userID)
	if err != nil {
		if translate(err) == ErrNotFound {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("like %s: %w", likes.table, err)
	}
	return true, nil
}

func requireRow(ctx context.Context, q querier, query string, args ...any) error {
	var exists bool
	if err := q.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return fmt.Errorf("check existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func findPost(ctx context.Context, q querier, id string) (models.Post, error) {
	posts, err := queryPosts(ctx, q, postSelect+` WHERE p.id = $1`, id)
	if err != nil {
		return models.Post{}, err
	}
	if len(posts) == 0 {
		return models.Post{}, ErrNotFound
	}
	return posts[0], nil
}

func queryPosts(ctx context.Context, q querier, query string, args ...any) ([]models.Post, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var (
			post   models.Post
			author models.UserSummary
		)
		if err := rows.Scan(&post.ID, &post.UserID, &post.Description, &post.MediaURL, &post.MediaType,
			&post.CreatedAt, &post.UpdatedAt,
			&author.ID, &author.FirstName, &author.LastName, &author.Location, &author.ProfileURL, &author.Profession,
			&post.Likes); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		post.Author = &author
		post.Likes = emptyIfNil(post.Likes)
		post.CreatedAt = post.CreatedAt.UTC()
		post.UpdatedAt = post.UpdatedAt.UTC()
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func attachComments(ctx context.Context, q querier, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	byPost, err := loadComments(ctx, q, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].Comments = emptyComments(byPost[posts[i].ID])
	}
	return nil
}

func findComment(ctx context.Context, q querier, id string) (models.Comment, error) {
	comments, err := queryComments(ctx, q, commentSelect+` WHERE c.id = $1`, id)
	if err != nil {
		return models.Comment{}, err
	}
	if len(comments) == 0 {
		return models.Comment{}, ErrNotFound
	}
	if err := attachReplies(ctx, q, comments); err != nil {
		return models.Comment{}, err
	}
	return comments[0], nil
}

// loadComments returns the comments of every post in postIDs keyed by post id.
func loadComments(ctx context.Context, q querier, postIDs []string) (map[string][]models.Comment, error) {
	comments, err := queryComments(ctx, q, commentSelect+`
        WHERE c.post_id = ANY($1)
        ORDER BY c.created_at DESC, c.id
    `, postIDs)
	if err != nil {
		return nil, err
	}
	if err := attachReplies(ctx, q, comments); err != nil {
		return nil, err
	}

	byPost := make(map[string][]models.Comment, len(postIDs))
	for _, c := range comments {
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}
	return byPost, nil
}

func queryComments(ctx context.Context, q querier, query string, args ...any) ([]models.Comment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var (
			comment models.Comment
			author  models.UserSummary
		)
		if err := rows.Scan(&comment.ID, &comment.PostID, &comment.UserID, &comment.Comment, &comment.CreatedAt,
			&author.ID, &author.FirstName, &author.LastName, &author.Location, &author.ProfileURL, &author.Profession,
			&comment.Likes); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comment.Author = &author
		comment.Likes = emptyIfNil(comment.Likes)
		comment.Replies = []models.Reply{}
		comment.CreatedAt = comment.CreatedAt.UTC()
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// attachReplies fills the replies of comments in append order.
func attachReplies(ctx context.Context, q querier, comments []models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	index := make(map[string]int, len(comments))
	ids := make([]string, len(comments))
	for i, c := range comments {
		index[c.ID] = i
		ids[i] = c.ID
	}

	rows, err := q.Query(ctx, replySelect+`
        WHERE r.comment_id = ANY($1)
        ORDER BY r.created_at, r.id
    `, ids)
	if err != nil {
		return fmt.Errorf("select replies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reply  models.Reply
			author models.UserSummary
		)
		if err := rows.Scan(&reply.ID, &reply.CommentID, &reply.UserID, &reply.Comment, &reply.ReplyAt,
			&author.ID, &author.FirstName, &author.LastName, &author.Location, &author.ProfileURL, &author.Profession,
			&reply.Likes); err != nil {
			return fmt.Errorf("scan reply: %w", err)
		}
		reply.Author = &author
		reply.Likes = emptyIfNil(reply.Likes)
		reply.ReplyAt = reply.ReplyAt.UTC()
		i := index[reply.CommentID]
		comments[i].Replies = append(comments[i].Replies, reply)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate replies: %w", err)
	}
	return nil
}

func emptyComments(c []models.Comment) []models.Comment {
	if c == nil {
		return []models.Comment{}
	}
	return c
}
