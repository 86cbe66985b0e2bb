package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bloghub/apiserver/types"
)

// PostRepository handles persistence for posts and their embedded comments.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

const postColumns = `
	p.id, p.title, p.content, p.image, p.author_id, u.username,
	p.category_id, c.name, c.created_at, c.updated_at,
	p.created_at, p.updated_at`

// scanPost scans one joined posts row, expanding the author projection
// and the optional category.
func scanPost(scanner interface{ Scan(...any) error }) (types.Post, error) {
	var post types.Post
	var username string
	var categoryID sql.NullInt64
	var categoryName sql.NullString
	var categoryCreated, categoryUpdated sql.NullTime

	err := scanner.Scan(
		&post.ID,
		&post.Title,
		&post.Content,
		&post.Image,
		&post.AuthorID,
		&username,
		&categoryID,
		&categoryName,
		&categoryCreated,
		&categoryUpdated,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return types.Post{}, err
	}

	post.Author = &types.UserRef{ID: post.AuthorID, Username: username}
	if categoryID.Valid {
		id := int(categoryID.Int64)
		post.CategoryID = &id
		post.Category = &types.Category{
			ID:        id,
			Name:      categoryName.String,
			CreatedAt: categoryCreated.Time,
			UpdatedAt: categoryUpdated.Time,
		}
	}
	post.Comments = []types.Comment{}
	return post, nil
}

// List returns one page of posts ordered newest first, plus the total
// post count. Ordering is pinned to (created_at, id) so pages stay
// stable under concurrent inserts.
func (r *PostRepository) List(ctx context.Context, offset, limit int) ([]types.Post, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 5
	}

	const countQuery = `SELECT COUNT(1) FROM posts`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT` + postColumns + `
		FROM posts p
		JOIN users u ON u.id = p.author_id
		LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY p.created_at DESC, p.id DESC
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return posts, total, nil
}

// Get fetches one post by id with its author, category, and comments
// (each comment's user projected to id and username) expanded.
func (r *PostRepository) Get(ctx context.Context, id int) (types.Post, error) {
	const query = `
		SELECT` + postColumns + `
		FROM posts p
		JOIN users u ON u.id = p.author_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}

	comments, err := r.listComments(ctx, id)
	if err != nil {
		return types.Post{}, err
	}
	post.Comments = comments
	return post, nil
}

// Create persists a new post with an empty comment list. The returned
// post carries raw reference fields; Author and Category are not expanded.
func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	const query = `
		INSERT INTO posts (title, content, image, author_id, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		post.Title,
		post.Content,
		post.Image,
		post.AuthorID,
		post.CategoryID,
		post.CreatedAt,
		post.UpdatedAt,
	).Scan(&post.ID); err != nil {
		return types.Post{}, translateError(err)
	}

	post.Author = nil
	post.Category = nil
	post.Comments = []types.Comment{}
	return post, nil
}

// Update applies an allow-listed partial patch. Nil patch fields keep
// the stored value. Returns the updated post fully expanded.
func (r *PostRepository) Update(ctx context.Context, id int, patch types.PostPatch) (types.Post, error) {
	const query = `
		UPDATE posts
		SET title = COALESCE($1, title),
			content = COALESCE($2, content),
			image = COALESCE($3, image),
			category_id = COALESCE($4, category_id),
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		patch.Title,
		patch.Content,
		patch.Image,
		patch.CategoryID,
		time.Now(),
		id,
	)
	if err != nil {
		return types.Post{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Post{}, err
	}
	if affected == 0 {
		return types.Post{}, ErrNotFound
	}

	return r.Get(ctx, id)
}

// Delete removes a post permanently. Its comments go with it via the
// cascading foreign key.
func (r *PostRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddComment appends a comment to a post's ordered comment list and
// returns exactly the newly appended comment with its user expanded.
// A missing post surfaces as ErrNotFound via the foreign key.
func (r *PostRepository) AddComment(ctx context.Context, postID, userID int, text string) (types.Comment, error) {
	comment := types.Comment{
		PostID:    postID,
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now(),
	}

	const insertQuery = `
		INSERT INTO comments (post_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		insertQuery,
		comment.PostID,
		comment.UserID,
		comment.Text,
		comment.CreatedAt,
	).Scan(&comment.ID); err != nil {
		return types.Comment{}, translateError(err)
	}

	const userQuery = `SELECT username FROM users WHERE id = $1`
	var username string
	if err := r.db.QueryRowContext(ctx, userQuery, userID).Scan(&username); err != nil {
		return types.Comment{}, err
	}
	comment.User = &types.UserRef{ID: userID, Username: username}
	return comment, nil
}

func (r *PostRepository) listComments(ctx context.Context, postID int) ([]types.Comment, error) {
	const query = `
		SELECT cm.id, cm.post_id, cm.user_id, u.username, cm.text, cm.created_at
		FROM comments cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.post_id = $1
		ORDER BY cm.id`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []types.Comment{}
	for rows.Next() {
		var comment types.Comment
		var username string
		if err := rows.Scan(
			&comment.ID,
			&comment.PostID,
			&comment.UserID,
			&username,
			&comment.Text,
			&comment.CreatedAt,
		); err != nil {
			return nil, err
		}
		comment.User = &types.UserRef{ID: comment.UserID, Username: username}
		comments = append(comments, comment)
	}

	return comments, rows.Err()
}
