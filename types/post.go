package types

import "time"

// Post represents a blog post with its embedded comments.
type Post struct {
	// ID is the unique identifier of the post.
	ID int `json:"id" db:"id"`

	// Title is the human-readable headline of the post.
	Title string `json:"title" db:"title"`

	// Content is the full body of the post.
	Content string `json:"content" db:"content"`

	// Image is an optional reference to an uploaded image, as returned
	// by the upload endpoint (e.g., "/uploads/<key>"). Empty when the
	// post has no image.
	Image string `json:"image,omitempty" db:"image"`

	// AuthorID is the identifier of the user who created the post.
	// It is always taken from the authenticated identity, never from
	// the request body.
	AuthorID int `json:"author_id" db:"author_id"`

	// Author is the public projection of the authoring user. Populated
	// on reads; nil on the raw post returned by create.
	Author *UserRef `json:"author,omitempty"`

	// CategoryID is the optional category the post belongs to.
	CategoryID *int `json:"category_id,omitempty" db:"category_id"`

	// Category is the fully expanded category. Populated on reads when
	// the post has a category.
	Category *Category `json:"category,omitempty"`

	// Comments is the ordered, append-only list of comments on the post.
	// Comments live and die with their parent post.
	Comments []Comment `json:"comments"`

	// CreatedAt is the timestamp at which the post was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the post.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PostPatch is the allow-listed set of fields accepted by a partial
// update. A nil field leaves the stored value unchanged.
type PostPatch struct {
	Title      *string `json:"title"`
	Content    *string `json:"content"`
	Image      *string `json:"image"`
	CategoryID *int    `json:"category"`
}

// Comment represents a single comment appended to a post.
type Comment struct {
	// ID is the unique identifier of the comment.
	ID int `json:"id" db:"id"`

	// PostID is the identifier of the post this comment belongs to.
	PostID int `json:"post_id" db:"post_id"`

	// UserID is the identifier of the commenting user.
	UserID int `json:"user_id" db:"user_id"`

	// User is the public projection of the commenting user. Populated
	// on reads.
	User *UserRef `json:"user,omitempty"`

	// Text is the comment body.
	Text string `json:"text" db:"text"`

	// CreatedAt is the timestamp at which the comment was appended.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
