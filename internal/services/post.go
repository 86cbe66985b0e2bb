package services

import (
	"context"

	"github.com/bloghub/apiserver/internal/events"
	"github.com/bloghub/apiserver/types"
)

const maxListLimit = 100

// PostRepository defines persistence operations for posts and comments.
type PostRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Post, int, error)
	Get(ctx context.Context, id int) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, id int, patch types.PostPatch) (types.Post, error)
	Delete(ctx context.Context, id int) error
	AddComment(ctx context.Context, postID, userID int, text string) (types.Comment, error)
}

// PostService encapsulates post and comment use-cases. Mutations publish
// best-effort lifecycle events when an events backend is configured; a
// broker failure never fails the request.
type PostService struct {
	repo   PostRepository
	events *events.Events
}

func NewPostService(repo PostRepository, ev *events.Events) *PostService {
	return &PostService{repo: repo, events: ev}
}

func (s *PostService) List(ctx context.Context, offset, limit int) ([]types.Post, int, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *PostService) Get(ctx context.Context, id int) (types.Post, error) {
	return s.repo.Get(ctx, id)
}

func (s *PostService) Create(ctx context.Context, post types.Post) (types.Post, error) {
	created, err := s.repo.Create(ctx, post)
	if err != nil {
		return types.Post{}, err
	}
	_ = s.events.PublishEnvelope(ctx, events.Envelope{
		Type:    events.TypePostCreated,
		PostID:  created.ID,
		ActorID: created.AuthorID,
	})
	return created, nil
}

func (s *PostService) Update(ctx context.Context, id int, patch types.PostPatch) (types.Post, error) {
	return s.repo.Update(ctx, id, patch)
}

func (s *PostService) Delete(ctx context.Context, id, actorID int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	_ = s.events.PublishEnvelope(ctx, events.Envelope{
		Type:    events.TypePostDeleted,
		PostID:  id,
		ActorID: actorID,
	})
	return nil
}

func (s *PostService) AddComment(ctx context.Context, postID, userID int, text string) (types.Comment, error) {
	comment, err := s.repo.AddComment(ctx, postID, userID, text)
	if err != nil {
		return types.Comment{}, err
	}
	_ = s.events.PublishEnvelope(ctx, events.Envelope{
		Type:      events.TypeCommentCreated,
		PostID:    postID,
		CommentID: comment.ID,
		ActorID:   userID,
	})
	return comment, nil
}
