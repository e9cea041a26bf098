package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"social-backend/models"
)

// SocialService owns posts, comments and the follow graph. It only writes;
// notifications follow through the dispatcher.
type SocialService struct {
	db     *gorm.DB
	events *Dispatcher
	log    *zap.Logger
}

func NewSocialService(db *gorm.DB, events *Dispatcher, log *zap.Logger) *SocialService {
	return &SocialService{db: db, events: events, log: log}
}

func (s *SocialService) loadPost(ctx context.Context, postID uint) (*models.Post, error) {
	var p models.Post
	err := s.db.WithContext(ctx).First(&p, postID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "post %d", postID)
	}
	return &p, errors.Wrap(err, "load post")
}

func (s *SocialService) CreatePost(ctx context.Context, authorID uint, content string) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "content is required")
	}
	p := &models.Post{AuthorID: authorID, Content: content}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, errors.Wrap(err, "create post")
	}
	return p, nil
}

// ReactToPost records one reaction per user and post. Reacting again only
// changes the kind and notifies nobody.
func (s *SocialService) ReactToPost(ctx context.Context, userID, postID uint, kind string) (added bool, err error) {
	if kind == "" {
		kind = "like"
	}
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return false, err
	}

	db := s.db.WithContext(ctx)
	err = db.Create(&models.PostReaction{PostID: postID, UserID: userID, Kind: kind}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = db.Model(&models.PostReaction{}).
			Where("post_id = ? AND user_id = ?", postID, userID).
			Update("kind", kind).Error
		return false, errors.Wrap(err, "update post reaction")
	}
	if err != nil {
		return false, errors.Wrap(err, "create post reaction")
	}

	s.events.Dispatch(PostReacted{PostID: postID, AuthorID: post.AuthorID, ActorID: userID, Reaction: kind})
	return true, nil
}

func (s *SocialService) RemovePostReaction(ctx context.Context, userID, postID uint) error {
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.PostReaction{}).Error
	return errors.Wrap(err, "delete post reaction")
}

// Comment adds a comment, or a reply when parentID is set. The parent must
// belong to the same post.
func (s *SocialService) Comment(ctx context.Context, userID, postID uint, content string, parentID *uint) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "content is required")
	}
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	var parent models.Comment
	if parentID != nil {
		err := s.db.WithContext(ctx).Where("id = ? AND post_id = ?", *parentID, postID).First(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "comment %d", *parentID)
		}
		if err != nil {
			return nil, errors.Wrap(err, "load parent comment")
		}
	}

	c := &models.Comment{PostID: postID, AuthorID: userID, ParentID: parentID, Content: content}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, errors.Wrap(err, "create comment")
	}

	if parentID != nil {
		s.events.Dispatch(ReplyCreated{
			PostID:         postID,
			CommentID:      c.ID,
			ParentID:       parent.ID,
			ParentAuthorID: parent.AuthorID,
			ActorID:        userID,
		})
	} else {
		s.events.Dispatch(CommentCreated{PostID: postID, CommentID: c.ID, AuthorID: post.AuthorID, ActorID: userID})
	}
	return c, nil
}

// Repost shares a post. Reposting a repost shares the original.
func (s *SocialService) Repost(ctx context.Context, userID, postID uint, content string) (*models.Post, error) {
	orig, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if orig.RepostOfID != nil {
		if orig, err = s.loadPost(ctx, *orig.RepostOfID); err != nil {
			return nil, err
		}
	}

	p := &models.Post{AuthorID: userID, Content: strings.TrimSpace(content), RepostOfID: &orig.ID}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, errors.Wrap(err, "create repost")
	}
	s.events.Dispatch(PostReposted{PostID: orig.ID, RepostID: p.ID, AuthorID: orig.AuthorID, ActorID: userID})
	return p, nil
}

// Follow creates an accepted edge, or a pending request when the followee
// is private. Repeating a pending request notifies the followee again.
func (s *SocialService) Follow(ctx context.Context, followerID, followeeID uint) (*models.Follow, error) {
	if followerID == followeeID {
		return nil, errors.Wrap(ErrInvalidArgument, "cannot follow yourself")
	}
	var followee models.User
	err := s.db.WithContext(ctx).First(&followee, followeeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "user %d", followeeID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load user")
	}

	f, err := s.findFollow(ctx, followerID, followeeID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "load follow")
	}
	if f == nil {
		f = &models.Follow{FollowerID: followerID, FolloweeID: followeeID, Status: models.FollowAccepted}
		if followee.IsPrivate {
			f.Status = models.FollowPending
		}
		err = s.db.WithContext(ctx).Create(f).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			f, err = s.findFollow(ctx, followerID, followeeID)
		}
		if err != nil {
			return nil, errors.Wrap(err, "create follow")
		}
	}

	switch f.Status {
	case models.FollowPending:
		s.events.Dispatch(FollowRequested{FollowerID: followerID, FolloweeID: followeeID})
	case models.FollowAccepted:
		s.events.Dispatch(FollowCreated{FollowerID: followerID, FolloweeID: followeeID})
	}
	return f, nil
}

func (s *SocialService) findFollow(ctx context.Context, followerID, followeeID uint) (*models.Follow, error) {
	var f models.Follow
	err := s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SocialService) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	err := s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follow{}).Error
	return errors.Wrap(err, "unfollow")
}

// pendingRequest loads a follow request addressed to userID.
func (s *SocialService) pendingRequest(ctx context.Context, userID, followID uint) (*models.Follow, error) {
	var f models.Follow
	err := s.db.WithContext(ctx).First(&f, followID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && f.Status != models.FollowPending) {
		return nil, errors.Wrapf(ErrNotFound, "follow request %d", followID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load follow request")
	}
	if f.FolloweeID != userID {
		return nil, errors.Wrap(ErrAccessDenied, "not your follow request")
	}
	return &f, nil
}

func (s *SocialService) AcceptRequest(ctx context.Context, userID, followID uint) (*models.Follow, error) {
	f, err := s.pendingRequest(ctx, userID, followID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(f).Update("status", models.FollowAccepted).Error; err != nil {
		return nil, errors.Wrap(err, "accept follow request")
	}
	f.Status = models.FollowAccepted
	s.events.Dispatch(FollowAccepted{FollowerID: f.FollowerID, FolloweeID: f.FolloweeID})
	return f, nil
}

// RejectRequest removes the request so it can be made again later.
func (s *SocialService) RejectRequest(ctx context.Context, userID, followID uint) error {
	f, err := s.pendingRequest(ctx, userID, followID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(f).Error; err != nil {
		return errors.Wrap(err, "reject follow request")
	}
	s.events.Dispatch(FollowRejected{FollowerID: f.FollowerID, FolloweeID: f.FolloweeID})
	return nil
}
