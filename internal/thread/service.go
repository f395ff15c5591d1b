package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the wrapped cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "thread.service.new"
	opListThread    = "thread.list_thread"
	opCreateComment = "thread.create_comment"
	opSetReaction   = "thread.set_reaction"
	opClearReaction = "thread.clear_reaction"
	opCountComments = "thread.count_comments"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// AuthorDirectory resolves author display summaries for a batch of user ids.
type AuthorDirectory interface {
	AuthorsByID(ctx context.Context, userIDs []string) (map[string]AuthorPayload, error)
}

// CountCache is an optional read-through cache for per-post comment counts.
type CountCache interface {
	GetCommentCount(ctx context.Context, postID string) (int64, bool, error)
	SetCommentCount(ctx context.Context, postID string, total int64) error
	InvalidateCommentCount(ctx context.Context, postID string) error
}

// ServiceConfig describes the dependencies of the thread service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Authors    AuthorDirectory
	Cache      CountCache
	Logger     *zap.Logger
}

// Service persists comments and reactions for post threads. It is the
// server-side collaborator behind Build, ConfirmReply, and the reaction
// operations: ListThread feeds Build, CreateComment returns the confirm
// payload for an optimistic reply, and the reaction methods settle
// optimistic toggles.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	authors    AuthorDirectory
	cache      CountCache
	logger     *zap.Logger
}

// NewService constructs the thread service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		authors:    cfg.Authors,
		cache:      cfg.Cache,
		logger:     logger,
	}, nil
}

// ListThread returns the flat comment records of a post with reactions and
// author summaries attached, ordered chronologically. The result is the
// payload shape Build consumes.
func (s *Service) ListThread(ctx context.Context, postID PostID) ([]CommentPayload, error) {
	if s.db == nil {
		s.logError(opListThread, "missing_database", errMissingDatabase)
		return nil, newServiceError(opListThread, "missing_database", errMissingDatabase)
	}

	var comments []PostComment
	if err := s.db.WithContext(ctx).
		Where("post_id = ? AND is_deleted = ?", postID.String(), false).
		Order("created_at_s ASC, comment_id ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListThread, "comment_query_failed", err, zap.String("post_id", postID.String()))
		return nil, newServiceError(opListThread, "comment_query_failed", err)
	}

	var reactions []CommentReaction
	if err := s.db.WithContext(ctx).
		Where("post_id = ?", postID.String()).
		Order("reacted_at_s ASC").
		Find(&reactions).Error; err != nil {
		s.logError(opListThread, "reaction_query_failed", err, zap.String("post_id", postID.String()))
		return nil, newServiceError(opListThread, "reaction_query_failed", err)
	}

	reactionsByComment := make(map[string][]ReactionEntry, len(comments))
	for _, reaction := range reactions {
		var entry ReactionEntry
		if err := copier.Copy(&entry, &reaction); err != nil {
			s.logError(opListThread, "reaction_copy_failed", err, zap.String("comment_id", reaction.CommentID))
			return nil, newServiceError(opListThread, "reaction_copy_failed", err)
		}
		reactionsByComment[reaction.CommentID] = append(reactionsByComment[reaction.CommentID], entry)
	}

	authorSummaries, err := s.resolveAuthors(ctx, comments)
	if err != nil {
		s.logError(opListThread, "author_lookup_failed", err, zap.String("post_id", postID.String()))
		return nil, newServiceError(opListThread, "author_lookup_failed", err)
	}

	payload := make([]CommentPayload, 0, len(comments))
	for _, comment := range comments {
		author, ok := authorSummaries[comment.AuthorID]
		if !ok {
			author = AuthorPayload{UserID: comment.AuthorID}
		}
		payload = append(payload, CommentPayload{
			ID:               comment.CommentID,
			Text:             comment.Body,
			Author:           author,
			ParentID:         comment.ParentID,
			CreatedAtSeconds: comment.CreatedAtSeconds,
			Reactions:        reactionsByComment[comment.CommentID],
		})
	}
	return payload, nil
}

func (s *Service) resolveAuthors(ctx context.Context, comments []PostComment) (map[string]AuthorPayload, error) {
	if s.authors == nil || len(comments) == 0 {
		return map[string]AuthorPayload{}, nil
	}
	seen := make(map[string]struct{}, len(comments))
	ids := make([]string, 0, len(comments))
	for _, comment := range comments {
		if _, dup := seen[comment.AuthorID]; dup {
			continue
		}
		seen[comment.AuthorID] = struct{}{}
		ids = append(ids, comment.AuthorID)
	}
	return s.authors.AuthorsByID(ctx, ids)
}

// CreateCommentRequest describes a comment creation submitted by a client.
type CreateCommentRequest struct {
	PostID   PostID
	ParentID CommentID // zero value for a top-level comment
	AuthorID UserID
	Text     string
}

// CreateComment validates and persists a comment, assigning a permanent id
// and the server timestamp. The returned payload is what an optimistic
// client passes to ConfirmReply.
//
// Fails with ErrEmptyText for whitespace-only text and ErrNodeNotFound when
// the parent does not exist in the target post, mirroring the tree-side
// mutation policy.
func (s *Service) CreateComment(ctx context.Context, request CreateCommentRequest) (CommentPayload, error) {
	if s.db == nil {
		s.logError(opCreateComment, "missing_database", errMissingDatabase)
		return CommentPayload{}, newServiceError(opCreateComment, "missing_database", errMissingDatabase)
	}

	trimmed, err := validateCommentText(request.Text)
	if err != nil {
		return CommentPayload{}, err
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateComment, "id_generation_failed", err)
		return CommentPayload{}, newServiceError(opCreateComment, "id_generation_failed", err)
	}
	createdAt := s.clock().UTC().Unix()

	record := PostComment{
		PostID:           request.PostID.String(),
		CommentID:        commentID,
		ParentID:         request.ParentID.String(),
		AuthorID:         request.AuthorID.String(),
		Body:             trimmed,
		CreatedAtSeconds: createdAt,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if request.ParentID != "" {
			var parent PostComment
			err := tx.Where("post_id = ? AND comment_id = ? AND is_deleted = ?",
				request.PostID.String(), request.ParentID.String(), false).
				Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: parent %q", ErrNodeNotFound, request.ParentID)
			}
			if err != nil {
				return newServiceError(opCreateComment, "parent_select_failed", err)
			}
		}

		if err := tx.Create(&record).Error; err != nil {
			return newServiceError(opCreateComment, "comment_insert_failed", err)
		}
		return s.appendAudit(tx, auditEntry{
			postID:    record.PostID,
			commentID: record.CommentID,
			actorID:   record.AuthorID,
			operation: ChangeOperationCommentCreated,
			appliedAt: createdAt,
		})
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrNodeNotFound) {
			s.logError(opCreateComment, "transaction_failed", txErr,
				zap.String("post_id", request.PostID.String()))
		}
		return CommentPayload{}, txErr
	}

	s.invalidateCount(ctx, request.PostID.String())

	payload := CommentPayload{
		ID:               record.CommentID,
		Text:             record.Body,
		ParentID:         record.ParentID,
		CreatedAtSeconds: record.CreatedAtSeconds,
		Author:           AuthorPayload{UserID: record.AuthorID},
	}
	if s.authors != nil {
		summaries, err := s.authors.AuthorsByID(ctx, []string{record.AuthorID})
		if err == nil {
			if author, ok := summaries[record.AuthorID]; ok {
				payload.Author = author
			}
		}
	}
	return payload, nil
}

// ReactionRequest describes a reaction set or clear submitted by a client.
type ReactionRequest struct {
	PostID    PostID
	CommentID CommentID
	UserID    UserID
	Kind      ReactionKind
}

// SetReaction inserts or replaces the user's reaction on a comment. One
// active reaction per user per comment is enforced by the row's composite
// primary key; replacing the kind overwrites the existing row.
func (s *Service) SetReaction(ctx context.Context, request ReactionRequest) error {
	if s.db == nil {
		s.logError(opSetReaction, "missing_database", errMissingDatabase)
		return newServiceError(opSetReaction, "missing_database", errMissingDatabase)
	}
	if _, err := NewReactionKind(request.Kind.String()); err != nil {
		return err
	}

	reactedAt := s.clock().UTC().Unix()
	record := CommentReaction{
		CommentID:        request.CommentID.String(),
		UserID:           request.UserID.String(),
		PostID:           request.PostID.String(),
		Kind:             request.Kind.String(),
		ReactedAtSeconds: reactedAt,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireComment(tx, request.PostID, request.CommentID); err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "comment_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "reacted_at_s"}),
		}).Create(&record).Error; err != nil {
			return newServiceError(opSetReaction, "reaction_upsert_failed", err)
		}
		return s.appendAudit(tx, auditEntry{
			postID:    record.PostID,
			commentID: record.CommentID,
			actorID:   record.UserID,
			operation: ChangeOperationReactionSet,
			detail:    record.Kind,
			appliedAt: reactedAt,
		})
	})
	if txErr != nil && !errors.Is(txErr, ErrNodeNotFound) {
		s.logError(opSetReaction, "transaction_failed", txErr,
			zap.String("comment_id", request.CommentID.String()))
	}
	return txErr
}

// ClearReaction removes the user's reaction from a comment. Clearing an
// absent reaction succeeds without writing anything.
func (s *Service) ClearReaction(ctx context.Context, request ReactionRequest) error {
	if s.db == nil {
		s.logError(opClearReaction, "missing_database", errMissingDatabase)
		return newServiceError(opClearReaction, "missing_database", errMissingDatabase)
	}

	appliedAt := s.clock().UTC().Unix()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireComment(tx, request.PostID, request.CommentID); err != nil {
			return err
		}
		result := tx.Where("comment_id = ? AND user_id = ?",
			request.CommentID.String(), request.UserID.String()).
			Delete(&CommentReaction{})
		if result.Error != nil {
			return newServiceError(opClearReaction, "reaction_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return s.appendAudit(tx, auditEntry{
			postID:    request.PostID.String(),
			commentID: request.CommentID.String(),
			actorID:   request.UserID.String(),
			operation: ChangeOperationReactionCleared,
			appliedAt: appliedAt,
		})
	})
	if txErr != nil && !errors.Is(txErr, ErrNodeNotFound) {
		s.logError(opClearReaction, "transaction_failed", txErr,
			zap.String("comment_id", request.CommentID.String()))
	}
	return txErr
}

// CountComments returns the number of live comments on a post, consulting
// the configured cache first when one is present.
func (s *Service) CountComments(ctx context.Context, postID PostID) (int64, error) {
	if s.db == nil {
		s.logError(opCountComments, "missing_database", errMissingDatabase)
		return 0, newServiceError(opCountComments, "missing_database", errMissingDatabase)
	}

	if s.cache != nil {
		cached, hit, err := s.cache.GetCommentCount(ctx, postID.String())
		if err != nil {
			s.logger.Warn("comment count cache read failed",
				zap.String("post_id", postID.String()), zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&PostComment{}).
		Where("post_id = ? AND is_deleted = ?", postID.String(), false).
		Count(&total).Error; err != nil {
		s.logError(opCountComments, "count_query_failed", err, zap.String("post_id", postID.String()))
		return 0, newServiceError(opCountComments, "count_query_failed", err)
	}

	if s.cache != nil {
		if err := s.cache.SetCommentCount(ctx, postID.String(), total); err != nil {
			s.logger.Warn("comment count cache write failed",
				zap.String("post_id", postID.String()), zap.Error(err))
		}
	}
	return total, nil
}

func (s *Service) requireComment(tx *gorm.DB, postID PostID, commentID CommentID) error {
	var comment PostComment
	err := tx.Where("post_id = ? AND comment_id = ? AND is_deleted = ?",
		postID.String(), commentID.String(), false).
		Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, commentID)
	}
	if err != nil {
		return err
	}
	return nil
}

type auditEntry struct {
	postID    string
	commentID string
	actorID   string
	operation ChangeOperation
	detail    string
	appliedAt int64
}

func (s *Service) appendAudit(tx *gorm.DB, entry auditEntry) error {
	changeID, err := s.idProvider.NewID()
	if err != nil {
		return newServiceError("thread.audit", "id_generation_failed", err)
	}
	record := CommentChange{
		ChangeID:         changeID,
		PostID:           entry.postID,
		CommentID:        entry.commentID,
		ActorID:          entry.actorID,
		Operation:        entry.operation,
		Detail:           entry.detail,
		AppliedAtSeconds: entry.appliedAt,
	}
	if err := tx.Create(&record).Error; err != nil {
		return newServiceError("thread.audit", "insert_failed", err)
	}
	return nil
}

func (s *Service) invalidateCount(ctx context.Context, postID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCommentCount(ctx, postID); err != nil {
		s.logger.Warn("comment count cache invalidation failed",
			zap.String("post_id", postID), zap.Error(err))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("thread service error", attrs...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func validateCommentText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	return trimmed, nil
}
