// Package thread models a post's comment thread as an in-memory tree with
// optimistic local mutation. Tree operations are pure: each returns a new
// Tree value sharing unchanged nodes with its input, so the hosting layer
// can hold the current value in its own state and re-render on change.
//
// Refresh policy: a freshly built tree replaces the current one wholesale.
// No merge with in-flight optimistic state is attempted; callers should not
// trigger a full refresh while a mutation is awaiting confirmation.
package thread

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thoas/go-funk"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidCommentID indicates that a comment identifier is empty or exceeds storage bounds.
	ErrInvalidCommentID = errors.New("thread: invalid comment id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("thread: invalid user id")
	// ErrInvalidPostID indicates that a post identifier is empty or exceeds storage bounds.
	ErrInvalidPostID = errors.New("thread: invalid post id")
	// ErrInvalidReactionKind indicates that a reaction kind is not one of the supported kinds.
	ErrInvalidReactionKind = errors.New("thread: invalid reaction kind")
	// ErrInvalidTimestamp indicates that a unix timestamp value is not positive.
	ErrInvalidTimestamp = errors.New("thread: invalid unix timestamp")
	// ErrEmptyText indicates that comment text is empty after trimming whitespace.
	ErrEmptyText = errors.New("thread: empty comment text")
	// ErrNodeNotFound indicates that an operation referenced a comment id absent from the tree.
	ErrNodeNotFound = errors.New("thread: comment not found")
	// ErrMalformedPayload indicates that a thread payload is structurally invalid.
	ErrMalformedPayload = errors.New("thread: malformed payload")
)

// CommentID represents a validated comment identifier.
type CommentID string

// NewCommentID validates raw input and returns a CommentID.
func NewCommentID(rawInput string) (CommentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCommentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCommentID, maxIdentifierLength)
	}
	return CommentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CommentID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// PostID represents a validated post identifier.
type PostID string

// NewPostID validates raw input and returns a PostID.
func NewPostID(rawInput string) (PostID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPostID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPostID, maxIdentifierLength)
	}
	return PostID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PostID) String() string {
	return string(id)
}

// ReactionKind enumerates the supported per-user reactions.
type ReactionKind string

const (
	ReactionLike  ReactionKind = "like"
	ReactionLove  ReactionKind = "love"
	ReactionLaugh ReactionKind = "laugh"
	ReactionWow   ReactionKind = "wow"
	ReactionSad   ReactionKind = "sad"
	ReactionAngry ReactionKind = "angry"
)

var reactionKinds = []ReactionKind{
	ReactionLike, ReactionLove, ReactionLaugh, ReactionWow, ReactionSad, ReactionAngry,
}

// NewReactionKind validates raw input and returns a ReactionKind.
func NewReactionKind(rawInput string) (ReactionKind, error) {
	kind := ReactionKind(strings.ToLower(strings.TrimSpace(rawInput)))
	if !funk.Contains(reactionKinds, kind) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReactionKind, rawInput)
	}
	return kind, nil
}

// String returns the reaction kind as a string.
func (k ReactionKind) String() string {
	return string(k)
}

// UnixTimestamp represents a validated unix timestamp in seconds.
type UnixTimestamp int64

// NewUnixTimestamp validates the value and returns a UnixTimestamp.
func NewUnixTimestamp(value int64) (UnixTimestamp, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTimestamp, value)
	}
	return UnixTimestamp(value), nil
}

// Int64 exposes the raw unix seconds value.
func (ts UnixTimestamp) Int64() int64 {
	return int64(ts)
}

// Author is the user summary attached to a comment. The tree treats it as
// opaque display data.
type Author struct {
	ID          UserID
	DisplayName string
	AvatarURL   string
}

// CommentNode is one comment or reply in a thread.
type CommentNode struct {
	ID        CommentID
	Text      string
	Author    Author
	ParentID  CommentID // zero value for top-level comments
	Children  []*CommentNode
	Reactions map[UserID]ReactionKind
	CreatedAt time.Time
	Pending   bool
}

// Tree is the aggregate root: the ordered top-level comments of one post.
type Tree struct {
	Roots []*CommentNode
}

// ReactionEntry is one (user, kind) pair in a thread payload.
type ReactionEntry struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
}

// AuthorPayload is the author summary carried by a thread payload.
type AuthorPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// CommentPayload is one comment record as served by the thread service. A
// record may arrive flat (ParentID set, Replies empty), nested (Replies
// populated), or in a mix of both shapes.
type CommentPayload struct {
	ID               string           `json:"id"`
	Text             string           `json:"text"`
	Author           AuthorPayload    `json:"author"`
	ParentID         string           `json:"parent_id,omitempty"`
	CreatedAtSeconds int64            `json:"created_at_s"`
	Reactions        []ReactionEntry  `json:"reactions,omitempty"`
	Replies          []CommentPayload `json:"replies,omitempty"`
}

// ConfirmedComment carries the server-assigned fields that replace a pending
// node once the create request settles.
type ConfirmedComment struct {
	ID        CommentID
	CreatedAt time.Time
}
