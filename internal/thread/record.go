package thread

// ChangeOperation enumerates audited thread mutations.
type ChangeOperation string

const (
	// ChangeOperationCommentCreated records a persisted comment creation.
	ChangeOperationCommentCreated ChangeOperation = "comment_created"
	// ChangeOperationReactionSet records a reaction insert or replacement.
	ChangeOperationReactionSet ChangeOperation = "reaction_set"
	// ChangeOperationReactionCleared records a reaction removal.
	ChangeOperationReactionCleared ChangeOperation = "reaction_cleared"
)

// PostComment is the persisted comment row.
type PostComment struct {
	PostID           string `gorm:"column:post_id;primaryKey;size:190;not null;index:idx_comments_post_created,priority:1"`
	CommentID        string `gorm:"column:comment_id;primaryKey;size:190;not null"`
	ParentID         string `gorm:"column:parent_id;size:190;not null;default:''"`
	AuthorID         string `gorm:"column:author_id;size:190;not null"`
	Body             string `gorm:"column:body;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_comments_post_created,priority:2"`
	IsDeleted        bool   `gorm:"column:is_deleted;not null;default:false"`
}

// TableName provides the explicit table binding for GORM.
func (PostComment) TableName() string {
	return "post_comments"
}

// CommentReaction is the persisted per-user reaction row. The composite
// primary key enforces at most one active reaction per user per comment.
type CommentReaction struct {
	CommentID        string `gorm:"column:comment_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	PostID           string `gorm:"column:post_id;size:190;not null;index"`
	Kind             string `gorm:"column:kind;size:32;not null"`
	ReactedAtSeconds int64  `gorm:"column:reacted_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (CommentReaction) TableName() string {
	return "comment_reactions"
}

// CommentChange captures an append-only audit trail for thread mutations.
type CommentChange struct {
	ChangeID         string          `gorm:"column:change_id;primaryKey;size:190;not null"`
	PostID           string          `gorm:"column:post_id;not null;index:idx_changes_post_time,priority:1"`
	CommentID        string          `gorm:"column:comment_id;not null"`
	ActorID          string          `gorm:"column:actor_id;size:190;not null"`
	Operation        ChangeOperation `gorm:"column:op;not null"`
	Detail           string          `gorm:"column:detail;size:190;not null;default:''"`
	AppliedAtSeconds int64           `gorm:"column:applied_at_s;not null;index:idx_changes_post_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CommentChange) TableName() string {
	return "comment_changes"
}
