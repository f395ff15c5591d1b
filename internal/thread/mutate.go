package thread

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	errMissingIDProvider = errors.New("id provider is required")
)

// EditorConfig describes the dependencies for optimistic tree mutation.
type EditorConfig struct {
	Clock      func() time.Time
	IDProvider IDProvider
}

// Editor creates pending reply nodes. It performs no I/O: the caller issues
// the persist request itself and settles the pending node with ConfirmReply
// or RejectReply once that request resolves.
type Editor struct {
	clock func() time.Time
	ids   IDProvider
}

// NewEditor constructs an Editor.
func NewEditor(cfg EditorConfig) (*Editor, error) {
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Editor{clock: clock, ids: cfg.IDProvider}, nil
}

// AppendReply appends a pending reply under parentID, or at top level when
// parentID is the zero value. The returned id is temporary (pending-prefixed)
// and correlates the later ConfirmReply or RejectReply call.
//
// Fails with ErrEmptyText when text trims to nothing, and ErrNodeNotFound
// when parentID does not resolve; the tree is unchanged in both cases.
func (e *Editor) AppendReply(tree Tree, parentID CommentID, text string, author Author) (Tree, CommentID, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return tree, "", ErrEmptyText
	}

	rawID, err := e.ids.NewID()
	if err != nil {
		return tree, "", fmt.Errorf("thread: pending id generation: %w", err)
	}
	tempID := pendingID(rawID)

	node := &CommentNode{
		ID:        tempID,
		Text:      trimmed,
		Author:    author,
		ParentID:  parentID,
		CreatedAt: e.clock().UTC(),
		Pending:   true,
	}

	if parentID == "" {
		roots := append(append([]*CommentNode(nil), tree.Roots...), node)
		return Tree{Roots: roots}, tempID, nil
	}

	roots, ok := rewriteNode(tree.Roots, parentID, func(parent *CommentNode) {
		parent.Children = append(append([]*CommentNode(nil), parent.Children...), node)
	})
	if !ok {
		return tree, "", fmt.Errorf("%w: parent %q", ErrNodeNotFound, parentID)
	}
	return Tree{Roots: roots}, tempID, nil
}

// ConfirmReply replaces the pending node at tempID with its server-assigned
// identity, preserving position, children, and any reactions accrued while
// the create request was in flight.
func ConfirmReply(tree Tree, tempID CommentID, confirmed ConfirmedComment) (Tree, error) {
	if confirmed.ID == "" {
		return tree, fmt.Errorf("%w: empty confirmed id", ErrInvalidCommentID)
	}
	roots, ok := rewriteNode(tree.Roots, tempID, func(node *CommentNode) {
		node.ID = confirmed.ID
		node.Pending = false
		if !confirmed.CreatedAt.IsZero() {
			node.CreatedAt = confirmed.CreatedAt.UTC()
		}
		if len(node.Children) == 0 {
			return
		}
		// Replies accrued under the pending node point at the temp id.
		children := make([]*CommentNode, len(node.Children))
		for i, child := range node.Children {
			relinked := *child
			relinked.ParentID = confirmed.ID
			children[i] = &relinked
		}
		node.Children = children
	})
	if !ok {
		return tree, fmt.Errorf("%w: pending %q", ErrNodeNotFound, tempID)
	}
	return Tree{Roots: roots}, nil
}

// RejectReply removes the pending node at tempID, restoring the tree to its
// shape before the corresponding AppendReply.
func RejectReply(tree Tree, tempID CommentID) (Tree, error) {
	roots, ok := removeNode(tree.Roots, tempID)
	if !ok {
		return tree, fmt.Errorf("%w: pending %q", ErrNodeNotFound, tempID)
	}
	return Tree{Roots: roots}, nil
}
