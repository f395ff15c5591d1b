package thread

import (
	"errors"
	"testing"
	"time"
)

func TestAppendReplyCreatesPendingNode(t *testing.T) {
	tree := mustBuild(t, []CommentPayload{
		{ID: "c1", Text: "hi", Author: AuthorPayload{UserID: "user-1"}, CreatedAtSeconds: 1700000000},
	})
	now := time.Unix(1700000600, 0).UTC()
	editor := mustEditor(t, []string{"tmp-1"}, now)
	author := Author{ID: mustUserID(t, "user-a"), DisplayName: "Aoi"}

	updated, tempID, err := editor.AppendReply(tree, mustCommentID(t, "c1"), "nice!", author)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsPending(tempID) {
		t.Fatalf("expected pending id, got %q", tempID)
	}

	parent, _ := FindNode(updated, mustCommentID(t, "c1"))
	if len(parent.Children) != 1 {
		t.Fatalf("expected one child under c1, got %d", len(parent.Children))
	}
	child := parent.Children[0]
	if child.ID != tempID || !child.Pending {
		t.Fatalf("expected pending child %q, got %+v", tempID, child)
	}
	if child.Text != "nice!" {
		t.Fatalf("unexpected reply text %q", child.Text)
	}
	if !child.CreatedAt.Equal(now) {
		t.Fatalf("expected client clock timestamp, got %v", child.CreatedAt)
	}

	// The input tree is untouched.
	original, _ := FindNode(tree, mustCommentID(t, "c1"))
	if len(original.Children) != 0 {
		t.Fatalf("append mutated the input tree")
	}
}

func TestAppendReplyTopLevel(t *testing.T) {
	tree := mustBuild(t, payloadFixture())
	editor := mustEditor(t, []string{"tmp-1"}, time.Unix(1700000600, 0).UTC())

	updated, tempID, err := editor.AppendReply(tree, "", "fresh take", Author{ID: mustUserID(t, "user-a")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Roots) != len(tree.Roots)+1 {
		t.Fatalf("expected top-level append, got %d roots", len(updated.Roots))
	}
	last := updated.Roots[len(updated.Roots)-1]
	if last.ID != tempID || last.ParentID != "" {
		t.Fatalf("expected pending top-level node, got %+v", last)
	}
}

func TestAppendReplyValidation(t *testing.T) {
	tree := mustBuild(t, payloadFixture())
	editor := mustEditor(t, []string{"tmp-1", "tmp-2"}, time.Unix(1700000600, 0).UTC())

	if _, _, err := editor.AppendReply(tree, mustCommentID(t, "c1"), "   \n\t ", Author{}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected empty text error, got %v", err)
	}
	if _, _, err := editor.AppendReply(tree, mustCommentID(t, "nonexistent-id"), "x", Author{}); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected node not found error, got %v", err)
	}
}

func TestConfirmReplyReplacesInPlace(t *testing.T) {
	tree := mustBuild(t, []CommentPayload{
		{ID: "c1", Text: "hi", CreatedAtSeconds: 1700000000},
	})
	editor := mustEditor(t, []string{"tmp-1"}, time.Unix(1700000600, 0).UTC())

	withReply, tempID, err := editor.AppendReply(tree, mustCommentID(t, "c1"), "nice!", Author{ID: mustUserID(t, "user-a")})
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	// A reaction lands on the pending node before the server confirms.
	withReaction, err := SetReaction(withReply, tempID, mustUserID(t, "user-b"), ReactionWow)
	if err != nil {
		t.Fatalf("unexpected reaction error: %v", err)
	}

	serverTime := time.Unix(1700000700, 0).UTC()
	confirmed, err := ConfirmReply(withReaction, tempID, ConfirmedComment{
		ID:        mustCommentID(t, "c2"),
		CreatedAt: serverTime,
	})
	if err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}

	parent, _ := FindNode(confirmed, mustCommentID(t, "c1"))
	if len(parent.Children) != 1 {
		t.Fatalf("confirm must keep the node in place, got %d children", len(parent.Children))
	}
	node := parent.Children[0]
	if node.ID != "c2" || node.Pending {
		t.Fatalf("expected confirmed node c2, got %+v", node)
	}
	if !node.CreatedAt.Equal(serverTime) {
		t.Fatalf("expected server timestamp, got %v", node.CreatedAt)
	}
	if kind := node.Reactions[mustUserID(t, "user-b")]; kind != ReactionWow {
		t.Fatalf("reactions accrued while pending must survive confirmation, got %v", node.Reactions)
	}
	if node.Text != "nice!" {
		t.Fatalf("confirm must not change text, got %q", node.Text)
	}
}

func TestRejectReplyRestoresShape(t *testing.T) {
	tree := mustBuild(t, payloadFixture())
	before := treeShape(tree)
	editor := mustEditor(t, []string{"tmp-1"}, time.Unix(1700000600, 0).UTC())

	withReply, tempID, err := editor.AppendReply(tree, mustCommentID(t, "c2"), "oops", Author{})
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	restored, err := RejectReply(withReply, tempID)
	if err != nil {
		t.Fatalf("unexpected reject error: %v", err)
	}
	if !sameShape(treeShape(restored), before) {
		t.Fatalf("reject must restore pre-append shape: %v vs %v", treeShape(restored), before)
	}
}

func TestConfirmAndRejectUnknownTempID(t *testing.T) {
	tree := mustBuild(t, payloadFixture())

	if _, err := ConfirmReply(tree, mustCommentID(t, "pending:ghost"), ConfirmedComment{ID: "c9"}); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected node not found on confirm, got %v", err)
	}
	if _, err := RejectReply(tree, mustCommentID(t, "pending:ghost")); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected node not found on reject, got %v", err)
	}
}

func TestConcurrentAppendsKeepInsertionOrder(t *testing.T) {
	tree := mustBuild(t, []CommentPayload{
		{ID: "c1", Text: "hi", CreatedAtSeconds: 1700000000},
	})
	editor := mustEditor(t, []string{"tmp-1", "tmp-2"}, time.Unix(1700000600, 0).UTC())

	first, firstID, err := editor.AppendReply(tree, mustCommentID(t, "c1"), "first", Author{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, secondID, err := editor.AppendReply(first, mustCommentID(t, "c1"), "second", Author{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parent, _ := FindNode(second, mustCommentID(t, "c1"))
	if len(parent.Children) != 2 {
		t.Fatalf("expected two pending children, got %d", len(parent.Children))
	}
	if parent.Children[0].ID != firstID || parent.Children[1].ID != secondID {
		t.Fatalf("replies must keep insertion order: %v", treeShape(second))
	}

	// Settling the second reply first leaves the first untouched.
	settled, err := ConfirmReply(second, secondID, ConfirmedComment{ID: mustCommentID(t, "c3")})
	if err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}
	parent, _ = FindNode(settled, mustCommentID(t, "c1"))
	if parent.Children[0].ID != firstID || !parent.Children[0].Pending {
		t.Fatalf("first pending reply must remain pending in place")
	}
	if parent.Children[1].ID != "c3" || parent.Children[1].Pending {
		t.Fatalf("second reply must be confirmed in place")
	}
}
