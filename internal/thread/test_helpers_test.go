package thread

import (
	"errors"
	"testing"
	"time"
)

func mustCommentID(t *testing.T, value string) CommentID {
	t.Helper()
	id, err := NewCommentID(value)
	if err != nil {
		t.Fatalf("unexpected comment id error: %v", err)
	}
	return id
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustPostID(t *testing.T, value string) PostID {
	t.Helper()
	id, err := NewPostID(value)
	if err != nil {
		t.Fatalf("unexpected post id error: %v", err)
	}
	return id
}

func mustKind(t *testing.T, value string) ReactionKind {
	t.Helper()
	kind, err := NewReactionKind(value)
	if err != nil {
		t.Fatalf("unexpected reaction kind error: %v", err)
	}
	return kind
}

func mustBuild(t *testing.T, payload []CommentPayload) Tree {
	t.Helper()
	tree, err := Build(payload)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return tree
}

func mustEditor(t *testing.T, ids []string, now time.Time) *Editor {
	t.Helper()
	editor, err := NewEditor(EditorConfig{
		Clock:      func() time.Time { return now },
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("unexpected editor error: %v", err)
	}
	return editor
}

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// treeShape flattens ids depth-first so structural assertions stay compact.
func treeShape(tree Tree) []string {
	var ids []string
	var walk func(nodes []*CommentNode)
	walk = func(nodes []*CommentNode) {
		for _, node := range nodes {
			ids = append(ids, node.ID.String())
			walk(node.Children)
		}
	}
	walk(tree.Roots)
	return ids
}

func sameShape(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func payloadFixture() []CommentPayload {
	return []CommentPayload{
		{
			ID:               "c1",
			Text:             "loved this episode",
			Author:           AuthorPayload{UserID: "user-1", DisplayName: "Rin"},
			CreatedAtSeconds: 1700000000,
			Reactions: []ReactionEntry{
				{UserID: "user-2", Kind: "love"},
			},
			Replies: []CommentPayload{
				{
					ID:               "c2",
					Text:             "same, the animation was wild",
					Author:           AuthorPayload{UserID: "user-2", DisplayName: "Kai"},
					CreatedAtSeconds: 1700000100,
					Replies: []CommentPayload{
						{
							ID:               "c3",
							Text:             "studio outdid themselves",
							Author:           AuthorPayload{UserID: "user-3"},
							CreatedAtSeconds: 1700000200,
						},
					},
				},
			},
		},
		{
			ID:               "c4",
			Text:             "manga readers know what's coming",
			Author:           AuthorPayload{UserID: "user-4"},
			CreatedAtSeconds: 1700000300,
		},
	}
}
