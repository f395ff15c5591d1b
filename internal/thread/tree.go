package thread

import (
	"fmt"
	"time"
)

// Build normalizes a server-provided thread payload into a Tree. It accepts
// flat records (parent_id set), pre-nested records (replies populated), or a
// mix of both; node identities and child ordering mirror the payload.
//
// Orphan policy: a record whose parent_id resolves to no node in the payload
// is adopted as top-level rather than dropped, so user content is never
// silently lost. Build fails with ErrMalformedPayload only on duplicate ids
// or parent cycles.
func Build(payload []CommentPayload) (Tree, error) {
	index := make(map[CommentID]*CommentNode)

	type flatLink struct {
		node     *CommentNode
		parentID CommentID
	}
	var roots []*CommentNode
	var links []flatLink

	var materialize func(record CommentPayload, parent *CommentNode) error
	materialize = func(record CommentPayload, parent *CommentNode) error {
		id, err := NewCommentID(record.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if _, exists := index[id]; exists {
			return fmt.Errorf("%w: duplicate id %q", ErrMalformedPayload, id)
		}

		node := &CommentNode{
			ID:   id,
			Text: record.Text,
			Author: Author{
				ID:          UserID(record.Author.UserID),
				DisplayName: record.Author.DisplayName,
				AvatarURL:   record.Author.AvatarURL,
			},
			CreatedAt: time.Unix(record.CreatedAtSeconds, 0).UTC(),
		}
		for _, entry := range record.Reactions {
			userID, err := NewUserID(entry.UserID)
			if err != nil {
				continue
			}
			kind, err := NewReactionKind(entry.Kind)
			if err != nil {
				continue
			}
			if node.Reactions == nil {
				node.Reactions = make(map[UserID]ReactionKind)
			}
			node.Reactions[userID] = kind
		}
		index[id] = node

		switch {
		case parent != nil:
			node.ParentID = parent.ID
			parent.Children = append(parent.Children, node)
		case record.ParentID != "" && CommentID(record.ParentID) != id:
			links = append(links, flatLink{node: node, parentID: CommentID(record.ParentID)})
		default:
			// Top-level, including the self-parented degenerate case.
			roots = append(roots, node)
		}

		for _, reply := range record.Replies {
			if err := materialize(reply, node); err != nil {
				return err
			}
		}
		return nil
	}

	for _, record := range payload {
		if err := materialize(record, nil); err != nil {
			return Tree{}, err
		}
	}

	for _, link := range links {
		parent, ok := index[link.parentID]
		if !ok {
			// Dangling parent reference: adopt as top-level.
			roots = append(roots, link.node)
			link.node.ParentID = ""
			continue
		}
		link.node.ParentID = parent.ID
		parent.Children = append(parent.Children, link.node)
	}

	tree := Tree{Roots: roots}
	if reachable := CountAll(tree); reachable != len(index) {
		return Tree{}, fmt.Errorf("%w: parent cycle detected (%d of %d nodes reachable)",
			ErrMalformedPayload, reachable, len(index))
	}
	return tree, nil
}

// TreePayload renders a tree back into the nested payload shape, suitable
// for serving to clients that consume pre-nested threads. Pending nodes are
// included; their ids carry the pending prefix.
func TreePayload(tree Tree) []CommentPayload {
	return payloadFor(tree.Roots)
}

func payloadFor(nodes []*CommentNode) []CommentPayload {
	if len(nodes) == 0 {
		return nil
	}
	records := make([]CommentPayload, 0, len(nodes))
	for _, node := range nodes {
		record := CommentPayload{
			ID:   node.ID.String(),
			Text: node.Text,
			Author: AuthorPayload{
				UserID:      node.Author.ID.String(),
				DisplayName: node.Author.DisplayName,
				AvatarURL:   node.Author.AvatarURL,
			},
			ParentID:         node.ParentID.String(),
			CreatedAtSeconds: node.CreatedAt.Unix(),
			Replies:          payloadFor(node.Children),
		}
		for userID, kind := range node.Reactions {
			record.Reactions = append(record.Reactions, ReactionEntry{
				UserID: userID.String(),
				Kind:   kind.String(),
			})
		}
		records = append(records, record)
	}
	return records
}

// FindNode performs a depth-first lookup by comment id.
func FindNode(tree Tree, id CommentID) (*CommentNode, bool) {
	return findIn(tree.Roots, id)
}

func findIn(nodes []*CommentNode, id CommentID) (*CommentNode, bool) {
	for _, node := range nodes {
		if node.ID == id {
			return node, true
		}
		if found, ok := findIn(node.Children, id); ok {
			return found, ok
		}
	}
	return nil, false
}

// CountAll returns the total number of comments at all depths, counting
// every node exactly once.
func CountAll(tree Tree) int {
	return countIn(tree.Roots)
}

func countIn(nodes []*CommentNode) int {
	total := 0
	for _, node := range nodes {
		total += 1 + countIn(node.Children)
	}
	return total
}

// rewriteNode returns a copy of nodes in which the node with the given id has
// been replaced by transform's result. Nodes on the path to the target are
// cloned; everything else is shared with the input. transform receives a
// shallow copy and must not mutate the original's Children or Reactions.
func rewriteNode(nodes []*CommentNode, id CommentID, transform func(copied *CommentNode)) ([]*CommentNode, bool) {
	for i, node := range nodes {
		if node.ID == id {
			copied := *node
			transform(&copied)
			next := append([]*CommentNode(nil), nodes...)
			next[i] = &copied
			return next, true
		}
		if children, ok := rewriteNode(node.Children, id, transform); ok {
			copied := *node
			copied.Children = children
			next := append([]*CommentNode(nil), nodes...)
			next[i] = &copied
			return next, true
		}
	}
	return nodes, false
}

// removeNode returns a copy of nodes without the node carrying the given id.
// Only the spine leading to the removed node is cloned.
func removeNode(nodes []*CommentNode, id CommentID) ([]*CommentNode, bool) {
	for i, node := range nodes {
		if node.ID == id {
			next := make([]*CommentNode, 0, len(nodes)-1)
			next = append(next, nodes[:i]...)
			next = append(next, nodes[i+1:]...)
			return next, true
		}
		if children, ok := removeNode(node.Children, id); ok {
			copied := *node
			copied.Children = children
			next := append([]*CommentNode(nil), nodes...)
			next[i] = &copied
			return next, true
		}
	}
	return nodes, false
}

// copyReactions clones a reaction mapping ahead of a write.
func copyReactions(reactions map[UserID]ReactionKind) map[UserID]ReactionKind {
	copied := make(map[UserID]ReactionKind, len(reactions)+1)
	for userID, kind := range reactions {
		copied[userID] = kind
	}
	return copied
}
