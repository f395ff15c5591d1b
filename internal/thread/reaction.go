package thread

import "fmt"

// SetReaction records userID's reaction of the given kind on the target
// node, replacing any prior kind for that user. Re-reacting with the same
// kind is a no-op that returns an equivalent tree.
func SetReaction(tree Tree, nodeID CommentID, userID UserID, kind ReactionKind) (Tree, error) {
	if _, err := NewReactionKind(kind.String()); err != nil {
		return tree, err
	}
	roots, ok := rewriteNode(tree.Roots, nodeID, func(node *CommentNode) {
		reactions := copyReactions(node.Reactions)
		reactions[userID] = kind
		node.Reactions = reactions
	})
	if !ok {
		return tree, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	return Tree{Roots: roots}, nil
}

// ClearReaction removes userID's reaction from the target node. Clearing a
// reaction that does not exist is a no-op, not an error.
func ClearReaction(tree Tree, nodeID CommentID, userID UserID) (Tree, error) {
	roots, ok := rewriteNode(tree.Roots, nodeID, func(node *CommentNode) {
		if _, present := node.Reactions[userID]; !present {
			return
		}
		reactions := copyReactions(node.Reactions)
		delete(reactions, userID)
		node.Reactions = reactions
	})
	if !ok {
		return tree, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	return Tree{Roots: roots}, nil
}

// ReactionCounts derives per-kind totals from the node's reaction mapping.
// Counts are computed on read so the display can never drift from the
// underlying per-user entries.
func ReactionCounts(node *CommentNode) map[ReactionKind]int {
	counts := make(map[ReactionKind]int, len(reactionKinds))
	for _, kind := range node.Reactions {
		counts[kind]++
	}
	return counts
}

// UserReaction reports the active reaction kind for userID on the node, if any.
func UserReaction(node *CommentNode, userID UserID) (ReactionKind, bool) {
	kind, ok := node.Reactions[userID]
	return kind, ok
}
