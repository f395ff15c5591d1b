package thread

import (
	"strings"

	"github.com/google/uuid"
)

// pendingIDPrefix marks locally-created comment ids awaiting server
// confirmation. Server-assigned ids never carry the prefix.
const pendingIDPrefix = "pending:"

// IDProvider issues unique identifiers for comments.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

func pendingID(raw string) CommentID {
	return CommentID(pendingIDPrefix + raw)
}

// IsPending reports whether a comment id is a temporary client-generated id.
func IsPending(id CommentID) bool {
	return strings.HasPrefix(id.String(), pendingIDPrefix)
}
