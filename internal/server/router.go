package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/animaaz/community/internal/thread"
	"github.com/animaaz/community/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "community_user_id"

const heartbeatInterval = 25 * time.Second

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingThreadService = errors.New("thread service dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokenManager issues and validates bearer tokens for the API.
type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface to its collaborators.
type Dependencies struct {
	TokenManager  SessionTokenManager
	ThreadService *thread.Service
	UsersService  *users.Service
	Events        *ThreadEventDispatcher
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router for the community API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.ThreadService == nil {
		return nil, errMissingThreadService
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewThreadEventDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		threadService: deps.ThreadService,
		usersService:  deps.UsersService,
		events:        events,
		logger:        logger,
	}

	router.POST("/auth/session", handler.handleCreateSession)
	router.GET("/posts/:postID/comments", handler.handleListComments)
	router.GET("/posts/:postID/comments/events", handler.handleThreadEvents)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/posts/:postID/comments", handler.handleCreateComment)
	protected.PUT("/posts/:postID/comments/:commentID/reaction", handler.handleSetReaction)
	protected.DELETE("/posts/:postID/comments/:commentID/reaction", handler.handleClearReaction)

	return router, nil
}

type httpHandler struct {
	tokens        SessionTokenManager
	threadService *thread.Service
	usersService  *users.Service
	events        *ThreadEventDispatcher
	logger        *zap.Logger
}

type sessionRequestPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleCreateSession(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.usersService.UpsertProfile(users.Profile{
		UserID:      request.UserID,
		DisplayName: request.DisplayName,
		AvatarURL:   request.AvatarURL,
	})
	if err != nil {
		if errors.Is(err, users.ErrInvalidProfile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_profile"})
			return
		}
		h.logger.Error("failed to upsert profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_upsert_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), profile.UserID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type threadResponsePayload struct {
	Comments []thread.CommentPayload `json:"comments"`
	Total    int                     `json:"total"`
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	postID, err := thread.NewPostID(c.Param("postID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return
	}

	flat, err := h.threadService.ListThread(c.Request.Context(), postID)
	if err != nil {
		h.respondServiceFailure(c, "list_failed", err)
		return
	}

	tree, err := thread.Build(flat)
	if err != nil {
		h.logger.Error("failed to build thread", zap.Error(err), zap.String("post_id", postID.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "thread_build_failed"})
		return
	}

	c.JSON(http.StatusOK, threadResponsePayload{
		Comments: thread.TreePayload(tree),
		Total:    thread.CountAll(tree),
	})
}

type createCommentPayload struct {
	ParentID string `json:"parent_id"`
	Text     string `json:"text"`
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	postID, err := thread.NewPostID(c.Param("postID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return
	}

	var request createCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	createRequest := thread.CreateCommentRequest{
		PostID:   postID,
		ParentID: thread.CommentID(strings.TrimSpace(request.ParentID)),
		AuthorID: thread.UserID(userID),
		Text:     request.Text,
	}

	created, err := h.threadService.CreateComment(c.Request.Context(), createRequest)
	if err != nil {
		switch {
		case errors.Is(err, thread.ErrEmptyText):
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_text"})
		case errors.Is(err, thread.ErrNodeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "parent_not_found"})
		default:
			h.respondServiceFailure(c, "create_failed", err)
		}
		return
	}

	h.events.Publish(ThreadEvent{
		PostID:     postID.String(),
		EventType:  ThreadEventCommentCreated,
		CommentIDs: []string{created.ID},
		Timestamp:  time.Now().UTC(),
	})

	c.JSON(http.StatusCreated, created)
}

type reactionPayload struct {
	Kind string `json:"kind"`
}

func (h *httpHandler) handleSetReaction(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	postID, err := thread.NewPostID(c.Param("postID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return
	}
	commentID, err := thread.NewCommentID(c.Param("commentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment_id"})
		return
	}

	var request reactionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	kind, err := thread.NewReactionKind(request.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind"})
		return
	}

	err = h.threadService.SetReaction(c.Request.Context(), thread.ReactionRequest{
		PostID:    postID,
		CommentID: commentID,
		UserID:    thread.UserID(userID),
		Kind:      kind,
	})
	if err != nil {
		if errors.Is(err, thread.ErrNodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment_not_found"})
			return
		}
		h.respondServiceFailure(c, "reaction_failed", err)
		return
	}

	h.events.Publish(ThreadEvent{
		PostID:     postID.String(),
		EventType:  ThreadEventReactionChanged,
		CommentIDs: []string{commentID.String()},
		Timestamp:  time.Now().UTC(),
	})

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleClearReaction(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	postID, err := thread.NewPostID(c.Param("postID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return
	}
	commentID, err := thread.NewCommentID(c.Param("commentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_comment_id"})
		return
	}

	err = h.threadService.ClearReaction(c.Request.Context(), thread.ReactionRequest{
		PostID:    postID,
		CommentID: commentID,
		UserID:    thread.UserID(userID),
	})
	if err != nil {
		if errors.Is(err, thread.ErrNodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment_not_found"})
			return
		}
		h.respondServiceFailure(c, "reaction_failed", err)
		return
	}

	h.events.Publish(ThreadEvent{
		PostID:     postID.String(),
		EventType:  ThreadEventReactionChanged,
		CommentIDs: []string{commentID.String()},
		Timestamp:  time.Now().UTC(),
	})

	c.Status(http.StatusNoContent)
}

type threadEventPayload struct {
	PostID     string   `json:"post_id"`
	CommentIDs []string `json:"comment_ids,omitempty"`
	Source     string   `json:"source"`
	Timestamp  int64    `json:"timestamp"`
}

func (h *httpHandler) handleThreadEvents(c *gin.Context) {
	postID, err := thread.NewPostID(c.Param("postID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return
	}

	stream, cleanup := h.events.Subscribe(c.Request.Context(), postID.String())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent(threadEventHeartbeat, threadEventPayload{
				PostID:    postID.String(),
				Source:    threadEventSource,
				Timestamp: time.Now().UTC().Unix(),
			})
			return true
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, threadEventPayload{
				PostID:     event.PostID,
				CommentIDs: event.CommentIDs,
				Source:     threadEventSource,
				Timestamp:  event.Timestamp.Unix(),
			})
			return true
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) respondServiceFailure(c *gin.Context, fallback string, err error) {
	h.logger.Error("thread request failed", zap.Error(err))
	var serviceErr *thread.ServiceError
	if errors.As(err, &serviceErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback, "code": serviceErr.Code()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}
