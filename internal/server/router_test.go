package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/animaaz/community/internal/auth"
	"github.com/animaaz/community/internal/database"
	"github.com/animaaz/community/internal/thread"
	"github.com/animaaz/community/internal/users"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type sequentialIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("comment-%04d", p.next), nil
}

type testEnvironment struct {
	handler http.Handler
	events  *ThreadEventDispatcher
}

var routerDatabaseSequence int

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	routerDatabaseSequence++
	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", routerDatabaseSequence)
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	threadService, err := thread.NewService(thread.ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000600, 0).UTC() },
		IDProvider: &sequentialIDProvider{},
		Authors:    NewProfileDirectory(usersService),
	})
	if err != nil {
		t.Fatalf("failed to construct thread service: %v", err)
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "community-auth",
		Audience:      "community-api",
		TokenTTL:      time.Hour,
	})

	events := NewThreadEventDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		TokenManager:  issuer,
		ThreadService: threadService,
		UsersService:  usersService,
		Events:        events,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testEnvironment{handler: handler, events: events}
}

func (env *testEnvironment) perform(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func (env *testEnvironment) createSession(t *testing.T, userID, displayName string) string {
	t.Helper()

	recorder := env.perform(t, http.MethodPost, "/auth/session", "", map[string]string{
		"user_id":      userID,
		"display_name": displayName,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected session creation to succeed, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var session sessionResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &session); err != nil {
		t.Fatalf("failed to decode session response: %v", err)
	}
	if session.AccessToken == "" {
		t.Fatalf("expected non-empty access token")
	}
	return session.AccessToken
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()

	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	return payload["error"]
}

func TestCreateSessionIssuesBearerToken(t *testing.T) {
	env := newTestEnvironment(t)

	recorder := env.perform(t, http.MethodPost, "/auth/session", "", map[string]string{
		"user_id":      "viewer-1",
		"display_name": "Sakura",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var session sessionResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &session); err != nil {
		t.Fatalf("failed to decode session response: %v", err)
	}
	if session.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", session.TokenType)
	}
	if session.ExpiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", session.ExpiresIn)
	}
}

func TestCreateSessionRejectsMissingUserID(t *testing.T) {
	env := newTestEnvironment(t)

	recorder := env.perform(t, http.MethodPost, "/auth/session", "", map[string]string{
		"display_name": "Nameless",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if decodeError(t, recorder) != "invalid_request" {
		t.Fatalf("unexpected error payload: %s", recorder.Body.String())
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnvironment(t)

	recorder := env.perform(t, http.MethodPost, "/posts/post-1/comments", "", map[string]string{
		"text": "hello",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	recorder = env.perform(t, http.MethodPost, "/posts/post-1/comments", "not-a-token", map[string]string{
		"text": "hello",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", recorder.Code)
	}
}

func TestCreateCommentAndListThread(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.createSession(t, "viewer-1", "Sakura")

	created := env.perform(t, http.MethodPost, "/posts/post-1/comments", token, map[string]string{
		"text": "best episode this season",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}

	var topLevel thread.CommentPayload
	if err := json.Unmarshal(created.Body.Bytes(), &topLevel); err != nil {
		t.Fatalf("failed to decode created comment: %v", err)
	}
	if topLevel.ID == "" {
		t.Fatalf("expected server-assigned comment id")
	}
	if topLevel.Author.DisplayName != "Sakura" {
		t.Fatalf("expected enriched author, got %#v", topLevel.Author)
	}

	reply := env.perform(t, http.MethodPost, "/posts/post-1/comments", token, map[string]string{
		"parent_id": topLevel.ID,
		"text":      "agreed, the animation was wild",
	})
	if reply.Code != http.StatusCreated {
		t.Fatalf("expected 201 for reply, got %d: %s", reply.Code, reply.Body.String())
	}

	listed := env.perform(t, http.MethodGet, "/posts/post-1/comments", "", nil)
	if listed.Code != http.StatusOK {
		t.Fatalf("expected 200 listing thread, got %d: %s", listed.Code, listed.Body.String())
	}

	var response threadResponsePayload
	if err := json.Unmarshal(listed.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode thread response: %v", err)
	}
	if response.Total != 2 {
		t.Fatalf("expected two comments total, got %d", response.Total)
	}
	if len(response.Comments) != 1 {
		t.Fatalf("expected one top-level comment, got %d", len(response.Comments))
	}
	if len(response.Comments[0].Replies) != 1 {
		t.Fatalf("expected nested reply, got %#v", response.Comments[0])
	}
	if response.Comments[0].Replies[0].Text != "agreed, the animation was wild" {
		t.Fatalf("unexpected reply text %q", response.Comments[0].Replies[0].Text)
	}
}

func TestCreateCommentValidationErrors(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.createSession(t, "viewer-1", "Sakura")

	empty := env.perform(t, http.MethodPost, "/posts/post-1/comments", token, map[string]string{
		"text": "   ",
	})
	if empty.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", empty.Code)
	}
	if decodeError(t, empty) != "empty_text" {
		t.Fatalf("unexpected error payload: %s", empty.Body.String())
	}

	orphan := env.perform(t, http.MethodPost, "/posts/post-1/comments", token, map[string]string{
		"parent_id": "nonexistent-id",
		"text":      "reply to nothing",
	})
	if orphan.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing parent, got %d", orphan.Code)
	}
	if decodeError(t, orphan) != "parent_not_found" {
		t.Fatalf("unexpected error payload: %s", orphan.Body.String())
	}
}

func TestReactionLifecycle(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.createSession(t, "viewer-1", "Sakura")

	created := env.perform(t, http.MethodPost, "/posts/post-1/comments", token, map[string]string{
		"text": "that opening theme though",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	var comment thread.CommentPayload
	if err := json.Unmarshal(created.Body.Bytes(), &comment); err != nil {
		t.Fatalf("failed to decode created comment: %v", err)
	}

	reactionPath := fmt.Sprintf("/posts/post-1/comments/%s/reaction", comment.ID)

	set := env.perform(t, http.MethodPut, reactionPath, token, map[string]string{"kind": "love"})
	if set.Code != http.StatusNoContent {
		t.Fatalf("expected 204 setting reaction, got %d: %s", set.Code, set.Body.String())
	}

	listed := env.perform(t, http.MethodGet, "/posts/post-1/comments", "", nil)
	var response threadResponsePayload
	if err := json.Unmarshal(listed.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode thread response: %v", err)
	}
	if len(response.Comments) != 1 || len(response.Comments[0].Reactions) != 1 {
		t.Fatalf("expected one reaction on the comment, got %#v", response.Comments)
	}
	if response.Comments[0].Reactions[0].Kind != "love" {
		t.Fatalf("unexpected reaction kind %q", response.Comments[0].Reactions[0].Kind)
	}

	cleared := env.perform(t, http.MethodDelete, reactionPath, token, nil)
	if cleared.Code != http.StatusNoContent {
		t.Fatalf("expected 204 clearing reaction, got %d: %s", cleared.Code, cleared.Body.String())
	}

	listed = env.perform(t, http.MethodGet, "/posts/post-1/comments", "", nil)
	response = threadResponsePayload{}
	if err := json.Unmarshal(listed.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode thread response: %v", err)
	}
	if len(response.Comments[0].Reactions) != 0 {
		t.Fatalf("expected reactions cleared, got %#v", response.Comments[0].Reactions)
	}
}

func TestReactionErrors(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.createSession(t, "viewer-1", "Sakura")

	missing := env.perform(t, http.MethodPut, "/posts/post-1/comments/ghost/reaction", token, map[string]string{"kind": "like"})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown comment, got %d", missing.Code)
	}
	if decodeError(t, missing) != "comment_not_found" {
		t.Fatalf("unexpected error payload: %s", missing.Body.String())
	}

	created := env.perform(t, http.MethodPost, "/posts/post-1/comments", token, map[string]string{
		"text": "rating incoming",
	})
	var comment thread.CommentPayload
	if err := json.Unmarshal(created.Body.Bytes(), &comment); err != nil {
		t.Fatalf("failed to decode created comment: %v", err)
	}

	invalid := env.perform(t, http.MethodPut,
		fmt.Sprintf("/posts/post-1/comments/%s/reaction", comment.ID), token,
		map[string]string{"kind": "meh"})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", invalid.Code)
	}
	if decodeError(t, invalid) != "invalid_kind" {
		t.Fatalf("unexpected error payload: %s", invalid.Body.String())
	}
}

func TestCreateCommentPublishesThreadEvent(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.createSession(t, "viewer-1", "Sakura")

	stream, cleanup := env.events.Subscribe(context.Background(), "post-1")
	defer cleanup()

	created := env.perform(t, http.MethodPost, "/posts/post-1/comments", token, map[string]string{
		"text": "subscribed and watching",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", created.Code, created.Body.String())
	}
	var comment thread.CommentPayload
	if err := json.Unmarshal(created.Body.Bytes(), &comment); err != nil {
		t.Fatalf("failed to decode created comment: %v", err)
	}

	select {
	case event := <-stream:
		if event.EventType != ThreadEventCommentCreated {
			t.Fatalf("unexpected event type %q", event.EventType)
		}
		if len(event.CommentIDs) != 1 || event.CommentIDs[0] != comment.ID {
			t.Fatalf("unexpected event comment ids %#v", event.CommentIDs)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a comment-created event")
	}
}
