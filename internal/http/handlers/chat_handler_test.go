package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"direct-chat/internal/domain"
	"direct-chat/internal/repo"
	"direct-chat/internal/services"
)

// ---------- test DB + repo shim ----------

func newChatDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:chat_handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Enforce FKs and migrate schemas
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.User{}, &domain.Chat{}, &domain.Message{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Minimal shim implementing services.ChatRepo using repo package (like router.go)
type testChatRepo struct{}

func (testChatRepo) CreateChat(ctx context.Context, db *gorm.DB, participants domain.ParticipantList) (*domain.Chat, error) {
	return repo.CreateChat(ctx, db, participants)
}

func (testChatRepo) GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	return repo.GetChat(ctx, db, id)
}

func (testChatRepo) FindChatByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Chat, error) {
	return repo.FindChatByKey(ctx, db, key)
}

// ---------- tiny stubs for other services ----------

type stubMsgSvc struct{}

func (stubMsgSvc) Send(ctx context.Context, chatID, senderID, text string) (*domain.Message, error) {
	return nil, nil
}

func (stubMsgSvc) ListPage(ctx context.Context, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	return nil, 0, nil
}

func (stubMsgSvc) Search(ctx context.Context, chatID, query string, k int) ([]services.SearchHit, error) {
	return nil, nil
}

type stubUserSvc struct {
	users []services.UserSummary
	err   error
}

func (s stubUserSvc) List(ctx context.Context) ([]services.UserSummary, error) {
	return s.users, s.err
}

// ---------- harness ----------

func newChatRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := New(
		services.NewChatService(db, testChatRepo{}),
		stubMsgSvc{},
		stubUserSvc{},
	)

	r := gin.New()
	r.POST("/chats", h.ResolveChat)
	r.POST("/chats/lookup", h.LookupChat)
	r.GET("/chats/:id", h.GetChat)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------- ResolveChat ----------

func TestResolveChat_CreatesThenReuses(t *testing.T) {
	db := newChatDB(t)
	r := newChatRouter(t, db)

	w := doJSON(t, r, http.MethodPost, "/chats", ResolveChatRequest{Participants: []string{"u1", "u2"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("first resolve status = %d, want 201; body=%s", w.Code, w.Body.String())
	}
	var first ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.ID == "" || len(first.Participants) != 2 {
		t.Fatalf("bad chat body: %+v", first)
	}

	// Reversed order resolves to the same chat with 200.
	w = doJSON(t, r, http.MethodPost, "/chats", ResolveChatRequest{Participants: []string{"u2", "u1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("second resolve status = %d, want 200", w.Code)
	}
	var second ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("ids differ: %q vs %q", first.ID, second.ID)
	}
}

func TestResolveChat_BadInput(t *testing.T) {
	db := newChatDB(t)
	r := newChatRouter(t, db)

	cases := []struct {
		name string
		body any
	}{
		{"no body", nil},
		{"missing participants", map[string]any{}},
		{"single participant", ResolveChatRequest{Participants: []string{"u1"}}},
		{"duplicate participants", ResolveChatRequest{Participants: []string{"u1", "u1"}}},
		{"blank participant", ResolveChatRequest{Participants: []string{"u1", "  "}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/chats", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body=%s", w.Code, w.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if resp.Code != ErrCodeBadRequest {
				t.Fatalf("code = %q, want %q", resp.Code, ErrCodeBadRequest)
			}
		})
	}
}

// ---------- LookupChat ----------

func TestLookupChat_ExistingAndMissing(t *testing.T) {
	db := newChatDB(t)
	r := newChatRouter(t, db)

	// Unknown set: 404, nothing created.
	w := doJSON(t, r, http.MethodPost, "/chats/lookup", ResolveChatRequest{Participants: []string{"a", "b"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("lookup status = %d, want 404", w.Code)
	}
	n, err := repo.CountChats(context.Background(), db)
	if err != nil || n != 0 {
		t.Fatalf("chat count after lookup = %d (err=%v), want 0", n, err)
	}

	// Create, then lookup succeeds.
	w = doJSON(t, r, http.MethodPost, "/chats", ResolveChatRequest{Participants: []string{"a", "b"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/chats/lookup", ResolveChatRequest{Participants: []string{"b", "a"}})
	if w.Code != http.StatusOK {
		t.Fatalf("lookup status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
}

// ---------- GetChat ----------

func TestGetChat_ByID(t *testing.T) {
	db := newChatDB(t)
	r := newChatRouter(t, db)

	w := doJSON(t, r, http.MethodPost, "/chats", ResolveChatRequest{Participants: []string{"x", "y"}})
	var created ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/chats/"+created.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Bad id shape.
	req = httptest.NewRequest(http.MethodGet, "/chats/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", rec.Code)
	}

	// Unknown but valid id.
	req = httptest.NewRequest(http.MethodGet, "/chats/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing id status = %d, want 404", rec.Code)
	}
}
