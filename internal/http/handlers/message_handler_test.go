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
	"gorm.io/gorm"

	"direct-chat/internal/domain"
	"direct-chat/internal/notify"
	"direct-chat/internal/repo"
	"direct-chat/internal/services"
)

// countingSink records publishes without any transport behind it.
type countingSink struct {
	published int
	lastChat  string
	lastMsgID string
}

func (s *countingSink) Publish(ctx context.Context, chatID string, m *domain.Message) error {
	s.published++
	s.lastChat = chatID
	s.lastMsgID = m.ID
	return nil
}

var _ notify.Sink = (*countingSink)(nil)

func newMsgRouter(t *testing.T, db *gorm.DB, sink notify.Sink) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	msgSvc := &services.MessageService{DB: db, Sink: sink, MaxTextRunes: 4000}
	h := New(
		services.NewChatService(db, testChatRepo{}),
		msgSvc,
		stubUserSvc{},
	)

	r := gin.New()
	r.POST("/chats/:id/messages", h.PostMessage)
	r.GET("/chats/:id/messages", h.ListMessages)
	r.GET("/chats/:id/messages/search", h.SearchMessages)
	return r
}

func seedHandlerChat(t *testing.T, db *gorm.DB, participants ...string) *domain.Chat {
	t.Helper()
	c, err := repo.CreateChat(context.Background(), db, domain.ParticipantList(participants))
	if err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	return c
}

// ---------- sanitizeText ----------

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  padded  ", "padded"},
		{"a\r\nb", "a\nb"},
		{"a\rb", "a\nb"},
		{"p1\n\n\n\n\np2", "p1\n\np2"},
	}
	for _, tc := range cases {
		if got := sanitizeText(tc.in); got != tc.want {
			t.Fatalf("sanitizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// ---------- PostMessage ----------

func TestPostMessage_Success(t *testing.T) {
	db := newChatDB(t)
	sink := &countingSink{}
	r := newMsgRouter(t, db, sink)
	chat := seedHandlerChat(t, db, "u1", "u2")

	w := doJSON(t, r, http.MethodPost, "/chats/"+chat.ID+"/messages",
		PostMessageRequest{SenderID: "u1", Text: "hello there"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body=%s", w.Code, w.Body.String())
	}
	var resp PostMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := resp.Message
	if m == nil || m.ID == "" || m.Text != "hello there" || m.SenderID != "u1" {
		t.Fatalf("bad message: %+v", m)
	}
	if m.Status != domain.StatusSent || m.Seq != 1 {
		t.Fatalf("status=%q seq=%d", m.Status, m.Seq)
	}
	if sink.published != 1 || sink.lastChat != chat.ID || sink.lastMsgID != m.ID {
		t.Fatalf("sink: %+v", sink)
	}
}

func TestPostMessage_Validation(t *testing.T) {
	db := newChatDB(t)
	r := newMsgRouter(t, db, &countingSink{})
	chat := seedHandlerChat(t, db, "u1", "u2")

	cases := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"bad chat id", "/chats/nope/messages", PostMessageRequest{SenderID: "u1", Text: "x"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing body", "/chats/" + chat.ID + "/messages", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"blank text", "/chats/" + chat.ID + "/messages", map[string]string{"sender_id": "u1", "text": "   "}, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing sender", "/chats/" + chat.ID + "/messages", map[string]string{"text": "hi"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"outsider sender", "/chats/" + chat.ID + "/messages", PostMessageRequest{SenderID: "intruder", Text: "hi"}, http.StatusUnprocessableEntity, ErrCodeSenderNotParticipant},
		{"unknown chat", "/chats/" + uuid.NewString() + "/messages", PostMessageRequest{SenderID: "u1", Text: "hi"}, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, tc.path, tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d; body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", resp.Code, tc.wantCode)
			}
		})
	}

	// Nothing persisted by rejected requests.
	n, err := repo.CountMessages(context.Background(), db, chat.ID)
	if err != nil || n != 0 {
		t.Fatalf("message count = %d (err=%v), want 0", n, err)
	}
}

func TestPostMessage_IdempotencyReplay(t *testing.T) {
	db := newChatDB(t)
	sink := &countingSink{}
	r := newMsgRouter(t, db, sink)
	chat := seedHandlerChat(t, db, "u1", "u2")

	key := uuid.NewString()
	send := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(PostMessageRequest{SenderID: "u1", Text: "retried send"})
		req := httptest.NewRequest(http.MethodPost, "/chats/"+chat.ID+"/messages", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w1 := send()
	if w1.Code != http.StatusCreated {
		t.Fatalf("first send status = %d; body=%s", w1.Code, w1.Body.String())
	}
	var first PostMessageResponse
	_ = json.Unmarshal(w1.Body.Bytes(), &first)

	w2 := send()
	if w2.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200; body=%s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("missing Idempotency-Replayed header")
	}
	var second PostMessageResponse
	_ = json.Unmarshal(w2.Body.Bytes(), &second)
	if second.Message == nil || second.Message.ID != first.Message.ID {
		t.Fatalf("replay returned different message: %+v vs %+v", second.Message, first.Message)
	}

	// Only one message persisted, only one publish.
	n, err := repo.CountMessages(context.Background(), db, chat.ID)
	if err != nil || n != 1 {
		t.Fatalf("message count = %d (err=%v), want 1", n, err)
	}
	if sink.published != 1 {
		t.Fatalf("sink published %d times, want 1", sink.published)
	}
}

// ---------- ListMessages ----------

func TestListMessages_PaginationAndOrder(t *testing.T) {
	db := newChatDB(t)
	r := newMsgRouter(t, db, &countingSink{})
	chat := seedHandlerChat(t, db, "u1", "u2")

	for i := 1; i <= 5; i++ {
		w := doJSON(t, r, http.MethodPost, "/chats/"+chat.ID+"/messages",
			PostMessageRequest{SenderID: "u1", Text: fmt.Sprintf("m%d", i)})
		if w.Code != http.StatusCreated {
			t.Fatalf("send %d status = %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/chats/"+chat.ID+"/messages?page=2&page_size=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d; body=%s", rec.Code, rec.Body.String())
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pagination.Total != 5 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("pagination = %+v", resp.Pagination)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Text != "m3" || resp.Messages[1].Text != "m4" {
		t.Fatalf("page = %+v", resp.Messages)
	}
}

func TestListMessages_ETagNotModified(t *testing.T) {
	db := newChatDB(t)
	r := newMsgRouter(t, db, &countingSink{})
	chat := seedHandlerChat(t, db, "u1", "u2")

	doJSON(t, r, http.MethodPost, "/chats/"+chat.ID+"/messages",
		PostMessageRequest{SenderID: "u2", Text: "cache me"})

	req := httptest.NewRequest(http.MethodGet, "/chats/"+chat.ID+"/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	etag := rec.Header().Get("ETag")
	if rec.Code != http.StatusOK || etag == "" {
		t.Fatalf("first list: status=%d etag=%q", rec.Code, etag)
	}

	req = httptest.NewRequest(http.MethodGet, "/chats/"+chat.ID+"/messages", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("conditional list status = %d, want 304", rec.Code)
	}
}

func TestListMessages_UnknownChat(t *testing.T) {
	db := newChatDB(t)
	r := newMsgRouter(t, db, &countingSink{})

	req := httptest.NewRequest(http.MethodGet, "/chats/"+uuid.NewString()+"/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListMessages_UnknownChatIgnoresIfNoneMatch(t *testing.T) {
	db := newChatDB(t)
	r := newMsgRouter(t, db, &countingSink{})
	missing := uuid.NewString()

	// A validator crafted for the empty stats of a chat that does not exist
	// must not short-circuit the existence check into a 304.
	req := httptest.NewRequest(http.MethodGet, "/chats/"+missing+"/messages", nil)
	req.Header.Set("If-None-Match", fmt.Sprintf(`W/"messages:%s:0:0"`, missing))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if etag := rec.Header().Get("ETag"); etag != "" {
		t.Fatalf("ETag = %q, want none on 404", etag)
	}
}

func TestSearchMessages_RanksAndValidates(t *testing.T) {
	db := newChatDB(t)
	r := newMsgRouter(t, db, &countingSink{})
	chat := seedHandlerChat(t, db, "u1", "u2")

	for _, m := range []PostMessageRequest{
		{SenderID: "u1", Text: "pizza tonight"},
		{SenderID: "u2", Text: "pizza"},
		{SenderID: "u1", Text: "see you at eight"},
	} {
		if w := doJSON(t, r, http.MethodPost, "/chats/"+chat.ID+"/messages", m); w.Code != http.StatusCreated {
			t.Fatalf("send status = %d", w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/chats/"+chat.ID+"/messages/search?q=pizza", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d; body=%s", rec.Code, rec.Body.String())
	}
	var resp SearchMessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query != "pizza" {
		t.Fatalf("query = %q", resp.Query)
	}
	if len(resp.Hits) != 2 || resp.Hits[0].Message.Text != "pizza" || resp.Hits[1].Message.Text != "pizza tonight" {
		t.Fatalf("hits = %+v", resp.Hits)
	}

	// Missing query parameter.
	req = httptest.NewRequest(http.MethodGet, "/chats/"+chat.ID+"/messages/search", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing q status = %d", rec.Code)
	}

	// Unknown chat.
	req = httptest.NewRequest(http.MethodGet, "/chats/"+uuid.NewString()+"/messages/search?q=pizza", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown chat status = %d", rec.Code)
	}
}

func TestSearchMessages_KParamCapsResults(t *testing.T) {
	db := newChatDB(t)
	r := newMsgRouter(t, db, &countingSink{})
	chat := seedHandlerChat(t, db, "u1", "u2")

	for _, text := range []string{"coffee one", "coffee two", "coffee three"} {
		doJSON(t, r, http.MethodPost, "/chats/"+chat.ID+"/messages",
			PostMessageRequest{SenderID: "u1", Text: text})
	}

	req := httptest.NewRequest(http.MethodGet, "/chats/"+chat.ID+"/messages/search?q=coffee&k=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	var resp SearchMessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(resp.Hits))
	}
}
