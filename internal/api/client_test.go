package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats" {
			t.Errorf("path = %q, want /chats", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chats": []map[string]any{
				{"id": 1, "otherUserId": 7, "userName": "Dana", "lastMessage": "hey", "unreadCount": 2},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", nil)
	chats, err := c.Chats(context.Background())
	if err != nil {
		t.Fatalf("Chats() error = %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats))
	}
	if chats[0].UserName != "Dana" || chats[0].UnreadCount != 2 {
		t.Errorf("chat = %+v", chats[0])
	}
	if chats[0].OtherUserID == nil || *chats[0].OtherUserID != 7 {
		t.Errorf("OtherUserID = %v, want 7", chats[0].OtherUserID)
	}
	if chats[0].LastTime != nil {
		t.Errorf("LastTime = %v, want nil", chats[0].LastTime)
	}
}

func TestMessagesBeforeParam(t *testing.T) {
	before := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats/5/messages" {
			t.Errorf("path = %q, want /chats/5/messages", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}
		got, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("before"))
		if err != nil || !got.Equal(before) {
			t.Errorf("before = %q, want %v", r.URL.Query().Get("before"), before)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": 1, "chatId": 5, "senderId": 2, "content": "old", "timestamp": "2025-06-01T11:00:00Z"},
			},
			"hasMore": true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", nil)
	page, err := c.Messages(context.Background(), 5, 20, &before)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(page.Messages) != 1 || !page.HasMore {
		t.Errorf("page = %+v", page)
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chats/3/messages" {
			t.Errorf("%s %s, want POST /chats/3/messages", r.Method, r.URL.Path)
		}
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Content != "hello" {
			t.Errorf("content = %q, want hello", body.Content)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 99, "chatId": 3, "senderId": 1,
			"content": "hello", "timestamp": "2025-06-01T12:00:00Z",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", nil)
	m, err := c.SendMessage(context.Background(), 3, "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if m.ID != 99 || m.ChatID != 3 {
		t.Errorf("message = %+v", m)
	}
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "stale", nil)
	_, err := c.Chats(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", nil)
	if _, err := c.Chats(context.Background()); err == nil {
		t.Error("Chats() expected error on 500")
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Errorf("path = %q, want /auth/login", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send an Authorization header")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "fresh"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", nil)
	tok, err := c.Login(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok != "fresh" {
		t.Errorf("token = %q, want fresh", tok)
	}
}
