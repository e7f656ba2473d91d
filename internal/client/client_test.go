package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/heartlink-app/pulse/internal/api"
	"github.com/heartlink-app/pulse/internal/history"
	"github.com/heartlink-app/pulse/internal/state"
	"github.com/heartlink-app/pulse/internal/typing"
)

type fakeAPI struct {
	mu       sync.Mutex
	chats    []api.ChatPreview
	sendErr  error
	sent     []string
	nextID   int64
	messages map[int64][]api.ChatMessage
}

func (f *fakeAPI) Chats(ctx context.Context) ([]api.ChatPreview, error) {
	return f.chats, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID int64, content string) (*api.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, content)
	f.nextID++
	return &api.ChatMessage{
		ID:        f.nextID,
		ChatID:    chatID,
		SenderID:  1,
		Content:   content,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeAPI) Messages(ctx context.Context, chatID int64, limit int, before *time.Time) (*api.MessagePage, error) {
	return &api.MessagePage{Messages: f.messages[chatID]}, nil
}

type recordingSender struct {
	mu     sync.Mutex
	frames []bool
}

func (r *recordingSender) SendTyping(chatID int64, typing bool) {
	r.mu.Lock()
	r.frames = append(r.frames, typing)
	r.mu.Unlock()
}

func newTestClient(t *testing.T, f *fakeAPI) (*Client, *state.Store, *recordingSender) {
	t.Helper()
	st := state.New(nil, nil)
	st.SetSelfID(1)
	sender := &recordingSender{}
	tc := typing.New(sender, nil, nil)
	t.Cleanup(tc.Stop)
	pg := history.New(f, st, nil)
	return New(f, st, tc, pg, nil), st, sender
}

func TestRefreshChats(t *testing.T) {
	f := &fakeAPI{chats: []api.ChatPreview{
		{ID: 1, UserName: "ana"},
		{ID: 2, UserName: "bia"},
	}}
	c, st, _ := newTestClient(t, f)

	if err := c.RefreshChats(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(st.Chats()); got != 2 {
		t.Fatalf("store holds %d chats, want 2", got)
	}
}

func TestOpenChatMarksReadAndLoads(t *testing.T) {
	ts := time.Now()
	f := &fakeAPI{
		chats: []api.ChatPreview{{ID: 1, UserName: "ana", UnreadCount: 4}},
		messages: map[int64][]api.ChatMessage{
			1: {{ID: 10, ChatID: 1, SenderID: 2, Content: "oi", Timestamp: ts}},
		},
	}
	c, st, _ := newTestClient(t, f)
	if err := c.RefreshChats(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.OpenChat(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if st.ActiveChat() != 1 {
		t.Error("chat 1 not active")
	}
	chat, _ := st.Chat(1)
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", chat.UnreadCount)
	}
	if got := len(st.MessagesFor(1)); got != 1 {
		t.Errorf("loaded %d messages, want 1", got)
	}
}

func TestCloseChatRestoresUnreadAccounting(t *testing.T) {
	f := &fakeAPI{chats: []api.ChatPreview{{ID: 1, UserName: "ana"}}}
	c, st, _ := newTestClient(t, f)
	if err := c.RefreshChats(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.OpenChat(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	c.CloseChat()

	st.ApplyIncoming(state.Message{ID: 20, ChatID: 1, SenderID: 2, Content: "oi", Timestamp: time.Now()})
	chat, _ := st.Chat(1)
	if chat.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 after closing the chat", chat.UnreadCount)
	}
}

func TestSendMessageMergesEcho(t *testing.T) {
	f := &fakeAPI{chats: []api.ChatPreview{{ID: 1, UserName: "ana"}}}
	c, st, sender := newTestClient(t, f)
	if err := c.RefreshChats(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.SendMessage(context.Background(), 1, "hello"); err != nil {
		t.Fatal(err)
	}

	msgs := st.MessagesFor(1)
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("messages = %+v, want the server echo", msgs)
	}
	// Own message never counts as unread.
	chat, _ := st.Chat(1)
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 for own message", chat.UnreadCount)
	}
	// The send broadcast an immediate typing-stop.
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.frames) != 1 || sender.frames[0] {
		t.Errorf("typing frames = %v, want one immediate false", sender.frames)
	}
}

func TestSendMessageFailureLeavesStoreUntouched(t *testing.T) {
	f := &fakeAPI{
		chats:   []api.ChatPreview{{ID: 1, UserName: "ana"}},
		sendErr: errors.New("boom"),
	}
	c, st, _ := newTestClient(t, f)
	if err := c.RefreshChats(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.SendMessage(context.Background(), 1, "hello"); err == nil {
		t.Fatal("SendMessage() expected error")
	}
	if got := len(st.MessagesFor(1)); got != 0 {
		t.Errorf("store holds %d messages after failed send, want 0", got)
	}
}

func TestSendDiscardsPendingTypingWindow(t *testing.T) {
	f := &fakeAPI{chats: []api.ChatPreview{{ID: 1, UserName: "ana"}}}
	c, _, sender := newTestClient(t, f)
	if err := c.RefreshChats(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.InputChanged(1, true)
	if err := c.SendMessage(context.Background(), 1, "hello"); err != nil {
		t.Fatal(err)
	}

	// Only the explicit stop goes out; the debounced start is cancelled.
	time.Sleep(500 * time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.frames) != 1 || sender.frames[0] {
		t.Errorf("typing frames = %v, want exactly one false", sender.frames)
	}
}
