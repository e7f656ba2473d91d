package state

import (
	"testing"
	"time"
)

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func msg(id, chatID, senderID int64, content string, at time.Time) Message {
	return Message{ID: id, ChatID: chatID, SenderID: senderID, Content: content, Timestamp: at}
}

func chat(id int64) Chat {
	return Chat{ID: id, UserName: "user"}
}

func TestApplyIncomingDedup(t *testing.T) {
	s := New(nil, nil)
	s.ApplyChatList([]Chat{chat(1)})

	m := msg(10, 1, 2, "hello", ts(0))
	s.ApplyIncoming(m)
	s.ApplyIncoming(m)

	got := s.MessagesFor(1)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1 (dedup by id)", len(got))
	}
}

func TestApplyIncomingOrdering(t *testing.T) {
	s := New(nil, nil)

	// Out-of-order arrival: newest first.
	s.ApplyIncoming(msg(3, 1, 2, "third", ts(30)))
	s.ApplyIncoming(msg(1, 1, 2, "first", ts(10)))
	s.ApplyIncoming(msg(2, 1, 2, "second", ts(20)))

	got := s.MessagesFor(1)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Content != want {
			t.Errorf("messages[%d] = %q, want %q", i, got[i].Content, want)
		}
	}
}

func TestPageAndSocketInterleaving(t *testing.T) {
	s := New(nil, nil)

	// Live message arrives first, then an older history page, then the live
	// message is redelivered inside the page.
	s.ApplyIncoming(msg(5, 1, 2, "live", ts(50)))
	s.ApplyMessagePage(1, []Message{
		msg(1, 1, 2, "h1", ts(10)),
		msg(2, 1, 2, "h2", ts(20)),
		msg(5, 1, 2, "live", ts(50)),
	})

	got := s.MessagesFor(1)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	prev := got[0].Timestamp
	for _, m := range got[1:] {
		if m.Timestamp.Before(prev) {
			t.Fatalf("messages not ascending by timestamp: %v", got)
		}
		prev = m.Timestamp
	}
}

func TestApplyMessagePageIdempotent(t *testing.T) {
	s := New(nil, nil)

	page := []Message{
		msg(1, 1, 2, "a", ts(10)),
		msg(2, 1, 2, "b", ts(20)),
	}
	s.ApplyMessagePage(1, page)
	s.ApplyMessagePage(1, page)

	if got := s.MessagesFor(1); len(got) != 2 {
		t.Fatalf("got %d messages, want 2 (page replay must be a no-op)", len(got))
	}
}

func TestUnreadAccounting(t *testing.T) {
	s := New(nil, nil)
	s.SetSelfID(1)
	s.ApplyChatList([]Chat{chat(1), chat(2)})
	s.SetActiveChat(1)

	// Incoming for the inactive chat from someone else: +1.
	s.ApplyIncoming(msg(100, 2, 9, "hi", ts(10)))
	if c, _ := s.Chat(2); c.UnreadCount != 1 {
		t.Errorf("inactive chat unread = %d, want 1", c.UnreadCount)
	}

	// Incoming for the active chat: stays 0.
	s.ApplyIncoming(msg(101, 1, 9, "yo", ts(11)))
	if c, _ := s.Chat(1); c.UnreadCount != 0 {
		t.Errorf("active chat unread = %d, want 0", c.UnreadCount)
	}

	// Self-authored message for an inactive chat: stays unchanged.
	s.ApplyIncoming(msg(102, 2, 1, "mine", ts(12)))
	if c, _ := s.Chat(2); c.UnreadCount != 1 {
		t.Errorf("unread after self message = %d, want 1", c.UnreadCount)
	}
}

func TestMarkChatOpened(t *testing.T) {
	s := New(nil, nil)
	s.SetSelfID(1)
	s.ApplyChatList([]Chat{chat(2)})

	s.ApplyIncoming(msg(1, 2, 9, "a", ts(1)))
	s.ApplyIncoming(msg(2, 2, 9, "b", ts(2)))
	if c, _ := s.Chat(2); c.UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2", c.UnreadCount)
	}

	s.MarkChatOpened(2)
	if c, _ := s.Chat(2); c.UnreadCount != 0 {
		t.Errorf("unread after open = %d, want 0", c.UnreadCount)
	}
}

func TestChatListReordering(t *testing.T) {
	s := New(nil, nil)
	s.ApplyChatList([]Chat{chat(1), chat(2), chat(3)}) // A=1 B=2 C=3

	// Deliver to B, A, C: most recent activity last.
	s.ApplyIncoming(msg(10, 2, 9, "to B", ts(10)))
	s.ApplyIncoming(msg(11, 1, 9, "to A", ts(20)))
	s.ApplyIncoming(msg(12, 3, 9, "to C", ts(30)))

	got := s.Chats()
	want := []int64{3, 1, 2}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("chat order = [%d %d %d], want [3 1 2]", got[0].ID, got[1].ID, got[2].ID)
		}
	}
}

func TestChatListStableForUntouched(t *testing.T) {
	s := New(nil, nil)
	s.ApplyChatList([]Chat{chat(1), chat(2), chat(3)})

	// Only chat 3 gets a message; 1 and 2 keep their relative order.
	s.ApplyIncoming(msg(10, 3, 9, "hi", ts(10)))

	got := s.Chats()
	if got[0].ID != 3 || got[1].ID != 1 || got[2].ID != 2 {
		t.Errorf("chat order = [%d %d %d], want [3 1 2]", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestPreviewUpdated(t *testing.T) {
	s := New(nil, nil)
	s.ApplyChatList([]Chat{chat(1)})

	at := ts(42)
	s.ApplyIncoming(msg(7, 1, 9, "latest words", at))

	c, ok := s.Chat(1)
	if !ok {
		t.Fatal("chat missing")
	}
	if c.LastMessage != "latest words" {
		t.Errorf("LastMessage = %q, want latest words", c.LastMessage)
	}
	if c.LastTime == nil || !c.LastTime.Equal(at) {
		t.Errorf("LastTime = %v, want %v", c.LastTime, at)
	}
}

func TestIncomingForUnknownChat(t *testing.T) {
	s := New(nil, nil)
	s.ApplyChatList([]Chat{chat(1)})

	// Message for a chat not in the preview list: stored, list untouched.
	s.ApplyIncoming(msg(1, 99, 9, "stray", ts(1)))

	if got := s.MessagesFor(99); len(got) != 1 {
		t.Errorf("got %d messages for unknown chat, want 1", len(got))
	}
	if got := s.Chats(); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("preview list changed: %v", got)
	}
}

func TestOldestTimestamp(t *testing.T) {
	s := New(nil, nil)

	if _, ok := s.OldestTimestamp(1); ok {
		t.Error("OldestTimestamp on empty chat should report !ok")
	}

	s.ApplyIncoming(msg(2, 1, 9, "b", ts(20)))
	s.ApplyIncoming(msg(1, 1, 9, "a", ts(10)))

	got, ok := s.OldestTimestamp(1)
	if !ok || !got.Equal(ts(10)) {
		t.Errorf("OldestTimestamp = %v ok=%v, want %v", got, ok, ts(10))
	}
}

func TestApplyChatListReplaces(t *testing.T) {
	s := New(nil, nil)
	s.ApplyIncoming(msg(1, 1, 9, "keep me", ts(1)))

	s.ApplyChatList([]Chat{chat(1), chat(2)})
	s.ApplyChatList([]Chat{chat(2)})

	if got := s.Chats(); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("Chats() = %v, want just chat 2", got)
	}
	// Message collections survive a chat-list refresh.
	if got := s.MessagesFor(1); len(got) != 1 {
		t.Errorf("messages lost on chat-list refresh: %v", got)
	}
}
