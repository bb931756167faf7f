package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type chatFixture struct {
	users       *stubUserRepo
	groups      *stubGroupRepo
	messages    *stubMessageRepo
	presence    *stubPresence
	broadcaster *stubBroadcaster
	fanout      *stubFanout
	limiter     *stubLimiter
	dedup       *stubDedup
	svc         *chatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		users: newStubUserRepo(
			newUser("A", "Ana", "Silva"),
			newUser("B", "Bruno", "Costa"),
			newUser("C", "Carla", "Dias"),
		),
		groups:      newStubGroupRepo(),
		messages:    &stubMessageRepo{},
		presence:    newStubPresence(),
		broadcaster: newStubBroadcaster(),
		fanout:      &stubFanout{},
		limiter:     &stubLimiter{allow: true},
		dedup:       &stubDedup{},
	}
	f.groups.seed("g1", "A", "B")

	svc := NewChatService(ChatDeps{
		Access:      NewRoomAccess(f.users, f.groups, zerolog.Nop()),
		Messages:    f.messages,
		Users:       f.users,
		Presence:    f.presence,
		Broadcaster: f.broadcaster,
		Fanout:      f.fanout,
		Limiter:     f.limiter,
		Dedup:       f.dedup,
	}, ChatConfig{MaxContentLength: 20}, zerolog.Nop())
	f.svc = svc.(*chatService)
	return f
}

func (f *chatFixture) join(t *testing.T, connID, userID, room string) {
	t.Helper()
	if _, err := f.svc.Join(context.Background(), ports.JoinInput{ConnID: connID, UserID: userID, RoomID: room}); err != nil {
		t.Fatalf("join %s/%s: %v", userID, room, err)
	}
}

// ---------------------------------------------------------------------------
// Join / Leave
// ---------------------------------------------------------------------------

func TestChatService_Join_AttachesAndAnnounces(t *testing.T) {
	f := newChatFixture(t)

	entry, err := f.svc.Join(context.Background(), ports.JoinInput{ConnID: "c1", UserID: "A", RoomID: "group_g1"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if entry.RoomID != "group_g1" || entry.UserID != "A" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if f.broadcaster.attached["c1"] != "group_g1" {
		t.Errorf("expected connection attached to room")
	}
	joined := f.broadcaster.roomEvents(domain.EventUserJoined)
	if len(joined) != 1 || joined[0].target != "group_g1" || joined[0].except != "c1" {
		t.Errorf("expected one userJoined excluding the joiner, got: %+v", joined)
	}
}

func TestChatService_Join_DeniedDoesNotAttach(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.Join(context.Background(), ports.JoinInput{ConnID: "c3", UserID: "C", RoomID: "group_g1"})
	if !errors.Is(err, domain.ErrRoomAccessDenied) {
		t.Fatalf("expected ErrRoomAccessDenied, got: %v", err)
	}
	if _, ok := f.presence.entries["c3"]; ok {
		t.Errorf("denied join must not create presence")
	}
	if _, ok := f.broadcaster.attached["c3"]; ok {
		t.Errorf("denied join must not attach the connection")
	}
}

func TestChatService_Join_SwitchRoomAnnouncesLeave(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "c1", "A", "global")
	f.join(t, "c1", "A", "group_g1")

	left := f.broadcaster.roomEvents(domain.EventUserLeft)
	if len(left) != 1 || left[0].target != "global" {
		t.Errorf("expected userLeft on previous room, got: %+v", left)
	}
	if f.presence.entries["c1"].RoomID != "group_g1" {
		t.Errorf("connection must be in exactly the new room")
	}
}

func TestChatService_Join_SameRoomIsQuiet(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "c1", "A", "global")
	f.join(t, "c1", "A", "global")

	if n := len(f.broadcaster.roomEvents(domain.EventUserJoined)); n != 1 {
		t.Errorf("expected a single userJoined, got %d", n)
	}
}

func TestChatService_Leave(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "c1", "A", "global")

	entry, err := f.svc.Leave(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if entry == nil || entry.RoomID != "global" {
		t.Fatalf("expected previous entry, got: %+v", entry)
	}
	if len(f.broadcaster.roomEvents(domain.EventUserLeft)) != 1 {
		t.Errorf("expected userLeft broadcast")
	}

	entry, err = f.svc.Leave(context.Background(), "c1")
	if err != nil || entry != nil {
		t.Errorf("second leave should be a no-op, got: %+v, %v", entry, err)
	}
}

// ---------------------------------------------------------------------------
// SendMessage
// ---------------------------------------------------------------------------

func TestChatService_Send_PrivateRoom_EndToEnd(t *testing.T) {
	f := newChatFixture(t)
	room := "private_user_A_user_B"
	f.join(t, "ca", "A", room)
	f.join(t, "cb", "B", room)

	view, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		ConnID:  "ca",
		UserID:  "A",
		RoomID:  room,
		Content: strPtr("Olá Bruno"),
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(f.messages.created) != 1 {
		t.Fatalf("expected exactly one stored message, got %d", len(f.messages.created))
	}
	stored := f.messages.created[0]
	if stored.RoomID != room || stored.UserID != "A" || stored.Text() != "Olá Bruno" || stored.GroupID != nil {
		t.Errorf("unexpected stored message: %+v", stored)
	}

	recv := f.broadcaster.roomEvents(domain.EventReceiveMessage)
	if len(recv) != 1 || recv[0].target != room || recv[0].except != "" {
		t.Fatalf("expected one broadcast to the whole room, got: %+v", recv)
	}
	sent, ok := recv[0].evt.Data.(domain.MessageView)
	if !ok || sent.ID != view.ID || sent.User.FirstName != "Ana" {
		t.Errorf("broadcast payload should be the stored message with sender, got: %+v", recv[0].evt.Data)
	}

	if len(f.fanout.jobs) != 1 {
		t.Fatalf("expected one fan-out job, got %d", len(f.fanout.jobs))
	}
	if got := f.fanout.jobs[0].Recipients; len(got) != 1 || got[0] != "B" {
		t.Errorf("expected recipients [B], got %v", got)
	}
}

func TestChatService_Send_PrivateRoomEitherSpelling(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "ca", "A", "private_user_A_user_B")
	f.join(t, "cb", "B", "private_user_B_user_A")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		ConnID: "ca", UserID: "A", RoomID: "private_user_A_user_B", Content: strPtr("hello"),
	}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if got := f.messages.created[0].RoomID; got != "private_user_A_user_B" {
		t.Errorf("expected the canonical room, got %q", got)
	}
	if len(f.fanout.jobs) != 1 || len(f.fanout.jobs[0].Recipients) != 1 || f.fanout.jobs[0].Recipients[0] != "B" {
		t.Fatalf("B joined with the reversed key and must be notified, got %+v", f.fanout.jobs)
	}

	// B types using the spelling it joined with.
	if err := f.svc.Typing(context.Background(), ports.TypingInput{
		ConnID: "cb", UserID: "B", RoomID: "private_user_B_user_A", IsTyping: true,
	}); err != nil {
		t.Errorf("typing with the reversed key: %v", err)
	}
	typing := f.broadcaster.roomEvents(domain.EventUserTyping)
	if len(typing) != 1 || typing[0].target != "private_user_A_user_B" {
		t.Errorf("typing should reach the canonical room, got %+v", typing)
	}
}

func TestChatService_Send_GroupMessageCarriesGroupID(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "ca", "A", "group_g1")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "group_g1", Content: strPtr("oi"),
	}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	stored := f.messages.created[0]
	if stored.GroupID == nil || *stored.GroupID != "g1" {
		t.Errorf("expected group id g1, got %v", stored.GroupID)
	}
}

func TestChatService_Send_NonMemberRejected(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "C", RoomID: "group_g1", Content: strPtr("hi"),
	})
	if !errors.Is(err, domain.ErrRoomAccessDenied) {
		t.Fatalf("expected ErrRoomAccessDenied, got: %v", err)
	}
	if len(f.messages.created) != 0 || len(f.broadcaster.room) != 0 || len(f.fanout.jobs) != 0 {
		t.Errorf("rejected send must have no side effects")
	}
}

func TestChatService_Send_OutsiderCannotUsePrivateRoom(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "C", RoomID: "private_user_A_user_B", Content: strPtr("hi"),
	})
	if !errors.Is(err, domain.ErrRoomAccessDenied) {
		t.Fatalf("expected ErrRoomAccessDenied, got: %v", err)
	}
	if len(f.messages.created) != 0 {
		t.Errorf("no message should be stored")
	}
}

func TestChatService_Send_Validation(t *testing.T) {
	cases := []struct {
		name    string
		content *string
		image   string
		want    error
	}{
		{"nothing", nil, "", domain.ErrEmptyMessage},
		{"blank text", strPtr("   "), "", domain.ErrEmptyMessage},
		{"too long", strPtr(strings.Repeat("x", 21)), "", domain.ErrMessageTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newChatFixture(t)
			_, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
				UserID: "A", RoomID: "global", Content: tc.content, ImageURL: tc.image,
			})
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got: %v", tc.want, err)
			}
			if len(f.messages.created) != 0 {
				t.Errorf("invalid message must not be stored")
			}
		})
	}
}

func TestChatService_Send_ImageOnly(t *testing.T) {
	f := newChatFixture(t)

	view, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", ImageURL: "https://cdn.example.com/a.png",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if view.Content != nil || view.ImageURL == "" {
		t.Errorf("expected image-only message, got: %+v", view.Message)
	}
}

func TestChatService_Send_FanoutExcludesSenderAcrossConnections(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "a1", "A", "global")
	f.join(t, "a2", "A", "global")
	f.join(t, "b1", "B", "global")
	f.join(t, "b2", "B", "global")
	f.join(t, "c1", "C", "global")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		ConnID: "a1", UserID: "A", RoomID: "global", Content: strPtr("bom dia"),
	}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	got := f.fanout.jobs[0].Recipients
	if len(got) != 2 {
		t.Fatalf("expected one entry per other user, got %v", got)
	}
	for _, id := range got {
		if id == "A" {
			t.Errorf("sender must not be notified")
		}
	}
}

func TestChatService_Send_AloneSchedulesNothing(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "a1", "A", "global")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", Content: strPtr("eco"),
	}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(f.fanout.jobs) != 0 {
		t.Errorf("expected no fan-out when nobody else is present")
	}
}

func TestChatService_Send_FanoutFailureDoesNotFailSend(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "b1", "B", "global")
	f.fanout.err = errors.New("queue full")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", Content: strPtr("oi"),
	}); err != nil {
		t.Fatalf("fan-out errors must not fail the send, got: %v", err)
	}
	if len(f.messages.created) != 1 {
		t.Errorf("message should still be stored")
	}
}

func TestChatService_Send_PresenceFailureSkipsFanout(t *testing.T) {
	f := newChatFixture(t)
	f.presence.inRoomErr = errors.New("redis down")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", Content: strPtr("oi"),
	}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(f.fanout.jobs) != 0 {
		t.Errorf("expected no fan-out")
	}
}

func TestChatService_Send_RateLimited(t *testing.T) {
	f := newChatFixture(t)
	f.limiter.allow = false

	_, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", Content: strPtr("spam"),
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got: %v", err)
	}
	if len(f.limiter.keys) != 1 || f.limiter.keys[0] != "send:A" {
		t.Errorf("expected limiter keyed by user, got %v", f.limiter.keys)
	}
}

func TestChatService_Send_LimiterErrorDenies(t *testing.T) {
	f := newChatFixture(t)
	f.limiter.allow = true
	f.limiter.err = errors.New("redis down")

	_, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", Content: strPtr("oi"),
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got: %v", err)
	}
}

func TestChatService_Send_DuplicateClientMessageID(t *testing.T) {
	f := newChatFixture(t)
	in := ports.SendMessageInput{UserID: "A", RoomID: "global", Content: strPtr("oi"), ClientMessageID: "m-1"}

	if _, err := f.svc.SendMessage(context.Background(), in); err != nil {
		t.Fatalf("first send: %v", err)
	}
	_, err := f.svc.SendMessage(context.Background(), in)
	if !errors.Is(err, domain.ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got: %v", err)
	}
	if len(f.messages.created) != 1 {
		t.Errorf("retry must not store a second row, got %d", len(f.messages.created))
	}
}

func TestChatService_Send_DedupErrorProcessesAnyway(t *testing.T) {
	f := newChatFixture(t)
	f.dedup.err = errors.New("redis down")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", Content: strPtr("oi"), ClientMessageID: "m-1",
	}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestChatService_Send_PersistFailure(t *testing.T) {
	f := newChatFixture(t)
	f.messages.createErr = errors.New("write failed")

	if _, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "A", RoomID: "global", Content: strPtr("oi"),
	}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.broadcaster.roomEvents(domain.EventReceiveMessage)) != 0 {
		t.Errorf("nothing should be broadcast when the write fails")
	}
}

func TestChatService_Send_RetryAfterPersistFailureIsStored(t *testing.T) {
	f := newChatFixture(t)
	f.messages.createErr = errors.New("write failed")
	in := ports.SendMessageInput{UserID: "A", RoomID: "global", Content: strPtr("oi"), ClientMessageID: "c-7"}

	if _, err := f.svc.SendMessage(context.Background(), in); err == nil {
		t.Fatal("expected the first attempt to fail")
	}

	f.messages.createErr = nil
	if _, err := f.svc.SendMessage(context.Background(), in); err != nil {
		t.Fatalf("retry with the same client id must be accepted, got: %v", err)
	}
	if len(f.messages.created) != 1 {
		t.Fatalf("expected one stored message, got %d", len(f.messages.created))
	}

	// Once stored, the same id is a duplicate again.
	if _, err := f.svc.SendMessage(context.Background(), in); !errors.Is(err, domain.ErrDuplicateMessage) {
		t.Errorf("expected ErrDuplicateMessage, got: %v", err)
	}
}

func TestChatService_Send_UnknownSenderStillDelivered(t *testing.T) {
	f := newChatFixture(t)

	view, err := f.svc.SendMessage(context.Background(), ports.SendMessageInput{
		UserID: "ghost", RoomID: "global", Content: strPtr("boo"),
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if view.User.ID != "ghost" || view.User.FirstName != "" {
		t.Errorf("expected bare sender, got %+v", view.User)
	}
}

// ---------------------------------------------------------------------------
// Typing / Heartbeat
// ---------------------------------------------------------------------------

func TestChatService_Typing(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "ca", "A", "global")

	err := f.svc.Typing(context.Background(), ports.TypingInput{ConnID: "ca", UserID: "A", RoomID: "global", IsTyping: true})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	typing := f.broadcaster.roomEvents(domain.EventUserTyping)
	if len(typing) != 1 || typing[0].except != "ca" {
		t.Fatalf("expected typing relayed to others, got %+v", typing)
	}
	if p, ok := typing[0].evt.Data.(domain.TypingPayload); !ok || !p.IsTyping {
		t.Errorf("unexpected payload: %+v", typing[0].evt.Data)
	}
}

func TestChatService_Typing_NotInRoom(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "ca", "A", "global")

	for _, in := range []ports.TypingInput{
		{ConnID: "ca", UserID: "A", RoomID: "group_g1"},
		{ConnID: "unknown", UserID: "A", RoomID: "global"},
	} {
		if err := f.svc.Typing(context.Background(), in); !errors.Is(err, domain.ErrNotInRoom) {
			t.Errorf("%+v: expected ErrNotInRoom, got: %v", in, err)
		}
	}
}

func TestChatService_Heartbeat_UnknownConnIsNoop(t *testing.T) {
	f := newChatFixture(t)

	if err := f.svc.Heartbeat(context.Background(), "nope"); err != nil {
		t.Errorf("expected nil, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// History / Presence
// ---------------------------------------------------------------------------

func TestChatService_History_ChronologicalWithCursor(t *testing.T) {
	f := newChatFixture(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		f.messages.created = append(f.messages.created, &domain.Message{
			ID:        string(rune('a' + i)),
			Content:   strPtr("msg"),
			UserID:    "A",
			RoomID:    "global",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	res, err := f.svc.History(context.Background(), ports.HistoryInput{UserID: "B", RoomID: "global", Limit: 3})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(res.Items))
	}
	if res.Items[0].ID != "c" || res.Items[2].ID != "e" {
		t.Errorf("expected oldest-first page c..e, got %s..%s", res.Items[0].ID, res.Items[2].ID)
	}
	if res.Items[0].User.FirstName != "Ana" {
		t.Errorf("expected sender joined onto history")
	}
	if !res.NextBefore.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("unexpected cursor: %v", res.NextBefore)
	}

	res, err = f.svc.History(context.Background(), ports.HistoryInput{UserID: "B", RoomID: "global", Before: res.NextBefore, Limit: 3})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(res.Items) != 2 || !res.NextBefore.IsZero() {
		t.Errorf("expected final page of 2 with no cursor, got %d items, cursor %v", len(res.Items), res.NextBefore)
	}
}

func TestChatService_History_SameTimestampAcrossPages(t *testing.T) {
	f := newChatFixture(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		f.messages.created = append(f.messages.created, &domain.Message{
			ID: id, Content: strPtr("burst"), UserID: "A", RoomID: "global", CreatedAt: at,
		})
	}

	first, err := f.svc.History(context.Background(), ports.HistoryInput{UserID: "B", RoomID: "global", Limit: 2})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if first.NextBeforeID != "m3" || !first.NextBefore.Equal(at) {
		t.Fatalf("expected cursor at m3, got %v/%q", first.NextBefore, first.NextBeforeID)
	}

	second, err := f.svc.History(context.Background(), ports.HistoryInput{
		UserID: "B", RoomID: "global", Before: first.NextBefore, BeforeID: first.NextBeforeID, Limit: 2,
	})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}

	var seen []string
	for _, page := range [][]domain.MessageView{second.Items, first.Items} {
		for _, m := range page {
			seen = append(seen, m.ID)
		}
	}
	if strings.Join(seen, ",") != "m1,m2,m3,m4" {
		t.Errorf("messages sharing the boundary timestamp must not be skipped, got %v", seen)
	}
}

func TestChatService_History_DeniedForOutsider(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.History(context.Background(), ports.HistoryInput{UserID: "C", RoomID: "group_g1"})
	if !errors.Is(err, domain.ErrRoomAccessDenied) {
		t.Errorf("expected ErrRoomAccessDenied, got: %v", err)
	}
}

func TestChatService_Presence(t *testing.T) {
	f := newChatFixture(t)
	f.join(t, "ca", "A", "group_g1")
	f.join(t, "cb", "B", "group_g1")

	entries, err := f.svc.Presence(context.Background(), "A", "group_g1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}

	if _, err := f.svc.Presence(context.Background(), "C", "group_g1"); !errors.Is(err, domain.ErrRoomAccessDenied) {
		t.Errorf("expected ErrRoomAccessDenied, got: %v", err)
	}
}
