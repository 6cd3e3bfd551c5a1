package submission

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vakhtabot/internal/storage"
	"vakhtabot/internal/texts"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

const (
	testUserID  int64 = 42
	testChatID  int64 = 42
	testChannel int64 = -100500
)

func newTestService(t *testing.T) (*Service, *fakeAdapter, *fakeStore) {
	t.Helper()
	a := newFakeAdapter()
	st := newFakeStore()
	return New(a, st, logx.Nop(), testConfig()), a, st
}

func userMsg(text string) *transport.Message {
	return &transport.Message{
		ChatID:       testChatID,
		FromID:       testUserID,
		FromUsername: "ivan",
		FirstName:    "Иван",
		Text:         text,
	}
}

func startSession(t *testing.T, s *Service) {
	t.Helper()
	s.HandlePost(context.Background(), userMsg("/post"))
	if !s.InSession(testUserID) {
		t.Fatalf("session not created after /post")
	}
}

func advanceToText(t *testing.T, s *Service) {
	t.Helper()
	startSession(t, s)
	s.HandleText(context.Background(), userMsg("89991234567"))
	sess, ok := s.sessions.get(testUserID)
	if !ok || sess.state != StateAwaitingText {
		t.Fatalf("state after phone = %v, want awaiting_text", sess)
	}
}

func TestPostRefusedWhenNotSubscribed(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)
	a.status = transport.StatusLeft

	s.HandlePost(context.Background(), userMsg("/post"))

	if s.InSession(testUserID) {
		t.Fatalf("session created for non-member")
	}
	last, ok := a.lastTo(testChatID)
	if !ok || !strings.Contains(last.Text, "подпишитесь") {
		t.Fatalf("reply = %q, want subscription prompt", last.Text)
	}
}

func TestFullFlowPublishesResume(t *testing.T) {
	t.Parallel()
	s, a, st := newTestService(t)
	advanceToText(t, s)

	draft := "Ищу работу водителем, опыт 5 лет"
	s.HandleText(context.Background(), userMsg(draft))

	channelMsgs := a.sentTo(testChannel)
	if len(channelMsgs) != 1 {
		t.Fatalf("channel messages = %d, want 1", len(channelMsgs))
	}
	post := channelMsgs[0].Text
	if !strings.HasPrefix(post, draft) {
		t.Errorf("post does not start with the draft: %q", post)
	}
	if !strings.Contains(post, "Связь: +79991234567") {
		t.Errorf("post missing normalized contact line: %q", post)
	}
	if !strings.Contains(post, "#резюме") {
		t.Errorf("post missing resume hashtag: %q", post)
	}

	if len(st.postings) != 1 {
		t.Fatalf("postings = %d, want 1", len(st.postings))
	}
	p := st.postings[0]
	if p.Status != storage.PostingPublished || p.Category != "resume" {
		t.Errorf("posting = %s/%s, want published/resume", p.Status, p.Category)
	}
	if p.Text != draft {
		t.Errorf("stored text = %q, want the raw draft", p.Text)
	}
	if p.ChannelMessageID == 0 {
		t.Errorf("channel message id not recorded")
	}

	if s.InSession(testUserID) {
		t.Errorf("session survived publication")
	}
	last, _ := a.lastTo(testChatID)
	if !strings.Contains(last.Text, "опубликовано") {
		t.Errorf("user notice = %q, want success text", last.Text)
	}
}

func TestVacancyGetsVacancyHashtag(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)
	advanceToText(t, s)

	s.HandleText(context.Background(), userMsg("Требуется машинист экскаватора"))

	channelMsgs := a.sentTo(testChannel)
	if len(channelMsgs) != 1 {
		t.Fatalf("channel messages = %d, want 1", len(channelMsgs))
	}
	if !strings.Contains(channelMsgs[0].Text, "#вакансия") {
		t.Errorf("post missing vacancy hashtag: %q", channelMsgs[0].Text)
	}
}

func TestBannedWordRejectionIsPersisted(t *testing.T) {
	t.Parallel()
	s, a, st := newTestService(t)
	advanceToText(t, s)

	s.HandleText(context.Background(), userMsg("Ищу работу, рассылаю спам недорого"))

	if got := len(a.sentTo(testChannel)); got != 0 {
		t.Fatalf("channel messages = %d, want 0", got)
	}
	if len(st.postings) != 1 {
		t.Fatalf("postings = %d, want 1", len(st.postings))
	}
	p := st.postings[0]
	if p.Status != storage.PostingRejected || p.RejectReason == "" {
		t.Errorf("posting = %s reason=%q, want rejected with a reason", p.Status, p.RejectReason)
	}
	if s.InSession(testUserID) {
		t.Errorf("session survived rejection")
	}
	last, _ := a.lastTo(testChatID)
	if !strings.Contains(last.Text, "запрещённые слова") {
		t.Errorf("user notice = %q, want banned-words rejection", last.Text)
	}
}

func TestUnclassifiedTextIsRejected(t *testing.T) {
	t.Parallel()
	s, a, st := newTestService(t)
	advanceToText(t, s)

	s.HandleText(context.Background(), userMsg("Продам гараж в хорошем состоянии"))

	if got := len(a.sentTo(testChannel)); got != 0 {
		t.Fatalf("channel messages = %d, want 0", got)
	}
	if len(st.postings) != 1 || st.postings[0].Status != storage.PostingRejected {
		t.Fatalf("expected one rejected posting, got %+v", st.postings)
	}
	last, _ := a.lastTo(testChatID)
	if !strings.Contains(last.Text, "не начинается") {
		t.Errorf("user notice = %q, want opening-phrase rejection", last.Text)
	}
}

func TestAdTextDuringPhoneStepKeepsState(t *testing.T) {
	t.Parallel()
	s, a, st := newTestService(t)
	startSession(t, s)

	s.HandleText(context.Background(), userMsg("Ищу работу водителем на вахту"))

	sess, ok := s.sessions.get(testUserID)
	if !ok || sess.state != StateAwaitingPhone {
		t.Fatalf("state = %v, want awaiting_phone preserved", sess)
	}
	if len(st.postings) != 0 {
		t.Fatalf("posting persisted during phone step")
	}
	last, _ := a.lastTo(testChatID)
	if last.Text != texts.PhoneBeforeText {
		t.Errorf("reply = %q, want step-order reminder", last.Text)
	}
}

func TestGarbledPhoneAsksAgain(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)
	startSession(t, s)

	// Phone-like but not parseable as a Russian number.
	s.HandleText(context.Background(), userMsg("+1 999 123 45 67"))

	sess, _ := s.sessions.get(testUserID)
	if sess.state != StateAwaitingPhone {
		t.Fatalf("state = %v, want awaiting_phone", sess.state)
	}
	last, _ := a.lastTo(testChatID)
	if last.Text != texts.AskPhoneAgain {
		t.Errorf("reply = %q, want re-prompt", last.Text)
	}
}

func TestContactShareAdvancesPhoneStep(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)
	startSession(t, s)

	s.HandleContact(context.Background(), &transport.Contact{
		FromID:      testUserID,
		ChatID:      testChatID,
		PhoneNumber: "+7 999 123-45-67",
	})

	sess, _ := s.sessions.get(testUserID)
	if sess.state != StateAwaitingText {
		t.Fatalf("state = %v, want awaiting_text", sess.state)
	}
	if sess.phone != "+79991234567" {
		t.Errorf("phone = %q, want normalized", sess.phone)
	}
	last, _ := a.lastTo(testChatID)
	if last.Text != texts.AskText {
		t.Errorf("reply = %q, want ad-text prompt", last.Text)
	}
}

func TestContactShareOutsideSessionIgnored(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)

	s.HandleContact(context.Background(), &transport.Contact{
		FromID:      testUserID,
		ChatID:      testChatID,
		PhoneNumber: "+79991234567",
	})

	if got := len(a.sentTo(testChatID)); got != 0 {
		t.Fatalf("replies = %d, want 0", got)
	}
}

func TestMediaRejectedStateUntouched(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)
	startSession(t, s)

	s.HandleMedia(context.Background(), userMsg(""))

	sess, ok := s.sessions.get(testUserID)
	if !ok || sess.state != StateAwaitingPhone {
		t.Fatalf("media changed session state: %v", sess)
	}
	last, _ := a.lastTo(testChatID)
	if last.Text != texts.TextOnly {
		t.Errorf("reply = %q, want text-only notice", last.Text)
	}
}

func TestCancelDropsSession(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)
	startSession(t, s)

	s.HandleCancel(context.Background(), userMsg("/cancel"))
	if s.InSession(testUserID) {
		t.Fatalf("session survived cancel")
	}
	last, _ := a.lastTo(testChatID)
	if last.Text != texts.Cancelled {
		t.Errorf("reply = %q, want cancel confirmation", last.Text)
	}

	s.HandleCancel(context.Background(), userMsg("/cancel"))
	last, _ = a.lastTo(testChatID)
	if last.Text != texts.NothingToCancel {
		t.Errorf("reply = %q, want nothing-to-cancel", last.Text)
	}
}

func TestTransientChannelFailure(t *testing.T) {
	t.Parallel()
	s, a, st := newTestService(t)
	advanceToText(t, s)
	a.sendErr[testChannel] = errors.New("telegram: internal server error (500)")

	s.HandleText(context.Background(), userMsg("Ищу работу водителем категории Е"))

	if len(st.postings) != 0 {
		t.Fatalf("posting persisted despite failed channel send: %+v", st.postings)
	}
	if s.InSession(testUserID) {
		t.Errorf("session survived transient failure")
	}
	last, _ := a.lastTo(testChatID)
	if !strings.Contains(last.Text, "попробуйте позже") {
		t.Errorf("reply = %q, want retry-later notice", last.Text)
	}
}

func TestPersistenceFailureAbortsPublication(t *testing.T) {
	t.Parallel()
	s, a, st := newTestService(t)
	advanceToText(t, s)
	st.failInsert = true

	s.HandleText(context.Background(), userMsg("Ищу работу водителем"))

	if s.InSession(testUserID) {
		t.Errorf("session survived aborted publication")
	}
	last, _ := a.lastTo(testChatID)
	if !strings.Contains(last.Text, "попробуйте позже") {
		t.Errorf("reply = %q, want failure notice", last.Text)
	}
}

func TestStartLogsAndWelcomes(t *testing.T) {
	t.Parallel()
	s, a, st := newTestService(t)

	s.HandleStart(context.Background(), userMsg("/start"))

	if _, err := st.GetUser(context.Background(), testUserID); err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if len(st.logs) != 1 || st.logs[0].Kind != "start" {
		t.Fatalf("logs = %+v, want one start entry", st.logs)
	}
	last, _ := a.lastTo(testChatID)
	if !strings.Contains(last.Text, "@vakhtasever") {
		t.Errorf("welcome = %q, want channel mention", last.Text)
	}
}

func TestTextOutsideSessionHints(t *testing.T) {
	t.Parallel()
	s, a, _ := newTestService(t)

	s.HandleText(context.Background(), userMsg("привет"))

	last, _ := a.lastTo(testChatID)
	if last.Text != texts.StartHint {
		t.Errorf("reply = %q, want start hint", last.Text)
	}
}
