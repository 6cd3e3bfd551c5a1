package submission

import (
	"context"
	"errors"
	"sync"

	"vakhtabot/internal/config"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/transport"
)

type sentMsg struct {
	ChatID int64
	Text   string
}

type fakeAdapter struct {
	mu        sync.Mutex
	sent      []sentMsg
	sendErr   map[int64]error // per chat id
	status    transport.MemberStatus
	statusErr error
	nextMsgID int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{sendErr: map[int64]error{}, status: transport.StatusMember}
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.sendErr[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	a.nextMsgID++
	a.sent = append(a.sent, sentMsg{ChatID: to.ChatID, Text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: a.nextMsgID}, nil
}

func (a *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}

func (a *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func (a *fakeAdapter) GetChatMember(ctx context.Context, chatID, userID int64) (transport.MemberStatus, error) {
	return a.status, a.statusErr
}

func (a *fakeAdapter) sentTo(chatID int64) []sentMsg {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []sentMsg
	for _, m := range a.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (a *fakeAdapter) lastTo(chatID int64) (sentMsg, bool) {
	msgs := a.sentTo(chatID)
	if len(msgs) == 0 {
		return sentMsg{}, false
	}
	return msgs[len(msgs)-1], true
}

type fakeStore struct {
	mu         sync.Mutex
	users      map[int64]storage.User
	postings   []storage.Posting
	logs       []storage.LogEntry
	failInsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]storage.User{}}
}

func (s *fakeStore) UpsertUser(ctx context.Context, u storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[u.ID]; ok {
		prev.Username = u.Username
		prev.FirstName = u.FirstName
		prev.LastName = u.LastName
		s.users[u.ID] = prev
		return nil
	}
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) GetUser(ctx context.Context, id int64) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) SetSubscribed(ctx context.Context, id int64, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.ID = id
	u.Subscribed = v
	s.users[id] = u
	return nil
}

func (s *fakeStore) SetBlocked(ctx context.Context, id int64, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.ID = id
	u.Blocked = v
	s.users[id] = u
	return nil
}

func (s *fakeStore) ListActiveUsers(ctx context.Context) ([]storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.User
	for _, u := range s.users {
		if !u.Blocked {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) CountUsers(ctx context.Context) (storage.UserCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := storage.UserCounts{Total: len(s.users)}
	for _, u := range s.users {
		if u.Subscribed {
			c.Subscribed++
		}
		if u.Blocked {
			c.Blocked++
		}
	}
	c.Active = c.Total - c.Blocked
	return c, nil
}

func (s *fakeStore) InsertPosting(ctx context.Context, p storage.Posting) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return 0, errors.New("disk full")
	}
	p.ID = int64(len(s.postings) + 1)
	s.postings = append(s.postings, p)
	return p.ID, nil
}

func (s *fakeStore) ListPostings(ctx context.Context, f storage.PostingFilter) ([]storage.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Posting(nil), s.postings...), nil
}

func (s *fakeStore) GetPostingStats(ctx context.Context) (storage.PostingStats, error) {
	return storage.PostingStats{}, nil
}

func (s *fakeStore) AppendLog(ctx context.Context, e storage.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return nil
}

func (s *fakeStore) ListLogs(ctx context.Context, f storage.LogFilter) ([]storage.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.LogEntry(nil), s.logs...), nil
}

func (s *fakeStore) CreateBroadcast(ctx context.Context, adminID int64, text string, total int) (int64, error) {
	return 1, nil
}
func (s *fakeStore) UpdateBroadcastCounts(ctx context.Context, id int64, sent, failed int) error {
	return nil
}
func (s *fakeStore) CompleteBroadcast(ctx context.Context, id int64) error { return nil }
func (s *fakeStore) ListBroadcasts(ctx context.Context, limit int) ([]storage.BroadcastRun, error) {
	return nil, nil
}
func (s *fakeStore) ListStaleBroadcasts(ctx context.Context) ([]storage.BroadcastRun, error) {
	return nil, nil
}
func (s *fakeStore) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{Token: "test"},
		Storage:  config.StorageConfig{Path: "test.db"},
		Channel: config.ChannelConfig{
			ChatID:        -100500,
			Name:          "@vakhtasever",
			AdminUsername: "vakhta_admin",
		},
		Moderation: config.ModerationConfig{
			ResumePhrases:  []string{"ищу работу", "резюме"},
			VacancyPhrases: []string{"требуется", "вакансия"},
			BannedWords:    []string{"спам"},
		},
	}
}
