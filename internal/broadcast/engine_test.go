package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"vakhtabot/internal/config"
	"vakhtabot/internal/storage"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []int64
	sendErr map[int64]error
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                               { return nil }
func (a *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}
func (a *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error { return nil }
func (a *fakeAdapter) GetChatMember(ctx context.Context, chatID, userID int64) (transport.MemberStatus, error) {
	return transport.StatusMember, nil
}

func (a *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.sendErr[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	a.sent = append(a.sent, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

type countsUpdate struct {
	Sent, Failed int
}

type fakeStore struct {
	storage.Store // panics on anything the engine should never call

	mu        sync.Mutex
	runID     int64
	total     int
	updates   []countsUpdate
	completed bool
	blocked   map[int64]bool
	logs      []storage.LogEntry

	createErr   error
	completeErr error
	// failUpdates fails that many UpdateBroadcastCounts calls before
	// letting the rest through.
	failUpdates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocked: map[int64]bool{}}
}

func (s *fakeStore) CreateBroadcast(ctx context.Context, adminID int64, text string, total int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return 0, s.createErr
	}
	s.runID = 7
	s.total = total
	return s.runID, nil
}

func (s *fakeStore) UpdateBroadcastCounts(ctx context.Context, id int64, sent, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates > 0 {
		s.failUpdates--
		return errors.New("disk full")
	}
	s.updates = append(s.updates, countsUpdate{Sent: sent, Failed: failed})
	return nil
}

func (s *fakeStore) CompleteBroadcast(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completed = true
	return nil
}

func (s *fakeStore) SetBlocked(ctx context.Context, id int64, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[id] = v
	return nil
}

func (s *fakeStore) AppendLog(ctx context.Context, e storage.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Telegram:  config.TelegramConfig{Token: "test"},
		Storage:   config.StorageConfig{Path: "test.db"},
		Channel:   config.ChannelConfig{ChatID: -1},
		Broadcast: config.BroadcastConfig{SendDelay: "1ms", ProgressEvery: 10},
	}
}

func recipients(n int) []storage.User {
	out := make([]storage.User, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, storage.User{ID: int64(i)})
	}
	return out
}

func TestRunDeliversAndCompletes(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{}}
	st := newFakeStore()
	e := New(a, st, logx.Nop(), testConfig())

	var reports []countsUpdate
	sum, err := e.Run(context.Background(), 99, "привет", recipients(23), func(sent, failed, processed, total int) {
		reports = append(reports, countsUpdate{Sent: sent, Failed: failed})
		if sent+failed > total {
			t.Errorf("sent+failed = %d exceeds total %d", sent+failed, total)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Sent != 23 || sum.Failed != 0 || sum.Total != 23 {
		t.Fatalf("summary = %+v, want 23/0/23", sum)
	}
	if len(a.sent) != 23 {
		t.Fatalf("deliveries = %d, want 23", len(a.sent))
	}
	if !st.completed {
		t.Errorf("run not marked completed")
	}
	// Initial report, one at 10, one at 20, final at 23.
	if len(reports) != 4 {
		t.Errorf("progress reports = %d, want 4", len(reports))
	}
	last := st.updates[len(st.updates)-1]
	if last.Sent != 23 || last.Failed != 0 {
		t.Errorf("final persisted counts = %+v", last)
	}
	if len(st.logs) != 1 || st.logs[0].Kind != "broadcast" {
		t.Errorf("logs = %+v, want one broadcast entry", st.logs)
	}
}

func TestBlockedRecipientIsFlaggedNotFatal(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{
		5: errors.New("telegram: Forbidden: bot was blocked by the user (403)"),
	}}
	st := newFakeStore()
	e := New(a, st, logx.Nop(), testConfig())

	sum, err := e.Run(context.Background(), 99, "текст", recipients(23), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 22 || sum.Failed != 1 {
		t.Fatalf("summary = %+v, want sent=22 failed=1", sum)
	}
	if !st.blocked[5] {
		t.Errorf("recipient 5 not marked blocked")
	}
	if sum.Sent+sum.Failed != sum.Total {
		t.Errorf("sent+failed = %d, want total %d", sum.Sent+sum.Failed, sum.Total)
	}
}

func TestTransientFailureDoesNotBlock(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{
		3: errors.New("telegram: Too Many Requests: retry after 5 (429)"),
	}}
	st := newFakeStore()
	e := New(a, st, logx.Nop(), testConfig())

	sum, err := e.Run(context.Background(), 99, "текст", recipients(5), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 4 || sum.Failed != 1 {
		t.Fatalf("summary = %+v, want sent=4 failed=1", sum)
	}
	if st.blocked[3] {
		t.Errorf("transient failure must not set the blocked flag")
	}
}

func TestCreateFailureAborts(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{}}
	st := newFakeStore()
	st.createErr = fmt.Errorf("disk full")
	e := New(a, st, logx.Nop(), testConfig())

	if _, err := e.Run(context.Background(), 99, "текст", recipients(3), nil); err == nil {
		t.Fatalf("Run succeeded without a run record")
	}
	if len(a.sent) != 0 {
		t.Errorf("deliveries happened without a run record: %v", a.sent)
	}
}

func TestCompleteFailureSurfacesAfterDelivery(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{}}
	st := newFakeStore()
	st.completeErr = errors.New("disk full")
	e := New(a, st, logx.Nop(), testConfig())

	sum, err := e.Run(context.Background(), 99, "текст", recipients(3), nil)
	if err == nil {
		t.Fatalf("Run reported success although the run record was not finalized")
	}
	// Deliveries happen before finalization and must not be lost.
	if len(a.sent) != 3 || sum.Sent != 3 {
		t.Fatalf("deliveries = %d, summary = %+v, want all 3 delivered", len(a.sent), sum)
	}
	if st.completed {
		t.Errorf("run marked completed despite the finalization error")
	}
	// The final counts were still flushed before completion failed.
	last := st.updates[len(st.updates)-1]
	if last.Sent != 3 || last.Failed != 0 {
		t.Errorf("final persisted counts = %+v", last)
	}
}

func TestFinalCountsFailureSurfaces(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{}}
	st := newFakeStore()
	st.failUpdates = 1 // only the finalizing flush runs for 3 recipients
	e := New(a, st, logx.Nop(), testConfig())

	if _, err := e.Run(context.Background(), 99, "текст", recipients(3), nil); err == nil {
		t.Fatalf("Run reported success although the final counts were not persisted")
	}
	if st.completed {
		t.Errorf("run marked completed despite the finalization error")
	}
}

func TestProgressFlushFailureDoesNotAbort(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{}}
	st := newFakeStore()
	st.failUpdates = 2 // the mid-run flushes at 10 and 20 processed
	e := New(a, st, logx.Nop(), testConfig())

	sum, err := e.Run(context.Background(), 99, "текст", recipients(23), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 23 || !st.completed {
		t.Fatalf("summary = %+v completed=%v, want full delivery and completion", sum, st.completed)
	}
	last := st.updates[len(st.updates)-1]
	if last.Sent != 23 || last.Failed != 0 {
		t.Errorf("final persisted counts = %+v", last)
	}
}

func TestCancelledRunLeftInProgress(t *testing.T) {
	t.Parallel()
	a := &fakeAdapter{sendErr: map[int64]error{}}
	st := newFakeStore()
	e := New(a, st, logx.Nop(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, 99, "текст", recipients(3), nil)
	if err == nil {
		t.Fatalf("Run ignored cancellation")
	}
	if st.completed {
		t.Errorf("cancelled run must stay in progress")
	}
}
