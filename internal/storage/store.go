package storage

import "context"

// Store is the persistence API consumed by the core.
type Store interface {
	// Users
	UpsertUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id int64) (User, error)
	SetSubscribed(ctx context.Context, id int64, subscribed bool) error
	SetBlocked(ctx context.Context, id int64, blocked bool) error
	ListActiveUsers(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (UserCounts, error)

	// Postings
	InsertPosting(ctx context.Context, p Posting) (int64, error)
	ListPostings(ctx context.Context, f PostingFilter) ([]Posting, error)
	GetPostingStats(ctx context.Context) (PostingStats, error)

	// Audit log
	AppendLog(ctx context.Context, e LogEntry) error
	ListLogs(ctx context.Context, f LogFilter) ([]LogEntry, error)

	// Broadcast runs
	CreateBroadcast(ctx context.Context, adminID int64, text string, total int) (int64, error)
	UpdateBroadcastCounts(ctx context.Context, id int64, sent, failed int) error
	CompleteBroadcast(ctx context.Context, id int64) error
	ListBroadcasts(ctx context.Context, limit int) ([]BroadcastRun, error)
	ListStaleBroadcasts(ctx context.Context) ([]BroadcastRun, error)

	Close() error
}
