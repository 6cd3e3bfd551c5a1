package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// User is created on first contact and never deleted. The subscription flag
// follows membership events; the blocked flag is set only when a broadcast
// send reports a permanent recipient failure.
type User struct {
	ID         int64 // telegram user id
	Username   string
	FirstName  string
	LastName   string
	Subscribed bool
	Blocked    bool
	CreatedAt  time.Time
	LastSeen   time.Time
}

type PostingStatus string

const (
	PostingPublished PostingStatus = "published"
	PostingRejected  PostingStatus = "rejected"
)

// Posting is immutable once created: no edit or retract.
// Category is "unknown" only for rejected postings.
type Posting struct {
	ID               int64
	UserID           int64
	Username         string
	Text             string
	Category         string // "resume" | "vacancy" | "unknown"
	Status           PostingStatus
	RejectReason     string // set iff rejected
	ChannelMessageID int    // set iff published
	CreatedAt        time.Time
}

type PostingFilter struct {
	Status   PostingStatus
	Category string
	Limit    int
	Offset   int
}

type LogEntry struct {
	ID      int64
	Kind    string // "start", "posting_published", "posting_rejected", "unsubscribe", "broadcast", ...
	UserID  int64  // 0 when not tied to a user
	Message string
	Details string
	At      time.Time
}

type LogFilter struct {
	Kind   string
	Limit  int
	Offset int
}

type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
)

// BroadcastRun keeps sent+failed <= total at every observation point and
// sent+failed == total once completed.
type BroadcastRun struct {
	ID          int64
	AdminID     int64
	Text        string
	Total       int
	Sent        int
	Failed      int
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt time.Time // zero while in progress
}

type UserCounts struct {
	Total      int
	Subscribed int
	Blocked    int
	Active     int
}

type PostingStats struct {
	Total     int
	Published int
	Rejected  int
	Resumes   int
	Vacancies int
}
