package submission

import (
	"context"

	"vakhtabot/internal/storage"
	"vakhtabot/internal/transport"
	logx "vakhtabot/pkg/logx"
)

// Gate answers "may this user submit?" by querying live channel membership
// and recording the answer on the stored User.
type Gate struct {
	adapter   transport.Adapter
	store     storage.Store
	log       logx.Logger
	channelID int64
}

func NewGate(adapter transport.Adapter, store storage.Store, log logx.Logger, channelID int64) *Gate {
	return &Gate{adapter: adapter, store: store, log: log, channelID: channelID}
}

// Check returns whether userID is currently a member of the channel.
// A failed membership query counts as "not a member": submissions stay
// closed when the platform cannot confirm the subscription.
func (g *Gate) Check(ctx context.Context, userID int64) bool {
	status, err := g.adapter.GetChatMember(ctx, g.channelID, userID)
	if err != nil {
		g.log.Warn("membership query failed", logx.Int64("user_id", userID), logx.Err(err))
		return false
	}
	member := status.IsMember()
	if err := g.store.SetSubscribed(ctx, userID, member); err != nil {
		g.log.Warn("failed to record subscription flag", logx.Int64("user_id", userID), logx.Err(err))
	}
	return member
}
