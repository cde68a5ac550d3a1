package ports

import (
	"context"

	"github.com/layer-3/palette/core"
)

// EventPublisher fans out notable protocol events to other services.
// Publishing is best effort; callers never fail a request because of it.
type EventPublisher interface {
	PublishSessionIssued(ctx context.Context, session *core.Session, created bool) error
	PublishSignedOut(ctx context.Context, session *core.Session) error
	PublishVoucherIssued(ctx context.Context, voucher *core.ClaimVoucher) error
}
