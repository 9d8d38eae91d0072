package adapter

import (
	"context"

	M "github.com/sagernet/sing/common/metadata"

	"github.com/gofrs/uuid/v5"
)

type InboundContext struct {
	Inbound     string
	Source      M.Socksaddr
	Destination M.Socksaddr
	Session     uuid.UUID
	Intercepted bool
}

type inboundContextKey struct{}

func WithContext(ctx context.Context, inboundContext *InboundContext) context.Context {
	return context.WithValue(ctx, (*inboundContextKey)(nil), inboundContext)
}

func ContextFrom(ctx context.Context) *InboundContext {
	metadata := ctx.Value((*inboundContextKey)(nil))
	if metadata == nil {
		return nil
	}
	return metadata.(*InboundContext)
}
