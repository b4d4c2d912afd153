package domain

import (
	"context"
	"time"
)

// Session tracks a conversation between a client and the agent.
type Session struct {
	ID        string    `json:"id"`
	Persona   string    `json:"persona,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages,omitempty"`
}

// CurrentTurn returns the number of user messages in the session.
func (s *Session) CurrentTurn() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// TurnContext identifies the turn a tool call is executed for.
type TurnContext struct {
	SessionID string
	Token     string
	Turn      int
}

type turnKey struct{}

// WithTurn attaches the turn identity to ctx.
func WithTurn(ctx context.Context, tc TurnContext) context.Context {
	return context.WithValue(ctx, turnKey{}, tc)
}

// TurnFromContext returns the turn identity set by WithTurn.
func TurnFromContext(ctx context.Context) (TurnContext, bool) {
	tc, ok := ctx.Value(turnKey{}).(TurnContext)
	return tc, ok
}
