package opencode

import (
	"context"

	"github.com/agentwire/opencode-go/acp"
	"github.com/agentwire/opencode-go/agentmsg"
	"github.com/agentwire/opencode-go/serve"
)

// backendSession is the contract both backends meet: submit a prompt,
// stream the turn, interrupt if possible, and tear down. serve.Session
// satisfies it directly; the subprocess client is adapted below.
type backendSession interface {
	SessionID() string
	Submit(ctx context.Context, parts []agentmsg.Part) error
	Stream(ctx context.Context) *agentmsg.Stream
	Interrupt(ctx context.Context) error
	Close() error
}

var (
	_ backendSession = (*serve.Session)(nil)
	_ backendSession = (*acpBackend)(nil)
)

type acpBackend struct {
	client *acp.Client
}

func (b *acpBackend) SessionID() string {
	return b.client.SessionID()
}

func (b *acpBackend) Submit(ctx context.Context, parts []agentmsg.Part) error {
	return b.client.SubmitPrompt(ctx, parts)
}

func (b *acpBackend) Stream(ctx context.Context) *agentmsg.Stream {
	return b.client.Stream(ctx)
}

func (b *acpBackend) Interrupt(context.Context) error {
	return b.client.Cancel()
}

func (b *acpBackend) Close() error {
	return b.client.Stop()
}
