package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parlor/pkg/interfaces"
	"parlor/pkg/types"
)

// FallbackReply is what the assistant says when the generation service
// is unconfigured or failing. The message pipeline always has something
// to persist and broadcast; assistant failure never propagates into it.
const FallbackReply = "Sorry, I can't answer right now. Please try again later."

// Bridge detects assistant invocations and produces replies under a
// synthetic identity. The identity row is created lazily on first use
// and cached for the life of the process.
type Bridge struct {
	log      zerolog.Logger
	gen      interfaces.Generator // nil when unconfigured
	store    interfaces.MessageStore
	username string
	timeout  time.Duration

	identityMu sync.Mutex
	identity   *types.Identity
}

// NewBridge creates a bridge. gen may be nil, in which case every reply
// is the fallback text.
func NewBridge(gen interfaces.Generator, store interfaces.MessageStore, username string, timeout time.Duration, log zerolog.Logger) *Bridge {
	return &Bridge{
		log:      log.With().Str("component", "assistant").Logger(),
		gen:      gen,
		store:    store,
		username: username,
		timeout:  timeout,
	}
}

// Username returns the assistant's identity name.
func (b *Bridge) Username() string {
	return b.username
}

// ExtractPrompt reports whether content invokes the assistant and, if
// so, returns the trimmed prompt text following the invocation token.
// The token match is case-insensitive.
func (b *Bridge) ExtractPrompt(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	token := "@" + b.username
	if len(trimmed) < len(token) || !strings.EqualFold(trimmed[:len(token)], token) {
		return "", false
	}
	rest := trimmed[len(token):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false // a longer mention like "@botanist"
	}
	return strings.TrimSpace(rest), true
}

// Reply produces the assistant's answer to prompt. It returns a
// user-facing fallback string rather than an error when the service is
// unconfigured or the call fails.
func (b *Bridge) Reply(ctx context.Context, prompt string) string {
	if b.gen == nil {
		return FallbackReply
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	reply, err := b.gen.Generate(ctx, prompt)
	if err != nil {
		b.log.Warn().Err(err).Msg("generation failed, using fallback")
		return FallbackReply
	}
	return reply
}

// Identity resolves the assistant's synthetic identity. The backing
// user is found-or-created at most once per process; a transient store
// failure is retried on the next invocation rather than cached.
func (b *Bridge) Identity(ctx context.Context) (types.Identity, error) {
	b.identityMu.Lock()
	defer b.identityMu.Unlock()

	if b.identity != nil {
		return *b.identity, nil
	}

	user, err := b.store.FindOrCreateUser(ctx, b.username)
	if err != nil {
		return types.Identity{}, err
	}
	b.identity = &types.Identity{Name: user.Name}
	return *b.identity, nil
}
