package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ErrInvalidChatContext is returned when the context does not carry a ChatContext.
var ErrInvalidChatContext = errors.New("invalid chat context")

// ChatContext is the context of an agent session.
// It contains the session ID, the ID of the current run and metadata.
type ChatContext interface {
	GetChatID() string
	// RunID returns the ID of the current run
	RunID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

// Metadata keys set by the agent for each run.
const (
	MetadataAgent = "agent"
	MetadataStep  = "step"
)

type chatContext struct {
	chatID   string
	runID    string
	metadata *sync.Map
	appData  any
}

func (c *chatContext) GetChatID() string {
	return c.chatID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) AppData() any {
	return c.appData
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns a context for the session,
// a new ID is generated when chatID is empty.
func NewChatContext(chatID string, appData any) ChatContext {
	return &chatContext{
		chatID:   values.StringsCoalesce(chatID, NewChatID()),
		runID:    NewChatID(),
		metadata: &sync.Map{},
		appData:  appData,
	}
}

// NextRun returns a context for a new run of the chat.
// The chat ID, app data and metadata are shared with parent.
func NextRun(parent ChatContext) ChatContext {
	if c, ok := parent.(*chatContext); ok {
		return &chatContext{
			chatID:   c.chatID,
			runID:    NewChatID(),
			metadata: c.metadata,
			appData:  c.appData,
		}
	}
	return NewChatContext(parent.GetChatID(), parent.AppData())
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v.GetChatID()
	}
	return ""
}

// GetRunID retrieves the run ID from the provided context.
func GetRunID(ctx context.Context) (string, error) {
	v, ok := ctx.Value(keyContext).(ChatContext)
	if !ok {
		return "", errors.WithStack(ErrInvalidChatContext)
	}
	return v.RunID(), nil
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
