package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rcliao/automarket/internal/model"
	"github.com/rcliao/automarket/internal/observability"
)

// Fixed assistant texts.
const (
	Greeting   = "Hi 👋 I can help you rewrite and optimize your marketing message."
	SentNotice = "✅ Final message sent successfully for marketing."
)

var (
	// ErrStreamInProgress is returned by Submit while a stream is open.
	ErrStreamInProgress = errors.New("transcript: stream in progress")

	// ErrClosed is returned once the assembler has been closed.
	ErrClosed = errors.New("transcript: assembler closed")
)

// Streamer opens the rewriting stream. gateway.API implements it.
type Streamer interface {
	WriterChat(ctx context.Context, productID, text string) (io.ReadCloser, error)
}

// Confirmer finalizes the last rewritten message. gateway.API implements it.
type Confirmer interface {
	ConfirmFinal(ctx context.Context, productID string) (string, error)
}

// History records finished messages. store.SQLiteStore implements it.
type History interface {
	AppendMessage(ctx context.Context, msg model.TranscriptMessage) (model.TranscriptMessage, error)
}

// Config binds an Assembler to one product.
type Config struct {
	ProductID string
	Streamer  Streamer
	Confirmer Confirmer
	// History is optional.
	History History
	// Greeting opens the transcript with the assistant greeting.
	Greeting bool
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Assembler owns one chat transcript. Only the newest assistant message is
// ever rewritten, and only while its stream is open.
type Assembler struct {
	cfg Config

	mu        sync.Mutex
	messages  []model.TranscriptMessage
	draft     string
	final     string
	streaming bool
	cancel    context.CancelFunc
	closed    bool
	onUpdate  func(model.TranscriptMessage)
}

// New creates an assembler.
func New(cfg Config) (*Assembler, error) {
	if cfg.ProductID == "" {
		return nil, errors.New("transcript: product id must not be empty")
	}
	if cfg.Streamer == nil {
		return nil, errors.New("transcript: streamer must not be nil")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	a := &Assembler{cfg: cfg}
	if cfg.Greeting {
		a.messages = append(a.messages, model.TranscriptMessage{
			ProductID: cfg.ProductID,
			Role:      model.RoleAssistant,
			Text:      Greeting,
			CreatedAt: cfg.Now(),
		})
	}
	return a, nil
}

// OnUpdate registers fn to run after every change to a message. fn runs
// outside the assembler's lock, in token order.
func (a *Assembler) OnUpdate(fn func(model.TranscriptMessage)) {
	a.mu.Lock()
	a.onUpdate = fn
	a.mu.Unlock()
}

// Messages returns a copy of the transcript.
func (a *Assembler) Messages() []model.TranscriptMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.TranscriptMessage(nil), a.messages...)
}

// Draft returns the draft of the current or last failed submission. It is
// cleared when a stream completes.
func (a *Assembler) Draft() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.draft
}

// Final returns the message awaiting confirmation, or "".
func (a *Assembler) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final
}

// Streaming reports whether a stream is open.
func (a *Assembler) Streaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streaming
}

// Submit sends draft for rewriting and blocks until the stream ends. A
// blank draft does nothing. On success the rewrite becomes the final
// message; on failure the assistant message keeps the partial text.
func (a *Assembler) Submit(ctx context.Context, draft string) error {
	if strings.TrimSpace(draft) == "" {
		return nil
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.streaming {
		a.mu.Unlock()
		return ErrStreamInProgress
	}
	now := a.cfg.Now()
	user := model.TranscriptMessage{ProductID: a.cfg.ProductID, Role: model.RoleUser, Text: draft, CreatedAt: now}
	placeholder := model.TranscriptMessage{ProductID: a.cfg.ProductID, Role: model.RoleAssistant, CreatedAt: now}
	a.messages = append(a.messages, user, placeholder)
	idx := len(a.messages) - 1
	a.draft = draft
	a.final = ""
	a.streaming = true
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	notify := a.onUpdate
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.streaming = false
		a.cancel = nil
		a.mu.Unlock()
	}()

	if notify != nil {
		notify(user)
		notify(placeholder)
	}

	ctx, span := observability.Tracer("transcript").Start(ctx, "transcript.Submit")
	span.SetAttributes(attribute.String("product.id", a.cfg.ProductID))
	defer span.End()

	text, tokens, err := a.stream(ctx, idx, draft)
	span.SetAttributes(attribute.Int("stream.tokens", tokens))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		if a.isClosed() {
			return ErrClosed
		}
		a.cfg.Logger.Warn().Err(err).Str("product_id", a.cfg.ProductID).Int("tokens", tokens).Msg("stream ended early")
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.final = text
	a.draft = ""
	user = a.messages[idx-1]
	reply := a.messages[idx]
	a.mu.Unlock()

	a.record(ctx, idx-1, user)
	a.record(ctx, idx, reply)
	return nil
}

// stream folds every token into the placeholder at idx and returns the
// accumulated text.
func (a *Assembler) stream(ctx context.Context, idx int, draft string) (string, int, error) {
	body, err := a.cfg.Streamer.WriterChat(ctx, a.cfg.ProductID, draft)
	if err != nil {
		return "", 0, fmt.Errorf("transcript: open stream: %w", err)
	}

	var (
		acc    strings.Builder
		tokens int
	)
	for tok, err := range Tokens(ctx, body) {
		if err != nil {
			return acc.String(), tokens, fmt.Errorf("transcript: read stream: %w", err)
		}
		acc.WriteString(tok)
		tokens++
		if !a.replace(idx, acc.String()) {
			return acc.String(), tokens, ErrClosed
		}
		a.cfg.Metrics.StreamToken()
	}
	return acc.String(), tokens, nil
}

// replace sets the text of the message at idx. It reports false once the
// assembler is closed.
func (a *Assembler) replace(idx int, text string) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.messages[idx].Text = text
	msg := a.messages[idx]
	notify := a.onUpdate
	a.mu.Unlock()

	if notify != nil {
		notify(msg)
	}
	return true
}

// record persists a finished message and stores the id it was given.
func (a *Assembler) record(ctx context.Context, idx int, msg model.TranscriptMessage) {
	if a.cfg.History == nil {
		return
	}
	saved, err := a.cfg.History.AppendMessage(context.WithoutCancel(ctx), msg)
	if err != nil {
		a.cfg.Logger.Warn().Err(err).Str("product_id", a.cfg.ProductID).Msg("recording transcript message failed")
		return
	}
	a.mu.Lock()
	if idx < len(a.messages) {
		a.messages[idx].ID = saved.ID
	}
	a.mu.Unlock()
}

// ConfirmFinal sends the final message once. Without a final message it
// does nothing. On success the final message is cleared and the transcript
// gains the confirmed text and a notice.
func (a *Assembler) ConfirmFinal(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", ErrClosed
	}
	final := a.final
	a.mu.Unlock()

	if strings.TrimSpace(final) == "" {
		return "", nil
	}
	if a.cfg.Confirmer == nil {
		return "", errors.New("transcript: no confirmer configured")
	}

	status, err := a.cfg.Confirmer.ConfirmFinal(ctx, a.cfg.ProductID)
	if err != nil {
		return "", err
	}

	now := a.cfg.Now()
	sent := model.TranscriptMessage{ProductID: a.cfg.ProductID, Role: model.RoleUser, Text: final, CreatedAt: now}
	notice := model.TranscriptMessage{ProductID: a.cfg.ProductID, Role: model.RoleAssistant, Text: SentNotice, CreatedAt: now}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return status, nil
	}
	if a.final == final {
		a.final = ""
	}
	a.messages = append(a.messages, sent, notice)
	idx := len(a.messages) - 1
	notify := a.onUpdate
	a.mu.Unlock()

	if notify != nil {
		notify(sent)
		notify(notice)
	}
	a.record(ctx, idx-1, sent)
	a.record(ctx, idx, notice)
	return status, nil
}

// Close tears the assembler down. An open stream is cancelled and no
// message changes afterwards.
func (a *Assembler) Close() {
	a.mu.Lock()
	a.closed = true
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Assembler) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
