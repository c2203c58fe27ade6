package process

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"librarian/internal/models"
	"librarian/internal/storage"
)

// Engine errors.
var (
	// ErrNoActiveProcess means the contact has no conversation in progress.
	ErrNoActiveProcess = errors.New("no active process for contact")
	// ErrProcessInProgress means the contact already has a conversation.
	ErrProcessInProgress = errors.New("process already in progress for contact")
	// ErrUnknownType means no definition is registered for the process type.
	ErrUnknownType = errors.New("unknown process type")
)

// Sender delivers outbound text to a chat. The bot layer implements it;
// the engine never talks to Telegram directly.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Engine drives persisted multi-step conversations. Each registered
// type advances exactly one step per inbound message; progress survives
// restarts because process and field rows live in the store.
//
// All operations for one contact are serialized through a per-chat
// mutex, so two concurrent messages from the same chat cannot
// interleave their read-modify-write on the process row.
type Engine struct {
	store  storage.Storage
	sender Sender
	logger *zap.Logger
	defs   map[string]Definition

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewEngine creates an engine with no registered types.
func NewEngine(store storage.Storage, sender Sender, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		sender: sender,
		logger: logger,
		defs:   make(map[string]Definition),
		locks:  make(map[int64]*sync.Mutex),
	}
}

// Register adds a process type. It must be called before Start for that
// type and is not safe to call concurrently with message handling.
func (e *Engine) Register(processType string, def Definition) error {
	if err := def.validate(); err != nil {
		return fmt.Errorf("invalid definition for %q: %w", processType, err)
	}
	e.defs[processType] = def
	return nil
}

func (e *Engine) chatLock(chatID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[chatID] = lock
	}
	return lock
}

// Active reports whether the contact has a conversation in progress.
func (e *Engine) Active(ctx context.Context, chatID int64) (bool, error) {
	contact, err := e.store.GetContact(ctx, chatID)
	if errors.Is(err, storage.ErrContactNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return contact.ProcessUID != "", nil
}

// Start creates a process of the given type for the contact, links it,
// and advances it to the first real step so its prompt goes out
// immediately.
func (e *Engine) Start(ctx context.Context, chatID int64, processType string) error {
	lock := e.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	def, ok := e.defs[processType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, processType)
	}

	contact, err := e.store.GetContact(ctx, chatID)
	if err != nil {
		return err
	}
	if contact.ProcessUID != "" {
		return ErrProcessInProgress
	}

	proc := models.Process{
		UID:    uuid.NewString(),
		Type:   processType,
		Status: StatusInitiate,
	}
	if err := e.store.CreateProcess(ctx, proc); err != nil {
		return err
	}
	if err := e.store.SetContactProcess(ctx, chatID, proc.UID); err != nil {
		return err
	}
	contact.ProcessUID = proc.UID

	e.logger.Info("process started",
		zap.Int64("chat_id", chatID),
		zap.String("type", processType),
		zap.String("uid", proc.UID),
	)

	// The initiate step captures no field, so advancing with empty
	// text moves straight to the first prompt.
	return e.step(ctx, contact, proc, def, "")
}

// Advance feeds one inbound message into the contact's active process.
func (e *Engine) Advance(ctx context.Context, chatID int64, text string) error {
	lock := e.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	contact, err := e.store.GetContact(ctx, chatID)
	if err != nil {
		return err
	}
	if contact.ProcessUID == "" {
		return ErrNoActiveProcess
	}

	proc, err := e.store.GetProcess(ctx, contact.ProcessUID)
	if err != nil {
		return err
	}
	def, ok := e.defs[proc.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, proc.Type)
	}
	return e.step(ctx, contact, proc, def, text)
}

// step performs one transition: capture the answer to the current step
// (unless the process is still at initiate), move the counter forward,
// and either prompt for the next step or finish.
func (e *Engine) step(ctx context.Context, contact models.Contact, proc models.Process, def Definition, text string) error {
	// A process that already reached the terminal step is one whose
	// finisher failed last time; the next message retries it instead
	// of advancing past the end.
	if proc.Status == StatusFinished {
		return e.finish(ctx, contact, proc, def)
	}

	seq := def.sequence()
	if proc.StepCounter < 0 || proc.StepCounter >= len(seq)-1 {
		return fmt.Errorf("process %s has invalid step counter %d", proc.UID, proc.StepCounter)
	}

	var field *models.Field
	if proc.Status != StatusInitiate {
		field = &models.Field{
			ProcessUID: proc.UID,
			Name:       proc.Status,
			Value:      text,
		}
	}

	proc.StepCounter++
	proc.Status = seq[proc.StepCounter]

	// Persist before running the finisher: if the finisher fails the
	// collected answers are already safe and the process stays linked.
	if err := e.store.AdvanceProcess(ctx, proc, field); err != nil {
		return err
	}

	if proc.Status != StatusFinished {
		return e.sender.SendText(ctx, contact.ChatID, def.Prompts[proc.Status])
	}
	return e.finish(ctx, contact, proc, def)
}

func (e *Engine) finish(ctx context.Context, contact models.Contact, proc models.Process, def Definition) error {
	rows, err := e.store.ListFields(ctx, proc.UID)
	if err != nil {
		return err
	}
	fields := make(map[string]string, len(rows))
	for _, f := range rows {
		fields[f.Name] = f.Value
	}

	confirmation, err := def.Finisher(ctx, contact, fields)
	if err != nil {
		return fmt.Errorf("finisher for %s failed: %w", proc.Type, err)
	}

	// Unlink only after the business call succeeded; field rows are
	// kept as the audit trail.
	if err := e.store.SetContactProcess(ctx, contact.ChatID, ""); err != nil {
		return err
	}

	e.logger.Info("process finished",
		zap.Int64("chat_id", contact.ChatID),
		zap.String("type", proc.Type),
		zap.String("uid", proc.UID),
	)
	return e.sender.SendText(ctx, contact.ChatID, confirmation)
}

// Cancel unlinks the contact's active process. The process row and its
// fields are left in place. Cancelling with nothing active is a no-op.
func (e *Engine) Cancel(ctx context.Context, chatID int64) error {
	lock := e.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	contact, err := e.store.GetContact(ctx, chatID)
	if errors.Is(err, storage.ErrContactNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if contact.ProcessUID == "" {
		return nil
	}

	if err := e.store.SetContactProcess(ctx, chatID, ""); err != nil {
		return err
	}
	e.logger.Info("process dismissed",
		zap.Int64("chat_id", chatID),
		zap.String("uid", contact.ProcessUID),
	)
	return nil
}
