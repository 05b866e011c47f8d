package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/memorypg/memorypg/storage"
	"github.com/memorypg/memorypg/types"
)

// ErrNotInitialized is returned when a memory operation runs before Init.
// The failure is synchronous and explicit rather than a silent no-op.
var ErrNotInitialized = errors.New("long-term memory service not initialized")

// Logger is the minimal logging interface the knowledge layer needs.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service persists extracted knowledge as long-term memories. All
// operations require Init first.
type Service struct {
	store  storage.Store
	logger Logger

	initialized atomic.Bool
}

// NewService creates a Service. A nil logger disables logging.
func NewService(store storage.Store, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{store: store, logger: logger}
}

// Init verifies the backing store is reachable and marks the service
// ready. It must be called before any save or retrieval operation.
func (s *Service) Init(ctx context.Context) error {
	// A cheap read proves the store (and its schema) is usable.
	if _, err := s.store.ListMemoriesByType(ctx, types.MemoryProjectContext, ""); err != nil {
		return fmt.Errorf("memory store unavailable: %w", err)
	}
	s.initialized.Store(true)
	return nil
}

func (s *Service) ready() error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// SaveKnowledge upserts one extracted candidate. An existing live memory
// with the same key absorbs the save as a hit-count increment instead of a
// duplicate row. Returns true when a new row was created.
func (s *Service) SaveKnowledge(ctx context.Context, k *ExtractedKnowledge) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	if k == nil || k.Key == "" || k.Value == nil {
		return false, fmt.Errorf("%w: knowledge key and value are required", storage.ErrInvalidArgument)
	}

	memory := &types.LongTermMemory{
		ID:            uuid.New().String(),
		Type:          k.Type,
		Key:           k.Key,
		Value:         k.Value,
		Confidence:    k.Confidence,
		WorkspacePath: k.WorkspacePath,
		SessionID:     k.SessionID,
	}
	created, err := s.store.UpsertMemory(ctx, memory)
	if err != nil {
		return false, fmt.Errorf("save knowledge %q: %w", k.Key, err)
	}
	if created {
		s.logger.Debug("stored new memory", "type", string(k.Type), "key", k.Key)
	}
	return created, nil
}

// SaveBatch upserts a batch of candidates and returns how many created new
// rows. The batch stops at the first storage failure.
func (s *Service) SaveBatch(ctx context.Context, ks []*ExtractedKnowledge) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	created := 0
	for _, k := range ks {
		ok, err := s.SaveKnowledge(ctx, k)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// GetByType lists live memories of one type, optionally scoped to a
// workspace.
func (s *Service) GetByType(ctx context.Context, memoryType types.MemoryType, workspacePath string) ([]*types.LongTermMemory, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListMemoriesByType(ctx, memoryType, workspacePath)
}

// Forget soft-deletes a memory by ID.
func (s *Service) Forget(ctx context.Context, memoryID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.store.SoftDeleteMemory(ctx, memoryID)
}
