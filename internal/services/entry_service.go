package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"budgetlens/internal/amqp"
	"budgetlens/internal/core"
	"budgetlens/internal/entries"
	"budgetlens/internal/log"
)

// ChangeNotifier announces store changes to other processes.
type ChangeNotifier interface {
	PublishEntriesChanged(ctx context.Context, msg *amqp.EntriesChangedMessage) error
}

// ChangeHandler reacts to a store change inside this process.
type ChangeHandler func(ctx context.Context, msg *amqp.EntriesChangedMessage) error

// EntryService writes entries to the store and fans the change out to local
// handlers and the broker. Store failures fail the call; notification
// failures are only logged.
type EntryService struct {
	store    entries.Store
	notifier ChangeNotifier
	handlers []ChangeHandler
	source   string
	logger   *log.Logger
}

func NewEntryService(store entries.Store, notifier ChangeNotifier, source string, logger *log.Logger) *EntryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &EntryService{
		store:    store,
		notifier: notifier,
		source:   source,
		logger:   logger.WithComponent(log.ComponentEntries),
	}
}

// OnChange registers h to run after every successful write.
func (s *EntryService) OnChange(h ChangeHandler) {
	s.handlers = append(s.handlers, h)
}

func (s *EntryService) CreateEntry(ctx context.Context, e core.Entry) (string, error) {
	if err := core.ValidateEntry(e); err != nil {
		return "", err
	}
	id, err := s.store.Add(ctx, e)
	if err != nil {
		return "", fmt.Errorf("save entry: %w", err)
	}

	s.logger.InfoContext(ctx, "Entry created", log.FieldEntryID, id, log.FieldEntryKind, string(e.Kind()))
	s.changed(ctx, amqp.NewEntriesChangedMessage(id, e.Kind(), s.source))
	return id, nil
}

func (s *EntryService) ListEntries(ctx context.Context) ([]core.Entry, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return list, nil
}

func (s *EntryService) changed(ctx context.Context, msg *amqp.EntriesChangedMessage) {
	for _, h := range s.handlers {
		if err := h(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Change handler failed", log.FieldEntryID, msg.EntryID, log.FieldError, err)
		}
	}

	if s.notifier == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping change message")
		return
	}
	if err := s.notifier.PublishEntriesChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change message", log.FieldEntryID, msg.EntryID, log.FieldError, err)
	}
}

// Close closes the store and notifier when they hold resources.
func (s *EntryService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.notifier.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
