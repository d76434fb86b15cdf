package worker_test

import (
	"context"
	"sync"

	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/queue"
	"basegraph.app/synapse/internal/service"
	"basegraph.app/synapse/internal/store"
)

type mockConsumer struct {
	mu       sync.Mutex
	batches  [][]queue.Message
	readErr  error
	acked    []string
	requeued []string
	dlq      []string
}

func (m *mockConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

func (m *mockConsumer) Ack(_ context.Context, msg queue.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, msg.ID)
	return nil
}

func (m *mockConsumer) Requeue(_ context.Context, msg queue.Message, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeued = append(m.requeued, msg.ID)
	return nil
}

func (m *mockConsumer) SendDLQ(_ context.Context, msg queue.Message, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, msg.ID)
	return nil
}

func (m *mockConsumer) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

type finishCall struct {
	id        int64
	status    model.RunStatus
	processed int
	errMsg    *string
}

type mockRunStore struct {
	getByIDFn     func(ctx context.Context, id int64) (*model.IngestRun, error)
	markRunningFn func(ctx context.Context, id int64) error
	finishFn      func(ctx context.Context, id int64, status model.RunStatus, processed int, errMsg *string) error
	running       []int64
	finished      []finishCall
}

func (m *mockRunStore) Create(_ context.Context, run *model.IngestRun) (*model.IngestRun, error) {
	return run, nil
}

func (m *mockRunStore) GetByID(ctx context.Context, id int64) (*model.IngestRun, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &model.IngestRun{ID: id, Status: model.RunStatusQueued}, nil
}

func (m *mockRunStore) MarkRunning(ctx context.Context, id int64) error {
	m.running = append(m.running, id)
	if m.markRunningFn != nil {
		return m.markRunningFn(ctx, id)
	}
	return nil
}

func (m *mockRunStore) Finish(ctx context.Context, id int64, status model.RunStatus, processed int, errMsg *string) error {
	m.finished = append(m.finished, finishCall{id, status, processed, errMsg})
	if m.finishFn != nil {
		return m.finishFn(ctx, id, status, processed, errMsg)
	}
	return nil
}

var _ store.IngestRunStore = (*mockRunStore)(nil)

type mockIngester struct {
	ingestFn func(ctx context.Context, channelID string, months int) (*service.IngestResult, error)
}

func (m *mockIngester) IngestChannel(ctx context.Context, channelID string, months int) (*service.IngestResult, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, channelID, months)
	}
	return &service.IngestResult{ThreadsProcessed: 1}, nil
}
