package usecase

import (
	"context"
	"testing"
	"time"

	"NewsDigest/internal/infrastructure/storage"
)

type immediateDriver struct {
	started bool
	stopped bool
}

func (d *immediateDriver) Start(ctx context.Context, job func(time.Time)) error {
	d.started = true
	job(now)
	return nil
}

func (d *immediateDriver) Stop(ctx context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipelineOnTrigger(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	p := newTestPipeline(store, nil, PipelineDeps{Source: staticSource{items: defaultItems()}})
	driver := &immediateDriver{}
	s := NewScheduler(driver, p, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !driver.started {
		t.Fatalf("driver not started")
	}
	if _, ok, _ := store.LatestDigest(context.Background()); !ok {
		t.Fatalf("expected the triggered run to store a digest")
	}

	if err := s.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSchedulerWithoutDriver(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}
