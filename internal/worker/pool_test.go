package worker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type countJob struct {
	id   string
	n    *int64
	done chan struct{}
}

func (j *countJob) Execute(ctx context.Context) error {
	atomic.AddInt64(j.n, 1)
	close(j.done)
	return nil
}

func (j *countJob) ID() string { return j.id }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(2, 10, testLogger())
	d.Run(context.Background())
	defer d.Stop()

	var n int64
	jobs := make([]*countJob, 5)
	for i := range jobs {
		jobs[i] = &countJob{id: uuid.NewString(), n: &n, done: make(chan struct{})}
		if err := d.Submit(jobs[i]); err != nil {
			t.Fatal(err)
		}
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("job %s never ran", j.id)
		}
	}
	if got := atomic.LoadInt64(&n); got != 5 {
		t.Errorf("executed = %d, want 5", got)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, testLogger())
	// Not started: nothing drains the queue.
	if err := d.Submit(&countJob{id: "a", n: new(int64), done: make(chan struct{})}); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(&countJob{id: "b", n: new(int64), done: make(chan struct{})}); err != ErrQueueFull {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

type blockJob struct {
	id      string
	started chan struct{}
	stopped chan struct{}
}

func (j *blockJob) Execute(ctx context.Context) error {
	close(j.started)
	<-ctx.Done()
	close(j.stopped)
	return ctx.Err()
}

func (j *blockJob) ID() string { return j.id }

func TestRegistryCancelsOnlyItsJob(t *testing.T) {
	reg := NewRegistry()
	idA, idB := uuid.New(), uuid.New()
	ctxA := reg.Register(context.Background(), idA)
	ctxB := reg.Register(context.Background(), idB)

	if !reg.Cancel(idA) {
		t.Fatal("Cancel returned false for a registered job")
	}
	select {
	case <-ctxA.Done():
	default:
		t.Error("canceled job's context still live")
	}
	select {
	case <-ctxB.Done():
		t.Error("other job's context was canceled")
	default:
	}

	reg.Release(idB)
	if reg.Cancel(idB) {
		t.Error("Cancel should report false after Release")
	}
}

func TestJobSeesCancellation(t *testing.T) {
	reg := NewRegistry()
	id := uuid.New()
	ctx := reg.Register(context.Background(), id)
	job := &blockJob{id: id.String(), started: make(chan struct{}), stopped: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Execute(ctx)
	}()

	<-job.started
	reg.Cancel(id)
	select {
	case <-job.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not observe cancellation")
	}
	wg.Wait()
	reg.Release(id)
}
