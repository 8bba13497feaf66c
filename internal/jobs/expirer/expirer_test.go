package expirer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunSweepsOnce(t *testing.T) {
	sweeper := &fakeSweeper{expired: 3}
	job := New(sweeper, time.Minute, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestRunWrapsSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("pool exhausted")}
	job := New(sweeper, time.Minute, nil)

	err := job.Run(context.Background())
	if err == nil || !errors.Is(err, sweeper.err) {
		t.Fatalf("expected wrapped sweep error, got %v", err)
	}
}

func TestRunWithoutSweeperIsNoOp(t *testing.T) {
	job := New(nil, time.Minute, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := New(sweeper, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- job.Loop(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after cancel")
	}

	if sweeper.calls < 1 {
		t.Fatalf("expected the initial sweep to run")
	}
}

func TestLoopContinuesAfterSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("connection refused")}
	job := New(sweeper, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- job.Loop(ctx)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after cancel")
	}

	if sweeper.calls < 2 {
		t.Fatalf("expected the loop to keep sweeping past the failure, got %d calls", sweeper.calls)
	}
}

type fakeSweeper struct {
	expired int
	err     error
	calls   int
}

func (f *fakeSweeper) ExpireOverdue(context.Context) (int, error) {
	f.calls++
	return f.expired, f.err
}
