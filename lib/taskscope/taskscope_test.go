package taskscope_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/taskscope"
)

func noopRunner() taskscope.Runner {
	return taskscope.Runner{
		Notify:  func(context.Context, taskscope.Trigger) error { return nil },
		Publish: func(taskscope.Trigger) {},
	}
}

func TestSequenceStopsOnFailure(t *testing.T) {
	var ran int32
	r := taskscope.Runner{
		Notify: func(context.Context, taskscope.Trigger) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
		Publish: func(taskscope.Trigger) {},
	}

	spec := &config.TaskSpec{
		Kind:          config.TaskMany,
		RunKind:       config.RunSequence,
		ExitOnFailure: true,
		Children: []config.TaskSpec{
			{Kind: config.TaskShell, ShCommand: "exit 1"},
			{Kind: config.TaskNotifyServer},
			{Kind: config.TaskNotifyServer},
		},
	}

	report := r.Run(context.Background(), spec, taskscope.Trigger{})
	if report.Kind != taskscope.GroupFailed {
		t.Fatalf("expected GroupFailed, got %v", report.Kind)
	}
	if len(report.Children) != 1 {
		t.Fatalf("expected sequence to stop after first failure, ran %d children", len(report.Children))
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("expected downstream tasks not to run, got %d", ran)
	}
}

func TestSequenceContinuesWithoutExitOnFailure(t *testing.T) {
	var ran int32
	r := taskscope.Runner{
		Notify: func(context.Context, taskscope.Trigger) error {
			atomic.AddInt32(&ran, 1)
			return nil
		},
		Publish: func(taskscope.Trigger) {},
	}

	spec := &config.TaskSpec{
		Kind:          config.TaskMany,
		RunKind:       config.RunSequence,
		ExitOnFailure: false,
		Children: []config.TaskSpec{
			{Kind: config.TaskShell, ShCommand: "exit 1"},
			{Kind: config.TaskNotifyServer},
		},
	}

	r.Run(context.Background(), spec, taskscope.Trigger{})
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("expected the second task to still run, got %d", ran)
	}
}

func TestOverlappingCancelsOnFailure(t *testing.T) {
	r := noopRunner()

	spec := &config.TaskSpec{
		Kind:          config.TaskMany,
		RunKind:       config.RunOverlapping,
		ExitOnFailure: true,
		MaxConcurrent: 10,
		Children: []config.TaskSpec{
			{Kind: config.TaskShell, ShCommand: "exit 1"},
			{Kind: config.TaskShell, ShCommand: "sleep 5"},
		},
	}

	t0 := time.Now()
	report := r.Run(context.Background(), spec, taskscope.Trigger{})
	elapsed := time.Since(t0)

	if report.Kind != taskscope.GroupFailed {
		t.Fatalf("expected GroupFailed, got %v", report.Kind)
	}
	if elapsed > 4*time.Second {
		t.Fatalf("expected the sleeping sibling to be cancelled promptly, took %s", elapsed)
	}
}

func TestShellTaskExitCode(t *testing.T) {
	r := noopRunner()
	spec := &config.TaskSpec{Kind: config.TaskShell, ShCommand: "exit 7"}
	report := r.Run(context.Background(), spec, taskscope.Trigger{})
	if report.Kind != taskscope.FailedCode || report.Code != 7 {
		t.Fatalf("expected FailedCode(7), got %v code=%d", report.Kind, report.Code)
	}
}

func TestShellTaskOk(t *testing.T) {
	r := noopRunner()
	spec := &config.TaskSpec{Kind: config.TaskShell, ShCommand: "true"}
	report := r.Run(context.Background(), spec, taskscope.Trigger{})
	if report.Kind != taskscope.Ok {
		t.Fatalf("expected Ok, got %v", report.Kind)
	}
}
