// Package taskscope executes the TaskSpec tree produced for a single
// filesystem-change trigger: TaskScope wraps a RunKind (Sequence or
// Overlapping) over a set of leaf or nested tasks, with cancellation,
// concurrency caps, and failure policies.
package taskscope

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/bslive-dev/bslive/lib/config"
	"github.com/bslive-dev/bslive/lib/fswatcher"
	"github.com/bslive-dev/bslive/lib/logging"
)

// ShellTimeout is the hard-coded per-shell-task timeout. Not currently
// exposed as a per-task option; see DESIGN.md Open Questions.
const ShellTimeout = 10 * time.Second

// Trigger carries the context a task invocation reacts to: the
// FsEventContext that caused it and the paths that changed.
type Trigger struct {
	Ctx    fswatcher.Context
	Paths  []string
	Reason string
}

// ResultKind is the closed set of outcomes a single invocation can report.
type ResultKind int

const (
	Ok ResultKind = iota
	Cancelled
	FailedMsg
	FailedCode
	FailedTimeout
	GroupFailed
	GroupPartial
)

// Report is the outcome of one task invocation; interior nodes nest their
// children's reports so callers can render the whole execution as a tree.
type Report struct {
	ID          string
	Kind        ResultKind
	Message     string
	Code        int
	ExpectedLen int
	Children    []Report
}

func (r Report) Ok() bool { return r.Kind == Ok }

// Notifier is called by a NotifyServer leaf task; the supervisor routes the
// trigger to the matching ServerActor which fans it out to WebSocket
// clients.
type Notifier func(ctx context.Context, trig Trigger) error

// Publisher is called by a PublishExternalEvent leaf task to emit the
// change as an external tooling event.
type Publisher func(trig Trigger)

// Runner executes a TaskSpec tree for a single trigger.
type Runner struct {
	Notify  Notifier
	Publish Publisher
}

// Run executes spec against trig and returns its Report tree.
func (r Runner) Run(ctx context.Context, spec *config.TaskSpec, trig Trigger) Report {
	return r.run(ctx, spec, trig, 0)
}

func (r Runner) run(ctx context.Context, spec *config.TaskSpec, trig Trigger, idx int) Report {
	id := fmt.Sprintf("%x", spec.Hash(idx))

	select {
	case <-ctx.Done():
		return Report{ID: id, Kind: Cancelled}
	default:
	}

	switch spec.Kind {
	case config.TaskNotifyServer:
		if err := r.Notify(ctx, trig); err != nil {
			return Report{ID: id, Kind: FailedMsg, Message: err.Error()}
		}
		return Report{ID: id, Kind: Ok}
	case config.TaskPublishExternalEvent:
		r.Publish(trig)
		return Report{ID: id, Kind: Ok}
	case config.TaskShell:
		return r.runShell(ctx, spec, trig, id)
	case config.TaskMany:
		if spec.RunKind == config.RunOverlapping {
			return r.runOverlapping(ctx, spec, trig, id)
		}
		return r.runSequence(ctx, spec, trig, id)
	default:
		return Report{ID: id, Kind: FailedMsg, Message: "unknown task kind"}
	}
}

func (r Runner) runSequence(ctx context.Context, spec *config.TaskSpec, trig Trigger, id string) Report {
	var children []Report
	for i := range spec.Children {
		child := r.run(ctx, &spec.Children[i], trig, i)
		children = append(children, child)
		if !child.Ok() && spec.ExitOnFailure {
			return Report{ID: id, Kind: GroupFailed, Children: children, ExpectedLen: len(spec.Children)}
		}
	}
	allOK := true
	for _, c := range children {
		if !c.Ok() {
			allOK = false
			break
		}
	}
	if !allOK {
		return Report{ID: id, Kind: GroupFailed, Children: children, ExpectedLen: len(spec.Children)}
	}
	return Report{ID: id, Kind: Ok, Children: children}
}

func (r Runner) runOverlapping(ctx context.Context, spec *config.TaskSpec, trig Trigger, id string) Report {
	max := int64(spec.MaxConcurrent)
	if max <= 0 {
		max = int64(len(spec.Children))
		if max == 0 {
			max = 1
		}
	}
	sem := semaphore.NewWeighted(max)

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	children := make([]Report, len(spec.Children))
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := false

	for i := range spec.Children {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(groupCtx, 1); err != nil {
				mu.Lock()
				children[i] = Report{Kind: Cancelled}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			resultCh := make(chan Report, 1)
			go func() {
				resultCh <- r.run(groupCtx, &spec.Children[i], trig, i)
			}()

			var child Report
			select {
			case child = <-resultCh:
			case <-groupCtx.Done():
				child = Report{Kind: Cancelled}
			}

			mu.Lock()
			children[i] = child
			if !child.Ok() && spec.ExitOnFailure {
				failed = true
				cancel()
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	ran := 0
	allOK := true
	for _, c := range children {
		if c.ID != "" {
			ran++
		}
		if !c.Ok() {
			allOK = false
		}
	}

	switch {
	case allOK:
		return Report{ID: id, Kind: Ok, Children: children}
	case failed && spec.ExitOnFailure:
		return Report{ID: id, Kind: GroupFailed, Children: children, ExpectedLen: len(spec.Children)}
	case ran < len(spec.Children):
		return Report{ID: id, Kind: GroupPartial, Children: children, ExpectedLen: len(spec.Children)}
	default:
		return Report{ID: id, Kind: GroupFailed, Children: children, ExpectedLen: len(spec.Children)}
	}
}

func (r Runner) runShell(ctx context.Context, spec *config.TaskSpec, trig Trigger, id string) Report {
	log := logging.With("component", "taskscope", "task", spec.ShName)

	shCtx, cancel := context.WithTimeout(ctx, ShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(shCtx, "sh", "-c", spec.ShCommand)
	cmd.Env = append(cmd.Environ(),
		"TERM=xterm-256color",
		"CLICOLOR_FORCE=1",
		"FORCE_COLOR=1",
		"BSLIVE_REASON="+trig.Reason,
		"BSLIVE_FILES="+strings.Join(trig.Paths, ","),
		"BSLIVE_TASK_ID="+uuid.NewString(),
	)
	setProcessGroup(cmd)
	// Kill the whole group when shCtx ends, not only sh: Run waits for
	// every process holding the output pipe.
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()

	if shCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		log.Warn("shell task timed out", "command", spec.ShCommand)
		return Report{ID: id, Kind: FailedTimeout, Message: out.String()}
	}
	if err == nil {
		return Report{ID: id, Kind: Ok, Message: out.String()}
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return Report{ID: id, Kind: FailedCode, Code: exitErr.ExitCode(), Message: out.String()}
	}
	return Report{ID: id, Kind: FailedMsg, Message: err.Error()}
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
