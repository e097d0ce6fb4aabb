package jobrunner

import (
	"context"
	"fmt"
)

// SDKExecutor is the in-process alternative to SubprocessExecutor selected
// by executor_type="sdk": it drives an assistant library call instead of
// spawning a child process, but speaks the identical line-delimited
// stream-JSON protocol on the Process side so the rest of the runner is
// unaware which executor is in use. No in-process assistant library ships
// in this tree; Invoke is the integration seam for one.
type SDKExecutor struct {
	// Invoke performs one assistant turn and returns every stream-json line
	// it produced, in order, terminated as a complete job (no incremental
	// streaming is possible without a concrete SDK to drive).
	Invoke func(ctx context.Context, workdir, instruction string) ([]string, error)
}

func (e *SDKExecutor) Start(ctx context.Context, workdir, instruction string) (Process, error) {
	if e.Invoke == nil {
		return nil, fmt.Errorf("jobrunner: sdk executor has no Invoke implementation configured")
	}

	lines, err := e.Invoke(ctx, workdir, instruction)
	if err != nil {
		return nil, err
	}

	p := &sdkProcess{lines: make(chan string, len(lines)), done: make(chan struct{})}
	for _, l := range lines {
		p.lines <- l
	}
	close(p.lines)
	close(p.done)
	return p, nil
}

type sdkProcess struct {
	lines chan string
	done  chan struct{}
}

func (p *sdkProcess) Lines() <-chan string { return p.lines }
func (p *sdkProcess) Wait() error          { <-p.done; return nil }
func (p *sdkProcess) Terminate() error     { return nil }
func (p *sdkProcess) Kill() error          { return nil }
