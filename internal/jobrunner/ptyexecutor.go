package jobrunner

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// PtyExecutor runs the assistant inside a pseudo-terminal instead of a
// plain pipe. Some interactive confirmation prompts only appear when the
// child believes it is attached to a real terminal; this variant exists
// for that case, selected alongside executor_type="subprocess" by a
// pty_mode configuration flag rather than a distinct executor_type value.
type PtyExecutor struct {
	Command string
}

func NewPtyExecutor(command string) *PtyExecutor {
	if command == "" {
		command = "claude"
	}
	return &PtyExecutor{Command: command}
}

func (e *PtyExecutor) Start(ctx context.Context, workdir, instruction string) (Process, error) {
	cmd := exec.Command(e.Command, "-p", instruction, "--output-format", "stream-json")
	cmd.Dir = workdir

	home, _ := os.UserHomeDir()
	cmd.Env = []string{
		"HOME=" + home,
		"PATH=" + os.Getenv("PATH"),
		"CLAUDE_CODE_ENTRYPOINT=televibe",
		"TERM=xterm-256color",
	}

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	p := &ptyProcess{cmd: cmd, pty: f, lines: make(chan string, 32), done: make(chan struct{})}

	go func() {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		close(p.lines)
	}()

	go func() {
		p.waitErr = cmd.Wait()
		f.Close()
		close(p.done)
	}()

	return p, nil
}

type ptyProcess struct {
	cmd     *exec.Cmd
	pty     *os.File
	lines   chan string
	done    chan struct{}
	waitErr error
}

func (p *ptyProcess) Lines() <-chan string { return p.lines }

func (p *ptyProcess) Wait() error {
	<-p.done
	return p.waitErr
}

func (p *ptyProcess) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *ptyProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
