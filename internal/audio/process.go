package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

const stopGrace = 500 * time.Millisecond

// process is a short-lived ffplay or ffprobe child.
type process struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer
	done   chan struct{}
	err    error

	stopOnce sync.Once
	mu       sync.Mutex
	stopped  bool
}

func startProcess(ctx context.Context, command string, args []string, stdin []byte) (*process, error) {
	p := &process{done: make(chan struct{})}
	p.cmd = exec.CommandContext(ctx, command, args...)
	p.cmd.Stderr = &p.stderr
	p.cmd.WaitDelay = stopGrace
	if stdin != nil {
		p.cmd.Stdin = bytes.NewReader(stdin)
	}
	if err := p.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	go func() {
		p.err = p.cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// wait blocks until the child exits. A non-zero exit is reported with its
// stderr unless the child was stopped on purpose.
func (p *process) wait() error {
	<-p.done
	if p.wasStopped() || p.err == nil {
		return nil
	}
	if out := trimOutput(p.stderr.String()); out != "" {
		return fmt.Errorf("%w: %s", p.err, out)
	}
	return p.err
}

func (p *process) stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		_ = p.cmd.Process.Signal(os.Interrupt)
		select {
		case <-p.done:
			return
		case <-time.After(stopGrace):
		}
		_ = p.cmd.Process.Kill()
		<-p.done
	})
}

func (p *process) wasStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
