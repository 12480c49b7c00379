package trainer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// LocalLauncher runs the launcher script as a child process with its output
// going to a per-run log file.
type LocalLauncher struct {
	// Shell runs the script; defaults to bash.
	Shell string
}

type localProcess struct {
	cmd     *exec.Cmd
	logFile *os.File
	done    chan struct{}
	err     error
}

func (l *LocalLauncher) Launch(ctx context.Context, inv *Invocation) (Process, error) {
	shell := l.Shell
	if shell == "" {
		shell = "bash"
	}
	if err := os.MkdirAll(inv.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trainer log dir: %w", err)
	}
	logFile, err := os.Create(filepath.Join(inv.LogDir, "trainer-"+inv.RunID+".log"))
	if err != nil {
		return nil, fmt.Errorf("creating trainer log: %w", err)
	}

	cmd := exec.CommandContext(ctx, shell, append([]string{inv.Script}, inv.Args()...)...)
	cmd.Dir = inv.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	for k, v := range inv.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting trainer: %w", err)
	}

	p := &localProcess{cmd: cmd, logFile: logFile, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		logFile.Close()
		close(p.done)
	}()
	return p, nil
}

func (p *localProcess) Done() <-chan struct{} { return p.done }

func (p *localProcess) Err() error { return p.err }

func (p *localProcess) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("killing trainer: %w", err)
	}
	<-p.done
	return nil
}
