package trainer

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

type Tensorboard struct {
	Port    int
	cmd     *exec.Cmd
	logFile *os.File
}

type TensorboardOpts struct {
	Script     string
	Activation string
	WorkDir    string
	LogDir     string
	// Port 0 picks a free port.
	Port    int
	Env     map[string]string
	Timeout time.Duration
}

func FindFreePort() (int, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port, nil
}

func (tb *Tensorboard) URL() string {
	return fmt.Sprintf("http://localhost:%d", tb.Port)
}

// StartTensorboard runs the TensorBoard script through the activation
// script and waits until it accepts connections.
func StartTensorboard(ctx context.Context, opts *TensorboardOpts) (*Tensorboard, error) {
	port := opts.Port
	if port == 0 {
		p, err := FindFreePort()
		if err != nil {
			return nil, err
		}
		port = p
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	logFile, err := os.Create(filepath.Join(opts.LogDir, fmt.Sprintf("tensorboard-%d.log", port)))
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	cmd := exec.CommandContext(ctx, "bash", opts.Script, opts.Activation, strconv.Itoa(port))
	cmd.Dir = opts.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("starting tensorboard: %w", err)
	}

	if err := waitForPort(port, timeout); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		logFile.Close()
		return nil, fmt.Errorf("tensorboard did not start: %w", err)
	}

	return &Tensorboard{Port: port, cmd: cmd, logFile: logFile}, nil
}

// Wait blocks until TensorBoard exits.
func (tb *Tensorboard) Wait() error {
	if tb.cmd == nil {
		return nil
	}
	return tb.cmd.Wait()
}

func (tb *Tensorboard) Stop() error {
	if tb.cmd != nil && tb.cmd.Process != nil {
		tb.cmd.Process.Kill()
		tb.cmd.Wait()
	}
	if tb.logFile != nil {
		tb.logFile.Close()
	}
	return nil
}

func waitForPort(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("port %d not ready after %s", port, timeout)
}
