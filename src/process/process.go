// Package process implements subprocess management for the execution engine:
// running moonc/moonrun/cc/ar invocations with a timeout and capturing their
// output separately, making sure nothing outlives the moon process itself
// (spec.md 4.5, "Invoking the system C compiler and assembler").
package process

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/moonbitlang/moon/src/cli"
	"github.com/moonbitlang/moon/src/cli/logging"
)

var log = logging.Log

// An Executor handles starting, running and monitoring a set of subprocesses.
// It registers as a signal handler to attempt to terminate them all at process exit.
type Executor struct {
	processes map[*exec.Cmd]<-chan error
	mutex     sync.Mutex
}

// New returns a new Executor.
func New() *Executor {
	e := &Executor{processes: map[*exec.Cmd]<-chan error{}}
	cli.AtExit(e.killAll)
	return e
}

// Run runs a command to completion, returning its stdout, its combined stdout+stderr,
// and any error. If the context is cancelled or its deadline passes, the process group
// is killed and the context's error is returned (spec.md 4.5, "Cancellation").
func (e *Executor) Run(ctx context.Context, dir string, env []string, argv []string) ([]byte, []byte, error) {
	cmd := e.ExecCommand(argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var out bytes.Buffer
	var combined safeBuffer
	cmd.Stdout = io.MultiWriter(&out, &combined)
	cmd.Stderr = &combined

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	ch := make(chan error, 1)
	e.registerProcess(cmd, ch)
	defer e.removeProcess(cmd)
	go func() { ch <- cmd.Wait() }()

	select {
	case err := <-ch:
		return out.Bytes(), combined.Bytes(), err
	case <-ctx.Done():
		e.KillProcess(cmd)
		<-ch
		return out.Bytes(), combined.Bytes(), ctx.Err()
	}
}

// RunWithTimeout is a convenience wrapper around Run using context.WithTimeout.
func (e *Executor) RunWithTimeout(dir string, env []string, timeout time.Duration, argv []string) ([]byte, []byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Run(ctx, dir, env, argv)
}

// KillProcess kills a process, attempting to send it a SIGTERM first followed by a
// SIGKILL shortly after if it hasn't exited.
func (e *Executor) KillProcess(cmd *exec.Cmd) {
	e.killProcess(cmd, e.processChan(cmd))
}

func (e *Executor) killProcess(cmd *exec.Cmd, ch <-chan error) {
	success := sendSignal(cmd, ch, syscall.SIGTERM, 30*time.Millisecond)
	if !sendSignal(cmd, ch, syscall.SIGKILL, time.Second) && !success {
		log.Error("Failed to kill inferior process")
	}
	e.removeProcess(cmd)
}

// registerProcess stores the given process in this executor's map.
func (e *Executor) registerProcess(cmd *exec.Cmd, ch <-chan error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.processes[cmd] = ch
}

func (e *Executor) removeProcess(cmd *exec.Cmd) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.processes, cmd)
}

// processChan returns the error channel for a process.
func (e *Executor) processChan(cmd *exec.Cmd) <-chan error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.processes[cmd]
}

// sendSignal sends a single signal to the process in an attempt to stop it.
// It returns true if the process exited within the timeout.
func sendSignal(cmd *exec.Cmd, ch <-chan error, sig syscall.Signal, timeout time.Duration) bool {
	if cmd.Process == nil {
		log.Debug("Not terminating process, it seems to have not started yet")
		return false
	}
	log.Debug("Sending signal %s to -%d", sig, cmd.Process.Pid)
	syscall.Kill(-cmd.Process.Pid, sig) // Kill the group - we always set one in ExecCommand.

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// safeBuffer is an io.Writer that ensures that only one goroutine writes at a time.
// This matters because stdout and stderr can both be writing into the same buffer
// concurrently, and os/exec only guarantees goroutine-safety for a single writer.
type safeBuffer struct {
	sync.Mutex
	buf bytes.Buffer
}

func (sb *safeBuffer) Write(b []byte) (int, error) {
	sb.Lock()
	defer sb.Unlock()
	return sb.buf.Write(b)
}

func (sb *safeBuffer) Bytes() []byte {
	sb.Lock()
	defer sb.Unlock()
	return sb.buf.Bytes()
}

// killAll kills all subprocesses of this executor.
func (e *Executor) killAll() {
	e.mutex.Lock()
	var wg sync.WaitGroup
	wg.Add(len(e.processes))
	defer wg.Wait()
	defer e.mutex.Unlock()
	for proc, ch := range e.processes {
		go func(proc *exec.Cmd, ch <-chan error) {
			e.killProcess(proc, ch)
			wg.Done()
		}(proc, ch)
	}
}

// ExecCommand is a utility function that runs the given command to completion with no
// special handling, returning its combined output.
func ExecCommand(args ...string) ([]byte, error) {
	e := New()
	cmd := e.ExecCommand(args[0], args[1:]...)
	defer e.removeProcess(cmd)
	return cmd.CombinedOutput()
}
