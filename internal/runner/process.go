package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"gridflow/internal/logging"
)

// DefaultGracePeriod is the wait between the graceful and forceful
// termination signals when the watchdog fires.
const DefaultGracePeriod = 5 * time.Second

const maxLineBytes = 1024 * 1024

// Result reports the outcome of one subprocess execution.
type Result struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Success reports whether the subprocess exited cleanly before any deadline.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner executes a single external command. Fields must be set before Run;
// a Runner is not reusable.
type Runner struct {
	// Command is the executable to run, with optional Args.
	Command string
	Args    []string
	// Env is the complete subprocess environment. Nothing is inherited.
	Env map[string]string
	// Name tags echoed output lines for log correlation.
	Name       string
	WorkingDir string
	// Timeout arms the watchdog when positive. Zero means the subprocess is
	// never killed by gridflow.
	Timeout time.Duration
	// GracePeriod is the SIGTERM-to-SIGKILL wait; DefaultGracePeriod when zero.
	GracePeriod time.Duration
	// EchoOutput mirrors each line to Logger.
	EchoOutput bool
	// LogPath appends each line, newline-terminated, to a log file.
	LogPath string
	// LineHandler receives each line after echo and log-file dispatch.
	LineHandler func(string)
	Logger      *slog.Logger

	mu       sync.Mutex
	pgid     int
	exited   bool
	timedOut bool
}

// Run starts the subprocess and blocks until it and its watchdog have both
// finished. A non-nil error means the command could not be started or its
// output could not be read; outcomes of a started command are in Result.
func (r *Runner) Run() (Result, error) {
	if r.Command == "" {
		return Result{}, errors.New("command is required")
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var logFile *os.File
	var logWriter *bufio.Writer
	if r.LogPath != "" {
		file, err := os.OpenFile(r.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return Result{}, fmt.Errorf("open task log: %w", err)
		}
		logFile = file
		logWriter = bufio.NewWriter(file)
		defer func() {
			_ = logWriter.Flush()
			_ = logFile.Close()
		}()
	}

	cmd := exec.Command(r.Command, r.Args...) //nolint:gosec
	cmd.Dir = r.WorkingDir
	cmd.Env = flattenEnv(r.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", r.Command, err)
	}

	r.mu.Lock()
	r.pgid = cmd.Process.Pid
	r.mu.Unlock()

	var mon *monitor
	if r.Timeout > 0 {
		grace := r.GracePeriod
		if grace <= 0 {
			grace = DefaultGracePeriod
		}
		mon = startMonitor(r.Timeout, grace, r.terminateIfRunning)
	}

	pid := cmd.Process.Pid
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		r.dispatchLine(logger, logWriter, pid, scanner.Text())
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// The scanner stopped without consuming the pipe (an oversized line,
		// for one). Keep draining so the child cannot block on a full pipe
		// and wedge Wait below.
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()

	r.mu.Lock()
	r.exited = true
	timedOut := r.timedOut
	r.mu.Unlock()

	if mon != nil {
		mon.release()
	}

	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		TimedOut: timedOut,
		Duration: time.Since(start),
	}

	if scanErr != nil {
		return result, fmt.Errorf("read output: %w", scanErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			// Nonzero exit or death by signal is a task outcome, not an error.
			return result, nil
		}
		return result, fmt.Errorf("wait %s: %w", r.Command, waitErr)
	}
	return result, nil
}

// terminateIfRunning is the watchdog callback: if no exit has been recorded
// yet, mark the execution timed out and terminate the process group in two
// phases. Signalling errors are swallowed; the group may already be gone.
func (r *Runner) terminateIfRunning(grace time.Duration, released <-chan struct{}) {
	r.mu.Lock()
	if r.exited {
		r.mu.Unlock()
		return
	}
	r.timedOut = true
	pgid := r.pgid
	r.mu.Unlock()

	_ = unix.Kill(-pgid, unix.SIGTERM)

	select {
	case <-released:
		return
	case <-time.After(grace):
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
}

func (r *Runner) dispatchLine(logger *slog.Logger, logWriter *bufio.Writer, pid int, line string) {
	if r.EchoOutput {
		logger.Info(line,
			logging.String("task", r.Name),
			logging.Int("pid", pid),
		)
	}
	if logWriter != nil {
		_, _ = logWriter.WriteString(line)
		_ = logWriter.WriteByte('\n')
	}
	if r.LineHandler != nil {
		r.LineHandler(line)
	}
}

func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return []string{}
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	flattened := make([]string, 0, len(keys))
	for _, k := range keys {
		flattened = append(flattened, k+"="+env[k])
	}
	return flattened
}
