package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	slerrors "stageline.dev/stageline/internal/errors"
)

// RefUpdate is one compare-and-set on a ref. An empty Old means the ref must not
// exist yet; an empty New deletes the ref.
type RefUpdate struct {
	Ref string
	New string
	Old string
}

func (u RefUpdate) command() string {
	switch {
	case u.New == "":
		return fmt.Sprintf("delete %s %s\n", u.Ref, u.Old)
	case u.Old == "":
		return fmt.Sprintf("create %s %s\n", u.Ref, u.New)
	default:
		return fmt.Sprintf("update %s %s %s\n", u.Ref, u.New, u.Old)
	}
}

// RefTransaction is a prepared `git update-ref --stdin` transaction. While prepared,
// git holds the ref locks and has verified every expected old value; nothing is
// visible until Commit.
type RefTransaction struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	stderr  *bytes.Buffer
	cancel  context.CancelFunc
	updates []RefUpdate

	mu   sync.Mutex
	done bool
}

// PrepareRefUpdates starts a transaction, queues the updates and prepares it. A
// mismatched expected old value surfaces as ConcurrentBranchMove.
func (r *Repo) PrepareRefUpdates(ctx context.Context, updates []RefUpdate) (*RefTransaction, error) {
	if len(updates) == 0 {
		return &RefTransaction{done: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
	cmd := r.runner.command(ctx, nil, "update-ref", "--stdin")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open update-ref stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open update-ref stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start update-ref: %w", err)
	}

	tx := &RefTransaction{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdout),
		stderr:  stderr,
		cancel:  cancel,
		updates: updates,
	}

	if err := tx.send("start\n", "start: ok"); err != nil {
		return nil, tx.fail(err)
	}
	for _, u := range updates {
		if _, err := io.WriteString(tx.stdin, u.command()); err != nil {
			return nil, tx.fail(err)
		}
	}
	if err := tx.send("prepare\n", "prepare: ok"); err != nil {
		return nil, tx.fail(err)
	}
	return tx, nil
}

// Commit publishes every queued update at once
func (t *RefTransaction) Commit() error {
	return t.finish("commit\n", "commit: ok")
}

// Abort releases the ref locks without changing anything. Aborting a finished
// transaction is a no-op.
func (t *RefTransaction) Abort() error {
	return t.finish("abort\n", "abort: ok")
}

// Updates returns the queued updates
func (t *RefTransaction) Updates() []RefUpdate {
	return t.updates
}

func (t *RefTransaction) finish(command, ack string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true

	if err := t.send(command, ack); err != nil {
		return t.classify(t.wait(err))
	}
	_ = t.stdin.Close()
	if err := t.cmd.Wait(); err != nil {
		t.cancel()
		return t.classify(err)
	}
	t.cancel()
	return nil
}

func (t *RefTransaction) send(command, ack string) error {
	if _, err := io.WriteString(t.stdin, command); err != nil {
		return err
	}
	line, err := t.stdout.ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != ack {
		return fmt.Errorf("unexpected update-ref response %q", strings.TrimSpace(line))
	}
	return nil
}

// fail tears the process down after an error during prepare
func (t *RefTransaction) fail(err error) error {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	return t.classify(t.wait(err))
}

func (t *RefTransaction) wait(err error) error {
	_ = t.stdin.Close()
	_ = t.cmd.Wait()
	t.cancel()
	return err
}

func (t *RefTransaction) classify(err error) error {
	stderr := strings.TrimSpace(t.stderr.String())
	args := []string{"update-ref", "--stdin"}
	gitErr := slerrors.NewGitCommandError("git", args, "", stderr, err)

	switch {
	case strings.Contains(stderr, "but expected"),
		strings.Contains(stderr, "reference already exists"),
		strings.Contains(stderr, "unable to resolve reference"),
		strings.Contains(stderr, "cannot lock ref"):
		return slerrors.Wrap(slerrors.KindConcurrentBranchMove, "update refs", gitErr,
			"%s changed underneath the operation", describeUpdates(t.updates))
	default:
		return slerrors.Wrap(slerrors.KindUpdateFailed, "update refs", gitErr,
			"cannot update %s", describeUpdates(t.updates))
	}
}

func describeUpdates(updates []RefUpdate) string {
	names := make([]string, 0, len(updates))
	for _, u := range updates {
		names = append(names, DescribeRef(u.Ref))
	}
	return strings.Join(names, ", ")
}
