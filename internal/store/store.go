// Package store is the gateway to the version-control system backing the
// sync store. It exposes only the narrow set of operations the reconciler
// needs: initialize, commit (direct and debounced-batched), pull/push, read
// content at HEAD or a named revision, three-way file merge, conflict
// marker parsing, and the current HEAD identity.
//
// Reads that go-git's porcelain answers cleanly (HEAD resolution, blob
// content, working-tree status) use go-git directly. Pull, push, and
// file-level three-way merge are not reliably expressible through go-git
// for this package's needs (merge-conflict markers, remote-tracking
// resolution, abort-on-conflict), so those operations, along with merge
// abort and the conflicted-file listing, shell out to the git CLI via the
// runGit helper.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/sync/singleflight"

	"github.com/fulmenhq/confsync/pkg/logger"
	"github.com/fulmenhq/confsync/pkg/schema"
)

// ErrNoRemote is returned by Pull/Push when the store has no usable remote.
var ErrNoRemote = errors.New("store: no remote configured")

// ErrAlreadyMerging is returned when a merge is already in progress in the
// store working tree (a recoverable gateway error per the error taxonomy).
var ErrAlreadyMerging = errors.New("store: merge already in progress")

// machinesManifestSchema is the embedded JSON Schema for machines.json,
// validated on Initialize before the manifest is trusted.
const machinesManifestSchema = `{
  "type": "object",
  "required": ["machines", "repos", "services"],
  "properties": {
    "machines": {"type": "object"},
    "repos": {"type": "object"},
    "services": {"type": "object"}
  }
}`

// QueueDebounce is how long QueueCommit waits for quiescence before firing.
const QueueDebounce = 2 * time.Second

// CommitQueueConflict describes one file left with unresolved merge markers
// after EnsureStoreCommitted had to abort a merge.
type CommitQueueConflict struct {
	Path   string
	Ours   string
	Theirs string
}

// PullConflict describes a conflicted machine-wide manifest file surfaced
// by Pull, so the caller can resolve it before returning control to normal
// reconciliation.
type PullConflict struct {
	File    string
	Content string
	Ours    string
	Theirs  string
}

// PullResult is the outcome of Pull.
type PullResult struct {
	Conflicts []PullConflict
}

// MergeResult is the outcome of a three-way file merge.
type MergeResult struct {
	Content      string
	HasConflicts bool
}

// knownManifestBasenames lists the small set of machine-wide config files
// whose pull-time conflicts are surfaced directly rather than left for the
// per-file reconciler.
var knownManifestBasenames = map[string]bool{
	"machines.json":      true,
	"sync-settings.json": true,
}

// Gateway wraps a single store repository on disk.
type Gateway struct {
	root string

	mu         sync.Mutex
	pending    []string
	timer      *time.Timer
	onQueueOut func() // test seam; fires at once on its own goroutine instead of via time.Timer when set

	flushGroup singleflight.Group
}

// Initialize ensures the store directory exists, is a git repository,
// ignores its private data subdirectory, and holds the multi-machine
// manifest file, then returns a Gateway for it.
func Initialize(root string) (*Gateway, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root: %w", err)
	}

	repo, err := git.PlainOpen(root)
	if err != nil {
		repo, err = git.PlainInit(root, false)
		if err != nil {
			return nil, fmt.Errorf("store: init repo: %w", err)
		}
		logger.Info("initialized store repository", logger.String("root", root))
	}
	_ = repo

	if err := ensureGitignoreEntry(root, ".db/"); err != nil {
		return nil, err
	}
	if err := ensureMachinesManifest(root); err != nil {
		return nil, err
	}

	return &Gateway{root: root}, nil
}

// Open wraps an already-initialized store directory without re-running the
// Initialize side effects. Use Initialize for first-time setup.
func Open(root string) (*Gateway, error) {
	if _, err := git.PlainOpen(root); err != nil {
		return nil, fmt.Errorf("store: open repo: %w", err)
	}
	return &Gateway{root: root}, nil
}

// Root returns the store's working-tree root.
func (g *Gateway) Root() string { return g.root }

func ensureGitignoreEntry(root, entry string) error {
	path := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(path) // #nosec G304 -- fixed path under store root
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: read .gitignore: %w", err)
	}
	lines := strings.Split(string(existing), "\n")
	for _, l := range lines {
		if strings.TrimSpace(l) == entry {
			return nil
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return fmt.Errorf("store: write .gitignore: %w", err)
	}
	defer f.Close()
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(entry + "\n")
	return err
}

func ensureMachinesManifest(root string) error {
	path := filepath.Join(root, "machines.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	manifest := map[string]any{
		"machines": map[string]any{},
		"repos":    map[string]any{},
		"services": map[string]any{},
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode machines.json: %w", err)
	}

	v, err := schema.NewValidatorFromBytes([]byte(machinesManifestSchema))
	if err != nil {
		return fmt.Errorf("store: compile machines.json schema: %w", err)
	}
	res, err := v.ValidateBytes(data)
	if err != nil {
		return fmt.Errorf("store: validate machines.json: %w", err)
	}
	if !res.Valid {
		return fmt.Errorf("store: generated machines.json failed validation: %+v", res.Errors)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { // #nosec G306 -- store-managed file
		return fmt.Errorf("store: write machines.json: %w", err)
	}
	return nil
}

// GetContentAtHead returns the bytes committed at HEAD for a store-relative
// path, or nil if the path has never been committed.
func (g *Gateway) GetContentAtHead(relPath string) ([]byte, error) {
	return g.GetContentAtRevision(relPath, "HEAD")
}

// GetContentAtRevision returns the bytes committed at a named revision for
// a store-relative path, or nil if it does not exist there.
func (g *Gateway) GetContentAtRevision(relPath, revision string) ([]byte, error) {
	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return nil, fmt.Errorf("store: open repo: %w", err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		// No history yet at all.
		return nil, nil
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("store: resolve commit %s: %w", revision, err)
	}
	file, err := commit.File(filepath.ToSlash(relPath))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s at %s: %w", relPath, revision, err)
	}
	r, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("store: open blob reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// HeadIdentity returns a stable identifier for HEAD, used to detect
// external VCS operations (e.g. a manual pull run outside the engine).
func (g *Gateway) HeadIdentity() (string, error) {
	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return "", fmt.Errorf("store: open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("store: resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// WorktreeDiffersFromHead reports whether the store's working tree has any
// staged or unstaged changes relative to HEAD.
func (g *Gateway) WorktreeDiffersFromHead() (bool, error) {
	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return false, fmt.Errorf("store: open repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("store: worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("store: status: %w", err)
	}
	return !st.IsClean(), nil
}

// Commit stages and commits every difference with the given message. It is
// a no-op if the working tree already matches HEAD.
func (g *Gateway) Commit(message string) error {
	changed, err := g.WorktreeDiffersFromHead()
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	repo, err := git.PlainOpen(g.root)
	if err != nil {
		return fmt.Errorf("store: open repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("store: worktree: %w", err)
	}
	if err := wt.AddGlob("."); err != nil {
		return fmt.Errorf("store: stage changes: %w", err)
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: commitSignature(),
	})
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	logger.Debug("store commit", logger.String("message", message))
	return nil
}

func commitSignature() *object.Signature {
	return &object.Signature{
		Name:  "confsync",
		Email: "confsync@localhost",
		When:  time.Now(),
	}
}

// QueueCommit appends a message to the pending batch and (re)arms the
// 2-second debounce timer. On fire, duplicate messages are coalesced into
// "<msg> (xN)" and committed as one.
func (g *Gateway) QueueCommit(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = append(g.pending, message)
	if g.timer != nil {
		g.timer.Stop()
	}
	if g.onQueueOut != nil {
		// Test seam: fire immediately instead of waiting on a real timer.
		go g.onQueueOut()
		return
	}
	g.timer = time.AfterFunc(QueueDebounce, func() {
		if err := g.FlushQueuedCommits(); err != nil {
			logger.Warn("flush queued commits failed", logger.Err(err))
		}
	})
}

// FlushQueuedCommits immediately collapses any pending batch into a single
// commit. Concurrent callers collapse onto one in-flight flush via
// singleflight, so multiple simultaneous flush requests never race on the
// same pending slice.
func (g *Gateway) FlushQueuedCommits() error {
	_, err, _ := g.flushGroup.Do("flush", func() (any, error) {
		g.mu.Lock()
		msgs := g.pending
		g.pending = nil
		if g.timer != nil {
			g.timer.Stop()
			g.timer = nil
		}
		g.mu.Unlock()

		if len(msgs) == 0 {
			return nil, nil
		}
		return nil, g.Commit(coalesceMessages(msgs))
	})
	return err
}

// coalesceMessages merges a list of queued messages, preserving order of
// first appearance, summarizing repeats as "<msg> (xN)".
func coalesceMessages(msgs []string) string {
	order := make([]string, 0, len(msgs))
	counts := make(map[string]int, len(msgs))
	for _, m := range msgs {
		if _, seen := counts[m]; !seen {
			order = append(order, m)
		}
		counts[m]++
	}
	parts := make([]string, 0, len(order))
	for _, m := range order {
		n := counts[m]
		if n > 1 {
			parts = append(parts, fmt.Sprintf("%s (x%d)", m, n))
		} else {
			parts = append(parts, m)
		}
	}
	return strings.Join(parts, "; ")
}

// EnsureStoreCommitted flushes the queue, then, if the working tree still
// differs from HEAD, commits it with a synthetic message. If that commit
// step surfaces merge conflicts, it aborts the merge and parses each
// conflicted file's markers into ours/theirs pairs.
func (g *Gateway) EnsureStoreCommitted() ([]CommitQueueConflict, error) {
	if err := g.FlushQueuedCommits(); err != nil {
		return nil, err
	}
	changed, err := g.WorktreeDiffersFromHead()
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	if err := g.Commit("Checkpoint before comparison"); err != nil {
		if conflicts, parseErr := g.detectAndAbortMerge(); parseErr == nil && len(conflicts) > 0 {
			return conflicts, nil
		}
		return nil, err
	}
	return nil, nil
}

func (g *Gateway) detectAndAbortMerge() ([]CommitQueueConflict, error) {
	out, _ := g.runGit("diff", "--name-only", "--diff-filter=U")
	var conflicts []CommitQueueConflict
	for _, rel := range splitNonEmptyLines(out) {
		content, err := os.ReadFile(filepath.Join(g.root, rel)) // #nosec G304 -- rel comes from git's own conflict list
		if err != nil {
			continue
		}
		ours, theirs := ParseConflictMarkers(string(content))
		conflicts = append(conflicts, CommitQueueConflict{Path: rel, Ours: ours, Theirs: theirs})
	}
	if _, err := g.runGit("merge", "--abort"); err != nil {
		logger.Warn("merge --abort failed", logger.Err(err))
	}
	if len(conflicts) == 0 {
		return nil, errors.New("store: commit failed without conflict markers")
	}
	return conflicts, nil
}

// Pull fetches and merges from the tracking remote (or "origin", or the
// first remote at all), detecting conflicts in the known manifest files.
func (g *Gateway) Pull() (*PullResult, error) {
	remote, err := g.resolveRemote()
	if err != nil {
		return nil, err
	}
	_, err = g.runGit("pull", "--no-rebase", remote)
	if err == nil {
		return &PullResult{}, nil
	}

	out, _ := g.runGit("diff", "--name-only", "--diff-filter=U")
	var conflicts []PullConflict
	for _, rel := range splitNonEmptyLines(out) {
		base := filepath.Base(rel)
		if !knownManifestBasenames[base] {
			continue
		}
		content, readErr := os.ReadFile(filepath.Join(g.root, rel)) // #nosec G304 -- rel from git's own list
		if readErr != nil {
			continue
		}
		ours, theirs := ParseConflictMarkers(string(content))
		conflicts = append(conflicts, PullConflict{File: rel, Content: string(content), Ours: ours, Theirs: theirs})
	}
	if len(conflicts) > 0 {
		return &PullResult{Conflicts: conflicts}, nil
	}
	return nil, fmt.Errorf("store: pull: %w", err)
}

// Push pushes the store's current branch to its remote, symmetric to Pull.
func (g *Gateway) Push() error {
	remote, err := g.resolveRemote()
	if err != nil {
		return err
	}
	if _, err := g.runGit("push", remote); err != nil {
		return fmt.Errorf("store: push: %w", err)
	}
	return nil
}

func (g *Gateway) resolveRemote() (string, error) {
	out, err := g.runGit("remote")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoRemote, err)
	}
	remotes := splitNonEmptyLines(out)
	if len(remotes) == 0 {
		return "", ErrNoRemote
	}
	if up, err := g.runGit("rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"); err == nil {
		for _, r := range remotes {
			if strings.HasPrefix(strings.TrimSpace(up), r+"/") {
				return r, nil
			}
		}
	}
	for _, r := range remotes {
		if r == "origin" {
			return "origin", nil
		}
	}
	sort.Strings(remotes)
	return remotes[0], nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (g *Gateway) runGit(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204 -- fixed subcommand, store-owned working dir
	cmd.Dir = g.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
