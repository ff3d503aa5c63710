// Package gitrepo implements the namespace/repository engine: serialized
// Git operations with optimistic concurrency and atomic commits, one local
// Git repository per namespace.
//
// Every mutating operation on a namespace runs inside WithRepo/WithRepoVoid,
// which acquires a namespace-scoped mutex for the duration of the
// closure (open through commit) and releases it on every exit path,
// including panics propagated as errors by the caller. Read-only
// operations on different namespaces proceed fully in parallel; operations
// within one namespace are always serialized, since go-git's in-process
// handles are not safe for concurrent use.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/vatsan127/config-server/cerrors"
)

// Signature is the author/committer identity applied to a commit. Per the
// data model, Name is always derived from Email's local part.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// NewSignature builds a Signature whose Name is the portion of email before
// '@', per the commit-author convention.
func NewSignature(email string, when time.Time) Signature {
	name := email
	if idx := strings.Index(email, "@"); idx >= 0 {
		name = email[:idx]
	}
	return Signature{Name: name, Email: email, When: when}
}

// CommitRecord is the canonical structured form of a Git commit exposed by
// the management API.
type CommitRecord struct {
	CommitID      string
	Author        string
	Email         string
	Date          string // "YYYY-MM-DD HH:MM:SS" local zone
	CommitMessage string
}

func recordFromCommit(c *object.Commit) CommitRecord {
	return CommitRecord{
		CommitID:      c.Hash.String(),
		Author:        c.Author.Name,
		Email:         c.Author.Email,
		Date:          c.Author.When.Local().Format("2006-01-02 15:04:05"),
		CommitMessage: c.Message,
	}
}

// Gateway owns the namespace-to-repository mapping rooted at BasePath.
type Gateway struct {
	BasePath string

	mapMu sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Gateway rooted at basePath. basePath must already exist;
// callers are expected to have validated this at process startup (spec
// §6 exit codes).
func New(basePath string) *Gateway {
	return &Gateway{BasePath: basePath, locks: make(map[string]*sync.Mutex)}
}

func (g *Gateway) lockFor(ns string) *sync.Mutex {
	g.mapMu.Lock()
	defer g.mapMu.Unlock()
	l, ok := g.locks[ns]
	if !ok {
		l = &sync.Mutex{}
		g.locks[ns] = l
	}
	return l
}

func (g *Gateway) nsDir(ns string) string {
	return filepath.Join(g.BasePath, ns)
}

// NamespaceExists reports whether ns has a directory with a .git subtree.
func (g *Gateway) NamespaceExists(ns string) bool {
	info, err := os.Stat(filepath.Join(g.nsDir(ns), ".git"))
	return err == nil && info.IsDir()
}

// ListNamespaces returns the names of direct subdirectories of BasePath
// that contain a .git directory, sorted alphabetically. Namespace-name
// validity is the caller's responsibility (ConfigStore filters further).
func (g *Gateway) ListNamespaces() ([]string, error) {
	entries, err := os.ReadDir(g.BasePath)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to list base path", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(g.BasePath, e.Name(), ".git")); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// CreateNamespace creates the namespace directory, initializes an empty Git
// repository, and creates the .vault subdirectory.
func (g *Gateway) CreateNamespace(ctx context.Context, ns string) error {
	l := g.lockFor(ns)
	l.Lock()
	defer l.Unlock()

	dir := g.nsDir(ns)
	if _, err := os.Stat(dir); err == nil {
		return cerrors.New(cerrors.CodeNamespaceAlreadyExists, "namespace already exists")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerrors.Wrap(cerrors.CodeNamespaceCreationFailed, "failed to create namespace directory", err)
	}
	if _, err := git.PlainInit(dir, false); err != nil {
		return cerrors.Wrap(cerrors.CodeGitInitFailed, "failed to initialize repository", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".vault"), 0o755); err != nil {
		return cerrors.Wrap(cerrors.CodeNamespaceCreationFailed, "failed to create vault directory", err)
	}
	return nil
}

// DeleteNamespace recursively removes the namespace directory.
func (g *Gateway) DeleteNamespace(ctx context.Context, ns string) error {
	l := g.lockFor(ns)
	l.Lock()
	defer l.Unlock()

	dir := g.nsDir(ns)
	if !g.NamespaceExists(ns) {
		return cerrors.New(cerrors.CodeNamespaceNotFound, "namespace not found")
	}
	if err := os.RemoveAll(dir); err != nil {
		return cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to delete namespace directory", err)
	}
	return nil
}

// Handle exposes Git operations scoped to one open repository, valid only
// for the duration of the WithRepo/WithRepoVoid closure that received it.
type Handle struct {
	repo     *git.Repository
	worktree *git.Worktree
	dir      string
	ns       string
}

// WithRepo opens ns's repository, takes its mutex, invokes fn, and releases
// both on every exit path.
func WithRepo[T any](ctx context.Context, g *Gateway, ns string, fn func(*Handle) (T, error)) (T, error) {
	var zero T
	l := g.lockFor(ns)
	l.Lock()
	defer l.Unlock()

	h, err := g.open(ns)
	if err != nil {
		return zero, err
	}
	return fn(h)
}

// WithRepoVoid is WithRepo for operations with no return value.
func WithRepoVoid(ctx context.Context, g *Gateway, ns string, fn func(*Handle) error) error {
	_, err := WithRepo(ctx, g, ns, func(h *Handle) (struct{}, error) {
		return struct{}{}, fn(h)
	})
	return err
}

func (g *Gateway) open(ns string) (*Handle, error) {
	dir := g.nsDir(ns)
	if !g.NamespaceExists(ns) {
		return nil, cerrors.New(cerrors.CodeNamespaceNotFound, "namespace not found")
	}

	wtFS := osfs.New(dir)
	dotGit := osfs.New(filepath.Join(dir, ".git"))
	storer := filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault())

	repo, err := git.Open(storer, wtFS)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to open repository", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to get worktree", err)
	}
	return &Handle{repo: repo, worktree: wt, dir: dir, ns: ns}, nil
}

// ReadFile reads relPath (relative to the namespace root) from the worktree.
func (h *Handle) ReadFile(relPath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.New(cerrors.CodeConfigFileNotFound, "file not found")
		}
		return nil, cerrors.Wrap(cerrors.CodeConfigFileReadFailed, "failed to read file", err)
	}
	return data, nil
}

// Exists reports whether relPath exists in the worktree.
func (h *Handle) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(h.dir, relPath))
	return err == nil
}

// WriteFile writes data to relPath, creating parent directories as needed.
func (h *Handle) WriteFile(relPath string, data []byte) error {
	full := filepath.Join(h.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to create parent directories", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to write file", err)
	}
	return nil
}

// RemoveFile deletes relPath from the worktree.
func (h *Handle) RemoveFile(relPath string) error {
	if err := os.Remove(filepath.Join(h.dir, relPath)); err != nil && !os.IsNotExist(err) {
		return cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to remove file", err)
	}
	return nil
}

// StageAndCommit stages relPath (add or, if now absent, remove) and commits
// with msg under who. Returns the new commit ID.
func (h *Handle) StageAndCommit(relPath, msg string, who Signature) (string, error) {
	if h.Exists(relPath) {
		if _, err := h.worktree.Add(relPath); err != nil {
			return "", cerrors.Wrap(cerrors.CodeGitCommitFailed, "failed to stage file", err)
		}
	} else {
		if _, err := h.worktree.Remove(relPath); err != nil && !strings.Contains(err.Error(), "entry not found") {
			return "", cerrors.Wrap(cerrors.CodeGitCommitFailed, "failed to stage removal", err)
		}
	}

	hash, err := h.worktree.Commit(msg, &git.CommitOptions{
		Author:    &object.Signature{Name: who.Name, Email: who.Email, When: who.When},
		Committer: &object.Signature{Name: who.Name, Email: who.Email, When: who.When},
	})
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeGitCommitFailed, "failed to commit", err)
	}
	return hash.String(), nil
}

// HeadCommitID returns the commit ID at HEAD, or "" for an empty repository.
func (h *Handle) HeadCommitID() (string, error) {
	ref, err := h.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return "", nil
		}
		return "", cerrors.Wrap(cerrors.CodeGitOperationFailed, "failed to resolve HEAD", err)
	}
	return ref.Hash().String(), nil
}

// LatestCommitID returns the most recent commit that touched relPath,
// walking from HEAD. Returns ErrCommitNotFound if none did.
func (h *Handle) LatestCommitID(relPath string) (string, error) {
	commits, err := h.logForPath(relPath, 1)
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", ErrCommitNotFound
	}
	return commits[0].CommitID, nil
}

// History returns up to maxCount of the most recent commits touching
// relPath, newest first.
func (h *Handle) History(relPath string, maxCount int) ([]CommitRecord, error) {
	return h.logForPath(relPath, maxCount)
}

func (h *Handle) logForPath(relPath string, maxCount int) ([]CommitRecord, error) {
	head, err := h.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to resolve HEAD", err)
	}

	iter, err := h.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to create commit iterator", err)
	}
	defer iter.Close()

	var out []CommitRecord
	err = iter.ForEach(func(c *object.Commit) error {
		if maxCount > 0 && len(out) >= maxCount {
			return storerErrStop
		}
		touched, err := commitTouchesPath(c, relPath)
		if err != nil {
			return err
		}
		if touched {
			out = append(out, recordFromCommit(c))
		}
		return nil
	})
	if err != nil && err != storerErrStop {
		return nil, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to walk commit history", err)
	}
	return out, nil
}

// storerErrStop is a private sentinel used to break out of go-git's
// CommitIter.ForEach once maxCount is reached.
var storerErrStop = fmt.Errorf("stop")

func commitTouchesPath(c *object.Commit, relPath string) (bool, error) {
	tree, err := c.Tree()
	if err != nil {
		return false, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to load commit tree", err)
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return false, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to load parent commit", err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return false, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to load parent tree", err)
		}
	}

	var changes object.Changes
	if parentTree != nil {
		changes, err = parentTree.Diff(tree)
	} else {
		changes, err = (&object.Tree{}).Diff(tree)
	}
	if err != nil {
		return false, cerrors.Wrap(cerrors.CodeGitDiffFailed, "failed to diff trees", err)
	}

	for _, ch := range changes {
		if ch.From.Name == relPath || ch.To.Name == relPath {
			return true, nil
		}
	}
	return false, nil
}

// Events returns up to maxCount of the most recent commits on the default
// branch. An empty repository yields an empty list.
func (h *Handle) Events(maxCount int) ([]CommitRecord, error) {
	head, err := h.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to resolve HEAD", err)
	}
	iter, err := h.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to create commit iterator", err)
	}
	defer iter.Close()

	var out []CommitRecord
	err = iter.ForEach(func(c *object.Commit) error {
		if maxCount > 0 && len(out) >= maxCount {
			return storerErrStop
		}
		out = append(out, recordFromCommit(c))
		return nil
	})
	if err != nil && err != storerErrStop {
		return nil, cerrors.Wrap(cerrors.CodeGitLogFailed, "failed to walk commit history", err)
	}
	return out, nil
}

// CommitByID loads a single commit's record by its ID.
func (h *Handle) CommitByID(commitID string) (CommitRecord, error) {
	hash := plumbing.NewHash(commitID)
	c, err := h.repo.CommitObject(hash)
	if err != nil {
		return CommitRecord{}, cerrors.New(cerrors.CodeConfigFileNotFound, "commit not found")
	}
	return recordFromCommit(c), nil
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// ListDir lists the immediate children of relPath (the namespace root if
// empty), skipping the .git and .vault directories and any dotfiles.
// Config files are returned with their .yml/.yaml extension stripped.
func (h *Handle) ListDir(relPath string) ([]DirEntry, error) {
	full := filepath.Join(h.dir, relPath)
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.New(cerrors.CodeConfigFileNotFound, "directory not found")
		}
		return nil, cerrors.Wrap(cerrors.CodeGitRepositoryAccessFailed, "failed to list directory", err)
	}

	var out []DirEntry
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			out = append(out, DirEntry{Name: name + "/", IsDir: true})
			continue
		}
		trimmed := strings.TrimSuffix(strings.TrimSuffix(name, ".yml"), ".yaml")
		out = append(out, DirEntry{Name: trimmed, IsDir: false})
	}
	return out, nil
}

// DiffAgainstParent returns the unified diff text for the commit identified
// by commitID against its first parent (or against an empty tree for a
// root commit).
func (h *Handle) DiffAgainstParent(commitID string) (string, error) {
	hash := plumbing.NewHash(commitID)
	c, err := h.repo.CommitObject(hash)
	if err != nil {
		return "", cerrors.New(cerrors.CodeConfigFileNotFound, "commit not found")
	}

	tree, err := c.Tree()
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeGitDiffFailed, "failed to load commit tree", err)
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return "", cerrors.Wrap(cerrors.CodeGitDiffFailed, "failed to load parent commit", err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return "", cerrors.Wrap(cerrors.CodeGitDiffFailed, "failed to load parent tree", err)
		}
	}

	var changes object.Changes
	if parentTree != nil {
		changes, err = parentTree.Diff(tree)
	} else {
		changes, err = (&object.Tree{}).Diff(tree)
	}
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeGitDiffFailed, "failed to diff trees", err)
	}

	patch, err := changes.Patch()
	if err != nil {
		return "", cerrors.Wrap(cerrors.CodeGitDiffFailed, "failed to generate patch", err)
	}
	return patch.String(), nil
}
