// Package configstore implements file-level CRUD on configuration files,
// backed by gitrepo.Gateway and cache.Cache, with secretproc applied on
// every read/write per the spec's internal-mode-at-rest policy.
package configstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vatsan127/config-server/cache"
	"github.com/vatsan127/config-server/cerrors"
	"github.com/vatsan127/config-server/gitrepo"
	"github.com/vatsan127/config-server/secretproc"
	"github.com/vatsan127/config-server/validator"
)

// DefaultHistorySize is the history size New uses when given a
// historySize <= 0.
const DefaultHistorySize = 20

// diffMetadataPrefixes are stripped from unified diff output before it is
// returned to callers. Matching is by line prefix, which is a known
// limitation: a YAML value that happens to start with one of these strings
// is also stripped. See the original GitOperationServiceImpl for the
// equivalent (and equally imprecise) behavior.
var diffMetadataPrefixes = []string{
	"diff --git", "index ", "--- ", "+++ ",
	"new file mode", "deleted file mode", "similarity index",
	"rename from", "rename to", "copy from", "copy to",
}

// Store implements the ConfigStore component.
type Store struct {
	gateway     *gitrepo.Gateway
	cache       *cache.Cache
	secrets     *secretproc.Processor
	historySize int
}

// New builds a Store. historySize bounds History and NamespaceEvents
// results; DefaultHistorySize is used when it is <= 0.
func New(gateway *gitrepo.Gateway, c *cache.Cache, secrets *secretproc.Processor, historySize int) *Store {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Store{gateway: gateway, cache: c, secrets: secrets, historySize: historySize}
}

// DefaultTemplate renders the YAML content a new configuration file is
// seeded with, matching the original's DEFAULT_CONFIG_TEMPLATE shape.
func DefaultTemplate(appName string) string {
	return fmt.Sprintf("application:\n  name: %s\nconfig: {}\n", appName)
}

func splitNamespace(path string) (string, error) {
	idx := strings.Index(path, "/")
	if idx <= 0 {
		return "", cerrors.New(cerrors.CodeInvalidPath, "path must start with <namespace>/")
	}
	return path[:idx], nil
}

// Initialize creates path with the default template if it does not already
// exist.
func (s *Store) Initialize(ctx context.Context, path, appName, email string) (string, error) {
	if err := validator.ValidateSafePath(path); err != nil {
		return "", err
	}
	if err := validator.ValidateAppName(appName); err != nil {
		return "", err
	}
	ns, err := splitNamespace(path)
	if err != nil {
		return "", err
	}
	rel := path[len(ns)+1:]

	commitID, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) (string, error) {
		if h.Exists(rel) {
			return "", cerrors.New(cerrors.CodeConfigFileAlreadyExists, "config file already exists")
		}
		if err := h.WriteFile(rel, []byte(DefaultTemplate(appName))); err != nil {
			return "", err
		}
		who := gitrepo.NewSignature(email, time.Now())
		return h.StageAndCommit(rel, "First commit ApplicationName - "+appName, who)
	})
	if err != nil {
		return "", err
	}

	s.cache.Invalidate(cache.EventConfigFileCreated, ns, path)
	return commitID, nil
}

// Read returns path's content with internal-mode secret redaction applied.
// Results are cached under config-content[path].
func (s *Store) Read(ctx context.Context, path string) (string, error) {
	if err := validator.ValidateSafePath(path); err != nil {
		return "", err
	}
	if v, ok := s.cache.Get(cache.ConfigContent, path); ok {
		return v.(string), nil
	}

	ns, err := splitNamespace(path)
	if err != nil {
		return "", err
	}
	rel := path[len(ns)+1:]

	raw, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) (string, error) {
		if !h.Exists(rel) {
			return "", cerrors.New(cerrors.CodeConfigFileNotFound, "config file not found")
		}
		data, err := h.ReadFile(rel)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		return "", err
	}

	redacted := s.secrets.ProcessForInternal(ctx, ns, raw)
	s.cache.Put(cache.ConfigContent, path, redacted)
	return redacted, nil
}

// UpdateResult carries the fields Update's caller needs to enqueue a
// refresh notification.
type UpdateResult struct {
	CommitID string
	Namespace string
	AppName  string
}

// Update applies an optimistic-concurrency-checked write to path.
func (s *Store) Update(ctx context.Context, path, content, commitMessage, expectedCommitID, email, appName string) (*UpdateResult, error) {
	if err := validator.ValidateSafePath(path); err != nil {
		return nil, err
	}
	if err := validator.ValidateYAMLContent(content); err != nil {
		return nil, err
	}
	if err := validator.ValidateCommitMessage(commitMessage); err != nil {
		return nil, err
	}
	if err := validator.ValidateCommitID(expectedCommitID); err != nil {
		return nil, err
	}
	if err := validator.ValidateEmail(email); err != nil {
		return nil, err
	}

	ns, err := splitNamespace(path)
	if err != nil {
		return nil, err
	}
	rel := path[len(ns)+1:]

	// Internal-mode substitution happens before writing, per spec §9's
	// accepted write-through behavior: a secret key not yet present in the
	// vault is written with its plaintext leaf intact.
	processed := s.secrets.ProcessForInternal(ctx, ns, content)

	commitID, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) (string, error) {
		current, err := h.LatestCommitID(rel)
		if err != nil {
			if err != gitrepo.ErrCommitNotFound {
				return "", err
			}
			current = ""
		}
		if current != expectedCommitID {
			return "", cerrors.New(cerrors.CodeConfigConflict, "commit id does not match current head for path")
		}

		if err := h.WriteFile(rel, []byte(processed)); err != nil {
			return "", err
		}
		who := gitrepo.NewSignature(email, time.Now())
		return h.StageAndCommit(rel, commitMessage, who)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(cache.EventConfigFileUpdated, ns, path)
	return &UpdateResult{CommitID: commitID, Namespace: ns, AppName: appName}, nil
}

// Delete removes path via a commit.
func (s *Store) Delete(ctx context.Context, path, commitMessage, email string) (string, error) {
	if err := validator.ValidateSafePath(path); err != nil {
		return "", err
	}
	if err := validator.ValidateCommitMessage(commitMessage); err != nil {
		return "", err
	}

	ns, err := splitNamespace(path)
	if err != nil {
		return "", err
	}
	rel := path[len(ns)+1:]

	commitID, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) (string, error) {
		if !h.Exists(rel) {
			return "", cerrors.New(cerrors.CodeConfigFileNotFound, "config file not found")
		}
		if err := h.RemoveFile(rel); err != nil {
			return "", err
		}
		who := gitrepo.NewSignature(email, time.Now())
		return h.StageAndCommit(rel, commitMessage, who)
	})
	if err != nil {
		return "", err
	}

	s.cache.Invalidate(cache.EventConfigFileDeleted, ns, path)
	return commitID, nil
}

// LatestCommitID returns the most recent commit touching path.
func (s *Store) LatestCommitID(ctx context.Context, path string) (string, error) {
	if err := validator.ValidateSafePath(path); err != nil {
		return "", err
	}
	if v, ok := s.cache.Get(cache.LatestCommit, path); ok {
		return v.(string), nil
	}

	ns, err := splitNamespace(path)
	if err != nil {
		return "", err
	}
	rel := path[len(ns)+1:]

	id, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) (string, error) {
		return h.LatestCommitID(rel)
	})
	if err != nil {
		if err == gitrepo.ErrCommitNotFound {
			return "", cerrors.New(cerrors.CodeConfigFileNotFound, "no commit touches path")
		}
		return "", err
	}

	s.cache.Put(cache.LatestCommit, path, id)
	return id, nil
}

// History returns up to the configured commit-history-size most recent
// commits touching path.
func (s *Store) History(ctx context.Context, path string) ([]gitrepo.CommitRecord, error) {
	if err := validator.ValidateSafePath(path); err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cache.CommitHistory, path); ok {
		return v.([]gitrepo.CommitRecord), nil
	}

	ns, err := splitNamespace(path)
	if err != nil {
		return nil, err
	}
	rel := path[len(ns)+1:]

	records, err := gitrepo.WithRepo(ctx, s.gateway, ns, func(h *gitrepo.Handle) ([]gitrepo.CommitRecord, error) {
		return h.History(rel, s.historySize)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Put(cache.CommitHistory, path, records)
	return records, nil
}

// CommitChanges returns commitID's metadata plus its cleaned unified diff.
func (s *Store) CommitChanges(ctx context.Context, namespace, commitID string) (gitrepo.CommitRecord, string, error) {
	if err := validator.ValidateNamespace(namespace); err != nil {
		return gitrepo.CommitRecord{}, "", err
	}
	if err := validator.ValidateCommitID(commitID); err != nil {
		return gitrepo.CommitRecord{}, "", err
	}

	cacheKey := commitID + "_" + namespace
	if v, ok := s.cache.Get(cache.CommitDetails, cacheKey); ok {
		cached := v.([2]any)
		return cached[0].(gitrepo.CommitRecord), cached[1].(string), nil
	}

	type result struct {
		record gitrepo.CommitRecord
		diff   string
	}
	res, err := gitrepo.WithRepo(ctx, s.gateway, namespace, func(h *gitrepo.Handle) (result, error) {
		record, err := h.CommitByID(commitID)
		if err != nil {
			return result{}, err
		}
		diff, err := h.DiffAgainstParent(commitID)
		if err != nil {
			return result{}, err
		}
		return result{record: record, diff: cleanDiff(diff)}, nil
	})
	if err != nil {
		return gitrepo.CommitRecord{}, "", err
	}

	s.cache.Put(cache.CommitDetails, cacheKey, [2]any{res.record, res.diff})
	return res.record, res.diff, nil
}

// cleanDiff strips diff header/metadata lines while preserving hunk headers
// (@@ ...) and content lines.
func cleanDiff(diff string) string {
	lines := strings.Split(diff, "\n")
	var out []string
	for _, line := range lines {
		stripped := false
		for _, prefix := range diffMetadataPrefixes {
			if strings.HasPrefix(line, prefix) {
				stripped = true
				break
			}
		}
		if !stripped {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// NamespaceEvents returns up to the configured history size of the most
// recent commits on namespace's default branch.
func (s *Store) NamespaceEvents(ctx context.Context, namespace string) ([]gitrepo.CommitRecord, error) {
	if err := validator.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cache.NamespaceEvents, namespace); ok {
		return v.([]gitrepo.CommitRecord), nil
	}

	records, err := gitrepo.WithRepo(ctx, s.gateway, namespace, func(h *gitrepo.Handle) ([]gitrepo.CommitRecord, error) {
		return h.Events(s.historySize)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Put(cache.NamespaceEvents, namespace, records)
	return records, nil
}

// ListDirectory returns the entries of namespace/relPath: files with a
// .yml or .yaml suffix stripped, and subdirectories suffixed with "/",
// excluding dotfiles, sorted case-insensitively. Files are not filtered by
// extension: a file without a .yml/.yaml suffix is listed under its full
// name.
func (s *Store) ListDirectory(ctx context.Context, namespace, relPath string) ([]gitrepo.DirEntry, error) {
	if err := validator.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if relPath != "" {
		if err := validator.ValidateSafePath(relPath); err != nil {
			return nil, err
		}
	}

	cacheKey := namespace + "/" + relPath
	if v, ok := s.cache.Get(cache.DirectoryListing, cacheKey); ok {
		return v.([]gitrepo.DirEntry), nil
	}

	entries, err := gitrepo.WithRepo(ctx, s.gateway, namespace, func(h *gitrepo.Handle) ([]gitrepo.DirEntry, error) {
		return h.ListDir(relPath)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	s.cache.Put(cache.DirectoryListing, cacheKey, entries)
	return entries, nil
}

// CreateNamespace validates name and delegates to the gateway, evicting the
// namespace-level cache regions on success.
func (s *Store) CreateNamespace(ctx context.Context, name string) error {
	if err := validator.ValidateNamespace(name); err != nil {
		return err
	}
	if err := s.gateway.CreateNamespace(ctx, name); err != nil {
		return err
	}
	s.cache.Invalidate(cache.EventNamespaceCreated, name, "")
	return nil
}

// DeleteNamespace validates name and delegates to the gateway, evicting
// every namespace- and vault-scoped cache region on success.
func (s *Store) DeleteNamespace(ctx context.Context, name string) error {
	if err := validator.ValidateNamespace(name); err != nil {
		return err
	}
	if err := s.gateway.DeleteNamespace(ctx, name); err != nil {
		return err
	}
	s.cache.Invalidate(cache.EventNamespaceDeleted, name, "")
	return nil
}

// ListNamespaces returns the names of valid namespaces, sorted
// alphabetically.
func (s *Store) ListNamespaces(ctx context.Context) ([]string, error) {
	if v, ok := s.cache.Get(cache.Namespaces, "all"); ok {
		return v.([]string), nil
	}

	all, err := s.gateway.ListNamespaces()
	if err != nil {
		return nil, err
	}

	var valid []string
	for _, ns := range all {
		if validator.ValidateNamespace(ns) == nil {
			valid = append(valid, ns)
		}
	}
	sort.Strings(valid)

	s.cache.Put(cache.Namespaces, "all", valid)
	return valid, nil
}
