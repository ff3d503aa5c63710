// Package resolver implements the pull-client resolution contract: merging
// base, application, and profile-specific YAML sources for a namespace/label
// into a single flattened property view with secrets substituted, plus a
// version identifier callers can poll for change detection.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vatsan127/config-server/cerrors"
	"github.com/vatsan127/config-server/configstore"
	"github.com/vatsan127/config-server/secretproc"
	"github.com/vatsan127/config-server/validator"
	"github.com/vatsan127/config-server/yamlops"
)

// PropertySource is one merged source in the pull-client response shape.
type PropertySource struct {
	Name   string
	Source map[string]any
}

// Result is the Resolver's output: one merged property source plus the
// commit ID of the primary application file, used by pull clients as a
// cheap change-detection version.
type Result struct {
	PropertySources []PropertySource
	Version         string
}

// Resolver merges configuration sources for a (application, profile, label)
// request and resolves secrets for the client.
type Resolver struct {
	store *configstore.Store
	proc  *secretproc.Processor
}

// New builds a Resolver over store and proc.
func New(store *configstore.Store, proc *secretproc.Processor) *Resolver {
	return &Resolver{store: store, proc: proc}
}

// defaultNamespace is used when label is empty, per spec §4.9.
const defaultNamespace = "main"

// splitLabel parses "<namespace>[/<subpath>]", defaulting to the main
// namespace with an empty subpath when label is empty.
func splitLabel(label string) (ns, subpath string) {
	if label == "" {
		return defaultNamespace, ""
	}
	idx := strings.Index(label, "/")
	if idx < 0 {
		return label, ""
	}
	return label[:idx], label[idx+1:]
}

// Resolve implements the pull-client contract described in spec §4.9.
func (r *Resolver) Resolve(ctx context.Context, application, profile, label string) (*Result, error) {
	if err := validator.ValidateAppName(application); err != nil {
		return nil, err
	}
	if err := validator.ValidateProfile(profile); err != nil {
		return nil, err
	}
	if label != "" {
		if err := validator.ValidateSafePath(label); err != nil {
			return nil, err
		}
	}

	ns, subpath := splitLabel(label)
	if err := validator.ValidateNamespace(ns); err != nil {
		return nil, err
	}
	if subpath != "" {
		if err := validator.ValidateSafePath(subpath); err != nil {
			return nil, err
		}
	}

	primaryRel := joinPath(subpath, application+".yml")
	primaryPath := ns + "/" + primaryRel

	merged := map[string]any{}
	loadedAny := false

	for _, rel := range sourceFiles(subpath, application, profile) {
		path := ns + "/" + rel
		content, err := r.store.Read(ctx, path)
		if err != nil {
			logrus.WithError(err).WithField("path", path).Debug("resolver: failed to read source, skipping")
			continue
		}
		tree := yamlops.Parse(content)
		merged = yamlops.DeepMerge(merged, tree)
		loadedAny = true
	}

	if !loadedAny {
		return nil, cerrors.New(cerrors.CodeConfigFileNotFound, fmt.Sprintf("no configuration source found for %s", primaryPath))
	}

	flat := yamlops.Flatten(merged)

	text, err := yamlops.Dump(flat)
	if err != nil {
		return nil, err
	}
	resolvedText := r.proc.ProcessForClient(ctx, ns, text)
	resolvedTree, err := yamlops.ParseStrict(resolvedText)
	if err != nil {
		resolvedTree = flat
	}

	version, err := r.store.LatestCommitID(ctx, primaryPath)
	if err != nil {
		version = ""
	}

	profileName := "default"
	if trimmed := strings.TrimSpace(profile); trimmed != "" {
		profileName = trimmed
	}

	return &Result{
		PropertySources: []PropertySource{{
			Name:   fmt.Sprintf("merged-%s-%s", application, profileName),
			Source: resolvedTree,
		}},
		Version: version,
	}, nil
}

// sourceFiles returns the relative source paths in load order: namespace
// base, application base, then one per non-default profile segment,
// left-to-right.
func sourceFiles(subpath, application, profile string) []string {
	files := []string{
		joinPath(subpath, "application.yml"),
		joinPath(subpath, application+".yml"),
	}
	for _, seg := range validator.SplitProfiles(profile) {
		files = append(files, joinPath(subpath, application+"-"+seg+".yml"))
	}
	return files
}

func joinPath(subpath, name string) string {
	if subpath == "" {
		return name
	}
	return strings.TrimSuffix(subpath, "/") + "/" + name
}
