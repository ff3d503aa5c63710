// Package secretproc implements the two-mode YAML transformation over the
// namespace vault: client mode substitutes decrypted secret values into
// matching leaves, internal mode redacts them to a sentinel. Both modes
// share one recursive traversal parameterized by a leaf operation, per the
// "avoid duplicating traversal code" design note.
package secretproc

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/vatsan127/config-server/vault"
	"github.com/vatsan127/config-server/yamlops"
)

// Sentinel is the out-of-band marker internal mode writes in place of a
// secret leaf. It must never round-trip back to a client.
const Sentinel = "<ENCRYPTED_VALUE>"

// Processor applies client/internal transformations using a vault.Store for
// secret lookups.
type Processor struct {
	vault *vault.Store
}

// New builds a Processor over store.
func New(store *vault.Store) *Processor {
	return &Processor{vault: store}
}

type leafOp func(path string, value any, secrets map[string]string) any

// ProcessForClient substitutes decrypted vault values into matching leaves.
// A leaf holding the Sentinel with no matching vault entry is left as-is
// (a warning is logged). On any failure the original text is returned
// unchanged, matching the read path's best-effort policy.
func (p *Processor) ProcessForClient(ctx context.Context, ns, yamlText string) string {
	secrets, err := p.vault.Get(ctx, ns)
	if err != nil {
		logrus.WithError(err).WithField("namespace", ns).Warn("secretproc: failed to load vault, returning content unchanged")
		return yamlText
	}
	return p.process(yamlText, secrets, resolveLeaf)
}

// ProcessForInternal redacts every leaf whose dotted path is a vault key to
// the Sentinel. On any failure the original text is returned unchanged.
func (p *Processor) ProcessForInternal(ctx context.Context, ns, yamlText string) string {
	secrets, err := p.vault.Get(ctx, ns)
	if err != nil {
		logrus.WithError(err).WithField("namespace", ns).Warn("secretproc: failed to load vault, returning content unchanged")
		return yamlText
	}
	return p.process(yamlText, secrets, redactLeaf)
}

func (p *Processor) process(yamlText string, secrets map[string]string, op leafOp) string {
	tree, err := yamlops.ParseStrict(yamlText)
	if err != nil {
		return yamlText
	}

	walked := walk(tree, "", secrets, op)
	walkedMap, ok := walked.(map[string]any)
	if !ok {
		return yamlText
	}

	out, err := yamlops.Dump(walkedMap)
	if err != nil {
		return yamlText
	}
	return out
}

func walk(node any, path string, secrets map[string]string, op leafOp) any {
	m, ok := node.(map[string]any)
	if !ok {
		return op(path, node, secrets)
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		childPath := k
		if path != "" {
			childPath = path + "." + k
		}
		out[k] = walk(v, childPath, secrets, op)
	}
	return out
}

func resolveLeaf(path string, value any, secrets map[string]string) any {
	if plain, ok := secrets[path]; ok {
		return plain
	}
	if s, ok := value.(string); ok && s == Sentinel {
		logrus.WithField("path", path).Warn("secretproc: encrypted placeholder with no matching vault entry")
	}
	return value
}

func redactLeaf(path string, value any, secrets map[string]string) any {
	if _, ok := secrets[path]; ok {
		return Sentinel
	}
	return value
}
