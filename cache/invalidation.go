package cache

// Event identifies a write that requires cache invalidation. Centralizing
// the event-to-eviction mapping here (rather than scattering EvictKey/
// EvictByPrefix calls across every writer) is the design note from the
// source spec: each writer reports what happened, not which cache keys to
// touch.
type Event int

const (
	EventNamespaceCreated Event = iota
	EventNamespaceDeleted
	EventConfigFileCreated
	EventConfigFileDeleted
	EventConfigFileUpdated
	EventVaultUpdated
)

// Invalidate applies the eviction policy for event against namespace ns and
// relative file path (path is ignored for namespace-level and vault
// events).
func (c *Cache) Invalidate(event Event, ns, path string) {
	switch event {
	case EventNamespaceCreated, EventNamespaceDeleted:
		c.EvictKey(Namespaces, "all")
		c.EvictAll(DirectoryListing)
		if event == EventNamespaceDeleted {
			c.evictVaultAndConfigForNamespace(ns)
		}
	case EventConfigFileCreated, EventConfigFileDeleted:
		c.EvictAll(DirectoryListing)
		c.EvictKey(NamespaceEvents, ns)
		c.EvictKey(NamespaceNotifications, ns)
		if event == EventConfigFileDeleted {
			c.EvictKey(ConfigContent, path)
			c.EvictKey(CommitHistory, path)
			c.EvictKey(LatestCommit, path)
		}
	case EventConfigFileUpdated:
		c.EvictKey(ConfigContent, path)
		c.EvictKey(CommitHistory, path)
		c.EvictKey(LatestCommit, path)
		c.EvictKey(NamespaceEvents, ns)
		c.EvictKey(NamespaceNotifications, ns)
	case EventVaultUpdated:
		c.EvictKey(VaultSecrets, ns)
		c.EvictByPrefix(ConfigContent, ns+"/")
		c.EvictByPrefix(CommitHistory, ns+"/")
		c.EvictByPrefix(LatestCommit, ns+"/")
		c.EvictByPrefix(CommitDetails, "_"+ns)
	}
}

func (c *Cache) evictVaultAndConfigForNamespace(ns string) {
	c.EvictKey(VaultSecrets, ns)
	c.EvictByPrefix(ConfigContent, ns+"/")
	c.EvictByPrefix(CommitHistory, ns+"/")
	c.EvictByPrefix(LatestCommit, ns+"/")
	c.EvictByPrefix(CommitDetails, "_"+ns)
}
