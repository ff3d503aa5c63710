package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCallbackTimeout bounds a single refresh-callback POST, matching the
// original's RestTemplate connect+read timeout.
const DefaultCallbackTimeout = 30 * time.Second

// DefaultWorkers bounds the notifier's task-per-request worker pool.
const DefaultWorkers = 4

// refreshPayload is the exact POST body the original ClientNotifyService sends.
type refreshPayload struct {
	AppName string `json:"appName"`
}

type task struct {
	namespace string
	appName   string
	url       string
	id        string
}

// Notifier dispatches asynchronous, bounded HTTP refresh callbacks and
// records their outcome in a Store.
type Notifier struct {
	store       *Store
	client      *http.Client
	callbackURL func(namespace string) (string, bool)

	tasks  chan task
	wg     sync.WaitGroup
	stopMu sync.Mutex
	closed bool
}

// New builds a Notifier with workers background goroutines draining an
// internal task queue. callbackURL resolves a namespace's configured
// refresh-notify URL; it returns ok=false when none is configured.
func New(store *Store, workers int, callbackURL func(namespace string) (string, bool)) *Notifier {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	n := &Notifier{
		store:       store,
		client:      &http.Client{Timeout: DefaultCallbackTimeout},
		callbackURL: callbackURL,
		tasks:       make(chan task, 64),
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

// SendRefresh enqueues a best-effort refresh callback for namespace/appName.
// commitID, if non-empty, is used as the tracking ID; otherwise the ID is
// "notify-<unix-millis>-<appName>". The initial IN_PROGRESS notification is
// recorded synchronously so callers observe it immediately via NotifyStore.
func (n *Notifier) SendRefresh(namespace, appName, commitID string) {
	id := commitID
	if id == "" {
		id = fmt.Sprintf("notify-%d-%s", time.Now().UnixMilli(), appName)
	}

	n.store.Append(namespace, Notification{
		ID:            id,
		Status:        StatusInProgress,
		InitiatedTime: time.Now(),
	})

	url, ok := n.callbackURLOrNone(namespace)
	if !ok {
		n.markSuccess(namespace, id)
		return
	}

	n.stopMu.Lock()
	closed := n.closed
	n.stopMu.Unlock()
	if closed {
		n.markFailed(namespace, id, "shutdown")
		return
	}

	select {
	case n.tasks <- task{namespace: namespace, appName: appName, url: url, id: id}:
	default:
		logrus.WithFields(logrus.Fields{"namespace": namespace, "id": id}).Warn("notify: task queue full, dropping refresh")
		n.markFailed(namespace, id, "queue full")
	}
}

// Recent returns namespace's full notification log, most recently initiated
// first.
func (n *Notifier) Recent(namespace string) []Notification {
	return n.store.Recent(namespace, 0)
}

func (n *Notifier) callbackURLOrNone(namespace string) (string, bool) {
	if n.callbackURL == nil {
		return "", false
	}
	return n.callbackURL(namespace)
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for t := range n.tasks {
		n.dispatch(t)
	}
}

func (n *Notifier) dispatch(t task) {
	body, err := json.Marshal(refreshPayload{AppName: t.appName})
	if err != nil {
		n.markFailed(t.namespace, t.id, err.Error())
		return
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		n.markFailed(t.namespace, t.id, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logrus.WithError(err).WithField("namespace", t.namespace).Warn("notify: refresh callback failed")
		n.markFailed(t.namespace, t.id, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		n.markSuccess(t.namespace, t.id)
		return
	}
	n.markFailed(t.namespace, t.id, fmt.Sprintf("unexpected status %d", resp.StatusCode))
}

func (n *Notifier) markSuccess(namespace, id string) {
	n.store.UpdateAtomic(namespace, id, func(current Notification) Notification {
		current.Status = StatusSuccess
		return current
	})
}

func (n *Notifier) markFailed(namespace, id, reason string) {
	n.store.UpdateAtomic(namespace, id, func(current Notification) Notification {
		current.Status = StatusFailed
		current.Reason = reason
		return current
	})
}

// Shutdown stops accepting new work, waits until the workers have drained
// the queue or ctx is done (whichever comes first; callbacks still running
// at that point are not cancelled), and marks any notification left
// IN_PROGRESS in the given namespaces as FAILED with reason "shutdown".
func (n *Notifier) Shutdown(ctx context.Context, namespaces []string) {
	n.stopMu.Lock()
	if n.closed {
		n.stopMu.Unlock()
		return
	}
	n.closed = true
	close(n.tasks)
	n.stopMu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	for _, ns := range namespaces {
		for _, notif := range n.store.Recent(ns, 0) {
			if notif.Status == StatusInProgress {
				n.markFailed(ns, notif.ID, "shutdown")
			}
		}
	}
}
