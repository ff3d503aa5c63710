package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vatsan127/config-server/notify"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met within timeout")
}

func TestSendRefreshMarksSuccessOnOK(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := notify.NewStore()
	n := notify.New(store, 2, func(ns string) (string, bool) { return srv.URL, true })
	defer n.Shutdown(context.Background(), []string{"prod"})

	n.SendRefresh("prod", "service-a", "commit-1")

	waitFor(t, time.Second, func() bool {
		for _, entry := range n.Recent("prod") {
			if entry.ID == "commit-1" && entry.Status == notify.StatusSuccess {
				return true
			}
		}
		return false
	})
	require.Equal(t, int32(1), hits.Load())
}

func TestSendRefreshMarksFailedOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := notify.NewStore()
	n := notify.New(store, 2, func(ns string) (string, bool) { return srv.URL, true })
	defer n.Shutdown(context.Background(), []string{"prod"})

	n.SendRefresh("prod", "service-a", "commit-2")

	waitFor(t, time.Second, func() bool {
		for _, entry := range n.Recent("prod") {
			if entry.ID == "commit-2" && entry.Status == notify.StatusFailed {
				return true
			}
		}
		return false
	})
}

func TestSendRefreshWithNoCallbackURLIsImmediateSuccess(t *testing.T) {
	store := notify.NewStore()
	n := notify.New(store, 2, func(ns string) (string, bool) { return "", false })
	defer n.Shutdown(context.Background(), []string{"prod"})

	n.SendRefresh("prod", "service-a", "commit-3")

	recent := n.Recent("prod")
	require.Len(t, recent, 1)
	require.Equal(t, notify.StatusSuccess, recent[0].Status)
}

func TestShutdownFailsInProgressNotifications(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(block)

	store := notify.NewStore()
	n := notify.New(store, 1, func(ns string) (string, bool) { return srv.URL, true })

	n.SendRefresh("prod", "service-a", "commit-4")

	waitFor(t, time.Second, func() bool {
		recent := n.Recent("prod")
		return len(recent) == 1 && recent[0].Status == notify.StatusInProgress
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	n.Shutdown(shutdownCtx, []string{"prod"})

	recent := n.Recent("prod")
	require.Len(t, recent, 1)
	require.Equal(t, notify.StatusFailed, recent[0].Status)
	require.Equal(t, "shutdown", recent[0].Reason)
}
