package core

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	sessions []Session
}

func (r *recorder) observe(s Session) {
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
}

func (r *recorder) find(pred func(Session) bool) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.sessions) - 1; i >= 0; i-- {
		if pred(r.sessions[i]) {
			return r.sessions[i], true
		}
	}
	return Session{}, false
}

func (r *recorder) waitFor(t testing.TB, pred func(Session) bool) Session {
	t.Helper()

	var found Session
	require.Eventually(t, func() bool {
		s, ok := r.find(pred)
		found = s
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	return found
}

func (r *recorder) states(id string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []State
	for _, s := range r.sessions {
		if s.ID == id {
			out = append(out, s.State)
		}
	}
	return out
}

func done(s Session) bool {
	return s.State.Done()
}

func writeRandomFile(t testing.TB, dir, name string, size int) (string, []byte) {
	t.Helper()

	content := make([]byte, size)
	_, err := rand.Read(content)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))

	return path, content
}
