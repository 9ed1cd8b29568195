package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func sampleSession() *Session {
	s := New("/work/project", "default")
	s.Model = "gemini-2.5-pro"
	s.Iteration = 2
	s.LastReview = "looks fine"
	s.InputTokens = 1200
	s.OutputTokens = 80
	s.AppendHistory(
		&genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{
			{Text: "review this"},
		}},
		&genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "read_file", Args: map[string]any{"filepath": "a.py"}}},
		}},
		&genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{
			{FunctionResponse: &genai.FunctionResponse{Name: "read_file", Response: map[string]any{"success": true, "content": "x"}}},
		}},
	)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())
	s := sampleSession()
	require.NoError(t, st.Save(s))

	loaded, err := st.Load("/work/project", "default")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(s, loaded))

	history := loaded.GenaiHistory()
	require.Len(t, history, 3)
	assert.Equal(t, "review this", history[0].Parts[0].Text)
	assert.Equal(t, "read_file", history[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "read_file", history[2].Parts[0].FunctionResponse.Name)
}

func TestSaveIsByteStable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := NewStore(dir)
	s := sampleSession()
	require.NoError(t, st.Save(s))

	loaded, err := st.Load("/work/project", "default")
	require.NoError(t, err)
	require.NoError(t, st.Save(loaded))

	first, err := os.ReadFile(st.path("/work/project", "default"))
	require.NoError(t, err)
	second, err := json.MarshalIndent(loaded, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, string(second), string(first))
}

func TestLoadMissingSession(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())
	_, err := st.Load("/work/project", "none")
	assert.True(t, os.IsNotExist(err))

	s, err := st.LoadOrCreate("/work/project", "none")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Iteration)
	assert.Equal(t, "none", s.Name)
}

func TestProjectScoping(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())

	a := New("/work/alpha", "default")
	a.LastReview = "alpha"
	b := New("/work/beta", "default")
	b.LastReview = "beta"
	require.NoError(t, st.Save(a))
	require.NoError(t, st.Save(b))

	gotA, err := st.Load("/work/alpha", "default")
	require.NoError(t, err)
	gotB, err := st.Load("/work/beta", "default")
	require.NoError(t, err)
	assert.Equal(t, "alpha", gotA.LastReview)
	assert.Equal(t, "beta", gotB.LastReview)
}

func TestIncompatibleVersionRejected(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())
	s := New("/work/project", "old")
	s.FormatVersion = FormatVersion + 1
	require.NoError(t, st.Save(s))

	_, err := st.Load("/work/project", "old")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestAcquireBlocksSecondHolder(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())

	release, err := st.Acquire("/work/project", "default")
	require.NoError(t, err)

	_, err = st.Acquire("/work/project", "default")
	assert.ErrorIs(t, err, ErrSessionBusy)

	// A different session name is independent.
	release2, err := st.Acquire("/work/project", "other")
	require.NoError(t, err)
	release2()

	release()
	release() // releasing twice is harmless

	release3, err := st.Acquire("/work/project", "default")
	require.NoError(t, err)
	release3()
}

func TestListSortsByActivity(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())

	old := New("/work/project", "old")
	old.LastActive = time.Now().UTC().Add(-time.Hour)
	recent := New("/work/project", "recent")
	require.NoError(t, st.Save(old))
	require.NoError(t, st.Save(recent))

	infos, err := st.List("/work/project", ListOptions{})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "recent", infos[0].Name)
	assert.Equal(t, "old", infos[1].Name)
}

func TestListFilterSortAndLimit(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())

	payments := New("/work/project", "payments")
	payments.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	payments.LastActive = time.Now().UTC().Add(-time.Hour)
	paymentsV2 := New("/work/project", "payments-v2")
	auth := New("/work/project", "auth")
	auth.LastActive = time.Now().UTC().Add(-30 * time.Minute)
	for _, s := range []*Session{payments, paymentsV2, auth} {
		require.NoError(t, st.Save(s))
	}

	infos, err := st.List("/work/project", ListOptions{Name: "payments"})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "payments-v2", infos[0].Name)
	assert.Equal(t, "payments", infos[1].Name)

	infos, err = st.List("/work/project", ListOptions{SortBy: "name"})
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "auth", infos[0].Name)
	assert.Equal(t, "payments", infos[1].Name)

	infos, err = st.List("/work/project", ListOptions{SortBy: "created"})
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "payments", infos[2].Name)

	infos, err = st.List("/work/project", ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "payments-v2", infos[0].Name)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	st := NewStore(t.TempDir())
	require.NoError(t, st.Save(New("/work/project", "gone")))
	require.NoError(t, st.Delete("/work/project", "gone"))
	_, err := st.Load("/work/project", "gone")
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, st.Delete("/work/project", "never-existed"))
}

func TestPruneRemovesStaleSessions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := NewStore(dir)

	stale := New("/work/project", "stale")
	stale.LastActive = time.Now().UTC().Add(-48 * time.Hour)
	fresh := New("/work/project", "fresh")
	require.NoError(t, st.Save(stale))
	require.NoError(t, st.Save(fresh))

	removed, err := st.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = st.Load("/work/project", "stale")
	assert.True(t, os.IsNotExist(err))
	_, err = st.Load("/work/project", "fresh")
	assert.NoError(t, err)
}

func TestSanitizedNamesDoNotEscapeStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := NewStore(dir)

	s := New("/work/project", "../../evil")
	require.NoError(t, st.Save(s))

	p := st.path("/work/project", "../../evil")
	rel, err := filepath.Rel(dir, p)
	require.NoError(t, err)
	assert.NotContains(t, rel, "..")
}
