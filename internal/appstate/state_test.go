package appstate

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedID(id string) func() string { return func() string { return id } }

func TestLoadGeneratesSessionOnce(t *testing.T) {
	kv := NewMemoryKV()

	s, err := Load(kv, fixedID("s-1"))
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.SessionID())
	assert.Equal(t, ThemeDark, s.Theme())
	assert.Equal(t, LangEN, s.Lang())
	assert.False(t, s.IsAdmin())

	again, err := Load(kv, fixedID("s-2"))
	require.NoError(t, err)
	assert.Equal(t, "s-1", again.SessionID(), "existing identity is kept")
}

func TestSettersPersist(t *testing.T) {
	kv := NewMemoryKV()
	s, err := Load(kv, fixedID("s-1"))
	require.NoError(t, err)

	require.NoError(t, s.SetAdmin(true))
	require.NoError(t, s.SetTheme(ThemeLight))
	require.NoError(t, s.SetLang(LangAR))
	for _, id := range []string{"b", "a", "c"} {
		added, err := s.TryLike(id)
		require.NoError(t, err)
		assert.True(t, added)
	}
	added, err := s.TryLike("a")
	require.NoError(t, err)
	assert.False(t, added)
	require.NoError(t, s.RemoveLiked("c"))

	reloaded, err := Load(kv, fixedID("unused"))
	require.NoError(t, err)
	assert.True(t, reloaded.IsAdmin())
	assert.Equal(t, ThemeLight, reloaded.Theme())
	assert.Equal(t, LangAR, reloaded.Lang())
	assert.Equal(t, []string{"a", "b"}, reloaded.Liked())
	assert.True(t, reloaded.HasLiked("a"))
	assert.False(t, reloaded.HasLiked("c"))
}

func TestInvalidPreferencesRejected(t *testing.T) {
	s, err := Load(NewMemoryKV(), fixedID("s"))
	require.NoError(t, err)
	assert.Error(t, s.SetTheme("neon"))
	assert.Error(t, s.SetLang("fr"))
	assert.Equal(t, ThemeDark, s.Theme())
	assert.Equal(t, LangEN, s.Lang())
}

func TestCorruptLikedSetIsIgnored(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(KeyLiked, "{not json"))
	s, err := Load(kv, fixedID("s"))
	require.NoError(t, err)
	assert.Empty(t, s.Liked())
}

type failingKV struct{ MemoryKV }

func (f *failingKV) Get(string) (string, bool, error) { return "", false, errors.New("boom") }

func TestLoadPropagatesKVErrors(t *testing.T) {
	_, err := Load(&failingKV{}, fixedID("s"))
	assert.Error(t, err)
}

func TestTryLikeIsAtomic(t *testing.T) {
	s, err := Load(NewMemoryKV(), fixedID("s"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if added, err := s.TryLike("x"); err == nil && added {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

type readOnlyKV struct{ *MemoryKV }

func (readOnlyKV) Set(string, string) error { return errors.New("read-only") }

func TestTryLikeRollsBackOnSaveFailure(t *testing.T) {
	s, err := Load(NewMemoryKV(), fixedID("s"))
	require.NoError(t, err)
	s.kv = readOnlyKV{NewMemoryKV()}

	added, err := s.TryLike("x")
	assert.Error(t, err)
	assert.False(t, added)
	assert.False(t, s.HasLiked("x"))
}
