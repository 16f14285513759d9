package filesnapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "state", "pending.json")

	st, err := New(p)
	require.NoError(t, err)
	require.Equal(t, p, st.Path())

	_, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.Save(ctx, []byte(`[{"id":"x"}]`)))
	b, ok, err := st.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `[{"id":"x"}]`, string(b))

	require.NoError(t, st.Save(ctx, []byte(`[]`)))
	b, _, _ = st.Load(ctx)
	require.Equal(t, "[]", string(b))

	require.NoError(t, st.Delete(ctx))
	_, err = os.Stat(p)
	require.True(t, os.IsNotExist(err))

	// повторное удаление не ошибка
	require.NoError(t, st.Delete(ctx))
}

func TestStore_SecondInstanceSeesWrites(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "pending.json")

	a, err := New(p)
	require.NoError(t, err)
	b, err := New(p)
	require.NoError(t, err)

	require.NoError(t, a.Save(ctx, []byte(`["a"]`)))
	got, ok, err := b.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `["a"]`, string(got))
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
