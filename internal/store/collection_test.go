package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serenity-app/serenity/internal/models"
)

func journalCollection(s *Store) *Collection[models.JournalEntry] {
	return NewCollection(s, CollectionJournal, func(e *models.JournalEntry) string { return e.ID })
}

func TestCollection_SaveAndGetByID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	c := journalCollection(s)

	in := models.JournalEntry{ID: "j1", Title: "morning", Body: "slept well", CreatedAt: time.Now().UTC()}
	stored, err := c.Save(ctx, in)
	require.NoError(t, err)
	require.Equal(t, in.ID, stored.ID)

	got, err := c.GetByID(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "morning", got.Title)
}

func TestCollection_GetByID_Absent(t *testing.T) {
	s := openStore(t)
	c := journalCollection(s)

	got, err := c.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCollection_Save_EmptyIDFails(t *testing.T) {
	s := openStore(t)
	c := journalCollection(s)

	_, err := c.Save(context.Background(), models.JournalEntry{Title: "no id"})
	require.Error(t, err)
}

func TestCollection_UpsertReplacesById(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	c := journalCollection(s)

	_, err := c.Save(ctx, models.JournalEntry{ID: "j1", Title: "v1"})
	require.NoError(t, err)
	_, err = c.Save(ctx, models.JournalEntry{ID: "j1", Title: "v2"})
	require.NoError(t, err)

	all, err := c.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "v2", all[0].Title)
}

func TestCollection_Query(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	c := journalCollection(s)

	_, err := c.Save(ctx, models.JournalEntry{ID: "a", IsSynced: true})
	require.NoError(t, err)
	_, err = c.Save(ctx, models.JournalEntry{ID: "b"})
	require.NoError(t, err)
	_, err = c.Save(ctx, models.JournalEntry{ID: "c"})
	require.NoError(t, err)

	pending, err := c.Query(ctx, func(e models.JournalEntry) bool { return !e.IsSynced })
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestCollection_GetAll_SkipsCorruptRecords(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	c := journalCollection(s)

	_, err := c.Save(ctx, models.JournalEntry{ID: "good"})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, CollectionJournal, "bad", []byte(`{not json`)))

	all, err := c.GetAll(ctx)
	require.NoError(t, err, "corrupt records must degrade, not fail")
	require.Len(t, all, 1)
	require.Equal(t, "good", all[0].ID)
}

func TestSingleton_GetPutUpdate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	g := NewSingleton[models.CacheIndex](s, CollectionCacheIndex)

	got, err := g.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, got, "never-written singleton reads as nil")

	ix := models.NewCacheIndex()
	ix.Put(models.CacheEntry{Path: "/a", Size: 10, AssetType: models.AssetTypeAudio})
	require.NoError(t, g.Put(ctx, *ix))

	got, err = g.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, int64(10), got.TotalSize)

	err = g.Update(ctx, func(v *models.CacheIndex) (models.CacheIndex, error) {
		require.NotNil(t, v)
		v.Put(models.CacheEntry{Path: "/b", Size: 5, AssetType: models.AssetTypeAudio})
		return *v, nil
	})
	require.NoError(t, err)

	got, err = g.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(15), got.TotalSize)
}
