package repository

import (
	"context"
	"path/filepath"
	"testing"

	"FxRollup/internal/domain/models"
)

func TestSQLiteSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteSessionStore(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ldn := models.SessionDefinition{
		ID: 1, Seq: 1, SymbolScope: "*", Name: "LDN", Timezone: "Europe/London",
		LocalStart: "07:00", LocalEnd: "17:00", Enabled: true, MinFillRatio: 0.97,
	}
	asia := models.SessionDefinition{
		ID: 2, Seq: 2, SymbolScope: "USDJPY", Name: "ASIA", Timezone: "Asia/Tokyo",
		LocalStart: "22:00", LocalEnd: "02:00", Enabled: true, MinFillRatio: 0.9, MinBarsAbs: 30,
	}
	for _, d := range []models.SessionDefinition{asia, ldn} {
		if err := store.Save(ctx, d); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	ldn.Enabled = false
	if err := store.Save(ctx, ldn); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0] != ldn || got[1] != asia {
		t.Fatalf("loaded %+v", got)
	}
}

func TestSQLiteSessionStorePersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := OpenSQLiteSessionStore(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := models.SessionDefinition{ID: 7, Seq: 1, SymbolScope: "*", Name: "NY", Timezone: "America/New_York",
		LocalStart: "08:00", LocalEnd: "17:00", Enabled: true, MinFillRatio: 0.95}
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.Close()

	reopened, err := OpenSQLiteSessionStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, _ := reopened.LoadAll(ctx)
	if len(got) != 1 || got[0] != d {
		t.Fatalf("after reopen %+v", got)
	}
}
