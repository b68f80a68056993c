package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"media-server/internal/probe"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "probe.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return db
}

func sampleResult() probe.Result {
	return probe.Result{
		Duration:   5400.25,
		BitRate:    8000000,
		FormatName: "matroska,webm",
		Streams: []probe.Stream{
			{Index: 0, Type: probe.StreamVideo, Codec: "hevc", Width: 3840, Height: 2160},
			{Index: 0, Type: probe.StreamAudio, Codec: "eac3", Language: "eng"},
			{Index: 0, Type: probe.StreamSubtitle, Codec: "subrip", Language: "fra"},
		},
	}
}

func TestProbeRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	key := probe.Key{Path: "/media/film.mkv", Size: 1234, ModTime: 99}

	if _, ok, err := db.GetProbe(ctx, key); err != nil || ok {
		t.Fatalf("expected miss on empty database, ok=%v err=%v", ok, err)
	}

	if err := db.PutProbe(ctx, key, sampleResult()); err != nil {
		t.Fatalf("PutProbe failed: %v", err)
	}

	got, ok, err := db.GetProbe(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got.Duration != 5400.25 || got.VideoCodec() != "hevc" || got.AudioCodec() != "eac3" {
		t.Errorf("unexpected result %+v", got)
	}
	if subs := got.Tracks(probe.StreamSubtitle); len(subs) != 1 || subs[0].Language != "fra" {
		t.Errorf("subtitle tracks = %+v", subs)
	}
}

func TestProbeChangedFileMisses(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	key := probe.Key{Path: "/media/film.mkv", Size: 1234, ModTime: 99}

	if err := db.PutProbe(ctx, key, sampleResult()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		key  probe.Key
	}{
		{"size changed", probe.Key{Path: key.Path, Size: 4321, ModTime: 99}},
		{"mtime changed", probe.Key{Path: key.Path, Size: 1234, ModTime: 100}},
		{"other path", probe.Key{Path: "/media/other.mkv", Size: 1234, ModTime: 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok, err := db.GetProbe(ctx, tt.key); err != nil || ok {
				t.Errorf("expected miss, ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestPutProbeReplaces(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := probe.Key{Path: "/media/film.mkv", Size: 1, ModTime: 1}
	updated := probe.Key{Path: "/media/film.mkv", Size: 2, ModTime: 2}

	if err := db.PutProbe(ctx, old, sampleResult()); err != nil {
		t.Fatal(err)
	}
	res := sampleResult()
	res.Duration = 60
	if err := db.PutProbe(ctx, updated, res); err != nil {
		t.Fatal(err)
	}

	n, err := db.CountProbes(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountProbes = %d, %v; want 1", n, err)
	}
	got, ok, err := db.GetProbe(ctx, updated)
	if err != nil || !ok || got.Duration != 60 {
		t.Errorf("GetProbe(updated) = %+v, %v, %v", got, ok, err)
	}
}

func TestPutProbeSkipsUnknown(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.PutProbe(ctx, probe.Key{Path: "/x"}, probe.UnknownResult()); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountProbes(ctx); n != 0 {
		t.Errorf("unknown result should not be stored, count = %d", n)
	}
}

func TestDeleteAndPruneProbes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, p := range []string{"/a.mkv", "/b.mkv", "/c.mkv"} {
		if err := db.PutProbe(ctx, probe.Key{Path: p, Size: 1, ModTime: 1}, sampleResult()); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.DeleteProbe(ctx, "/a.mkv"); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountProbes(ctx); n != 2 {
		t.Errorf("count after delete = %d, want 2", n)
	}

	deleted, err := db.PruneProbes(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Errorf("pruned %d rows, want 2", deleted)
	}
}

func TestNewUnwritableDirectory(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "probe.db"))
	if err == nil {
		t.Error("expected error for missing parent directory")
	}
}

func TestRecordQuery(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"failure", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("recordQuery panicked: %v", r)
				}
			}()
			recordQuery("get_probe", time.Now(), tt.err)
		})
	}
}

func TestDatabaseSatisfiesStore(t *testing.T) {
	var _ probe.Store = (*Database)(nil)
}
