package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/oremus-labs/kronos-go/kronos/stream"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"), "sqlite")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "nightly", "prod", "clicks"); err != nil || ok {
		t.Fatalf("expected no checkpoint, got ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, Checkpoint{Name: "nightly", Namespace: "prod", Stream: "clicks", LastID: "a", Count: 2}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, Checkpoint{Name: "nightly", Namespace: "prod", Stream: "clicks", LastID: "b", Count: 3}); err != nil {
		t.Fatalf("save: %v", err)
	}

	cp, ok, err := s.Get(ctx, "nightly", "prod", "clicks")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if cp.LastID != "b" || cp.Count != 5 {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}
	if cp.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}

	list, err := s.List(ctx, "nightly")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if err := s.Delete(ctx, "nightly", "prod", "clicks"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if list, _ := s.List(ctx, ""); len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", list)
	}
}

func TestSaveValidates(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), Checkpoint{Name: "x", Stream: "s"}); err == nil {
		t.Fatal("expected error for missing last id")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("whatever", "bolt"); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{postgres: true}
	got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	lite := &Store{}
	if q := lite.rebind("a = ?"); q != "a = ?" {
		t.Fatalf("sqlite query rewritten: %q", q)
	}
}

func TestTrackerCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	var tr Tracker
	var seen int
	consume := tr.Wrap(func(stream.Record) { seen++ })

	if ok, err := tr.Commit(ctx, s, "job", "", "clicks"); ok || err != nil {
		t.Fatalf("empty tracker committed: ok=%v err=%v", ok, err)
	}

	consume(stream.Record{Event: stream.Event{stream.IDField: "1"}})
	consume(stream.Record{Text: "not an event"})
	consume(stream.Record{Event: stream.Event{stream.IDField: "2"}})
	if seen != 3 || tr.LastID() != "2" || tr.Count() != 2 {
		t.Fatalf("tracker state: seen=%d last=%q count=%d", seen, tr.LastID(), tr.Count())
	}
	if ok, err := tr.Commit(ctx, s, "job", "", "clicks"); !ok || err != nil {
		t.Fatalf("commit: ok=%v err=%v", ok, err)
	}
	cp, ok, _ := s.Get(ctx, "job", "", "clicks")
	if !ok || cp.LastID != "2" {
		t.Fatalf("checkpoint not stored: %+v", cp)
	}
}
