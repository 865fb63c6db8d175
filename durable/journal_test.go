package durable_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/durable-agents/assistant/durable"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := durable.NewMemoryStore()

	records := []durable.Record{
		{Seq: 0, Kind: durable.RecordSignal, Name: "submit", Payload: json.RawMessage(`{"text":"hi"}`)},
		{Seq: 1, Kind: durable.RecordActivity, Name: "llm.step", Payload: json.RawMessage(`{"output_text":"hello"}`)},
		{Seq: 2, Kind: durable.RecordActivity, Name: "tool.invoke", Failed: true, Error: "boom"},
	}
	for _, rec := range records {
		if err := store.Append("s1", rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	loaded, err := store.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != len(records) {
		t.Fatalf("loaded %d records, want %d", len(loaded), len(records))
	}
	for i, rec := range loaded {
		want := records[i]
		if rec.Seq != want.Seq || rec.Kind != want.Kind || rec.Name != want.Name {
			t.Errorf("record %d = %+v, want %+v", i, rec, want)
		}
		if rec.Failed != want.Failed || rec.Error != want.Error {
			t.Errorf("record %d failure = (%v, %q), want (%v, %q)", i, rec.Failed, rec.Error, want.Failed, want.Error)
		}
		if string(rec.Payload) != string(want.Payload) {
			t.Errorf("record %d payload = %s, want %s", i, rec.Payload, want.Payload)
		}
	}
}

func TestMemoryStoreLoadUnknownSession(t *testing.T) {
	store := durable.NewMemoryStore()

	loaded, err := store.Load("missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("loaded %d records for a session never written to", len(loaded))
	}
}

func TestMemoryStoreSessionsAndRemove(t *testing.T) {
	store := durable.NewMemoryStore()

	for _, id := range []string{"b", "a"} {
		if err := store.Append(id, durable.Record{Kind: durable.RecordSignal, Name: "submit"}); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	ids, err := store.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Sessions = %v, want two entries", ids)
	}

	if err := store.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ids, err = store.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("Sessions after Remove = %v, want [b]", ids)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := durable.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	records := []durable.Record{
		{Seq: 0, Kind: durable.RecordSignal, Name: "submit", Payload: json.RawMessage(`{"text":"hi"}`)},
		{Seq: 1, Kind: durable.RecordActivity, Name: "llm.step", Payload: json.RawMessage(`{"output_text":"hello"}`)},
		{Seq: 2, Kind: durable.RecordActivity, Name: "tool.invoke", Failed: true, Error: "connection reset"},
	}
	for _, rec := range records {
		if err := store.Append("s1", rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append("s2", durable.Record{Seq: 0, Kind: durable.RecordSignal, Name: "close"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := store.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != len(records) {
		t.Fatalf("loaded %d records, want %d", len(loaded), len(records))
	}
	for i, rec := range loaded {
		want := records[i]
		if rec.Seq != want.Seq || rec.Kind != want.Kind || rec.Name != want.Name {
			t.Errorf("record %d = %+v, want %+v", i, rec, want)
		}
		if rec.Failed != want.Failed || rec.Error != want.Error {
			t.Errorf("record %d failure = (%v, %q), want (%v, %q)", i, rec.Failed, rec.Error, want.Failed, want.Error)
		}
		if string(rec.Payload) != string(want.Payload) {
			t.Errorf("record %d payload = %s, want %s", i, rec.Payload, want.Payload)
		}
	}

	ids, err := store.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Sessions = %v, want two entries", ids)
	}

	if err := store.Remove("s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	loaded, err = store.Load("s1")
	if err != nil {
		t.Fatalf("Load after Remove: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("loaded %d records after Remove", len(loaded))
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := durable.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Append("s1", durable.Record{Seq: 0, Kind: durable.RecordSignal, Name: "submit", Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := durable.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "submit" {
		t.Fatalf("loaded %+v after reopen, want the journaled signal", loaded)
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, err := durable.OpenStore("memory")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if store == nil {
		t.Fatal("OpenStore returned nil store")
	}
}

func TestOpenStoreUnknown(t *testing.T) {
	if _, err := durable.OpenStore("etched-in-stone"); err == nil {
		t.Fatal("OpenStore accepted an unregistered store name")
	}
}
