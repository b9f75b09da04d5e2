package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dexFund/internal/model"
)

func readRecords(t *testing.T, path string) []model.LogRecord {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	var out []model.LogRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.LogRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out = append(out, record)
	}
	return out
}

func TestJsonlStorageTruncatesOnceThenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{\"block_number\":99}\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sink := NewJsonlStorage(path, false)
	if err := sink.PutLogBatch([]model.LogRecord{{BlockNumber: 1}}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := sink.PutLogBatch([]model.LogRecord{{BlockNumber: 2}, {BlockNumber: 2, LogIndex: 1}}); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	records := readRecords(t, path)
	if len(records) != 3 || records[0].BlockNumber != 1 || records[2].LogIndex != 1 {
		t.Fatalf("unexpected records: %+v", records)
	}

	appending := NewJsonlStorage(path, true)
	if err := appending.PutLogBatch([]model.LogRecord{{BlockNumber: 3}}); err != nil {
		t.Fatalf("append batch: %v", err)
	}
	if got := len(readRecords(t, path)); got != 4 {
		t.Fatalf("expected 4 records after append, got %d", got)
	}
}

type failingSink struct{ err error }

func (f failingSink) PutLogBatch([]model.LogRecord) error { return f.err }

// flakySink fails its first n batches.
type flakySink struct {
	n     int
	calls int
}

func (f *flakySink) PutLogBatch([]model.LogRecord) error {
	f.calls++
	if f.n > 0 {
		f.n--
		return errors.New("sink unavailable")
	}
	return nil
}

func TestMultiJoinsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	boom := errors.New("boom")
	multi := NewMulti(NewJsonlStorage(path, true), nil, failingSink{err: boom})
	err := multi.PutLogBatch([]model.LogRecord{{BlockNumber: 1}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if got := len(readRecords(t, path)); got != 1 {
		t.Fatalf("healthy sink should still write, got %d records", got)
	}
}

func TestMultiRetryOnlyResendsToFailedSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	flaky := &flakySink{n: 1}
	multi := NewMulti(NewJsonlStorage(path, false), flaky)

	batch := []model.LogRecord{{BlockNumber: 1}}
	if err := multi.PutLogBatch(batch); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if err := multi.PutLogBatch(batch); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := len(readRecords(t, path)); got != 1 {
		t.Fatalf("expected 1 record after retry, got %d", got)
	}
	if flaky.calls != 2 {
		t.Fatalf("expected flaky sink to be called twice, got %d", flaky.calls)
	}

	// a grown retry hands the healthy sink only the new tail
	flaky.n = 1
	grown := []model.LogRecord{{BlockNumber: 2}}
	if err := multi.PutLogBatch(grown); err == nil {
		t.Fatalf("expected failure")
	}
	grown = append(grown, model.LogRecord{BlockNumber: 3})
	if err := multi.PutLogBatch(grown); err != nil {
		t.Fatalf("grown retry: %v", err)
	}
	records := readRecords(t, path)
	if len(records) != 3 || records[1].BlockNumber != 2 || records[2].BlockNumber != 3 {
		t.Fatalf("unexpected records: %+v", records)
	}

	// the next batch goes to everyone
	if err := multi.PutLogBatch([]model.LogRecord{{BlockNumber: 4}}); err != nil {
		t.Fatalf("next batch: %v", err)
	}
	if got := len(readRecords(t, path)); got != 4 {
		t.Fatalf("expected 4 records, got %d", got)
	}
}
