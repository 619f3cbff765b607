// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdiddy/notetagger/internal/engine"
	"github.com/pdiddy/notetagger/internal/record"
	"github.com/pdiddy/notetagger/pkg/types"
)

// EngineFactory builds one engine instance. The pool calls it once per
// worker so every worker owns an independent engine.
type EngineFactory func(ctx context.Context) (engine.Engine, error)

// Summary holds counts from one enrichment run.
type Summary struct {
	// Records is the number of input records read.
	Records int

	// Enriched is the number of records analyzed successfully.
	Enriched int

	// Annotations is the number of output records emitted.
	Annotations int

	// Skipped is the number of records dropped after analysis failures.
	Skipped int
}

// HasFailures reports whether any records were skipped.
func (s Summary) HasFailures() bool {
	return s.Skipped > 0
}

// EnrichAll streams JSONL records from in through a pool of workers
// and writes enriched JSONL records to out. Each worker initializes
// its own engine before processing and closes it when the input
// drains. Per-record analysis failures are logged to logw and counted;
// engine initialization failures, unreadable input, and missing text
// fields abort the run.
//
// Output order across workers is unspecified. Within one input record
// the annotations appear in engine report order.
func EnrichAll(ctx context.Context, newEngine EngineFactory, cfg types.EnrichmentConfig, in io.Reader, out io.Writer, logw io.Writer) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		summary  Summary
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancel()
	}

	records := make(chan types.Record)
	outputs := make(chan types.Record, 2*workers)

	// Reader: one goroutine feeds all workers.
	readDone := make(chan error, 1)
	go func() {
		defer close(records)
		r := record.NewReader(in)
		for {
			rec, err := r.Read()
			if err == io.EOF {
				readDone <- nil
				return
			}
			if err != nil {
				readDone <- err
				cancel()
				return
			}
			select {
			case records <- rec:
				// Count only records a worker actually received, so an
				// aborted run's summary never claims unprocessed input.
				mu.Lock()
				summary.Records++
				mu.Unlock()
			case <-ctx.Done():
				readDone <- nil
				return
			}
		}
	}()

	// Writer: one goroutine serializes all emissions.
	writeDone := make(chan error, 1)
	go func() {
		w := record.NewWriter(out)
		var werr error
		for rec := range outputs {
			if werr != nil {
				continue
			}
			if werr = w.Write(rec); werr != nil {
				cancel()
			}
		}
		if werr == nil {
			werr = w.Flush()
		}
		writeDone <- werr
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			eng, err := newEngine(ctx)
			if err != nil {
				fail(fmt.Errorf("worker %d: initializing engine: %w", id, err))
				return
			}
			defer eng.Close()

			enricher := New(eng, cfg.InputField)
			for rec := range records {
				n, err := enricher.EnrichRecord(ctx, rec, func(out types.Record) error {
					select {
					case outputs <- out:
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				})
				if err != nil {
					if errors.Is(err, engine.ErrAnalysis) {
						fmt.Fprintf(logw, "skipped %s: %v\n", recordID(rec), err)
						mu.Lock()
						summary.Skipped++
						mu.Unlock()
						continue
					}
					fail(fmt.Errorf("worker %d: record %s: %w", id, recordID(rec), err))
					return
				}
				mu.Lock()
				summary.Enriched++
				summary.Annotations += n
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	close(outputs)
	werr := <-writeDone
	rerr := <-readDone

	mu.Lock()
	result, err := summary, firstErr
	mu.Unlock()

	// A worker's context.Canceled is usually the echo of a reader or
	// writer failure; prefer the underlying cause.
	if err != nil && errors.Is(err, context.Canceled) {
		if werr != nil {
			err = werr
		} else if rerr != nil {
			err = rerr
		}
	}
	if err == nil {
		err = rerr
	}
	if err == nil {
		err = werr
	}
	if err != nil {
		return result, err
	}

	fmt.Fprintf(logw, "\nenriched: %d/%d records, %d annotations, %d skipped\n",
		result.Enriched, result.Records, result.Annotations, result.Skipped)
	return result, nil
}

// idFields are tried in order when naming a record in log output.
var idFields = []string{"id", "record_id", "note_id"}

// recordID returns a human-readable identity for a record, for logs.
func recordID(rec types.Record) string {
	for _, name := range idFields {
		if v, ok := rec.Get(name); ok {
			return fmt.Sprintf("%s=%v", name, v)
		}
	}
	return "record=<no id field>"
}
