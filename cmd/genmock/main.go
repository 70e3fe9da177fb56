// Command genmock generates synthetic disdrometer fixtures from normalized
// gamma distributions and runs them through the parameterization so the
// expected output can be checked in alongside the input.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -records 30 -steps 60
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
	"github.com/couchcryptid/storm-dsd-etl/internal/mockdata"
	"github.com/jonboulle/clockwork"
)

// Fixture file names, shared with cmd/validate.
const (
	rawFile           = "raw_dsd_records.json"
	parameterizedFile = "parameterized_dsd.json"
	truthFile         = "gamma_truth.json"
)

// truthEntry ties the generating parameters to a record ID.
type truthEntry struct {
	ID    string           `json:"id"`
	Truth []mockdata.Truth `json:"truth"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	defaults := mockdata.DefaultOptions()
	outDir := flag.String("out-dir", "data/mock", "directory to write fixtures to")
	records := flag.Int("records", 30, "number of records to generate")
	steps := flag.Int("steps", 60, "time steps per record")
	seed := flag.Uint64("seed", defaults.Seed, "random seed")
	empty := flag.Float64("empty-fraction", defaults.EmptyFraction, "probability of an empty time step")
	flag.Parse()

	if *records <= 0 || *steps <= 0 {
		flag.Usage()
		return fmt.Errorf("-records and -steps must be positive")
	}

	// Set a fixed clock for reproducible ProcessedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	opts := defaults
	opts.Records, opts.Steps, opts.Seed, opts.EmptyFraction = *records, *steps, *seed, *empty

	generated, err := mockdata.Generate(opts)
	if err != nil {
		return fmt.Errorf("generate records: %w", err)
	}

	raws := make([]domain.RawDSDRecord, 0, len(generated))
	outputs := make([]domain.ParameterizedDSD, 0, len(generated))
	truths := make([]truthEntry, 0, len(generated))
	for _, g := range generated {
		out, err := domain.Parameterize(context.Background(), g.Raw, domain.DefaultProcessOptions())
		if err != nil {
			return fmt.Errorf("parameterize %s: %w", g.Raw.Station, err)
		}
		raws = append(raws, g.Raw)
		outputs = append(outputs, out)
		truths = append(truths, truthEntry{ID: out.ID, Truth: g.Truth})
	}

	for name, v := range map[string]any{rawFile: raws, parameterizedFile: outputs, truthFile: truths} {
		path := filepath.Join(*outDir, name)
		if err := writeJSON(path, v); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		log.Printf("wrote %s", path)
	}

	printStats(outputs)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// statsResult holds aggregated counts for printStats reporting.
type statsResult struct {
	instruments map[string]int
	muStatus    map[string]int
	rainTypes   map[string]int
	steps       int
	empty       int
	maxRain     float64
	fits        map[string][]float64
}

func collectStats(outputs []domain.ParameterizedDSD) statsResult {
	s := statsResult{
		instruments: map[string]int{},
		muStatus:    map[string]int{},
		rainTypes:   map[string]int{},
		fits:        map[string][]float64{},
	}
	for i := range outputs {
		o := &outputs[i]
		s.instruments[o.Instrument]++
		s.steps += o.NumSteps()
		for _, st := range o.MuStatus {
			s.muStatus[st]++
		}
		for _, rt := range o.RainType {
			s.rainTypes[rt]++
		}
		for _, nt := range o.Fields[dsd.FieldNt].Data {
			if nt == 0 {
				s.empty++
			}
		}
		for _, r := range o.Fields[dsd.FieldRainRate].Data {
			s.maxRain = max(s.maxRain, r)
		}
		for _, rel := range o.Relationships {
			if rel.Error == "" && len(rel.Coefficients) >= 2 {
				s.fits[rel.Name] = append(s.fits[rel.Name], rel.Coefficients[1])
			}
		}
	}
	return s
}

func printStats(outputs []domain.ParameterizedDSD) {
	stats := collectStats(outputs)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Records: %d, steps: %d, empty steps: %d\n", len(outputs), stats.steps, stats.empty)
	printCounts("By instrument", stats.instruments)
	printCounts("Mu status", stats.muStatus)
	printCounts("Rain type", stats.rainTypes)
	fmt.Printf("Max rain rate: %.2f mm/h\n", stats.maxRain)

	names := make([]string, 0, len(stats.fits))
	for name := range stats.fits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		exps := stats.fits[name]
		var sum float64
		for _, b := range exps {
			sum += b
		}
		fmt.Printf("%s: %d fits, mean exponent %.3f\n", name, len(exps), sum/float64(len(exps)))
	}
}

func printCounts(label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:", label)
	for _, k := range keys {
		fmt.Printf(" %s=%d", k, counts[k])
	}
	fmt.Println()
}
