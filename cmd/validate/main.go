// Command validate checks the genmock fixtures for internal consistency:
// raw record shape, reprocessing parity, physical bounds on the derived
// fields, and recovery of the gamma parameters the records were drawn from.
//
// Usage:
//
//	go run ./cmd/validate -dir data/mock
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/storm-dsd-etl/internal/domain"
	"github.com/couchcryptid/storm-dsd-etl/internal/dsd"
	"github.com/jonboulle/clockwork"
)

// Fixture file names written by cmd/genmock.
const (
	rawFile           = "raw_dsd_records.json"
	parameterizedFile = "parameterized_dsd.json"
	truthFile         = "gamma_truth.json"
)

// truthEntry mirrors the genmock truth fixture.
type truthEntry struct {
	ID    string `json:"id"`
	Truth []struct {
		D0 float64 `json:"d0"`
		Nw float64 `json:"nw"`
		Mu float64 `json:"mu"`
	} `json:"truth"`
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "data/mock", "directory containing genmock fixtures")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir); code != 0 {
		os.Exit(code)
	}
}

func run(dir string) int {
	// Set a fixed clock matching genmock for ID and ProcessedAt reproducibility.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== DSD Fixture Validation ===")
	fmt.Println()

	raws, err := loadJSON[domain.RawDSDRecord](filepath.Join(dir, rawFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw records: %v\n", err)
		return 1
	}

	outputs, err := loadJSON[domain.ParameterizedDSD](filepath.Join(dir, parameterizedFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load parameterized records: %v\n", err)
		return 1
	}

	truths, err := loadJSON[truthEntry](filepath.Join(dir, truthFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load gamma truth: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRawRecords(raws),
		validateReprocessing(raws, outputs),
		validatePhysicalBounds(outputs),
		validateGammaRecovery(outputs, truths),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d raw, %d parameterized, %d truth\n", len(raws), len(outputs), len(truths))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Raw Records ──
// Every raw record must parse the way the pipeline parses it.

func validateRawRecords(raws []domain.RawDSDRecord) *phase {
	p := &phase{name: "Phase 1: Raw Records (parse + shape)"}

	for i := range raws {
		payload, err := json.Marshal(raws[i])
		if err != nil {
			p.errorf("raw record %d: marshal: %v", i, err)
			continue
		}
		rec, err := domain.ParseRawEvent(domain.RawEvent{Value: payload})
		if err != nil {
			p.errorf("raw record %d (%s): %v", i, raws[i].Station, err)
			continue
		}
		if rec.NumSteps() == 0 {
			p.errorf("raw record %d (%s): no time steps", i, rec.Station)
		}
		if _, err := dsd.LookupProfile(rec.Instrument); err != nil && len(rec.Diameter) == 0 {
			p.errorf("raw record %d (%s): unknown instrument %q without custom geometry", i, rec.Station, rec.Instrument)
		}
		for name, s := range rec.Scattered {
			if len(s) != rec.NumSteps() {
				p.errorf("raw record %d (%s): scattered %s has %d values for %d steps", i, rec.Station, name, len(s), rec.NumSteps())
			}
		}
	}
	return p
}

// ── Phase 2: Reprocessing ──
// Re-running the parameterization must reproduce the checked-in output.

func validateReprocessing(raws []domain.RawDSDRecord, outputs []domain.ParameterizedDSD) *phase {
	p := &phase{name: "Phase 2: Reprocessing (raw -> parameterized)"}

	if len(raws) != len(outputs) {
		p.errorf("count: %d raw records, %d parameterized", len(raws), len(outputs))
		return p
	}

	seen := map[string]bool{}
	for i := range raws {
		want, err := domain.Parameterize(context.Background(), raws[i], domain.DefaultProcessOptions())
		if err != nil {
			p.errorf("raw record %d (%s): %v", i, raws[i].Station, err)
			continue
		}
		got := &outputs[i]

		if got.ID != want.ID {
			p.errorf("record %d: id: expected %q, got %q", i, want.ID, got.ID)
		}
		if seen[got.ID] {
			p.errorf("record %d: duplicate id %q", i, got.ID)
		}
		seen[got.ID] = true

		if !got.ProcessedAt.Equal(want.ProcessedAt) {
			p.errorf("ID %s: processed_at: expected %s, got %s", got.ID, want.ProcessedAt.Format(time.RFC3339), got.ProcessedAt.Format(time.RFC3339))
		}
		compareSeries(p, got.ID, "time", want.Time, got.Time)
		compareSeries(p, got.ID, "diameter", want.Diameter, got.Diameter)

		for name, wf := range want.Fields {
			gf, ok := got.Fields[name]
			if !ok {
				p.errorf("ID %s: missing field %s", got.ID, name)
				continue
			}
			if gf.Units != wf.Units {
				p.errorf("ID %s: %s units: expected %q, got %q", got.ID, name, wf.Units, gf.Units)
			}
			compareSeries(p, got.ID, name, wf.Data, gf.Data)
		}
		compareStrings(p, got.ID, "mu_status", want.MuStatus, got.MuStatus)
		compareStrings(p, got.ID, "rain_type", want.RainType, got.RainType)
		compareStrings(p, got.ID, "rain_type_islam", want.RainTypeIslam, got.RainTypeIslam)
		compareRelationships(p, got.ID, want.Relationships, got.Relationships)
	}
	return p
}

func compareSeries(p *phase, id, name string, want, got domain.Series) {
	if len(want) != len(got) {
		p.errorf("ID %s: %s length: expected %d, got %d", id, name, len(want), len(got))
		return
	}
	for i := range want {
		if !floatEq(want[i], got[i]) {
			p.errorf("ID %s: %s[%d]: expected %g, got %g", id, name, i, want[i], got[i])
			return
		}
	}
}

func compareStrings(p *phase, id, name string, want, got []string) {
	if strings.Join(want, ",") != strings.Join(got, ",") {
		p.errorf("ID %s: %s: expected %v, got %v", id, name, want, got)
	}
}

func compareRelationships(p *phase, id string, want, got []domain.RelationshipFit) {
	if len(want) != len(got) {
		p.errorf("ID %s: relationships: expected %d, got %d", id, len(want), len(got))
		return
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Name != g.Name || w.N != g.N || (w.Error == "") != (g.Error == "") {
			p.errorf("ID %s: relationship %d: expected %s n=%d, got %s n=%d", id, i, w.Name, w.N, g.Name, g.N)
			continue
		}
		compareSeries(p, id, "relationship "+w.Name, w.Coefficients, g.Coefficients)
	}
}

// ── Phase 3: Physical Bounds ──
// Derived quantities must be physically meaningful per time step.

var (
	validMuStatus = map[string]bool{
		dsd.MuConverged.String(): true, dsd.MuAtBoundary.String(): true, dsd.MuUnfittable.String(): true,
	}
	validRainTypes = map[string]bool{
		dsd.Stratiform.String(): true, dsd.Convective.String(): true,
		dsd.Transition.String(): true, dsd.Unclassified.String(): true,
	}
)

func validatePhysicalBounds(outputs []domain.ParameterizedDSD) *phase {
	p := &phase{name: "Phase 3: Physical Bounds (per step)"}

	for i := range outputs {
		checkPhysicalRecord(p, &outputs[i])
	}
	return p
}

func checkPhysicalRecord(p *phase, o *domain.ParameterizedDSD) {
	n := o.NumSteps()
	pf := func(step int, format string, args ...any) {
		p.errorf("ID %s step %d: "+format, append([]any{o.ID, step}, args...)...)
	}

	field := func(name string) domain.Series {
		f, ok := o.Fields[name]
		if !ok || len(f.Data) != n {
			p.errorf("ID %s: field %s missing or misaligned", o.ID, name)
			return make(domain.Series, n)
		}
		return f.Data
	}
	nt, w, d0, dmax := field(dsd.FieldNt), field(dsd.FieldW), field(dsd.FieldD0), field(dsd.FieldDmax)
	nw, mu, rr := field(dsd.FieldNw), field(dsd.FieldMu), field(dsd.FieldRainRate)

	if len(o.MuStatus) != n || len(o.RainType) != n || len(o.RainTypeIslam) != n {
		p.errorf("ID %s: mu_status/rain_type not aligned with %d steps", o.ID, n)
		return
	}

	for t := 0; t < n; t++ {
		if !validMuStatus[o.MuStatus[t]] {
			pf(t, "mu_status %q invalid", o.MuStatus[t])
		}
		if !validRainTypes[o.RainType[t]] {
			pf(t, "rain_type %q invalid", o.RainType[t])
		}
		if islam := o.RainTypeIslam[t]; islam != dsd.Stratiform.String() && islam != dsd.Convective.String() {
			pf(t, "rain_type_islam %q invalid", islam)
		}
		if nt[t] < 0 || w[t] < 0 || rr[t] < 0 {
			pf(t, "negative Nt/W/rain_rate: %g/%g/%g", nt[t], w[t], rr[t])
		}
		if nt[t] == 0 {
			if o.MuStatus[t] != dsd.MuUnfittable.String() {
				pf(t, "empty step has mu_status %q", o.MuStatus[t])
			}
			if o.RainType[t] != dsd.Unclassified.String() {
				pf(t, "empty step has rain_type %q", o.RainType[t])
			}
			continue
		}
		if d0[t] <= 0 || d0[t] > dmax[t] {
			pf(t, "D0 %g outside (0, Dmax=%g]", d0[t], dmax[t])
		}
		if nw[t] <= 0 {
			pf(t, "Nw %g not positive", nw[t])
		}
		if converged := o.MuStatus[t] == dsd.MuConverged.String(); converged == math.IsNaN(mu[t]) {
			pf(t, "mu %g inconsistent with status %q", mu[t], o.MuStatus[t])
		}
	}
}

// ── Phase 4: Gamma Recovery ──
// Derived D0 and Nw must track the parameters the records were drawn from.

func validateGammaRecovery(outputs []domain.ParameterizedDSD, truths []truthEntry) *phase {
	p := &phase{name: "Phase 4: Gamma Recovery (D0, Nw)"}

	byID := make(map[string]*domain.ParameterizedDSD, len(outputs))
	for i := range outputs {
		byID[outputs[i].ID] = &outputs[i]
	}

	for _, te := range truths {
		o, ok := byID[te.ID]
		if !ok {
			p.errorf("truth ID %q not found in parameterized records", te.ID)
			continue
		}
		d0 := o.Fields[dsd.FieldD0].Data
		nw := o.Fields[dsd.FieldNw].Data
		if len(d0) != len(te.Truth) || len(nw) != len(te.Truth) {
			p.errorf("ID %s: %d truth steps for %d output steps", te.ID, len(te.Truth), len(d0))
			continue
		}
		for t, tr := range te.Truth {
			if tr.Nw == 0 {
				continue
			}
			// Binning and count rounding allow 25% on D0 and an order of
			// magnitude on Nw.
			if math.Abs(d0[t]-tr.D0) > 0.25*tr.D0 {
				p.errorf("ID %s step %d: D0 %g, drawn from %g", te.ID, t, d0[t], tr.D0)
			}
			if math.Abs(math.Log10(nw[t])-math.Log10(tr.Nw)) > 1 {
				p.errorf("ID %s step %d: Nw %g, drawn from %g", te.ID, t, nw[t], tr.Nw)
			}
		}
	}
	return p
}

// ── Helpers ──

// floatEq treats NaN as equal to NaN so undefined steps compare cleanly.
func floatEq(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(a))
}
