// Copyright 2026 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package payload

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/benchdisplay/benchmerge/aggregate"
	"golang.org/x/perf/benchfmt"
	"golang.org/x/perf/benchmath"
	"golang.org/x/perf/benchunit"
)

// Confidence is the confidence level of the interval reported for
// each metric of a Go benchmark payload.
const Confidence = 0.95

// timeUnit is the tidied unit of the time per operation.
const timeUnit = "sec/op"

// bench accumulates the results of one benchmark name.
type bench struct {
	name   string
	iters  int
	runs   int
	config aggregate.Record
	units  []string // in first-appearance order
	values map[string][]float64
}

// DecodeGoBench summarizes Go benchmark text into records, one per
// benchmark name in the order names first appear. Repeated runs of a
// benchmark (go test -count) are combined: each unit reports the
// median and its confidence interval over all runs.
//
// Each record has the fields name, iterations, runs, config (the file
// configuration in effect for the first run, such as goos and pkg),
// and metrics, keyed by tidied unit. A benchmark that measures time
// also gets median_time, in seconds.
func DecodeGoBench(name string, data []byte) ([]aggregate.Record, error) {
	r := benchfmt.NewReader(bytes.NewReader(data), name)
	var order []*bench
	byName := make(map[string]*bench)
	for r.Scan() {
		switch rec := r.Result().(type) {
		case *benchfmt.SyntaxError:
			return nil, rec
		case *benchfmt.Result:
			full := rec.Name.String()
			b := byName[full]
			if b == nil {
				b = &bench{name: full, values: make(map[string][]float64)}
				for _, cfg := range rec.Config {
					if cfg.File {
						b.config.Set(cfg.Key, string(cfg.Value))
					}
				}
				byName[full] = b
				order = append(order, b)
			}
			b.iters += rec.Iters
			b.runs++
			for _, v := range rec.Values {
				if _, ok := b.values[v.Unit]; !ok {
					b.units = append(b.units, v.Unit)
				}
				b.values[v.Unit] = append(b.values[v.Unit], v.Value)
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, errors.New("no benchmark results")
	}
	recs := make([]aggregate.Record, 0, len(order))
	for _, b := range order {
		rec, err := b.record()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (b *bench) record() (aggregate.Record, error) {
	var rec, metrics aggregate.Record
	var medianTime *float64
	for _, unit := range b.units {
		sample := benchmath.NewSample(b.values[unit], &benchmath.DefaultThresholds)
		sum := benchmath.AssumeNothing.Summary(sample, Confidence)
		m := metric{
			Median:  sum.Center,
			N:       len(sample.Values),
			Display: benchunit.Scale(sum.Center, benchunit.ClassOf(unit)),
		}
		// The interval is undefined for small samples.
		if finite(sum.Lo) && finite(sum.Hi) {
			m.Lo, m.Hi = &sum.Lo, &sum.Hi
		}
		if err := metrics.Set(unit, m); err != nil {
			return rec, err
		}
		if unit == timeUnit {
			center := sum.Center
			medianTime = &center
		}
	}
	for _, kv := range []struct {
		key string
		val interface{}
	}{
		{"name", b.name},
		{"iterations", b.iters},
		{"runs", b.runs},
		{"config", b.config},
		{"metrics", metrics},
	} {
		if err := rec.Set(kv.key, kv.val); err != nil {
			return rec, err
		}
	}
	if medianTime != nil {
		if err := rec.Set("median_time", *medianTime); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

type metric struct {
	Median  float64  `json:"median"`
	Lo      *float64 `json:"lo,omitempty"`
	Hi      *float64 `json:"hi,omitempty"`
	N       int      `json:"n"`
	Display string   `json:"display"`
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
