package stats

import "time"

import "github.com/google/pprof/profile"

/// Profile renders the non-zero counters of srcs as a pprof profile with one
/// sample per counter.
func Profile(srcs []Source_t) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "events", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "events", Unit: "count"},
		Period:     1,
		TimeNanos:  time.Now().UnixNano(),
	}
	id := uint64(1)
	for _, s := range srcs {
		for _, f := range Fields(s.Stats) {
			if f.Time || f.Val == 0 {
				continue
			}
			fn := &profile.Function{ID: id, Name: s.Label + "." + f.Name,
				SystemName: f.Name}
			loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
			p.Function = append(p.Function, fn)
			p.Location = append(p.Location, loc)
			p.Sample = append(p.Sample, &profile.Sample{
				Location: []*profile.Location{loc},
				Value:    []int64{f.Val},
				Label:    map[string][]string{"source": {s.Label}},
			})
			id++
		}
	}
	return p
}
