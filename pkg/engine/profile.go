package engine

import (
	"sort"
	"time"
)

// Profile holds per-stage wall-clock timings of one run, collected only
// when profiling is enabled.
type Profile struct {
	Stages map[string]time.Duration
}

// Lines renders the stages sorted by duration, longest first.
func (p *Profile) Lines() []string {
	type stage struct {
		name string
		d    time.Duration
	}
	stages := make([]stage, 0, len(p.Stages))
	for name, d := range p.Stages {
		stages = append(stages, stage{name, d})
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].d > stages[j].d })

	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.name + ": " + s.d.Round(time.Millisecond).String()
	}
	return out
}

// profiler accumulates stage timings. A disabled profiler costs two nil
// checks per stage.
type profiler struct {
	enabled bool
	last    time.Time
	start   time.Time
	stages  map[string]time.Duration
}

func newProfile(enabled bool) *profiler {
	if !enabled {
		return &profiler{}
	}
	now := time.Now()
	return &profiler{enabled: true, last: now, start: now, stages: make(map[string]time.Duration)}
}

// mark closes the current stage under the given name.
func (p *profiler) mark(name string) {
	if !p.enabled {
		return
	}
	now := time.Now()
	if name == "total" {
		p.stages[name] = now.Sub(p.start)
	} else {
		p.stages[name] = now.Sub(p.last)
	}
	p.last = now
}

// snapshot returns the collected profile, or nil when disabled.
func (p *profiler) snapshot() *Profile {
	if !p.enabled {
		return nil
	}
	return &Profile{Stages: p.stages}
}
