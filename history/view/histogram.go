package view

import (
	"math"
	"time"

	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/internal/util"
)

// State is how an entry is presented.
type State string

const (
	StateFinished State = "Finished"
	StateRunning  State = "Running"
	StateFailed   State = "Failed"
	StateVetoed   State = "Vetoed"
)

// StateOf classifies e. Vetoed wins over Failed, which wins over Running.
func StateOf(e *history.Entry) State {
	switch {
	case e.Vetoed:
		return StateVetoed
	case e.Failed():
		return StateFailed
	case e.FinishedTime == nil:
		return StateRunning
	default:
		return StateFinished
	}
}

// Bar CSS classes.
const (
	ClassRunning     = "running"
	ClassFailed      = "failed"
	ClassPlaceholder = "grey"
)

// Bar is one execution in a histogram.
type Bar struct {
	// Value is the duration in seconds, or 1 when there is none.
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
	Left       int     `json:"left"`
	CSSClass   string  `json:"css_class,omitempty"`

	State    State  `json:"state,omitempty"`
	Fired    string `json:"fired,omitempty"`
	Duration string `json:"duration,omitempty"`
	Delay    string `json:"delay,omitempty"`
	Error    string `json:"error,omitempty"`
	Job      string `json:"job,omitempty"`
	Trigger  string `json:"trigger,omitempty"`
}

// Histogram is a strip of bars, oldest first.
type Histogram struct {
	Bars        []Bar `json:"bars"`
	BarWidth    int   `json:"bar_width"`
	Placeholder bool  `json:"placeholder,omitempty"`
}

// DefaultBarWidth is the width of a bar in list histograms.
const DefaultBarWidth = 6

// Width is the rendered width of all bars.
func (h *Histogram) Width() int {
	return len(h.Bars) * h.BarWidth
}

// SetBarWidth changes the bar width and recomputes bar offsets.
func (h *Histogram) SetBarWidth(w int) {
	h.BarWidth = w
	h.layout()
}

func (h *Histogram) layout() {
	peak := 0.0
	for _, b := range h.Bars {
		peak = math.Max(peak, b.Value)
	}
	for i := range h.Bars {
		h.Bars[i].Left = i * h.BarWidth
		if peak > 0 {
			h.Bars[i].Percentage = math.Round(h.Bars[i].Value / peak * 100)
		}
	}
}

// EmptyHistogram is the grey placeholder shown when there is no history.
func EmptyHistogram() *Histogram {
	h := &Histogram{BarWidth: DefaultBarWidth, Placeholder: true}
	for i := 0; i < 10; i++ {
		h.Bars = append(h.Bars, Bar{Value: float64(i%3 + i%5 + 1), CSSClass: ClassPlaceholder})
	}
	h.layout()
	return h
}

// NewHistogram builds a histogram from entries in the order given. With
// detailed set each bar also names its job and trigger. Returns nil for
// no entries.
func NewHistogram(entries []*history.Entry, detailed bool, now time.Time) *Histogram {
	if len(entries) == 0 {
		return nil
	}

	h := &Histogram{BarWidth: DefaultBarWidth}
	for _, e := range entries {
		h.Bars = append(h.Bars, newBar(e, detailed, now))
	}
	h.layout()
	return h
}

func newBar(e *history.Entry, detailed bool, now time.Time) Bar {
	bar := Bar{
		Value: 1,
		State: StateOf(e),
		Fired: formatTime(e.ActualFireTime),
	}

	var duration *time.Duration
	if e.FinishedTime != nil {
		d := e.FinishedTime.Sub(e.ActualFireTime)
		duration = &d
	}
	if e.Running() {
		d := now.Sub(e.ActualFireTime)
		duration = &d
		bar.CSSClass = ClassRunning
	}
	if e.Failed() {
		bar.CSSClass = ClassFailed
		bar.Error = util.Deref(e.ExceptionMessage)
	}

	if duration != nil {
		bar.Value = duration.Seconds()
		bar.Duration = Humanize(*duration)
	}
	if e.ScheduledFireTime != nil {
		bar.Delay = Humanize(e.Delay())
	}
	if detailed {
		bar.Job = e.Job
		bar.Trigger = e.Trigger
	}
	return bar
}

// Histograms maps a job or trigger key to its histogram.
type Histograms map[string]*Histogram

// Get returns the histogram for key, or the placeholder when the key has
// no history.
func (hs Histograms) Get(key string) *Histogram {
	if h, ok := hs[key]; ok && h != nil {
		return h
	}
	return EmptyHistogram()
}

func groupHistograms(entries []*history.Entry, key history.KeyFunc, now time.Time) Histograms {
	out := make(Histograms)
	for k, group := range history.GroupBy(entries, key) {
		out[k] = NewHistogram(group, false, now)
	}
	return out
}
