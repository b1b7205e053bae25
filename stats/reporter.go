package stats

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/opd-ai/fxloop/audio"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultInterval is the minimum time between two reports.
const DefaultInterval = time.Second

// maxLatencySamples bounds the per-window latency history.
const maxLatencySamples = 4096

// Report is one periodic statistics line.
type Report struct {
	Timestamp time.Time
	Elapsed   time.Duration // length of the window the report covers
	Frames    int           // frames rendered in the window
	FPS       float64

	// Latency of the most recent effect chain pass, in milliseconds.
	LastProcessTime float64

	// Summary of the latencies sampled once per frame during the window.
	MeanProcessTime   float64
	StdDevProcessTime float64
	MaxProcessTime    float64

	Blocks         uint64
	ShortBlocks    uint64
	EffectFailures uint64
}

// String formats the report as a single console line.
func (r Report) String() string {
	return fmt.Sprintf("FPS: %.2f | Last Audio Process Time: %.3fms | mean %.3fms sd %.3fms max %.3fms | blocks %d short %d failures %d",
		r.FPS, r.LastProcessTime, r.MeanProcessTime, r.StdDevProcessTime, r.MaxProcessTime,
		r.Blocks, r.ShortBlocks, r.EffectFailures)
}

// Sink receives reports. Report is called from the render loop goroutine.
type Sink interface {
	Report(r Report)
}

// SinkFunc allows using a function as a Sink.
type SinkFunc func(Report)

// Report calls f(r).
func (f SinkFunc) Report(r Report) { f(r) }

// LogSink writes reports as structured logrus entries.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a sink logging to logger, or to the standard logger if
// logger is nil.
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{logger: logger}
}

// Report logs r at Info level.
func (s *LogSink) Report(r Report) {
	s.logger.WithFields(logrus.Fields{
		"function":          "LogSink.Report",
		"fps":               r.FPS,
		"last_process_ms":   r.LastProcessTime,
		"mean_process_ms":   r.MeanProcessTime,
		"stddev_process_ms": r.StdDevProcessTime,
		"max_process_ms":    r.MaxProcessTime,
		"blocks":            r.Blocks,
		"short_blocks":      r.ShortBlocks,
		"effect_failures":   r.EffectFailures,
	}).Info(r.String())
}

// WriterSink prints one line per report to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Report writes r followed by a newline. Write errors are dropped.
func (s *WriterSink) Report(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, r.String())
}

// Reporter aggregates frame timing and audio latency into periodic reports.
//
// The frame counter and report timestamp are owned by the reporter and
// guarded by its own mutex, which the audio thread never takes. Audio-side
// values are read from audio.ProcessingStats with atomic loads and may be a
// block stale.
type Reporter struct {
	mu           sync.Mutex
	stats        *audio.ProcessingStats
	sink         Sink
	interval     time.Duration
	timeProvider TimeProvider

	frames     int
	lastReport time.Time
	latencies  []float64
	last       Report
	reports    uint64
}

// NewReporter creates a reporter reading stats and emitting to sink every
// interval (DefaultInterval when interval <= 0). A nil sink discards reports.
func NewReporter(stats *audio.ProcessingStats, sink Sink, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sink == nil {
		sink = SinkFunc(func(Report) {})
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewReporter",
		"interval": interval,
	}).Info("Statistics reporter created")

	tp := TimeProvider(DefaultTimeProvider{})
	return &Reporter{
		stats:        stats,
		sink:         sink,
		interval:     interval,
		timeProvider: tp,
		lastReport:   tp.Now(),
		latencies:    make([]float64, 0, maxLatencySamples),
	}
}

// SetTimeProvider sets the time provider for deterministic testing and
// restarts the current window at its Now. Passing nil restores
// DefaultTimeProvider.
func (r *Reporter) SetTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeProvider = tp
	r.lastReport = tp.Now()
	r.frames = 0
	r.latencies = r.latencies[:0]
}

// OnFrameRendered records one rendered frame. When at least one interval has
// passed since the previous report it computes fps = frames / elapsed,
// stores it in the shared stats, resets the window and emits a report.
// It reports whether a report was emitted.
func (r *Reporter) OnFrameRendered() bool {
	r.mu.Lock()

	r.frames++
	if len(r.latencies) < cap(r.latencies) {
		r.latencies = append(r.latencies, r.stats.LastProcessTime())
	}

	now := r.timeProvider.Now()
	elapsed := now.Sub(r.lastReport)
	if elapsed < r.interval {
		r.mu.Unlock()
		return false
	}

	report := r.buildReport(now, elapsed)
	r.stats.SetFPS(report.FPS)
	r.frames = 0
	r.lastReport = now
	r.latencies = r.latencies[:0]
	r.last = report
	r.reports++

	r.mu.Unlock()

	r.sink.Report(report)
	return true
}

// buildReport summarizes the current window. Caller holds mu.
func (r *Reporter) buildReport(now time.Time, elapsed time.Duration) Report {
	snap := r.stats.Snapshot()

	report := Report{
		Timestamp:       now,
		Elapsed:         elapsed,
		Frames:          r.frames,
		FPS:             float64(r.frames) / elapsed.Seconds(),
		LastProcessTime: snap.LastProcessTime,
		Blocks:          snap.Blocks,
		ShortBlocks:     snap.ShortBlocks,
		EffectFailures:  snap.EffectFailures,
	}

	if n := len(r.latencies); n > 0 {
		mean, std := stat.MeanStdDev(r.latencies, nil)
		if n < 2 || math.IsNaN(std) {
			std = 0
		}
		report.MeanProcessTime = mean
		report.StdDevProcessTime = std
		report.MaxProcessTime = floats.Max(r.latencies)
	}

	return report
}

// LastReport returns the most recent report and whether one was emitted yet.
func (r *Reporter) LastReport() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.reports > 0
}

// ReportCount returns how many reports have been emitted.
func (r *Reporter) ReportCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports
}

// FPS returns the frame rate computed at the last report.
func (r *Reporter) FPS() float64 {
	return r.stats.FPS()
}
