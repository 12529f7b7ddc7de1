// Package realtime wires the live pipeline together: decoded PushPort
// frames in, per-segment predictions out to the durable writer, with the
// recent-segment cache deciding which snapshots are novel enough to
// persist.
package realtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/masphdtrain25/MasPhD/internal/darwin"
	"github.com/masphdtrain25/MasPhD/internal/feature"
	"github.com/masphdtrain25/MasPhD/internal/model"
	"github.com/masphdtrain25/MasPhD/internal/route"
	"github.com/masphdtrain25/MasPhD/internal/segcache"
	"github.com/masphdtrain25/MasPhD/internal/store"
)

// counterLogInterval is how often the running totals are logged.
const counterLogInterval = 60 * time.Second

// Listener delivers raw frame bodies to a handler until ctx ends.
type Listener interface {
	Listen(ctx context.Context, handler darwin.MessageHandler) error
}

// Options tune one orchestrator instance.
type Options struct {
	// NearDeparture switches the segment filter from the in-progress
	// window to the wider near-departure debug window.
	NearDeparture bool

	// Print emits one human-readable line per prediction to Out.
	Print bool

	// Out receives print lines. Defaults to os.Stdout.
	Out io.Writer

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator owns the per-frame pipeline. It is driven from the
// transport's delivery goroutine; the cache, feature builder, and
// predictor are only ever touched from there.
type Orchestrator struct {
	route    *route.Route
	cache    *segcache.Cache
	writer   *store.Writer
	features *feature.Builder
	models   *model.Ensemble
	loc      *time.Location
	logger   zerolog.Logger
	runID    string
	opts     Options

	frames        atomic.Int64
	decodeErrors  atomic.Int64
	segsExtracted atomic.Int64
	segsKept      atomic.Int64
	predictions   atomic.Int64
	insertsAll    atomic.Int64
	insertsActual atomic.Int64
}

// New assembles an orchestrator over already-constructed parts.
func New(rt *route.Route, cache *segcache.Cache, writer *store.Writer, features *feature.Builder, models *model.Ensemble, loc *time.Location, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	runID := uuid.NewString()
	return &Orchestrator{
		route:    rt,
		cache:    cache,
		writer:   writer,
		features: features,
		models:   models,
		loc:      loc,
		logger:   logger.With().Str("component", "realtime").Str("run_id", runID).Logger(),
		runID:    runID,
		opts:     opts,
	}
}

// RunID identifies this process run in logs and print lines.
func (o *Orchestrator) RunID() string { return o.runID }

// Run listens until ctx ends, logging counters periodically, then drains
// the writer with a bounded join. The listener's terminal error (if any)
// is returned after the writer is closed.
func (o *Orchestrator) Run(ctx context.Context, listener Listener) error {
	done := make(chan struct{})
	go o.logCountersLoop(ctx, done)

	err := listener.Listen(ctx, o.OnMessage)
	close(done)

	drained := o.writer.Close(true, 10*time.Second)
	o.logCounters(o.logger.Info()).Bool("writer_drained", drained).Msg("run finished")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (o *Orchestrator) logCountersLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(counterLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			o.logCounters(o.logger.Info()).Msg("running totals")
		}
	}
}

func (o *Orchestrator) logCounters(ev *zerolog.Event) *zerolog.Event {
	return ev.
		Int64("frames", o.frames.Load()).
		Int64("decode_errors", o.decodeErrors.Load()).
		Int64("segments_extracted", o.segsExtracted.Load()).
		Int64("segments_kept", o.segsKept.Load()).
		Int64("predictions", o.predictions.Load()).
		Int64("inserts_all", o.insertsAll.Load()).
		Int64("inserts_actual", o.insertsActual.Load()).
		Int64("writes", o.writer.Written()).
		Int64("queue_drops", o.writer.Dropped()).
		Int("cache_size", o.cache.Len())
}

// OnMessage processes one raw frame body end to end.
func (o *Orchestrator) OnMessage(body []byte) {
	o.frames.Add(1)

	forecasts, schedules, _, err := darwin.DecodeMessage(body)
	if err != nil {
		o.decodeErrors.Add(1)
		o.logger.Debug().Err(err).Msg("undecodable frame")
		return
	}

	segments := darwin.ExtractSegments(o.route, forecasts, schedules, o.loc, true)
	if len(segments) == 0 {
		return
	}
	o.segsExtracted.Add(int64(len(segments)))

	for i := range segments {
		segments[i].PlannedArrSecond = plannedArrSecond(&segments[i])
	}

	now := o.opts.Now().In(o.loc)
	if o.opts.NearDeparture {
		segments = darwin.FilterNearDeparture(segments, now, o.loc, darwin.NearDepartureBefore, darwin.NearDepartureAfter)
	} else {
		segments = darwin.FilterInProgress(segments, now, o.loc)
	}
	o.segsKept.Add(int64(len(segments)))

	for i := range segments {
		o.processSegment(&segments[i], now)
	}
}

// plannedArrSecond reads the planned arrival at the segment's B station,
// public timetable first.
func plannedArrSecond(seg *darwin.Segment) *string {
	if seg.LocSecond == nil {
		return nil
	}
	if seg.LocSecond.PTA != "" {
		v := seg.LocSecond.PTA
		return &v
	}
	if seg.LocSecond.WTA != "" {
		v := seg.LocSecond.WTA
		return &v
	}
	return nil
}

func (o *Orchestrator) processSegment(seg *darwin.Segment, now time.Time) {
	vec := o.features.Build(seg)
	if vec == nil {
		return
	}

	pred, err := o.models.PredictOne(seg.First, seg.Second, vec.Map())
	if err != nil {
		o.logger.Warn().Err(err).
			Str("rid", seg.RID).
			Str("first", seg.First).
			Str("second", seg.Second).
			Msg("prediction failed")
		return
	}
	if pred == nil {
		return
	}
	o.predictions.Add(1)

	key := segcache.Key{RID: seg.RID, First: seg.First, Second: seg.Second}
	if seg.PlannedDep != nil {
		key.PlannedDep = *seg.PlannedDep
	}

	prev, seen := o.cache.Get(key)
	o.cache.Touch(key, seg.DepTimeForPrediction, seg.DepTimeKind, seg.HasActualDep)

	insertAll := !seen ||
		!sameClock(prev.LastDepTime, seg.DepTimeForPrediction) ||
		prev.LastKind != seg.DepTimeKind
	insertActual := seg.HasActualDep && !prev.ActualSaved

	rec := buildRecord(seg, vec, *pred)
	if insertAll && o.writer.InsertAll(rec) {
		o.insertsAll.Add(1)
	}
	if insertActual && o.writer.InsertActual(rec) {
		o.cache.MarkActualSaved(key)
		o.insertsActual.Add(1)
	}

	if o.opts.Print {
		o.printLine(seg, &rec, now)
	}
}

func sameClock(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func buildRecord(seg *darwin.Segment, vec *feature.Vector, predicted float64) store.PredictionRecord {
	return store.PredictionRecord{
		RID:    seg.RID,
		SSD:    seg.SSD,
		First:  seg.First,
		Second: seg.Second,

		PlannedDep:         seg.PlannedDep,
		DepTime:            seg.DepTimeForPrediction,
		DepTimeKind:        seg.DepTimeKind,
		HasActualDep:       seg.HasActualDep,
		ActualDepConfirmed: seg.ActualDepConfirmed,

		DepartureDelay: vec.DepartureDelay,
		DwellDelay:     vec.DwellDelay,

		Peak:       vec.Peak,
		DayOfWeek:  vec.DayOfWeek,
		DayOfMonth: vec.DayOfMonth,
		HourOfDay:  vec.HourOfDay,
		Weekend:    vec.Weekend,
		Season:     vec.Season,
		Month:      vec.Month,
		Holiday:    vec.Holiday,

		PredictedDelay: predicted,
	}
}

func (o *Orchestrator) printLine(seg *darwin.Segment, rec *store.PredictionRecord, now time.Time) {
	flag := "EST"
	if rec.HasActualDep {
		flag = "ACTUAL"
	}
	fmt.Fprintf(o.opts.Out,
		"%s | %s | %s %s->%s planned_dep=%s dep_time=%s dep_delay=%.1f dwell=%.1f pred=%.2f | cache=%d\n",
		now.Format("2006-01-02 15:04:05"), flag,
		rec.RID, rec.First, rec.Second,
		strOr(rec.PlannedDep, "NA"), strOr(rec.DepTime, "NA"),
		rec.DepartureDelay, rec.DwellDelay, rec.PredictedDelay,
		o.cache.Len(),
	)
}

func strOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
