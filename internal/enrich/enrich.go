// Package enrich runs the post-hoc ground-truth loop: it scans persisted
// confirmed-departure predictions from past service days, fetches HSP
// arrival details per service, and upserts computed arrival delays.
package enrich

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/masphdtrain25/MasPhD/internal/hsp"
	"github.com/masphdtrain25/MasPhD/internal/route"
	"github.com/masphdtrain25/MasPhD/internal/store"
	"github.com/masphdtrain25/MasPhD/internal/timeutil"
)

// commitEvery bounds transaction size when many services enrich in one run.
const commitEvery = 50

// Options configure one enrichment run.
type Options struct {
	// BeforeDate keeps only predictions with ssd strictly before this
	// YYYY-MM-DD date. Zero value means today in the worker's timezone.
	BeforeDate string

	LimitRows int // max candidate rows scanned
	MaxRIDs   int // max distinct services fetched from HSP
	Sleep     time.Duration
	DryRun    bool
}

// Summary counts the outcome of a run.
type Summary struct {
	Candidates     int
	RIDs           int
	Written        int
	SkippedNoHSP   int
	SkippedNoMatch int
	SkippedNoTimes int
}

// Worker drives enrichment over one store.
type Worker struct {
	store  *store.Store
	client *hsp.Client
	route  *route.Route
	loc    *time.Location
	logger zerolog.Logger
	opts   Options
}

// New builds a worker. The store must have its schema ensured.
func New(s *store.Store, client *hsp.Client, rt *route.Route, loc *time.Location, opts Options, logger zerolog.Logger) *Worker {
	return &Worker{
		store:  s,
		client: client,
		route:  rt,
		loc:    loc,
		logger: logger.With().Str("component", "enrich").Logger(),
		opts:   opts,
	}
}

// Run executes one pass and returns its summary. A failing HSP call skips
// the affected service; storage errors abort the run.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	beforeDate := w.opts.BeforeDate
	if beforeDate == "" {
		beforeDate = time.Now().In(w.loc).Format("2006-01-02")
	}

	candidates, err := w.store.CandidatePredictions(ctx, beforeDate, w.opts.LimitRows)
	if err != nil {
		return sum, err
	}
	sum.Candidates = len(candidates)
	if len(candidates) == 0 {
		w.logger.Info().Str("before_date", beforeDate).Msg("no unprocessed predictions")
		return sum, nil
	}

	// group by service, preserving the ssd-ascending candidate order
	byRID := make(map[string][]store.CandidatePrediction)
	var rids []string
	for _, c := range candidates {
		if c.RID == "" {
			continue
		}
		if _, ok := byRID[c.RID]; !ok {
			rids = append(rids, c.RID)
		}
		byRID[c.RID] = append(byRID[c.RID], c)
	}
	if len(rids) > w.opts.MaxRIDs {
		rids = rids[:w.opts.MaxRIDs]
	}
	sum.RIDs = len(rids)

	w.logger.Info().
		Str("before_date", beforeDate).
		Int("candidates", sum.Candidates).
		Int("rids", sum.RIDs).
		Bool("dry_run", w.opts.DryRun).
		Msg("enrichment starting")

	var tx *sql.Tx
	for i, rid := range rids {
		if err := ctx.Err(); err != nil {
			break
		}
		if w.opts.Sleep > 0 && i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.opts.Sleep):
			}
		}

		details, err := w.client.GetServiceDetails(ctx, rid)
		if err != nil {
			sum.SkippedNoHSP += len(byRID[rid])
			continue
		}
		rows := hsp.ExtractServiceLocations(details, w.route)
		if len(rows) == 0 {
			sum.SkippedNoHSP += len(byRID[rid])
			continue
		}
		byTiploc2 := hsp.IndexByTiploc2(rows)

		for _, pred := range byRID[rid] {
			rec, reason := w.buildRecord(pred, byTiploc2)
			switch reason {
			case "no_match":
				sum.SkippedNoMatch++
				continue
			case "no_times":
				sum.SkippedNoTimes++
				continue
			}

			if w.opts.DryRun {
				sum.Written++
				continue
			}

			if tx == nil {
				if tx, err = w.store.Conn().BeginTx(ctx, nil); err != nil {
					return sum, fmt.Errorf("failed to begin enrichment transaction: %w", err)
				}
			}
			if err := store.UpsertActualArrival(ctx, tx, *rec); err != nil {
				tx.Rollback()
				return sum, err
			}
			sum.Written++
		}

		if tx != nil && (i+1)%commitEvery == 0 {
			if err := tx.Commit(); err != nil {
				return sum, fmt.Errorf("failed to commit enrichment batch: %w", err)
			}
			tx = nil
			w.logger.Info().Int("rids_done", i+1).Int("written", sum.Written).Msg("progress")
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return sum, fmt.Errorf("failed to commit enrichment batch: %w", err)
		}
	}

	w.logger.Info().
		Int("written", sum.Written).
		Int("skipped_no_hsp", sum.SkippedNoHSP).
		Int("skipped_no_match", sum.SkippedNoMatch).
		Int("skipped_no_times", sum.SkippedNoTimes).
		Msg("enrichment finished")
	return sum, nil
}

// buildRecord matches one prediction to the HSP row for its second station
// and computes the arrival delay. The reason is "no_match" when the second
// station has no HSP row, "no_times" when planned or actual arrival is
// missing.
func (w *Worker) buildRecord(pred store.CandidatePrediction, byTiploc2 map[string]hsp.Location) (*store.ArrivalRecord, string) {
	loc, ok := byTiploc2[pred.Second]
	if !ok {
		return nil, "no_match"
	}

	plannedArr := normalizeTime(loc.PTA)
	actualArr := normalizeTime(loc.ATA)
	if plannedArr == "" || actualArr == "" {
		return nil, "no_times"
	}

	var delay *float64
	if pred.SSD != "" {
		var base *time.Time
		if pred.PlannedDep != nil {
			if dep := timeutil.NormalizeHHMM(*pred.PlannedDep); dep != "" {
				base = timeutil.Combine(pred.SSD, dep, nil, w.loc)
			}
		}
		plannedDT := timeutil.Combine(pred.SSD, plannedArr, base, w.loc)
		actualDT := timeutil.Combine(pred.SSD, actualArr, plannedDT, w.loc)
		delay = timeutil.DiffMinutesWrap(plannedDT, actualDT)
	}

	rec := &store.ArrivalRecord{
		RID:            pred.RID,
		SSD:            pred.SSD,
		First:          pred.First,
		Second:         pred.Second,
		PlannedDep:     pred.PlannedDep,
		IsMainJourney:  loc.IsMainJourney,
		PredictedDelay: pred.PredictedDelay,
		PlannedArr:     plannedArr,
		ActualArr:      actualArr,
		ActualArrDelay: delay,
		HSPLocationCRS: loc.TPL,
		HSPTpls:        loc.HSPTpls,
	}
	if loc.TOCCode != "" {
		toc := loc.TOCCode
		rec.TOCCode = &toc
	}
	return rec, ""
}

func normalizeTime(s *string) string {
	if s == nil {
		return ""
	}
	return timeutil.NormalizeHHMM(*s)
}
