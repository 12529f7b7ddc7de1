package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CandidatePrediction is a predictions_actual row still lacking its ground
// truth.
type CandidatePrediction struct {
	RID            string
	SSD            string
	First          string
	Second         string
	PlannedDep     *string
	PredictedDelay *float64
}

// CandidatePredictions selects confirmed-departure rows whose service day
// is before beforeDate and that have no matching actual_arrivals_hsp row
// yet, oldest service day first. planned_dep matches with null-equal
// semantics.
func (s *Store) CandidatePredictions(ctx context.Context, beforeDate string, limit int) ([]CandidatePrediction, error) {
	const q = `
	SELECT p.rid, p.ssd, p.first, p.second, p.planned_dep, p.predicted_delay
	FROM predictions_actual p
	WHERE
	    p.ssd IS NOT NULL
	    AND p.ssd < ?
	    AND NOT EXISTS (
	        SELECT 1
	        FROM actual_arrivals_hsp a
	        WHERE a.rid = p.rid
	          AND a.first = p.first
	          AND a.second = p.second
	          AND (
	                (a.planned_dep IS NULL AND p.planned_dep IS NULL)
	             OR (a.planned_dep = p.planned_dep)
	          )
	    )
	ORDER BY p.ssd ASC
	LIMIT ?`

	rows, err := s.conn.QueryContext(ctx, q, beforeDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate predictions: %w", err)
	}
	defer rows.Close()

	var out []CandidatePrediction
	for rows.Next() {
		var c CandidatePrediction
		if err := rows.Scan(&c.RID, &c.SSD, &c.First, &c.Second, &c.PlannedDep, &c.PredictedDelay); err != nil {
			return nil, fmt.Errorf("failed to scan candidate prediction: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ArrivalRecord is one ground-truth row for actual_arrivals_hsp.
type ArrivalRecord struct {
	RID        string
	SSD        string
	First      string
	Second     string
	PlannedDep *string

	IsMainJourney  int
	PredictedDelay *float64

	PlannedArr     string
	ActualArr      string
	ActualArrDelay *float64

	TOCCode        *string
	HSPLocationCRS string
	HSPTpls        string
}

// UpsertActualArrival writes one ground-truth row inside tx, overwriting
// every non-key column on conflict so re-running enrichment refreshes
// existing rows.
func UpsertActualArrival(ctx context.Context, tx *sql.Tx, rec ArrivalRecord) error {
	const q = `
	INSERT INTO actual_arrivals_hsp (
	    rid, ssd, first, second, planned_dep,
	    is_main_journey, predicted_delay,
	    planned_arr, actual_arr, actual_arr_delay,
	    toc_code, hsp_location_crs, hsp_tpls
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(rid, first, second, planned_dep) DO UPDATE SET
	    ssd = excluded.ssd,
	    is_main_journey = excluded.is_main_journey,
	    predicted_delay = excluded.predicted_delay,
	    planned_arr = excluded.planned_arr,
	    actual_arr = excluded.actual_arr,
	    actual_arr_delay = excluded.actual_arr_delay,
	    toc_code = excluded.toc_code,
	    hsp_location_crs = excluded.hsp_location_crs,
	    hsp_tpls = excluded.hsp_tpls`

	_, err := tx.ExecContext(ctx, q,
		rec.RID, rec.SSD, rec.First, rec.Second, rec.PlannedDep,
		rec.IsMainJourney, rec.PredictedDelay,
		rec.PlannedArr, rec.ActualArr, rec.ActualArrDelay,
		rec.TOCCode, rec.HSPLocationCRS, rec.HSPTpls,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert actual arrival for %s: %w", rec.RID, err)
	}
	return nil
}
