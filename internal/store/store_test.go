package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "db.sqlite3")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.EnsureSchema(context.Background()))

	for _, table := range []string{"predictions_all", "predictions_actual", "actual_arrivals_hsp"} {
		var n int
		err := s.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
		require.NoError(t, err, table)
		assert.Zero(t, n)
	}
}

func TestEnsureSchemaAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "old.sqlite3"))
	require.NoError(t, err)
	defer s.Close()

	// simulate a database created before the additive columns existed
	_, err = s.Conn().ExecContext(ctx, `
		CREATE TABLE actual_arrivals_hsp (
		    id INTEGER PRIMARY KEY AUTOINCREMENT,
		    created_at_utc TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		    rid TEXT NOT NULL,
		    ssd TEXT,
		    first TEXT NOT NULL,
		    second TEXT NOT NULL,
		    planned_dep TEXT,
		    UNIQUE(rid, first, second, planned_dep)
		)`)
	require.NoError(t, err)
	_, err = s.Conn().ExecContext(ctx,
		"INSERT INTO actual_arrivals_hsp (rid, ssd, first, second, planned_dep) VALUES ('R1', '2025-03-01', 'WEYMTH', 'UPWEY', '10:05')")
	require.NoError(t, err)

	require.NoError(t, s.EnsureSchema(ctx))

	// existing data survives and the new columns are readable
	var rid string
	var isMain int
	var tocCode *string
	err = s.Conn().QueryRowContext(ctx,
		"SELECT rid, is_main_journey, toc_code FROM actual_arrivals_hsp").Scan(&rid, &isMain, &tocCode)
	require.NoError(t, err)
	assert.Equal(t, "R1", rid)
	assert.Zero(t, isMain)
	assert.Nil(t, tocCode)
}

func TestCandidatePredictions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	insert := func(rid, ssd, first, second, plannedDep string) {
		_, err := s.Conn().ExecContext(ctx, `
			INSERT INTO predictions_actual
			    (rid, ssd, first, second, planned_dep, has_actual_dep, predicted_delay)
			VALUES (?, ?, ?, ?, ?, 1, 2.5)`, rid, ssd, first, second, plannedDep)
		require.NoError(t, err)
	}

	insert("R1", "2025-03-01", "WEYMTH", "UPWEY", "10:05")
	insert("R2", "2025-03-02", "UPWEY", "DRCHS", "10:20")
	insert("R3", "2025-04-01", "WEYMTH", "UPWEY", "09:00") // not before cutoff

	// R2 already has its ground truth
	tx, err := s.Conn().BeginTx(ctx, nil)
	require.NoError(t, err)
	dep := "10:20"
	require.NoError(t, UpsertActualArrival(ctx, tx, ArrivalRecord{
		RID: "R2", SSD: "2025-03-02", First: "UPWEY", Second: "DRCHS", PlannedDep: &dep,
		PlannedArr: "10:27", ActualArr: "10:29",
	}))
	require.NoError(t, tx.Commit())

	got, err := s.CandidatePredictions(ctx, "2025-03-15", 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R1", got[0].RID)
	require.NotNil(t, got[0].PlannedDep)
	assert.Equal(t, "10:05", *got[0].PlannedDep)
	require.NotNil(t, got[0].PredictedDelay)
	assert.InDelta(t, 2.5, *got[0].PredictedDelay, 0.001)
}

func TestCandidatePredictionsLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, row := range []struct{ rid, ssd string }{
		{"R3", "2025-03-03"}, {"R1", "2025-03-01"}, {"R2", "2025-03-02"},
	} {
		_, err := s.Conn().ExecContext(ctx, `
			INSERT INTO predictions_actual (rid, ssd, first, second, planned_dep, has_actual_dep)
			VALUES (?, ?, 'WEYMTH', 'UPWEY', '10:05', 1)`, row.rid, row.ssd)
		require.NoError(t, err)
	}

	got, err := s.CandidatePredictions(ctx, "2025-03-15", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R1", got[0].RID)
	assert.Equal(t, "R2", got[1].RID)
}

func TestUpsertActualArrivalOverwrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	dep := "10:05"
	delay1, delay2 := 2.0, 4.0
	rec := ArrivalRecord{
		RID: "R1", SSD: "2025-03-01", First: "WEYMTH", Second: "UPWEY", PlannedDep: &dep,
		IsMainJourney: 1, PlannedArr: "10:12", ActualArr: "10:14", ActualArrDelay: &delay1,
		HSPLocationCRS: "UPW", HSPTpls: "UPW,WEY",
	}

	tx, err := s.Conn().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, UpsertActualArrival(ctx, tx, rec))
	require.NoError(t, tx.Commit())

	rec.ActualArr = "10:16"
	rec.ActualArrDelay = &delay2
	tx, err = s.Conn().BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, UpsertActualArrival(ctx, tx, rec))
	require.NoError(t, tx.Commit())

	var n int
	require.NoError(t, s.Conn().QueryRow("SELECT COUNT(*) FROM actual_arrivals_hsp").Scan(&n))
	assert.Equal(t, 1, n)

	var actualArr string
	var actualDelay float64
	require.NoError(t, s.Conn().QueryRow(
		"SELECT actual_arr, actual_arr_delay FROM actual_arrivals_hsp WHERE rid = 'R1'").
		Scan(&actualArr, &actualDelay))
	assert.Equal(t, "10:16", actualArr)
	assert.InDelta(t, 4.0, actualDelay, 0.001)
}
