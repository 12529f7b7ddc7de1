package realtime

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masphdtrain25/MasPhD/internal/darwin"
	"github.com/masphdtrain25/MasPhD/internal/feature"
	"github.com/masphdtrain25/MasPhD/internal/model"
	"github.com/masphdtrain25/MasPhD/internal/route"
	"github.com/masphdtrain25/MasPhD/internal/segcache"
	"github.com/masphdtrain25/MasPhD/internal/stations"
	"github.com/masphdtrain25/MasPhD/internal/store"
)

func london(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	return loc
}

func testRoute(t *testing.T) *route.Route {
	t.Helper()
	csv := strings.Join([]string{
		"NAME,TIPLOC,TIPLOC2,CRS",
		"Weymouth,WEYMTH,WEYMTH,WEY",
		"Upwey,UPWEY,UPWEY,UPW",
	}, "\n")
	l, err := stations.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	return route.New(l)
}

// frame builds a compressed PushPort body with one WEYMTH->UPWEY journey.
// depAttrs go on the WEYMTH location alongside ptd.
func frame(t *testing.T, depAttrs string) []byte {
	t.Helper()
	xml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Pport xmlns="http://www.thalesgroup.com/rtti/PushPort/v16"
       xmlns:fc="http://www.thalesgroup.com/rtti/PushPort/Forecasts/v3"
       xmlns:sc="http://www.thalesgroup.com/rtti/PushPort/Schedules/v3">
  <uR updateOrigin="TD">
    <TS rid="202504107222222" uid="W54321" ssd="2025-04-10">
      <fc:Location tpl="WEYMTH" ptd="10:00" %s/>
      <fc:Location tpl="UPWEY" pta="10:08"/>
    </TS>
    <schedule rid="202504107222222" uid="W54321" ssd="2025-04-10">
      <sc:OR tpl="WEYMTH" ptd="10:00"/>
      <sc:DT tpl="WATRLMN" pta="13:00"/>
    </schedule>
  </uR>
</Pport>`, depAttrs)

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(xml))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// writeModels lays out a weights file plus one linear artifact so
// WEYMTH->UPWEY predicts departure_delay + 1.
func writeModels(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_weights.json"),
		[]byte(`{"WEYMTH_UPWEY": {"m1": 1.0}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "WEYMTH_UPWEY_m1.json"),
		[]byte(`{"kind": "linear", "intercept": 1.0, "coefficients": {"departure_delay": 1.0}}`), 0o644))
	return dir
}

type harness struct {
	orch   *Orchestrator
	writer *store.Writer
	dbPath string
	out    *bytes.Buffer
}

func newHarness(t *testing.T, now time.Time, opts Options) *harness {
	t.Helper()
	loc := london(t)

	dbPath := filepath.Join(t.TempDir(), "realtime.sqlite3")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	w := store.NewWriter(s, 100, zerolog.Nop())
	t.Cleanup(func() { w.Close(false, time.Second) })

	ensemble, err := model.LoadEnsemble(writeModels(t), "model_weights.json", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(ensemble.Close)

	out := &bytes.Buffer{}
	opts.Out = out
	opts.Now = func() time.Time { return now }

	orch := New(testRoute(t), segcache.New(500), w, feature.NewBuilder(loc), ensemble, loc, opts, zerolog.Nop())
	return &harness{orch: orch, writer: w, dbPath: dbPath, out: out}
}

func (h *harness) countRows(t *testing.T, table string) int {
	t.Helper()
	require.True(t, h.writer.Close(true, 5*time.Second))
	s, err := store.Open(h.dbPath)
	require.NoError(t, err)
	defer s.Close()
	var n int
	require.NoError(t, s.Conn().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func inWindow(t *testing.T) time.Time {
	return time.Date(2025, 4, 10, 10, 1, 30, 0, london(t))
}

func TestOnMessageEstimateSnapshot(t *testing.T) {
	h := newHarness(t, inWindow(t), Options{})
	h.orch.OnMessage(frame(t, `etd="10:02"`))

	assert.Equal(t, 1, h.countRows(t, store.TablePredictionsAll))

	s, err := store.Open(h.dbPath)
	require.NoError(t, err)
	defer s.Close()
	var kind string
	var hasActual int
	var depDelay, predicted float64
	require.NoError(t, s.Conn().QueryRow(`
		SELECT dep_time_kind, has_actual_dep, departure_delay, predicted_delay
		FROM predictions_all WHERE rid = '202504107222222'`).
		Scan(&kind, &hasActual, &depDelay, &predicted))
	assert.Equal(t, darwin.KindEstimate, kind)
	assert.Zero(t, hasActual)
	assert.InDelta(t, 2.0, depDelay, 0.01)
	assert.InDelta(t, 3.0, predicted, 0.01)

	var actuals int
	require.NoError(t, s.Conn().QueryRow("SELECT COUNT(*) FROM predictions_actual").Scan(&actuals))
	assert.Zero(t, actuals)
}

func TestOnMessageEstimateThenActual(t *testing.T) {
	h := newHarness(t, inWindow(t), Options{})
	h.orch.OnMessage(frame(t, `etd="10:02"`))
	h.orch.OnMessage(frame(t, `atd="10:03"`))
	// identical repeat: cache suppresses both dispatches
	h.orch.OnMessage(frame(t, `atd="10:03"`))

	require.True(t, h.writer.Close(true, 5*time.Second))
	assert.EqualValues(t, 3, h.writer.Written()) // 2 all + 1 actual

	s, err := store.Open(h.dbPath)
	require.NoError(t, err)
	defer s.Close()

	// first snapshot wins in predictions_all
	var n, hasActual int
	require.NoError(t, s.Conn().QueryRow("SELECT COUNT(*) FROM predictions_all").Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, s.Conn().QueryRow(
		"SELECT has_actual_dep FROM predictions_all").Scan(&hasActual))
	assert.Zero(t, hasActual)

	var confirmed string
	require.NoError(t, s.Conn().QueryRow("SELECT COUNT(*) FROM predictions_actual").Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, s.Conn().QueryRow(`
		SELECT has_actual_dep, actual_dep_confirmed FROM predictions_actual`).
		Scan(&hasActual, &confirmed))
	assert.Equal(t, 1, hasActual)
	assert.Equal(t, "10:03", confirmed)
}

func TestOnMessageOutOfWindow(t *testing.T) {
	h := newHarness(t, time.Date(2025, 4, 10, 15, 0, 0, 0, london(t)), Options{})
	h.orch.OnMessage(frame(t, `etd="10:02"`))
	assert.Zero(t, h.countRows(t, store.TablePredictionsAll))
}

func TestOnMessageNearDepartureWindow(t *testing.T) {
	// 10:25: the segment already arrived for the in-progress filter but
	// its departure is still inside the near-departure window.
	now := time.Date(2025, 4, 10, 10, 25, 0, 0, london(t))

	strict := newHarness(t, now, Options{})
	strict.orch.OnMessage(frame(t, `etd="10:02"`))
	assert.Zero(t, strict.countRows(t, store.TablePredictionsAll))

	wide := newHarness(t, now, Options{NearDeparture: true})
	wide.orch.OnMessage(frame(t, `etd="10:02"`))
	assert.Equal(t, 1, wide.countRows(t, store.TablePredictionsAll))
}

func TestOnMessageUndecodableFrame(t *testing.T) {
	h := newHarness(t, inWindow(t), Options{})
	h.orch.OnMessage([]byte("not a frame"))
	assert.Zero(t, h.countRows(t, store.TablePredictionsAll))
}

func TestPrintLineFormat(t *testing.T) {
	h := newHarness(t, inWindow(t), Options{Print: true})
	h.orch.OnMessage(frame(t, `atd="10:03"`))

	line := h.out.String()
	assert.Equal(t,
		"2025-04-10 10:01:30 | ACTUAL | 202504107222222 WEYMTH->UPWEY "+
			"planned_dep=10:00 dep_time=10:03 dep_delay=3.0 dwell=3.0 pred=4.00 | cache=1\n",
		line)
}

type fakeListener struct {
	frames [][]byte
}

func (f *fakeListener) Listen(_ context.Context, handler darwin.MessageHandler) error {
	for _, b := range f.frames {
		handler(b)
	}
	return nil
}

func TestRunDeliversAndDrains(t *testing.T) {
	h := newHarness(t, inWindow(t), Options{})
	listener := &fakeListener{frames: [][]byte{frame(t, `etd="10:02"`)}}

	require.NoError(t, h.orch.Run(context.Background(), listener))

	// writer is closed by Run; further enqueues fail
	assert.False(t, h.writer.InsertAll(store.PredictionRecord{RID: "X", DepTimeKind: "estimate"}))

	s, err := store.Open(h.dbPath)
	require.NoError(t, err)
	defer s.Close()
	var n int
	require.NoError(t, s.Conn().QueryRow("SELECT COUNT(*) FROM predictions_all").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestPredictionErrorSkipsSegment(t *testing.T) {
	loc := london(t)
	dbPath := filepath.Join(t.TempDir(), "realtime.sqlite3")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	w := store.NewWriter(s, 10, zerolog.Nop())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_weights.json"),
		[]byte(`{"WEYMTH_UPWEY": {"m1": 1.0}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "WEYMTH_UPWEY_m1.json"),
		[]byte(`{"kind": "linear", "intercept": 0.0, "coefficients": {"no_such_feature": 1.0}}`), 0o644))
	ensemble, err := model.LoadEnsemble(dir, "model_weights.json", zerolog.Nop())
	require.NoError(t, err)
	defer ensemble.Close()

	now := inWindow(t)
	orch := New(testRoute(t), segcache.New(10), w, feature.NewBuilder(loc), ensemble, loc,
		Options{Now: func() time.Time { return now }}, zerolog.Nop())
	orch.OnMessage(frame(t, `etd="10:02"`))

	require.True(t, w.Close(true, 5*time.Second))
	assert.Zero(t, w.Written())
}
