package metrics

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/matveylogee/OS-HW2-BMW/rwdb"
)

func TestObserveDatabase(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	db, err := rwdb.Initialize(rwdb.Options{Capacity: 4, Observer: m})
	require.NoError(t, err)
	defer db.Teardown()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, db.View(ctx, func([]int32) {}))
	}
	require.NoError(t, db.Update(ctx, func(data []int32) { data[0] = 9 }))

	require.Equal(t, 3.0, testutil.ToFloat64(m.AccessAcquires.WithLabelValues("reader")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.AccessReleases.WithLabelValues("reader")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AccessAcquires.WithLabelValues("writer")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AccessReleases.WithLabelValues("writer")))
	require.Zero(t, testutil.ToFloat64(m.ActiveReaders))
	require.Zero(t, testutil.ToFloat64(m.Writers))
	require.Zero(t, testutil.ToFloat64(m.AdmissionShut))

	require.NoError(t, db.EnterWrite(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Writers))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionShut))
	require.NoError(t, db.ReleaseAccess())
	require.NoError(t, db.ExitWrite())
	require.Zero(t, testutil.ToFloat64(m.AdmissionShut))
}

func TestWorkerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Operation(rwdb.Reader)
	m.Operation(rwdb.Reader)
	m.Operation(rwdb.Writer)
	m.Failure(rwdb.Writer)
	m.Wait(rwdb.Reader, 3*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("reader")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("writer")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("writer")))
	require.Equal(t, 1, testutil.CollectAndCount(m.AdmissionWait))
	m.Wait(rwdb.Reader, 5*time.Millisecond)

	h := findHistogram(t, reg, "rwdb_admission_wait_seconds")
	require.Equal(t, uint64(2), h.GetSampleCount())
	require.InDelta(t, 0.008, h.GetSampleSum(), 1e-9)
}

func findHistogram(t *testing.T, g prometheus.Gatherer, name string) *dto.Histogram {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == name {
			found = mf
		}
	}
	require.NotNil(t, found, "metric %s", name)
	require.Equal(t, dto.MetricType_HISTOGRAM, found.GetType())
	require.Len(t, found.GetMetric(), 1)
	return found.GetMetric()[0].GetHistogram()
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Operation(rwdb.Writer)
	m.ReaderCountChanged(2)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))

	out := buf.String()
	require.Contains(t, out, "# TYPE rwdb_operations_total counter")
	require.Contains(t, out, `rwdb_operations_total{role="writer"} 1`)
	require.Contains(t, out, "rwdb_active_readers 2")
}
