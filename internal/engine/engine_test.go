package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revenue-action-center/internal/aggregate"
	"revenue-action-center/internal/dataset"
	"revenue-action-center/internal/feed"
	"revenue-action-center/internal/rank"
	"revenue-action-center/internal/rules"
	"revenue-action-center/internal/schema"
)

const header = "Date,Package,Gross Revenue,IVT (%),Margin (%),Request NE,Revenue Cost,Publisher Impressions,Advertiser Impressions"

// sampleCSV builds six days for P1 (revenue 100×3 then 50×3, spiking IVT on
// the last day), P2 present only in the last window, and a bad row.
func sampleCSV() string {
	lines := []string{header}
	p1Revenue := []float64{100, 100, 100, 50, 50, 50}
	p1IVT := []float64{4, 5, 6, 5, 4, 30}
	for i := range p1Revenue {
		lines = append(lines, fmt.Sprintf("2024-05-0%d,P1,%v,%v,15,1000000,10,900,1000", i+1, p1Revenue[i], p1IVT[i]))
	}
	lines = append(lines,
		"2024-05-05,P2,$80,2,40,1000,5,100,0",
		"2024-05-06,P2,n/a,2,40,1000,5,100,0",
	)
	return strings.Join(lines, "\n") + "\n"
}

func prepare(t *testing.T, csv string, opts Options) *dataset.Dataset {
	t.Helper()
	table, err := feed.ReadCSV(strings.NewReader(csv), "sample.csv", feed.Options{})
	require.NoError(t, err)
	resolver, err := schema.NewResolver(nil)
	require.NoError(t, err)
	ds, err := Prepare(table, resolver, opts, dataset.LoadOptions{})
	require.NoError(t, err)
	return ds
}

func newEngine() *Engine {
	e := New(zerolog.Nop())
	e.now = func() time.Time { return time.Date(2024, 5, 7, 8, 0, 0, 0, time.UTC) }
	return e
}

func TestRunFullReport(t *testing.T) {
	opts := DefaultOptions()
	ds := prepare(t, sampleCSV(), opts)
	require.Equal(t, 1, ds.Report.ExcludedRows)

	report, err := newEngine().Run(ds, opts)
	require.NoError(t, err)
	require.Empty(t, report.Failures)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "2024-05-04..2024-05-06", report.LastWindow.String())
	assert.Equal(t, "2024-05-01..2024-05-03", report.PreviousWindow.String())

	require.Len(t, report.Rows, 2)
	p1, p2 := report.Rows[0], report.Rows[1]
	assert.Equal(t, "P1", p1.Key.String())
	require.NotNil(t, p1.Trend)
	assert.Equal(t, -150.0, p1.Trend.Delta)
	pct, ok := p1.Trend.Percent.Value()
	require.True(t, ok)
	assert.Equal(t, -50.0, pct)

	require.NotNil(t, p2.Trend)
	assert.Equal(t, 80.0, p2.Trend.Delta)
	assert.False(t, p2.Trend.Percent.Defined())

	// P1 last-window IVT mean is 13 with margin 15: critical.
	assert.Equal(t, rules.LabelCritical, p1.Classification.Label)
	assert.Equal(t, rules.LabelOK, p2.Classification.Label)
	assert.Equal(t, 1, report.DiscrepancyExcludedRows)

	require.Len(t, report.Spikes, 1)
	assert.Equal(t, "P1", report.Spikes[0].Key.String())
	assert.True(t, p1.Spiking())
	assert.Nil(t, p2.Spike)

	assert.Equal(t, aggregate.SingleDay(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)), report.DropWindow)
	assert.Empty(t, report.DropAlerts)

	assert.Len(t, report.Actionable(), 1)
	assert.Equal(t, map[rules.Label]int{rules.LabelCritical: 1, rules.LabelOK: 1}, report.Counts())
	assert.Equal(t, "P1", report.Top(rank.ViewIVT, 1)[0].Key.String())
}

func TestRunIndependentFailures(t *testing.T) {
	opts := DefaultOptions()
	opts.WindowDays = 4
	ds := prepare(t, sampleCSV(), opts)

	report, err := newEngine().Run(ds, opts)
	require.NoError(t, err)

	var histErr *aggregate.InsufficientHistoryError
	require.True(t, errors.As(report.Err(AnalysisTrend), &histErr))
	assert.Equal(t, 8, histErr.Required)
	assert.NoError(t, report.Err(AnalysisSpikes))
	assert.NoError(t, report.Err(AnalysisDrops))

	// Classification still runs over the last window alone.
	require.Len(t, report.Rows, 2)
	assert.Nil(t, report.Rows[0].Trend)
	assert.Equal(t, rules.LabelCritical, report.Rows[0].Classification.Label)
	assert.Len(t, report.Spikes, 1)
}

func TestRunMissingSpikeMetric(t *testing.T) {
	csv := "date,package,gross revenue\n" +
		"2024-05-01,P1,10\n2024-05-02,P1,20\n"
	opts := DefaultOptions()
	opts.WindowDays = 1
	ds := prepare(t, csv, opts)

	report, err := newEngine().Run(ds, opts)
	require.NoError(t, err)

	var missing *schema.MissingFieldError
	require.True(t, errors.As(report.Err(AnalysisSpikes), &missing))
	assert.Equal(t, []schema.Field{schema.FieldIVTRate}, missing.Fields)
	assert.NoError(t, report.Err(AnalysisTrend))
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 10.0, report.Rows[0].Trend.Delta)
}

func TestPrepareMissingRequiredField(t *testing.T) {
	table, err := feed.ReadCSV(strings.NewReader("date,campaign\n2024-05-01,c1\n"), "bad.csv", feed.Options{})
	require.NoError(t, err)
	resolver, err := schema.NewResolver(nil)
	require.NoError(t, err)

	_, err = Prepare(table, resolver, DefaultOptions(), dataset.LoadOptions{})
	var missing *schema.MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.ElementsMatch(t, []schema.Field{schema.FieldPackage, schema.FieldGrossRevenue}, missing.Fields)
}

func TestPrepareKeepsRevenueBesideBadOptionalColumns(t *testing.T) {
	csv := strings.Join([]string{
		"Date,Package,Gross Revenue,CPM,Fill Rate",
		"2024-05-01,P1,100,1.5,0.9",
		"2024-05-02,P1,100,1.5,0.9",
		"2024-05-02,P1,900,,0.8",
		"2024-05-02,P1,100,2,n/a",
	}, "\n") + "\n"
	opts := DefaultOptions()
	opts.WindowDays = 1
	ds := prepare(t, csv, opts)
	assert.Equal(t, 4, ds.Report.LoadedRows)
	assert.Len(t, ds.Report.Exclusions, 2)

	report, err := newEngine().Run(ds, opts)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	require.NotNil(t, report.Rows[0].Trend)
	assert.Equal(t, 1000.0, report.Rows[0].Trend.Delta)
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	ds := prepare(t, sampleCSV(), opts)

	opts.TopK = 0
	_, err := newEngine().Run(ds, opts)
	assert.ErrorContains(t, err, "top_k")

	_, err = newEngine().Run(&dataset.Dataset{}, DefaultOptions())
	assert.ErrorIs(t, err, feed.ErrEmptyTable)
}

func TestRunIsRepeatable(t *testing.T) {
	opts := DefaultOptions()
	ds := prepare(t, sampleCSV(), opts)
	e := newEngine()

	a, err := e.Run(ds, opts)
	require.NoError(t, err)
	b, err := e.Run(ds, opts)
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	a.RunID, b.RunID = "", ""
	assert.Equal(t, a, b)
}
