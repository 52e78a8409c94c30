package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/oadrvtn/internal/models"
)

type recordingSink struct {
	updates []Update
}

func (r *recordingSink) Update(_ context.Context, u Update) error {
	r.updates = append(r.updates, u)
	return nil
}

func descriptor(rid, name string, min time.Duration) models.ReportDescriptor {
	return models.ReportDescriptor{RID: rid, MeasurementName: name, MeasurementUnit: "V", MinSamplingPeriod: min, MaxSamplingPeriod: time.Hour}
}

func TestNegotiateCategories(t *testing.T) {
	sink := &recordingSink{}
	n := NewNegotiator(sink)

	regs := []models.ReportRegistration{
		{ReportSpecifierID: "s1", ReportName: "METADATA_TELEMETRY_USAGE", Descriptors: []models.ReportDescriptor{descriptor("usage", "Energy", 10*time.Second)}},
		{ReportSpecifierID: "s2", ReportName: "METADATA_TELEMETRY_STATUS", Descriptors: []models.ReportDescriptor{descriptor("status", "Status", time.Minute)}},
		{ReportSpecifierID: "s3", ReportName: "METADATA_HISTORY_USAGE", Descriptors: []models.ReportDescriptor{descriptor("hist", "Energy", 0)}},
	}
	want := []struct {
		category Category
		name     string
		period   time.Duration
	}{
		{CategoryUsage, "TELEMETRY_USAGE", 10 * time.Second},
		{CategoryStatus, "TELEMETRY_STATUS", time.Minute},
		{CategoryGeneric, "HISTORY_USAGE", 0},
	}

	var total int
	for i, reg := range regs {
		bindings := n.Negotiate("ven_001", reg)
		require.Len(t, bindings, 1)
		total += len(bindings)

		b := bindings[0]
		assert.Equal(t, want[i].category, b.Category)
		assert.Equal(t, want[i].name, b.Series.ReportName)
		assert.Equal(t, want[i].period, b.SamplingPeriod)
		assert.Equal(t, reg.ReportSpecifierID, b.Series.ReportSpecifierID)
		assert.Equal(t, "ven_001", b.Series.VenID)
	}
	assert.Equal(t, 3, total)
}

func TestNegotiateSkipsIncompleteDescriptors(t *testing.T) {
	n := NewNegotiator(nil)
	bindings := n.Negotiate("ven_001", models.ReportRegistration{
		ReportSpecifierID: "s1",
		ReportName:        "TELEMETRY_USAGE",
		Descriptors: []models.ReportDescriptor{
			descriptor("a", "Voltage", time.Second),
			descriptor("", "Current", time.Second),
			descriptor("c", "", time.Second),
			descriptor("d", "Power", 2*time.Second),
		},
	})

	require.Len(t, bindings, 2)
	assert.Equal(t, "a", bindings[0].RID)
	assert.Equal(t, "d", bindings[1].RID)
	assert.Equal(t, 2*time.Second, bindings[1].SamplingPeriod)
}

func TestBindingDeliver(t *testing.T) {
	sink := &recordingSink{}
	bindings := NewNegotiator(sink).Negotiate("ven_001", models.ReportRegistration{
		ReportSpecifierID: "s1",
		ReportName:        "METADATA_TELEMETRY_STATUS",
		Descriptors:       []models.ReportDescriptor{descriptor("st", "Status", time.Second)},
	})
	require.Len(t, bindings, 1)

	samples := []models.Sample{{Timestamp: time.Now(), Value: 1}}
	require.NoError(t, bindings[0].Deliver(context.Background(), samples))
	require.NoError(t, bindings[0].Deliver(context.Background(), nil))

	require.Len(t, sink.updates, 1)
	u := sink.updates[0]
	assert.Equal(t, CategoryStatus, u.Category)
	assert.Equal(t, "st", u.RID)
	assert.Equal(t, "Status", u.MeasurementName)
	assert.Equal(t, "V", u.Unit)
	assert.Equal(t, samples, u.Samples)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CategoryUsage, Classify("TELEMETRY_USAGE"))
	assert.Equal(t, CategoryUsage, Classify("METADATA_TELEMETRY_USAGE"))
	assert.Equal(t, CategoryStatus, Classify(" METADATA_TELEMETRY_STATUS"))
	assert.Equal(t, CategoryGeneric, Classify("telemetry_usage"))
	assert.Equal(t, CategoryGeneric, Classify(""))
}

type memoryStore struct {
	series  []models.SampleSeries
	samples int
}

func (m *memoryStore) SaveSamples(_ context.Context, s models.SampleSeries, samples []models.Sample) error {
	m.series = append(m.series, s)
	m.samples += len(samples)
	return nil
}

func TestMultiSink(t *testing.T) {
	store := &memoryStore{}
	failing := SinkFunc(func(context.Context, Update) error { return errors.New("boom") })
	rec := &recordingSink{}

	sink := MultiSink{LogSink{}, StoreSink{Store: store}, failing, rec}
	err := sink.Update(context.Background(), Update{
		SampleSeries: models.SampleSeries{VenID: "ven_001", RID: "r"},
		Samples:      []models.Sample{{Timestamp: time.Now(), Value: 1}, {Timestamp: time.Now(), Value: 2}},
	})

	assert.Error(t, err)
	assert.Equal(t, 2, store.samples)
	assert.Len(t, rec.updates, 1, "a failing sink does not stop the others")
}

func TestSubscriptions(t *testing.T) {
	s := NewSubscriptions()
	n := NewNegotiator(nil)

	first := n.Negotiate("ven_001", models.ReportRegistration{ReportSpecifierID: "s1", ReportName: "TELEMETRY_USAGE",
		Descriptors: []models.ReportDescriptor{descriptor("a", "Voltage", time.Second)}})
	s.Replace("ven_001", "s1", first)

	b, ok := s.Find("ven_001", "", "a")
	require.True(t, ok)
	assert.Equal(t, time.Second, b.SamplingPeriod)

	second := n.Negotiate("ven_001", models.ReportRegistration{ReportSpecifierID: "s1", ReportName: "TELEMETRY_USAGE",
		Descriptors: []models.ReportDescriptor{descriptor("b", "Current", time.Minute)}})
	s.Replace("ven_001", "s1", second)

	_, ok = s.Find("ven_001", "s1", "a")
	assert.False(t, ok, "superseded")
	_, ok = s.Find("ven_001", "s1", "b")
	assert.True(t, ok)
	assert.Len(t, s.List("ven_001"), 1)

	s.Drop("ven_001")
	assert.Empty(t, s.List("ven_001"))
}
