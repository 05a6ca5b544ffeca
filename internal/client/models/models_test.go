package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_KnownValues(t *testing.T) {
	d, err := ParseDate("2025-10-10")
	require.NoError(t, err)
	assert.Equal(t, Date(20371), d)
	assert.Equal(t, "2025-10-10", d.String())

	epoch, err := ParseDate("1970-01-01")
	require.NoError(t, err)
	assert.Equal(t, Date(0), epoch)

	before, err := ParseDate("1969-12-31")
	require.NoError(t, err)
	assert.Equal(t, Date(-1), before)
	assert.Equal(t, "1969-12-31", before.String())

	_, err = ParseDate("10/10/2025")
	assert.Error(t, err)
}

func TestDateOf_IgnoresTimeZone(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC-11", -11*3600),
		time.FixedZone("UTC+14", 14*3600),
		time.FixedZone("UTC+5:45", 5*3600+45*60),
	}
	want, err := ParseDate("2025-10-10")
	require.NoError(t, err)

	for _, loc := range zones {
		for _, hour := range []int{0, 1, 12, 23} {
			tm := time.Date(2025, 10, 10, hour, 59, 59, 0, loc)
			assert.Equal(t, want, DateOf(tm), "%s %02d:59", loc, hour)
		}
	}
}

func TestDate_RoundTripUnderLocal(t *testing.T) {
	saved := time.Local
	t.Cleanup(func() { time.Local = saved })

	for _, off := range []int{-12, -5, 0, 3, 9, 14} {
		time.Local = time.FixedZone("test", off*3600)
		for d := Date(19000); d < Date(19000+400); d += 7 {
			got, err := ParseDate(d.String())
			require.NoError(t, err)
			require.Equal(t, d, got)
			require.Equal(t, d, DateOf(d.Time().In(time.Local).Add(-time.Duration(off)*time.Hour)))
		}
	}
}

func TestRecord_Validate(t *testing.T) {
	valid := func() *Record {
		return &Record{
			UserID: "u1", ID: "A", Collection: CollectionDailyLogs,
			CreatedAt: 100, UpdatedAt: 100, Payload: DailyLog{Flow: FlowLight},
		}
	}
	require.NoError(t, valid().Validate())

	hot := 48.0
	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"no user", func(r *Record) { r.UserID = "" }},
		{"no id", func(r *Record) { r.ID = "" }},
		{"bad collection", func(r *Record) { r.Collection = "notes" }},
		{"clock order", func(r *Record) { r.UpdatedAt = 50 }},
		{"nil payload", func(r *Record) { r.Payload = nil }},
		{"payload mismatch", func(r *Record) { r.Payload = Insight{Title: "x"} }},
		{"bad flow", func(r *Record) { r.Payload = DailyLog{Flow: "torrential"} }},
		{"bad temperature", func(r *Record) { r.Payload = DailyLog{Flow: FlowNone, Temperature: &hot} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			require.ErrorIs(t, r.Validate(), ErrInvalidRecord)
		})
	}
}

func TestCycleAndInsight_Validate(t *testing.T) {
	end := Date(10)
	assert.Error(t, Cycle{StartDate: 20, EndDate: &end}.Validate())
	assert.Error(t, Cycle{StartDate: 1, PeriodLength: -1}.Validate())
	assert.NoError(t, Cycle{StartDate: 1, EndDate: &end, PeriodLength: 5, CycleLength: 28}.Validate())

	assert.Error(t, Insight{}.Validate())
	assert.Error(t, Insight{Title: "t", Confidence: 1.5}.Validate())
	assert.NoError(t, Insight{Kind: "prediction", Title: "t", Confidence: 0.8}.Validate())
}

func TestPayload_EncodeDecode(t *testing.T) {
	temp := 36.7
	in := DailyLog{Flow: FlowMedium, Symptoms: []string{"cramps", "headache"}, Mood: "calm", Temperature: &temp, Notes: "ok"}

	raw, err := EncodePayload(in)
	require.NoError(t, err)

	out, err := DecodePayload(CollectionDailyLogs, raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodePayload(CollectionDailyLogs, []byte(`{"flow":"light","color":"red"}`))
	assert.Error(t, err)

	_, err = DecodePayload("notes", []byte(`{}`))
	assert.Error(t, err)
}

func TestPendingOperation_Due(t *testing.T) {
	now := time.Unix(1000, 0)
	later := now.Add(time.Second)

	op := &PendingOperation{NextAttemptAt: &now}
	assert.True(t, op.Due(now))
	assert.False(t, op.Exhausted())

	op.NextAttemptAt = &later
	assert.False(t, op.Due(now))

	op.NextAttemptAt = nil
	assert.True(t, op.Exhausted())
	assert.False(t, op.Due(now))
}
