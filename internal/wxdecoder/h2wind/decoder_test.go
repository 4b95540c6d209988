package h2wind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxaloft/internal/acars"
	"wxaloft/internal/wxdecoder"
)

func block(label, flight, text string) *acars.Message {
	msg := acars.New("2..N1234" + "\x15" + label + "2" + "\x02" + "M05A" + flight + text + "\x03")
	if !msg.Parse() {
		panic("test block did not parse")
	}
	return msg
}

func decodeAll(msg *acars.Message, received time.Time) ([]wxdecoder.Observation, bool) {
	seq, ok := Decoder{}.Decode(msg, received)
	if !ok {
		return nil, false
	}
	var out []wxdecoder.Observation
	for o := range seq {
		out = append(out, o)
	}
	return out, true
}

func TestDecodeClimbDescent(t *testing.T) {
	received := time.Date(2024, 3, 25, 12, 0, 0, 0, time.UTC)
	msg := block("H2", "OS0123", "02A251038BKPRLOWWN42333E021013251018350M045270095G300M038265080")

	obs, ok := decodeAll(msg, received)
	require.True(t, ok)
	require.Len(t, obs, 2)

	want := time.Date(2024, 3, 25, 10, 38, 0, 0, time.UTC)
	for _, o := range obs {
		require.True(t, o.Complete())
		assert.Equal(t, want, *o.Observed)
		assert.InDelta(t, 42.555, *o.Latitude, 1e-6)
		assert.InDelta(t, 21.021667, *o.Longitude, 1e-6)
	}

	assert.Equal(t, 35000, *obs[0].Altitude)
	assert.Equal(t, -45.0, *obs[0].Temperature)
	assert.Equal(t, 270, *obs[0].WindDirection)
	assert.Equal(t, 95, *obs[0].WindSpeed)

	assert.Equal(t, 30000, *obs[1].Altitude)
	assert.Equal(t, -38.0, *obs[1].Temperature)
	assert.Equal(t, 265, *obs[1].WindDirection)
	assert.Equal(t, 80, *obs[1].WindSpeed)

	// Layers must not share pointers.
	*obs[0].Latitude = 0
	assert.InDelta(t, 42.555, *obs[1].Latitude, 1e-6)
}

func TestDecodeLayerWithoutWind(t *testing.T) {
	received := time.Date(2024, 3, 25, 12, 0, 0, 0, time.UTC)
	msg := block("H2", "LH0400", "02A251038BKPRLOWWS42333W021013251018100P005")

	obs, ok := decodeAll(msg, received)
	require.True(t, ok)
	require.Len(t, obs, 1)
	assert.Equal(t, 10000, *obs[0].Altitude)
	assert.Equal(t, 5.0, *obs[0].Temperature)
	assert.Nil(t, obs[0].WindDirection)
	assert.Nil(t, obs[0].WindSpeed)
	assert.Less(t, *obs[0].Latitude, 0.0)
	assert.Less(t, *obs[0].Longitude, 0.0)
}

func TestDecodeDayInPreviousMonth(t *testing.T) {
	received := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	msg := block("H2", "UA0001", "02A292350KSEAKSFON47270W122180292350350M045270095")

	obs, ok := decodeAll(msg, received)
	require.True(t, ok)
	require.Len(t, obs, 1)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 50, 0, 0, time.UTC), *obs[0].Observed)
}

func TestDecodeCruise(t *testing.T) {
	received := time.Date(2024, 3, 25, 9, 15, 30, 0, time.UTC)
	msg := block("H2", "SN0200", "02E25LGAVLKPRN40359E02333410133599M522276069G")

	obs, ok := decodeAll(msg, received)
	require.True(t, ok)
	require.Len(t, obs, 1)

	o := obs[0]
	require.True(t, o.Complete())
	assert.Equal(t, received, *o.Observed)
	assert.Equal(t, 35990, *o.Altitude)
	assert.InDelta(t, 40.598333, *o.Latitude, 1e-6)
	assert.InDelta(t, 23.556667, *o.Longitude, 1e-6)
	assert.InDelta(t, -52.2, *o.Temperature, 1e-9)
	assert.Equal(t, 276, *o.WindDirection)
	assert.Equal(t, 69, *o.WindSpeed)
}

func TestDecodeNotWeather(t *testing.T) {
	received := time.Now()
	tests := []struct {
		name  string
		label string
		text  string
	}{
		{"wrong label", "21", "02A251038BKPRLOWWN42333E021013251018350M045270095"},
		{"encoded payload", "H2", "#T1B/A31234"},
		{"bad header", "H2", "02AXXXXXX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := decodeAll(block(tt.label, "UA0001", tt.text), received)
			assert.False(t, ok)
		})
	}
}

func TestDecodeEarlyStop(t *testing.T) {
	received := time.Date(2024, 3, 25, 12, 0, 0, 0, time.UTC)
	msg := block("H2", "OS0123", "02A251038BKPRLOWWN42333E021013251018350M045270095G300M038265080")

	seq, ok := Decoder{}.Decode(msg, received)
	require.True(t, ok)
	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestRegistered(t *testing.T) {
	for _, flight := range []string{"OS0123", "LH0400", "LX0001", "SN0200", "AS0612", "UA0001"} {
		d, err := wxdecoder.ForFlight(flight)
		require.NoError(t, err)
		assert.Equal(t, "h2wind", d.Name())
	}
}
