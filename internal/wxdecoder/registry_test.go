package wxdecoder

import (
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxaloft/internal/acars"
)

type fakeDecoder struct {
	name     string
	airlines []string
}

func (f fakeDecoder) Name() string       { return f.name }
func (f fakeDecoder) Airlines() []string { return f.airlines }
func (f fakeDecoder) Decode(*acars.Message, time.Time) (iter.Seq[Observation], bool) {
	return func(func(Observation) bool) {}, true
}

func TestAirline(t *testing.T) {
	tests := []struct {
		flight  string
		want    string
		wantErr error
	}{
		{flight: "UA0123", want: "UA"},
		{flight: "QF1", want: "QF"},
		{flight: "LH400A", want: "LH"},
		{flight: "ua0123", want: "UA"},
		{flight: " NZ0001", want: "NZ"},
		{flight: "U20456", want: "U2"},
		{flight: "AS12..", want: "AS"},
		{flight: "", wantErr: ErrInvalidFlightID},
		{flight: "QF", wantErr: ErrInvalidFlightID},
		{flight: "QF12345", wantErr: ErrInvalidFlightID},
		{flight: "QF12AB", wantErr: ErrInvalidFlightID},
		{flight: "Q-123", wantErr: ErrInvalidFlightID},
	}

	for _, tt := range tests {
		t.Run(tt.flight, func(t *testing.T) {
			got, err := Airline(tt.flight)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistryForFlight(t *testing.T) {
	r := New()
	r.Register(fakeDecoder{name: "alpha", airlines: []string{"QF", "va"}})
	r.Register(fakeDecoder{name: "beta", airlines: []string{"UA"}})

	d, err := r.ForFlight("VA0456")
	require.NoError(t, err)
	assert.Equal(t, "alpha", d.Name())

	d, err = r.ForFlight("UA0001")
	require.NoError(t, err)
	assert.Equal(t, "beta", d.Name())

	_, err = r.ForFlight("DL0100")
	assert.True(t, errors.Is(err, ErrUnknownAirline))

	_, err = r.ForFlight("garbage!")
	assert.True(t, errors.Is(err, ErrInvalidFlightID))

	assert.Equal(t, []string{"QF", "UA", "VA"}, r.Airlines())
	assert.Equal(t, []string{"alpha", "beta"}, r.Formats())
}

func TestRegistryAssign(t *testing.T) {
	r := New()
	r.Register(fakeDecoder{name: "alpha", airlines: []string{"QF"}})

	require.NoError(t, r.Assign("jq", "alpha"))
	d, err := r.ForFlight("JQ0007")
	require.NoError(t, err)
	assert.Equal(t, "alpha", d.Name())

	assert.Error(t, r.Assign("JQ", "missing"))
	assert.Error(t, r.Assign("JQX", "alpha"))
}

func TestObservationComplete(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	full := Observation{
		Observed:  &now,
		Altitude:  Ptr(35000),
		Latitude:  Ptr(47.5),
		Longitude: Ptr(-122.3),
	}
	assert.True(t, full.Complete())

	noAlt := full
	noAlt.Altitude = nil
	assert.False(t, noAlt.Complete())

	noTime := full
	noTime.Observed = nil
	assert.False(t, noTime.Complete())

	noLon := full
	noLon.Longitude = nil
	assert.False(t, noLon.Complete())
}
