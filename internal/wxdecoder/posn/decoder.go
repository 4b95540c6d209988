package posn

import (
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"wxaloft/internal/acars"
	"wxaloft/internal/patterns"
	"wxaloft/internal/wxdecoder"
)

var (
	grokCompiler *patterns.Compiler
	grokOnce     sync.Once
	grokErr      error
)

func getCompiler() (*patterns.Compiler, error) {
	grokOnce.Do(func() {
		grokCompiler = patterns.NewCompiler(Formats, nil)
		grokErr = grokCompiler.Compile()
	})
	return grokCompiler, grokErr
}

func init() {
	wxdecoder.Register(Decoder{})
}

// Decoder handles the POSN reports sent by Australasian carriers.
type Decoder struct{}

func (Decoder) Name() string       { return "posn" }
func (Decoder) Airlines() []string { return []string{"QF", "VA", "NZ"} }

// Decode yields the single sample carried by a POSN report.
func (Decoder) Decode(msg *acars.Message, received time.Time) (iter.Seq[wxdecoder.Observation], bool) {
	if msg.Label() != "21" || !strings.Contains(msg.Text(), "POSN") {
		return nil, false
	}
	compiler, err := getCompiler()
	if err != nil {
		return nil, false
	}
	m := compiler.Parse(msg.Text())
	if m == nil {
		return nil, false
	}

	obs := observation(m, received)
	return func(yield func(wxdecoder.Observation) bool) {
		yield(obs)
	}, true
}

func observation(m *patterns.Match, received time.Time) wxdecoder.Observation {
	var obs wxdecoder.Observation

	if lat, err := patterns.ParseDecimalCoord(m.Get("lat"), "N"); err == nil && lat >= -90 && lat <= 90 {
		obs.Latitude = &lat
	}
	if lon, err := patterns.ParseDecimalCoord(m.Get("lon"), m.Get("lon_dir")); err == nil && lon >= -180 && lon <= 180 {
		obs.Longitude = &lon
	}
	if alt, err := strconv.Atoi(m.Get("altitude")); err == nil {
		obs.Altitude = &alt
	}
	if t, ok := clockTime(m.Get("time"), received); ok {
		obs.Observed = &t
	}

	// Wind is "DDD SSS"; some avionics omit the space.
	wind := strings.Fields(m.Get("wind"))
	if len(wind) == 1 && len(wind[0]) == 6 {
		wind = []string{wind[0][:3], wind[0][3:]}
	}
	if len(wind) == 2 {
		dir, errDir := strconv.Atoi(wind[0])
		spd, errSpd := strconv.Atoi(wind[1])
		if errDir == nil && errSpd == nil && dir >= 0 && dir <= 360 && spd >= 0 {
			obs.WindDirection = &dir
			obs.WindSpeed = &spd
		}
	}

	if temp, err := strconv.ParseFloat(strings.TrimSpace(m.Get("temp")), 64); err == nil {
		obs.Temperature = &temp
	}
	return obs
}

// clockTime places an HHMM or HHMMSS time on the UTC date of received,
// stepping back one day when that would be later than received.
func clockTime(s string, received time.Time) (time.Time, bool) {
	if len(s) != 4 && len(s) != 6 {
		return time.Time{}, false
	}
	h, errH := strconv.Atoi(s[:2])
	mi, errM := strconv.Atoi(s[2:4])
	sec := 0
	var errS error
	if len(s) == 6 {
		sec, errS = strconv.Atoi(s[4:])
	}
	if errH != nil || errM != nil || errS != nil || h > 23 || mi > 59 || sec > 59 {
		return time.Time{}, false
	}
	r := received.UTC()
	t := time.Date(r.Year(), r.Month(), r.Day(), h, mi, sec, 0, time.UTC)
	if t.After(r) {
		t = t.AddDate(0, 0, -1)
	}
	return t, true
}
