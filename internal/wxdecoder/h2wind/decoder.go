package h2wind

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

// Decoder handles H2 wind reports.
type Decoder struct{}

func (Decoder) Name() string       { return "h2wind" }
func (Decoder) Airlines() []string { return []string{"OS", "LH", "LX", "SN", "AS", "UA"} }

// Decode yields one sample per wind layer of an 02A report, or the single
// cruise sample of an 02E report.
func (Decoder) Decode(msg *acars.Message, received time.Time) (iter.Seq[wxdecoder.Observation], bool) {
	if msg.Label() != "H2" {
		return nil, false
	}
	text := strings.TrimSpace(msg.Text())
	if !strings.HasPrefix(text, "02A") && !strings.HasPrefix(text, "02E") {
		return nil, false
	}
	compiler, err := getCompiler()
	if err != nil {
		return nil, false
	}

	m := compiler.Parse(text)
	if m == nil {
		return nil, false
	}
	switch m.Format {
	case "h2_header_02A":
		return climbDescent(compiler, m, strings.ToUpper(text)[m.End:], received), true
	case "h2_header_02E":
		obs := cruise(m, received)
		return func(yield func(wxdecoder.Observation) bool) {
			yield(obs)
		}, true
	}
	return nil, false
}

func climbDescent(compiler *patterns.Compiler, header *patterns.Match, rest string, received time.Time) iter.Seq[wxdecoder.Observation] {
	observed, hasTime := dayTime(header.Get("time"), received)
	lat, errLat := patterns.ParseLatitude(header.Get("lat"), header.Get("lat_dir"))
	lon, errLon := patterns.ParseLongitude(header.Get("lon"), header.Get("lon_dir"))
	layers := compiler.FindAll(rest, "wind_layer")

	return func(yield func(wxdecoder.Observation) bool) {
		for _, l := range layers {
			fl, err := strconv.Atoi(l.Get("fl"))
			if err != nil {
				continue
			}
			obs := wxdecoder.Observation{Altitude: wxdecoder.Ptr(fl * 100)}
			if hasTime {
				obs.Observed = wxdecoder.Ptr(observed)
			}
			if errLat == nil {
				obs.Latitude = wxdecoder.Ptr(lat)
			}
			if errLon == nil {
				obs.Longitude = wxdecoder.Ptr(lon)
			}
			if temp, err := strconv.Atoi(l.Get("temp")); err == nil {
				obs.Temperature = wxdecoder.Ptr(float64(sign(l.Get("temp_sign")) * temp))
			}
			setWind(&obs, l.Get("wind_dir"), l.Get("wind_spd"))
			if !yield(obs) {
				return
			}
		}
	}
}

// cruise decodes an 02E sample. The report carries no sample time, so the
// receipt time stands in for it.
func cruise(m *patterns.Match, received time.Time) wxdecoder.Observation {
	obs := wxdecoder.Observation{Observed: wxdecoder.Ptr(received.UTC())}

	if lat, err := patterns.ParseLatitude(m.Get("lat"), m.Get("lat_dir")); err == nil {
		obs.Latitude = &lat
	}
	if lon, err := patterns.ParseLongitude(m.Get("lon"), m.Get("lon_dir")); err == nil {
		obs.Longitude = &lon
	}
	// Three digits are a flight level, four are tens of feet.
	if fl := m.Get("fl"); fl != "" {
		if v, err := strconv.Atoi(fl); err == nil {
			if len(fl) == 4 {
				obs.Altitude = wxdecoder.Ptr(v * 10)
			} else {
				obs.Altitude = wxdecoder.Ptr(v * 100)
			}
		}
	}
	// Cruise temperatures are in tenths of a degree.
	if v, err := strconv.Atoi(m.Get("temp")); err == nil {
		obs.Temperature = wxdecoder.Ptr(float64(sign(m.Get("temp_sign"))*v) / 10)
	}
	setWind(&obs, m.Get("wind_dir"), m.Get("wind_spd"))
	return obs
}

func setWind(obs *wxdecoder.Observation, dirStr, spdStr string) {
	if dirStr == "" || spdStr == "" {
		return
	}
	dir, errDir := strconv.Atoi(dirStr)
	spd, errSpd := strconv.Atoi(spdStr)
	if errDir != nil || errSpd != nil || dir > 360 {
		return
	}
	obs.WindDirection = &dir
	obs.WindSpeed = &spd
}

func sign(s string) int {
	if s == "M" {
		return -1
	}
	return 1
}

// dayTime resolves a DDHHMM stamp to the most recent matching instant not
// after received, looking back at most one month.
func dayTime(s string, received time.Time) (time.Time, bool) {
	if len(s) != 6 {
		return time.Time{}, false
	}
	day, errD := strconv.Atoi(s[:2])
	h, errH := strconv.Atoi(s[2:4])
	mi, errM := strconv.Atoi(s[4:])
	if errD != nil || errH != nil || errM != nil || day < 1 || day > 31 || h > 23 || mi > 59 {
		return time.Time{}, false
	}

	r := received.UTC()
	for back := 0; back <= 1; back++ {
		t := time.Date(r.Year(), r.Month()-time.Month(back), day, h, mi, 0, 0, time.UTC)
		if t.Day() != day {
			// No such day in that month.
			continue
		}
		if !t.After(r) {
			return t, true
		}
	}
	return time.Time{}, false
}
