package admin

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"wxaloft/internal/storage"
)

// KML 2.2 document types, trimmed to what the export writes.
type kmlRoot struct {
	XMLName   xml.Name    `xml:"kml"`
	Namespace string      `xml:"xmlns,attr"`
	Document  kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description,omitempty"`
	Styles      []kmlStyle     `xml:"Style,omitempty"`
	Placemarks  []kmlPlacemark `xml:"Placemark"`
}

type kmlStyle struct {
	ID        string       `xml:"id,attr"`
	IconStyle kmlIconStyle `xml:"IconStyle"`
}

type kmlIconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Href  string  `xml:"Icon>href"`
}

type kmlPlacemark struct {
	Name         string     `xml:"name"`
	Description  string     `xml:"description,omitempty"`
	StyleURL     string     `xml:"styleUrl,omitempty"`
	TimeStamp    string     `xml:"TimeStamp>when"`
	Point        kmlPoint   `xml:"Point"`
	ExtendedData []kmlDatum `xml:"ExtendedData>Data"`
}

type kmlPoint struct {
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"` // lon,lat,metres
}

type kmlDatum struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

const metresPerFoot = 0.3048

// ExportKML writes the observations linked to an area over the last since
// as a KML document, one placemark per observation, and returns how many
// were written.
func (t *Tools) ExportKML(ctx context.Context, areaRef string, since time.Duration, w io.Writer) (int, error) {
	area, err := t.Store.LookupArea(ctx, areaRef)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("unknown area %q", areaRef)
	}
	if err != nil {
		return 0, err
	}
	now := t.now()
	obs, err := t.Store.ObservationsForArea(ctx, area.ID, now.Add(-since))
	if err != nil {
		return 0, err
	}

	doc := kmlRoot{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: kmlDocument{
			Name: "Observations near " + area.Name,
			Description: fmt.Sprintf("%s observations since %s. Generated %s.",
				humanize.Comma(int64(len(obs))), now.Add(-since).UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339)),
			Styles: []kmlStyle{{
				ID:        "obs",
				IconStyle: kmlIconStyle{Scale: 0.7, Href: "http://maps.google.com/mapfiles/kml/shapes/airports.png"},
			}},
			Placemarks: make([]kmlPlacemark, 0, len(obs)),
		},
	}
	for _, o := range obs {
		doc.Document.Placemarks = append(doc.Document.Placemarks, placemark(o))
	}

	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode kml: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header+string(b)+"\n"); err != nil {
		return 0, err
	}
	return len(obs), nil
}

func placemark(o storage.Observation) kmlPlacemark {
	data := []kmlDatum{
		{Name: "source", Value: o.Source},
		{Name: "altitude_ft", Value: strconv.Itoa(o.Altitude)},
		{Name: "frequency_mhz", Value: strconv.FormatFloat(o.Frequency, 'f', 3, 64)},
	}
	desc := []string{humanize.Comma(int64(o.Altitude)) + " ft"}
	if o.WindDirection != nil && o.WindSpeed != nil {
		data = append(data,
			kmlDatum{Name: "wind_direction", Value: strconv.Itoa(*o.WindDirection)},
			kmlDatum{Name: "wind_speed_kt", Value: strconv.Itoa(*o.WindSpeed)})
		desc = append(desc, fmt.Sprintf("wind %03d/%d kt", *o.WindDirection, *o.WindSpeed))
	}
	if o.Temperature != nil {
		data = append(data, kmlDatum{Name: "temperature_c", Value: strconv.FormatFloat(*o.Temperature, 'f', -1, 64)})
		desc = append(desc, fmt.Sprintf("%.1f °C", *o.Temperature))
	}

	return kmlPlacemark{
		Name:        o.Source + " " + o.Observed.UTC().Format("15:04Z"),
		Description: strings.Join(desc, ", "),
		StyleURL:    "#obs",
		TimeStamp:   o.Observed.UTC().Format(time.RFC3339),
		Point: kmlPoint{
			AltitudeMode: "absolute",
			Coordinates: fmt.Sprintf("%.6f,%.6f,%.0f",
				o.Longitude, o.Latitude, float64(o.Altitude)*metresPerFoot),
		},
		ExtendedData: data,
	}
}
