// Package posn decodes label 21 POSN position reports.
package posn

import "wxaloft/internal/patterns"

// Formats defines the POSN report layout.
var Formats = []patterns.Format{
	// Example: POSN -33.123E151.456, 180,1234,35000,12345, 270 045,  -52,1530,YSSY
	// The report time is HHMM, or HHMMSS on newer avionics.
	// Groups: lat, lon_dir, lon, heading, time, altitude, fob, wind, temp, eta, dest
	{
		Name: "posn_report",
		Pattern: `POSN\s*(?P<lat>{LAT_DEC})(?P<lon_dir>{LON_DIR})(?P<lon>[\d.]+),\s*` +
			`(?P<heading>\d+),\s*(?P<time>{TIME4}(?:\d{2})?),\s*(?P<altitude>\d+),\s*(?P<fob>\d+),\s*` +
			`(?P<wind>[-\d ]*),\s*(?P<temp>[-\d ]*),\s*(?P<eta>\d*),\s*(?P<dest>{ICAO})`,
	},
}
