package patterns

// BasePatterns are the reusable components referenced as {NAME} in formats.
var BasePatterns = map[string]string{
	"ICAO": `[A-Z]{4}`,

	// Flight identifier: airline designator, 1-4 digit number, optional suffix.
	"FLIGHT": `[A-Z0-9]{2}\d{1,4}[A-Z]?`,

	"TIME4": `\d{4}`, // HHMM
	"TIME6": `\d{6}`, // HHMMSS

	"LAT_DIR": `[NS]`,
	"LAT_5D":  `\d{5}`, // DDMMD, tenths of minutes
	"LAT_DEC": `[-\d.]+`,

	"LON_DIR": `[EW]`,
	"LON_6D":  `\d{6}`, // DDDMMD, tenths of minutes
	"LON_DEC": `[-\d.]+`,

	"FL":  `\d{2,3}`,
	"ALT": `\d{3,5}`,

	"TEMP_SIGN": `[MP]`,
	"TEMP":      `\d{1,3}`,
	"WIND_DIR":  `\d{3}`,
	"WIND_SPD":  `\d{2,3}`,
}
