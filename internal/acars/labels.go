package acars

var labelNames = map[string]string{
	"_\x7f": "General response, demand mode, no information",
	"00":    "Emergency situation report",
	"10":    "Free text",
	"11":    "Delay message",
	"12":    "Departure report",
	"13":    "Out of gate report",
	"14":    "Off ground report",
	"15":    "On ground report",
	"16":    "In gate report",
	"17":    "Fuel report",
	"20":    "Position report",
	"21":    "Position report",
	"22":    "Position report",
	"2S":    "Weather request",
	"2U":    "Weather report",
	"30":    "ATIS request",
	"44":    "Position report with fuel",
	"57":    "Alternate aircraft position report",
	"5U":    "Weather request",
	"5V":    "VOLMET request",
	"5Z":    "Airline designated downlink",
	"80":    "OOOI and position",
	"83":    "Position report",
	"8E":    "ETA report",
	"A6":    "Request ADS reports",
	"AA":    "ATC communications",
	"B6":    "ADS-C report",
	"BA":    "ATC communications",
	"C1":    "Uplink to cockpit printer",
	"Q0":    "Link test",
	"QA":    "Out/fuel report",
	"QB":    "Off report",
	"QC":    "On report",
	"QD":    "In/fuel report",
	"QE":    "Out/fuel/destination report",
	"QF":    "Off/destination report",
	"RA":    "Command aircraft terminal to print",
	"SA":    "Media advisory",
	"SQ":    "Squitter",
	"H1":    "Message to or from peripheral",
	"H2":    "Meteorological report",
	"H3":    "Icing report",
}

var sourceNames = map[byte]string{
	'C': "Cabin terminal",
	'D': "Flight data acquisition unit",
	'E': "Engine display system",
	'F': "Flight management computer",
	'H': "Head-up guidance system",
	'I': "Cabin terminal",
	'M': "Flight management computer",
	'P': "Cockpit printer",
	'S': "System control",
	'T': "Cabin terminal",
	'W': "Weather radar",
}
