package fingerprint

import (
	"fmt"
	"strings"

	"github.com/ip2location/ip2location-go/v9"
)

// Geo resolves IPs to IANA timezones through an IP2Location BIN database.
type Geo struct {
	db *ip2location.DB
}

// OpenGeo opens the database at path. Callers own Close.
func OpenGeo(path string) (*Geo, error) {
	db, err := ip2location.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo database: %w", err)
	}
	return &Geo{db: db}, nil
}

// Close releases the database handle.
func (g *Geo) Close() {
	g.db.Close()
}

// TimezoneFor maps an IP to a representative IANA timezone for its
// country. Countries spanning many zones get their most populous one;
// fingerprint plausibility does not require city-level precision.
func (g *Geo) TimezoneFor(ip string) (string, bool) {
	rec, err := g.db.Get_country_short(ip)
	if err != nil {
		return "", false
	}
	tz, ok := countryTimezones[strings.ToUpper(rec.Country_short)]
	return tz, ok
}

var countryTimezones = map[string]string{
	"AR": "America/Argentina/Buenos_Aires",
	"AT": "Europe/Vienna",
	"AU": "Australia/Sydney",
	"BE": "Europe/Brussels",
	"BG": "Europe/Sofia",
	"BR": "America/Sao_Paulo",
	"CA": "America/Toronto",
	"CH": "Europe/Zurich",
	"CL": "America/Santiago",
	"CN": "Asia/Shanghai",
	"CO": "America/Bogota",
	"CZ": "Europe/Prague",
	"DE": "Europe/Berlin",
	"DK": "Europe/Copenhagen",
	"EG": "Africa/Cairo",
	"ES": "Europe/Madrid",
	"FI": "Europe/Helsinki",
	"FR": "Europe/Paris",
	"GB": "Europe/London",
	"GR": "Europe/Athens",
	"HK": "Asia/Hong_Kong",
	"HU": "Europe/Budapest",
	"ID": "Asia/Jakarta",
	"IE": "Europe/Dublin",
	"IL": "Asia/Jerusalem",
	"IN": "Asia/Kolkata",
	"IT": "Europe/Rome",
	"JP": "Asia/Tokyo",
	"KR": "Asia/Seoul",
	"KZ": "Asia/Almaty",
	"MX": "America/Mexico_City",
	"MY": "Asia/Kuala_Lumpur",
	"NG": "Africa/Lagos",
	"NL": "Europe/Amsterdam",
	"NO": "Europe/Oslo",
	"NZ": "Pacific/Auckland",
	"PH": "Asia/Manila",
	"PL": "Europe/Warsaw",
	"PT": "Europe/Lisbon",
	"RO": "Europe/Bucharest",
	"RU": "Europe/Moscow",
	"SA": "Asia/Riyadh",
	"SE": "Europe/Stockholm",
	"SG": "Asia/Singapore",
	"TH": "Asia/Bangkok",
	"TR": "Europe/Istanbul",
	"TW": "Asia/Taipei",
	"UA": "Europe/Kyiv",
	"US": "America/New_York",
	"VN": "Asia/Ho_Chi_Minh",
	"ZA": "Africa/Johannesburg",
}
