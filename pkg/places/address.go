package places

import (
	"regexp"
	"strings"
)

// componentTypes maps Places address component types to the lead fields
// the pipeline stores.
const (
	typeStreetNumber = "street_number"
	typeRoute        = "route"
	typeLocality     = "locality"
	typeAdminArea1   = "administrative_area_level_1"
	typePostalCode   = "postal_code"
)

// StructuredAddress is the flattened US address of a place.
type StructuredAddress struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Address flattens the place's address components into street/city/state/zip.
func (p Place) Address() StructuredAddress {
	var streetNumber, route string
	var addr StructuredAddress

	for _, c := range p.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case typeStreetNumber:
				streetNumber = c.LongText
			case typeRoute:
				route = c.LongText
			case typeLocality:
				addr.City = c.LongText
			case typeAdminArea1:
				addr.State = StateAbbreviation(c.ShortText)
			case typePostalCode:
				addr.Zip = c.LongText
			}
		}
	}

	addr.Street = strings.TrimSpace(streetNumber + " " + route)
	return addr
}

var twoLetterState = regexp.MustCompile(`^[A-Z]{2}$`)

var stateAbbreviations = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

// StateAbbreviation converts a full US state name or abbreviation to its
// 2-letter code.
func StateAbbreviation(state string) string {
	trimmed := strings.TrimSpace(state)
	if trimmed == "" {
		return ""
	}
	if twoLetterState.MatchString(trimmed) {
		return trimmed
	}
	if abbr, ok := stateAbbreviations[strings.ToLower(trimmed)]; ok {
		return abbr
	}
	upper := strings.ToUpper(trimmed)
	if len(upper) > 2 {
		upper = upper[:2]
	}
	return upper
}
