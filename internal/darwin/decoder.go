package darwin

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// PushPort XML namespaces.
const (
	nsV16     = "http://www.thalesgroup.com/rtti/PushPort/v16"
	nsFcstV3  = "http://www.thalesgroup.com/rtti/PushPort/Forecasts/v3"
	nsSchedV3 = "http://www.thalesgroup.com/rtti/PushPort/Schedules/v3"
)

// Decompress inflates a PushPort frame body, accepting both raw zlib and
// gzip-wrapped streams (the feed has been observed using either).
func Decompress(body []byte) ([]byte, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("frame body too short: %d bytes", len(body))
	}

	var r io.ReadCloser
	var err error
	if body[0] == 0x1f && body[1] == 0x8b {
		r, err = gzip.NewReader(bytes.NewReader(body))
	} else {
		r, err = zlib.NewReader(bytes.NewReader(body))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed frame: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate frame: %w", err)
	}
	return out, nil
}

// DecodeMessage inflates a frame body and parses both views of the XML.
func DecodeMessage(body []byte) ([]Forecast, []ScheduleEndpoint, []byte, error) {
	xmlBytes, err := Decompress(body)
	if err != nil {
		return nil, nil, nil, err
	}
	forecasts, err := ParseForecasts(xmlBytes)
	if err != nil {
		return nil, nil, nil, err
	}
	schedules, err := ParseSchedules(xmlBytes)
	if err != nil {
		return nil, nil, nil, err
	}
	return forecasts, schedules, xmlBytes, nil
}

// ParseForecasts extracts one Forecast per TS/Location element. TS-level
// attributes (rid, uid, ssd, updateOrigin) are merged into each location.
// Sub-elements with text contribute their tag as a key; empty sub-elements
// contribute a state tag plus their attributes as "<tag>_<attr>" keys.
func ParseForecasts(xmlBytes []byte) ([]Forecast, error) {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out []Forecast

	var base Forecast // TS-level fields of the enclosing TS element
	inTS := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse forecast xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Space == nsV16 && el.Name.Local == "TS":
				base = Forecast{}
				for _, a := range el.Attr {
					switch a.Name.Local {
					case "rid":
						base.RID = a.Value
					case "uid":
						base.UID = a.Value
					case "ssd":
						base.SSD = a.Value
					case "updateOrigin":
						base.UpdateOrigin = a.Value
					}
				}
				inTS = true
			case inTS && el.Name.Space == nsFcstV3 && el.Name.Local == "Location":
				loc, err := parseLocation(dec, el, base)
				if err != nil {
					return nil, err
				}
				out = append(out, loc)
			}
		case xml.EndElement:
			if el.Name.Space == nsV16 && el.Name.Local == "TS" {
				inTS = false
			}
		}
	}
	return out, nil
}

// parseLocation consumes a Location element and its children.
func parseLocation(dec *xml.Decoder, start xml.StartElement, base Forecast) (Forecast, error) {
	loc := base
	for _, a := range start.Attr {
		loc.set(a.Name.Local, a.Value)
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return loc, fmt.Errorf("failed to parse forecast location: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if err := parseLocationChild(dec, el, &loc); err != nil {
				return loc, err
			}
		case xml.EndElement:
			if el.Name == start.Name {
				return loc, nil
			}
		}
	}
}

// parseLocationChild flattens one sub-element of a Location. Non-empty text
// becomes a value under the element's tag. Empty elements record a state
// tag and spread their attributes as "<tag>_<attr>"; for arr/dep carriers
// that yields the arr_at/arr_et/arr_wet/dep_at/dep_et keys.
func parseLocationChild(dec *xml.Decoder, start xml.StartElement, loc *Forecast) error {
	tag := start.Name.Local

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to parse %s sub-element: %w", tag, err)
		}
		switch el := tok.(type) {
		case xml.CharData:
			text.Write(el)
		case xml.StartElement:
			// Nested children are not carried by the feed; skip them.
			if err := dec.Skip(); err != nil {
				return fmt.Errorf("failed to skip nested %s: %w", el.Name.Local, err)
			}
		case xml.EndElement:
			if el.Name != start.Name {
				continue
			}
			if s := strings.TrimSpace(text.String()); s != "" {
				loc.set(tag, s)
				return nil
			}
			loc.State = tag
			for _, a := range start.Attr {
				loc.set(tag+"_"+a.Name.Local, a.Value)
			}
			return nil
		}
	}
}

// ParseSchedules extracts one ScheduleEndpoint per schedule OR/DT element.
func ParseSchedules(xmlBytes []byte) ([]ScheduleEndpoint, error) {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out []ScheduleEndpoint

	var base ScheduleEndpoint
	inSchedule := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Space == nsV16 && el.Name.Local == "schedule":
				base = ScheduleEndpoint{}
				for _, a := range el.Attr {
					switch a.Name.Local {
					case "rid":
						base.RID = a.Value
					case "uid":
						base.UID = a.Value
					case "ssd":
						base.SSD = a.Value
					}
				}
				inSchedule = true
			case inSchedule && el.Name.Space == nsSchedV3 && (el.Name.Local == "OR" || el.Name.Local == "DT"):
				ep := base
				ep.Type = el.Name.Local
				for _, a := range el.Attr {
					if a.Name.Local == "tpl" {
						ep.TPL = a.Value
					}
				}
				out = append(out, ep)
			}
		case xml.EndElement:
			if el.Name.Space == nsV16 && el.Name.Local == "schedule" {
				inSchedule = false
			}
		}
	}
	return out, nil
}
