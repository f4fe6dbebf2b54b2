package scanning

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"time"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
)

// The engine's machine-readable output is the nmaprun XML document:
// host{address, hostnames, status} with nested ports{port{protocol, portid,
// state, service}} tables.

type nmapHostXML struct {
	Status    nmapStatusXML    `xml:"status"`
	Addresses []nmapAddressXML `xml:"address"`
	Hostnames nmapHostnamesXML `xml:"hostnames"`
	Ports     nmapPortsXML     `xml:"ports"`
}

type nmapStatusXML struct {
	State string `xml:"state,attr"`
}

type nmapAddressXML struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type nmapHostnamesXML struct {
	Hostname []nmapHostnameXML `xml:"hostname"`
}

type nmapHostnameXML struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type nmapPortsXML struct {
	Port []nmapPortXML `xml:"port"`
}

type nmapPortXML struct {
	Protocol string           `xml:"protocol,attr"`
	PortID   string           `xml:"portid,attr"`
	State    nmapPortStateXML `xml:"state"`
	Service  nmapServiceXML   `xml:"service"`
}

type nmapPortStateXML struct {
	State string `xml:"state,attr"`
}

type nmapServiceXML struct {
	Name    string `xml:"name,attr"`
	Product string `xml:"product,attr"`
	Version string `xml:"version,attr"`
}

// ParseRun parses the engine's structured output into a single host result.
// Engine invocations are per-address, so at most one host record is
// expected; when the engine omits the host block entirely (a non-responding
// target) the result carries state "down" and the caller fills in the
// address. It fails with a ParseError only when the input is not
// recognizable as engine output at all.
func ParseRun(raw []byte) (*ScanResult, error) {
	results, err := ParseRunAll(raw)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &ScanResult{State: "down"}, nil
	}
	return &results[0], nil
}

// ParseRunAll parses the engine's structured output into one result per
// host record. Malformed host sections are skipped and surviving results
// are flagged Partial; only unrecognizable input yields a ParseError.
func ParseRunAll(raw []byte) ([]ScanResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, scanerrors.NewParseError("empty engine output", nil)
	}
	if !bytes.Contains(trimmed, []byte("<nmaprun")) {
		return nil, scanerrors.NewParseError("output does not carry the nmaprun signature", nil)
	}

	decoder := xml.NewDecoder(bytes.NewReader(trimmed))

	// ScannedAt comes from the run's own start stamp so parsing the same
	// bytes always yields the same values; without a stamp it stays zero
	// and the caller assigns one.
	var scannedAt time.Time

	var results []ScanResult
	skippedHosts := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// The document broke mid-stream; keep whatever hosts
			// decoded cleanly and flag them.
			skippedHosts = true
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if start.Name.Local == "nmaprun" {
			if ts, ok := runStartTime(&start); ok {
				scannedAt = ts
			}
			continue
		}
		if start.Name.Local != "host" {
			continue
		}

		var hx nmapHostXML
		if err := decoder.DecodeElement(&hx, &start); err != nil {
			skippedHosts = true
			continue
		}

		result, partial := convertHost(&hx, scannedAt)
		if result == nil {
			skippedHosts = true
			continue
		}
		result.Partial = result.Partial || partial
		results = append(results, *result)
	}

	if skippedHosts {
		for i := range results {
			results[i].Partial = true
		}
	}

	return results, nil
}

// runStartTime extracts the nmaprun element's start attribute.
func runStartTime(start *xml.StartElement) (time.Time, bool) {
	for _, attr := range start.Attr {
		if attr.Name.Local != "start" {
			continue
		}
		epoch, err := strconv.ParseInt(attr.Value, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(epoch, 0), true
	}
	return time.Time{}, false
}

// convertHost converts one decoded host record into the internal model.
// It returns nil when the record lacks an address entirely, and reports
// whether any expected block was missing or malformed.
func convertHost(hx *nmapHostXML, scannedAt time.Time) (*ScanResult, bool) {
	partial := false

	var addr string
	for _, a := range hx.Addresses {
		if a.AddrType == "ipv4" || a.AddrType == "ipv6" || a.AddrType == "" {
			addr = a.Addr
			break
		}
	}
	if addr == "" {
		return nil, true
	}

	state := hx.Status.State
	if state == "" {
		state = "unknown"
		partial = true
	}

	result := &ScanResult{
		Host:      addr,
		State:     state,
		ScannedAt: scannedAt,
		Ports:     make([]Port, 0, len(hx.Ports.Port)),
	}

	if len(hx.Hostnames.Hostname) > 0 {
		result.Hostname = hx.Hostnames.Hostname[0].Name
	}

	for _, px := range hx.Ports.Port {
		number, err := strconv.ParseUint(px.PortID, 10, 16)
		if err != nil {
			partial = true
			continue
		}
		result.Ports = append(result.Ports, Port{
			Number:   uint16(number),
			Protocol: px.Protocol,
			State:    px.State.State,
			Service:  px.Service.Name,
			Version:  px.Service.Version,
			Product:  px.Service.Product,
		})
	}

	return result, partial
}
