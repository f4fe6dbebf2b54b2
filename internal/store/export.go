package store

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/scanning"
)

// TimestampedFilename builds an export filename like
// "scanweave_results_20260830_142501.txt" so repeated exports never clobber
// each other.
func TimestampedFilename(prefix, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().Format("20060102_150405"), ext)
}

// WriteText renders results as a flat text report.
func WriteText(w io.Writer, results []scanning.ScanResult) error {
	for i := range results {
		r := &results[i]
		name := r.Host
		if r.Hostname != "" && r.Hostname != r.Host {
			name = fmt.Sprintf("%s (%s)", r.Hostname, r.Host)
		}
		if _, err := fmt.Fprintf(w, "Host: %s\n", name); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "State: %s\n", r.State); err != nil {
			return err
		}
		if r.Partial {
			if _, err := fmt.Fprintln(w, "Warning: result is partial, some output could not be interpreted"); err != nil {
				return err
			}
		}
		for _, p := range r.Ports {
			service := p.Service
			if p.Product != "" {
				service = fmt.Sprintf("%s %s %s", p.Service, p.Product, p.Version)
			}
			if _, err := fmt.Fprintf(w, "Port: %d/%s\tState: %s\tService: %s\n",
				p.Number, p.Protocol, p.State, service); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// ExportText writes the flat text report to path.
func ExportText(path string, results []scanning.ScanResult) error {
	f, err := os.Create(path)
	if err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to create export file", "export_text", err)
	}
	defer func() { _ = f.Close() }()

	if err := WriteText(f, results); err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to write export file", "export_text", err)
	}
	return f.Close()
}

type xmlExport struct {
	XMLName xml.Name    `xml:"scanweave"`
	Results []xmlResult `xml:"result"`
}

type xmlResult struct {
	Host      string    `xml:"host,attr"`
	Hostname  string    `xml:"hostname,attr,omitempty"`
	State     string    `xml:"state,attr"`
	Partial   bool      `xml:"partial,attr"`
	ScannedAt time.Time `xml:"scanned_at,attr"`
	Ports     []xmlPort `xml:"port"`
}

type xmlPort struct {
	Number   uint16 `xml:"number,attr"`
	Protocol string `xml:"protocol,attr"`
	State    string `xml:"state,attr"`
	Service  string `xml:"service,attr,omitempty"`
	Product  string `xml:"product,attr,omitempty"`
	Version  string `xml:"version,attr,omitempty"`
}

// WriteXML renders results as an XML document.
func WriteXML(w io.Writer, results []scanning.ScanResult) error {
	doc := xmlExport{Results: make([]xmlResult, 0, len(results))}
	for i := range results {
		r := &results[i]
		xr := xmlResult{
			Host:      r.Host,
			Hostname:  r.Hostname,
			State:     r.State,
			Partial:   r.Partial,
			ScannedAt: r.ScannedAt,
			Ports:     make([]xmlPort, 0, len(r.Ports)),
		}
		for _, p := range r.Ports {
			xr.Ports = append(xr.Ports, xmlPort{
				Number:   p.Number,
				Protocol: p.Protocol,
				State:    p.State,
				Service:  p.Service,
				Product:  p.Product,
				Version:  p.Version,
			})
		}
		doc.Results = append(doc.Results, xr)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ExportXML writes the XML document to path.
func ExportXML(path string, results []scanning.ScanResult) error {
	f, err := os.Create(path)
	if err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to create export file", "export_xml", err)
	}
	defer func() { _ = f.Close() }()

	if err := WriteXML(f, results); err != nil {
		return scanerrors.WrapStoreError(scanerrors.CodeStoreQuery,
			"failed to write export file", "export_xml", err)
	}
	return f.Close()
}
