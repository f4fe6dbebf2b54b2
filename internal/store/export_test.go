package store

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanweave/scanweave/internal/scanning"
)

func exportFixtures() []scanning.ScanResult {
	return []scanning.ScanResult{
		{
			Host:      "192.0.2.10",
			Hostname:  "web.example.org",
			State:     "up",
			ScannedAt: time.Date(2026, 8, 30, 14, 25, 1, 0, time.UTC),
			Ports: []scanning.Port{
				{Number: 443, Protocol: "tcp", State: "open", Service: "https", Product: "nginx", Version: "1.25.3"},
			},
		},
		{
			Host:    "192.0.2.11",
			State:   "up",
			Partial: true,
		},
	}
}

func TestTimestampedFilename(t *testing.T) {
	name := TimestampedFilename("scanweave_results", "txt")
	assert.Regexp(t, regexp.MustCompile(`^scanweave_results_\d{8}_\d{6}\.txt$`), name)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, exportFixtures()))

	out := buf.String()
	assert.Contains(t, out, "Host: web.example.org (192.0.2.10)")
	assert.Contains(t, out, "State: up")
	assert.Contains(t, out, "Port: 443/tcp")
	assert.Contains(t, out, "https nginx 1.25.3")
	assert.Contains(t, out, "Host: 192.0.2.11")
	assert.Contains(t, out, "partial")
}

func TestWriteXMLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, exportFixtures()))

	var doc struct {
		Results []struct {
			Host    string `xml:"host,attr"`
			State   string `xml:"state,attr"`
			Partial bool   `xml:"partial,attr"`
			Ports   []struct {
				Number   uint16 `xml:"number,attr"`
				Protocol string `xml:"protocol,attr"`
			} `xml:"port"`
		} `xml:"result"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))

	require.Len(t, doc.Results, 2)
	assert.Equal(t, "192.0.2.10", doc.Results[0].Host)
	require.Len(t, doc.Results[0].Ports, 1)
	assert.Equal(t, uint16(443), doc.Results[0].Ports[0].Number)
	assert.True(t, doc.Results[1].Partial)
}

func TestExportTextWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, ExportText(path, exportFixtures()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "192.0.2.10")
}

func TestExportXMLWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xml")
	require.NoError(t, ExportXML(path, exportFixtures()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<scanweave>")
}
