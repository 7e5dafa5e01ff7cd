package evidence

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kapeview/kapeview/internal/model"
	"github.com/kapeview/kapeview/internal/secevent"
)

// header indexes a CSV header row case-insensitively.
type header map[string]int

func newHeader(cols []string) header {
	h := make(header, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\ufeff")))
		if _, dup := h[c]; !dup {
			h[c] = i
		}
	}
	return h
}

// get returns the first non-empty value among the named columns.
func (h header) get(row []string, names ...string) string {
	for _, n := range names {
		i, ok := h[strings.ToLower(n)]
		if !ok || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			return v
		}
	}
	return ""
}

// rowMapper converts one parser CSV row into a record.
type rowMapper func(h header, row []string) model.Record

var mappers = map[model.Dataset]rowMapper{
	model.DatasetMFT:      mapMFT,
	model.DatasetAmcache:  mapAmcache,
	model.DatasetSecurity: mapSecurity,
}

func mapMFT(h header, row []string) model.Record {
	name := h.get(row, "FileName", "Name")
	full := h.get(row, "FullPath")
	if full == "" {
		if parent := h.get(row, "ParentPath"); parent != "" {
			full = strings.TrimRight(parent, `\`) + `\` + name
		} else {
			full = name
		}
	}
	return model.Record{
		"EntryNumber": h.get(row, "EntryNumber", "Entry"),
		"FileName":    name,
		"FullPath":    full,
		"Size":        h.get(row, "FileSize", "Size"),
		"Created":     h.get(row, "Created0x10", "Created0x30", "Created"),
		"Modified":    h.get(row, "LastModified0x10", "LastModified0x30", "Modified"),
		"IsDirectory": h.get(row, "IsDirectory"),
	}
}

func mapAmcache(h header, row []string) model.Record {
	return model.Record{
		"AppName":     h.get(row, "ProductName", "Name", "ProgramName", "AppName"),
		"Version":     h.get(row, "Version", "ProductVersion", "BinFileVersion"),
		"Publisher":   h.get(row, "Publisher", "CompanyName"),
		"InstallDate": h.get(row, "InstallDate", "FileKeyLastWriteTimestamp", "KeyLastWriteTimestamp", "LinkDate"),
		"FilePath":    h.get(row, "FullPath", "Path", "FilePath"),
		"SHA1":        h.get(row, "SHA1"),
	}
}

// evtxDataColumns are the EvtxECmd columns handed to the event describer.
var evtxDataColumns = []string{
	"UserName", "RemoteHost", "MapDescription", "Payload", "Provider", "Channel", "Level",
	"PayloadData1", "PayloadData2", "PayloadData3", "PayloadData4", "PayloadData5", "PayloadData6",
}

func mapSecurity(h header, row []string) model.Record {
	idText := h.get(row, "EventId", "EventID", "Id")
	id, _ := strconv.Atoi(idText)

	data := secevent.Data{}
	for _, c := range evtxDataColumns {
		if v := h.get(row, c); v != "" {
			data[c] = v
		}
	}
	msg, norm := secevent.Describe(id, h.get(row, "Message"), data)

	user := norm.UserDisplay()
	if user == "" {
		user = h.get(row, "UserName")
	}
	return model.Record{
		"Timestamp": h.get(row, "TimeCreated", "Timestamp"),
		"EventID":   idText,
		"LogonType": norm.LogonType,
		"User":      user,
		"SourceIP":  norm.SourceIP,
		"Computer":  h.get(row, "Computer"),
		"Message":   msg,
	}
}

// ReadCSV parses a parser output file into records of dataset ds.
func ReadCSV(path string, ds model.Dataset) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRecords(f, ds)
}

func readRecords(r io.Reader, ds model.Dataset) ([]model.Record, error) {
	mapRow, ok := mappers[ds]
	if !ok {
		return nil, fmt.Errorf("evidence: no csv mapping for dataset %q", ds)
	}

	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	cols, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evidence: read csv header: %w", err)
	}
	h := newHeader(cols)

	var out []model.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("evidence: read csv row %d: %w", len(out)+2, err)
		}
		out = append(out, mapRow(h, row))
	}
}
