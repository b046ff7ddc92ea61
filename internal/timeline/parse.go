package timeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Two log shapes exist. The full variant carries an explicit event type per
// record; the duration-only variant has a single implicit event type and is
// treated as all-work.
//
//	event,id,start,stop
//	id,start,stop

// ReadLog parses an event log from r. The variant is selected by the header
// row. Records violating start <= stop are rejected.
func ReadLog(r io.Reader) ([]Span, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("event log is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	typed, err := headerShape(header)
	if err != nil {
		return nil, err
	}

	var spans []Span
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		span, err := parseRecord(record, typed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		spans = append(spans, span)
	}
	return spans, nil
}

// ReadLogFile parses an event log file.
func ReadLogFile(path string) ([]Span, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()
	return ReadLog(f)
}

func headerShape(header []string) (typed bool, err error) {
	switch {
	case len(header) == 4 && header[0] == "event" && header[1] == "id" && header[2] == "start" && header[3] == "stop":
		return true, nil
	case len(header) == 3 && header[0] == "id" && header[1] == "start" && header[2] == "stop":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized event log header %v (want event,id,start,stop or id,start,stop)", header)
	}
}

func parseRecord(record []string, typed bool) (Span, error) {
	span := Span{Event: EventWork}
	fields := record

	if typed {
		if len(record) != 4 {
			return Span{}, fmt.Errorf("expected 4 fields, got %d", len(record))
		}
		switch EventType(record[0]) {
		case EventWork, EventNetwork:
			span.Event = EventType(record[0])
		default:
			return Span{}, fmt.Errorf("unknown event type %q", record[0])
		}
		fields = record[1:]
	} else if len(record) != 3 {
		return Span{}, fmt.Errorf("expected 3 fields, got %d", len(record))
	}

	worker, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Span{}, fmt.Errorf("bad worker id %q: %w", fields[0], err)
	}
	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Span{}, fmt.Errorf("bad start %q: %w", fields[1], err)
	}
	stop, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Span{}, fmt.Errorf("bad stop %q: %w", fields[2], err)
	}
	if start > stop {
		return Span{}, fmt.Errorf("start %d after stop %d", start, stop)
	}

	span.Worker = worker
	span.Start = start
	span.Stop = stop
	return span, nil
}
