package source

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/warp/planning-sync/planning"
)

// Each event in the feed is one <eventRow> whose children are flat p_*
// fields. The rows may sit at any depth below the document root, so the
// parser scans for them with a token stream rather than a fixed struct.
type eventRow struct {
	Fields []eventField `xml:",any"`
}

type eventField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// ParseFeed decodes a raw XML payload into raw records for the
// normalizer. An empty payload yields an empty batch. A structurally
// malformed document wraps planning.ErrParse.
func ParseFeed(payload []byte) ([]planning.Record, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}

	dec := xml.NewDecoder(bytes.NewReader(payload))
	var records []planning.Record

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decoding feed XML: %v", planning.ErrParse, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "eventRow" {
			continue
		}

		var row eventRow
		if err := dec.DecodeElement(&row, &start); err != nil {
			// One malformed row is skipped; the batch continues.
			log.Printf("[Source] Skipping malformed event row: %v", err)
			continue
		}

		rec := make(planning.Record, len(row.Fields))
		for _, f := range row.Fields {
			rec[f.XMLName.Local] = f.Value
		}
		records = append(records, rec)
	}

	log.Printf("[Source] Parsed %d records from feed", len(records))
	return records, nil
}
