// Package ods provides read-only access to OpenDocument Spreadsheet files.
// The published classification spreadsheets are distributed as .ods files;
// this reader extracts sheet names and cell text, which is all the
// verification and cross-checking paths need. It does not evaluate formulas
// and it never writes.
package ods

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// OpenDocument XML namespaces used in content.xml.
const (
	nsOffice = "urn:oasis:names:tc:opendocument:xmlns:office:1.0"
	nsTable  = "urn:oasis:names:tc:opendocument:xmlns:table:1.0"
	nsText   = "urn:oasis:names:tc:opendocument:xmlns:text:1.0"
)

// Spreadsheets pad the used range with huge repeat counts (up to the row
// limit of the format). Expansion is capped so a sparse sheet cannot balloon
// into millions of empty rows.
const maxRepeat = 1024

// Sheet is a single table from the spreadsheet, fully expanded to text cells.
type Sheet struct {
	Name string
	Rows [][]string
}

// Document is a parsed spreadsheet.
type Document struct {
	Sheets []Sheet
}

// Open reads an .ods file from disk.
func Open(path string) (*Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet %s: %w", path, err)
	}
	defer zr.Close()

	return parseArchive(&zr.Reader)
}

// Read parses an .ods file from an in-memory reader.
func Read(r io.ReaderAt, size int64) (*Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet archive: %w", err)
	}
	return parseArchive(zr)
}

func parseArchive(zr *zip.Reader) (*Document, error) {
	for _, f := range zr.File {
		if f.Name != "content.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open content.xml: %w", err)
		}
		defer rc.Close()
		return parseContent(rc)
	}
	return nil, fmt.Errorf("not an OpenDocument spreadsheet: content.xml missing")
}

// parseContent walks content.xml with a streaming decoder. Nested table
// structures (covered cells, annotations) are skipped; only cell text is
// collected.
func parseContent(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	doc := &Document{}

	var sheet *Sheet
	var row []string
	var rowRepeat int

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed content.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Space == nsTable && el.Name.Local == "table":
				doc.Sheets = append(doc.Sheets, Sheet{Name: attr(el, nsTable, "name")})
				sheet = &doc.Sheets[len(doc.Sheets)-1]

			case el.Name.Space == nsTable && el.Name.Local == "table-row":
				row = nil
				rowRepeat = repeatCount(attr(el, nsTable, "number-rows-repeated"))

			case el.Name.Space == nsTable && el.Name.Local == "table-cell":
				repeat := repeatCount(attr(el, nsTable, "number-columns-repeated"))
				text, err := cellText(dec, el)
				if err != nil {
					return nil, err
				}
				for i := 0; i < repeat; i++ {
					row = append(row, text)
				}
			}

		case xml.EndElement:
			if el.Name.Space == nsTable && el.Name.Local == "table-row" && sheet != nil {
				expanded := trimTrailingEmpty(row)
				for i := 0; i < rowRepeat; i++ {
					sheet.Rows = append(sheet.Rows, expanded)
				}
			}
		}
	}

	for i := range doc.Sheets {
		doc.Sheets[i].Rows = trimTrailingEmptyRows(doc.Sheets[i].Rows)
	}
	return doc, nil
}

// cellText consumes the remainder of a table-cell element and returns the
// concatenated paragraph text. Paragraphs inside one cell are joined with
// newlines, matching how spreadsheet applications render them.
func cellText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var parts []string
	var current strings.Builder
	inParagraph := 0
	depth := 1

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("malformed table-cell: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if el.Name.Space == nsText && el.Name.Local == "p" {
				inParagraph++
			}
		case xml.EndElement:
			depth--
			if el.Name.Space == nsText && el.Name.Local == "p" {
				inParagraph--
				parts = append(parts, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inParagraph > 0 {
				current.Write(el)
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}

func attr(el xml.StartElement, space, local string) string {
	for _, a := range el.Attr {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func repeatCount(v string) int {
	if v == "" {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	if n > maxRepeat {
		return maxRepeat
	}
	return n
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}

func trimTrailingEmptyRows(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && len(rows[end-1]) == 0 {
		end--
	}
	return rows[:end]
}

// Sheet returns the named sheet, or nil if the document has no such sheet.
func (d *Document) Sheet(name string) *Sheet {
	for i := range d.Sheets {
		if d.Sheets[i].Name == name {
			return &d.Sheets[i]
		}
	}
	return nil
}

// Header returns the first row of the sheet, or nil if the sheet is empty.
func (s *Sheet) Header() []string {
	if len(s.Rows) == 0 {
		return nil
	}
	return s.Rows[0]
}

// DataRowCount counts the non-empty rows below the header row.
func (s *Sheet) DataRowCount() int {
	if len(s.Rows) == 0 {
		return 0
	}
	count := 0
	for _, row := range s.Rows[1:] {
		if len(row) > 0 {
			count++
		}
	}
	return count
}
