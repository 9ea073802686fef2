package citescore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/bau-research/appscore/internal/normalize"
)

// Canonical column concepts. Resolution is case-insensitive over the alias
// lists below; the first four are required.
const (
	conceptPrint      = "print issn"
	conceptElectronic = "e-issn"
	conceptPercentile = "percentile"
	conceptScore      = "citescore"
	conceptRegistry   = "source id"
	conceptSubjects   = "asjc"
)

var columnAliases = map[string][]string{
	conceptPrint:      {"print issn", "p-issn", "issn"},
	conceptElectronic: {"e-issn", "eissn"},
	conceptPercentile: {"percentile", "citescore percentile"},
	conceptScore:      {"citescore", "citescore 2024"},
	conceptRegistry:   {"source id", "scopus source id", "scopus sourceid"},
	conceptSubjects:   {"asjc", "asjc code", "asjc codes", "subject area asjc"},
}

var requiredConcepts = []string{conceptPrint, conceptElectronic, conceptPercentile, conceptScore}

// textEncodings is the fixed decode order for delimited files, chosen for
// tables produced by Turkish-locale Excel installs alongside the usual
// UTF-8/UTF-16 exports.
var textEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8-sig", nil}, // handled specially: BOM strip + validity check
	{"utf-16", unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)},
	{"utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	{"utf-16be", unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	{"cp1254", charmap.Windows1254},
	{"iso-8859-9", charmap.ISO8859_9},
	{"cp1252", charmap.Windows1252},
	{"latin1", charmap.ISO8859_1},
}

// LoadTable reads a reference table from path. Spreadsheets are recognized
// by extension; everything else is treated as delimited text with encoding
// and delimiter detection. Column names are resolved case-insensitively;
// unresolvable required concepts yield a *SchemaError.
func LoadTable(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return loadSpreadsheet(path)
	case ".xls":
		return nil, fmt.Errorf("legacy .xls is not supported, convert %s to .xlsx", path)
	default:
		return loadDelimited(path)
	}
}

func loadSpreadsheet(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets: %s", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet sheet %q is empty", sheets[0])
	}
	return buildTable(rows[0], rows[1:], 0)
}

func loadDelimited(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reference table: %w", err)
	}

	// A wrong encoding guess can still decode to a parseable-but-garbage
	// header, so an unresolvable schema sends us to the next candidate.
	// If every candidate fails, report the schema error whose header
	// resolved the most required concepts: a mojibake mis-decode resolves
	// nothing, while the true header is only missing the real gap.
	var bestSchemaErr *SchemaError
	keepBest := func(serr *SchemaError) {
		if bestSchemaErr == nil || len(serr.Missing) < len(bestSchemaErr.Missing) {
			bestSchemaErr = serr
		}
	}
	for _, te := range textEncodings {
		text, ok := decodeWith(raw, te.enc)
		if !ok {
			continue
		}
		header, rows, err := parseDelimited(text)
		if err != nil {
			continue
		}
		t, err := buildTable(header, rows, 0)
		var serr *SchemaError
		if errors.As(err, &serr) {
			keepBest(serr)
			continue
		}
		return t, err
	}

	// Lenient fallback: latin1 never fails to decode, malformed lines are
	// skipped instead of aborting.
	text, _ := decodeWith(raw, charmap.ISO8859_1)
	header, rows, skipped, err := parseDelimitedLenient(text)
	if err != nil {
		if bestSchemaErr != nil {
			return nil, bestSchemaErr
		}
		return nil, fmt.Errorf("parsing reference table: %w", err)
	}
	t, err := buildTable(header, rows, skipped)
	var serr *SchemaError
	if errors.As(err, &serr) {
		keepBest(serr)
		return nil, bestSchemaErr
	}
	return t, err
}

// decodeWith decodes raw bytes with the given encoding, returning false when
// the bytes cannot plausibly be that encoding. A nil encoding means UTF-8
// with optional BOM.
func decodeWith(raw []byte, enc encoding.Encoding) (string, bool) {
	if enc == nil {
		raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}

	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	text := string(decoded)
	// A wrong UTF-16 guess decodes to replacement runes or NULs; reject it
	// so the next candidate gets a chance.
	if strings.ContainsRune(text, utf8.RuneError) || strings.ContainsRune(text, 0) {
		return "", false
	}
	return text, true
}

// sniffDelimiter picks the delimiter that occurs most often in the header
// line. Comma wins ties, matching the common case.
func sniffDelimiter(headerLine string) rune {
	best, bestCount := ',', strings.Count(headerLine, ",")
	for _, cand := range []rune{';', '\t', '|'} {
		if n := strings.Count(headerLine, string(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func parseDelimited(text string) (header []string, rows [][]string, err error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(firstLine(text))

	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, errors.New("empty table")
	}
	return all[0], all[1:], nil
}

// parseDelimitedLenient reads record by record, skipping lines that fail to
// parse or that disagree with the header's field count.
func parseDelimitedLenient(text string) (header []string, rows [][]string, skipped int, err error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(firstLine(text))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	for {
		rec, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			skipped++
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		if len(rec) != len(header) {
			skipped++
			continue
		}
		rows = append(rows, rec)
	}
	if header == nil {
		return nil, nil, skipped, errors.New("no parseable lines")
	}
	return header, rows, skipped, nil
}

// resolveColumns maps canonical concepts to source column positions.
func resolveColumns(header []string) (map[string]int, *SchemaError) {
	byName := make(map[string]int, len(header))
	for i, col := range header {
		byName[strings.ToLower(strings.TrimSpace(col))] = i
	}

	resolved := make(map[string]int)
	for concept, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := byName[alias]; ok {
				resolved[concept] = i
				break
			}
		}
	}

	var missing []string
	for _, concept := range requiredConcepts {
		if _, ok := resolved[concept]; !ok {
			missing = append(missing, concept)
		}
	}
	if len(missing) > 0 {
		cols := make([]string, len(header))
		for i, c := range header {
			cols[i] = strings.TrimSpace(c)
		}
		return nil, &SchemaError{Missing: missing, Columns: cols}
	}
	return resolved, nil
}

func buildTable(header []string, rows [][]string, skipped int) (*Table, error) {
	cols, serr := resolveColumns(header)
	if serr != nil {
		return nil, serr
	}

	_, hasRegistry := cols[conceptRegistry]
	_, hasSubjects := cols[conceptSubjects]

	cell := func(row []string, concept string) string {
		i, ok := cols[concept]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	t := &Table{HasRegistry: hasRegistry, SkippedLines: skipped}
	for _, row := range rows {
		e := Entry{
			PrintID:      normalize.JournalID(cell(row, conceptPrint)),
			ElectronicID: normalize.JournalID(cell(row, conceptElectronic)),
		}
		if hasRegistry {
			e.RegistryID = normalize.Digits(cell(row, conceptRegistry))
		}
		if hasSubjects {
			e.SubjectCodes = normalize.SubjectCodes(cell(row, conceptSubjects))
		} else {
			e.SubjectCodes = map[string]struct{}{}
		}
		if v, ok := normalize.Percentage(cell(row, conceptPercentile)); ok {
			e.Percentile = &v
		}
		if v, ok := normalize.Float(cell(row, conceptScore)); ok {
			e.Score = &v
		}

		// A row with no usable key can never be matched.
		if e.RegistryID == "" && e.PrintID == "" && e.ElectronicID == "" {
			continue
		}
		t.Entries = append(t.Entries, e)
	}
	return t, nil
}
