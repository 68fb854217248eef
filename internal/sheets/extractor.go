package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Extraction failure categories. ErrInvalidLink and ErrEmptySource are fatal
// to the whole job; ErrSourceUnavailable usually means the sheet is private.
var (
	ErrInvalidLink       = errors.New("invalid spreadsheet link")
	ErrSourceUnavailable = errors.New("spreadsheet not found, make sure it's public or use another link")
	ErrEmptySource       = errors.New("spreadsheet is empty")
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSpreadsheetID pulls the spreadsheet identifier out of a Google
// Sheets URL.
func ExtractSpreadsheetID(link string) (string, error) {
	m := spreadsheetIDPattern.FindStringSubmatch(link)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidLink, link)
	}
	return m[1], nil
}

// Extractor fetches cell values and per-word color metadata from a public
// Google Sheet. It is read-only and safe for concurrent use.
type Extractor struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

// NewExtractor builds an Extractor with the given API key.
func NewExtractor(apiKey string, log *logrus.Logger) *Extractor {
	return &Extractor{
		apiKey:  apiKey,
		baseURL: "https://sheets.googleapis.com/v4/spreadsheets",
		client:  http.DefaultClient,
		log:     log,
	}
}

// WithBaseURL overrides the Sheets API endpoint. Used by tests.
func (e *Extractor) WithBaseURL(url string) *Extractor {
	e.baseURL = strings.TrimRight(url, "/")
	return e
}

type valuesResponse struct {
	ValueRanges []struct {
		Values [][]string `json:"values"`
	} `json:"valueRanges"`
}

// FetchValues returns the raw cell values of the sheet's first tab, in
// reading order.
func (e *Extractor) FetchValues(ctx context.Context, link string) ([][]string, error) {
	spreadsheetID, err := ExtractSpreadsheetID(link)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/values:batchGet?ranges=Sheet1&key=%s", e.baseURL, spreadsheetID, e.apiKey)
	body, err := e.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var parsed valuesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding sheet values: %w", err)
	}
	if len(parsed.ValueRanges) == 0 || len(parsed.ValueRanges[0].Values) == 0 {
		return nil, ErrEmptySource
	}
	return parsed.ValueRanges[0].Values, nil
}

// Google Sheets rich-formatting response shapes, trimmed to the fields the
// fields= projection asks for.
type formattingResponse struct {
	Sheets []struct {
		Data []struct {
			RowData []formattedRow `json:"rowData"`
		} `json:"data"`
	} `json:"sheets"`
}

type formattedRow struct {
	Values []formattedCell `json:"values"`
}

type formattedCell struct {
	EffectiveValue struct {
		StringValue string `json:"stringValue"`
	} `json:"effectiveValue"`
	TextFormatRuns []textFormatRun `json:"textFormatRuns"`
}

type textFormatRun struct {
	StartIndex int `json:"startIndex"`
	Format     struct {
		ForegroundColor struct {
			Red   float64 `json:"red"`
			Green float64 `json:"green"`
			Blue  float64 `json:"blue"`
		} `json:"foregroundColor"`
	} `json:"format"`
}

func (r textFormatRun) color() Color {
	return Color{
		R: uint8(r.Format.ForegroundColor.Red * 255),
		G: uint8(r.Format.ForegroundColor.Green * 255),
		B: uint8(r.Format.ForegroundColor.Blue * 255),
	}
}

// FetchWordColors returns, for every row and cell of the sheet, the ordered
// word+color tuples derived from the cell's text format runs. Words outside
// any run keep the zero (black) color.
func (e *Extractor) FetchWordColors(ctx context.Context, link string) ([][][]WordColor, error) {
	spreadsheetID, err := ExtractSpreadsheetID(link)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"%s/%s?fields=sheets.data.rowData.values.effectiveValue,sheets.data.rowData.values.textFormatRuns&key=%s",
		e.baseURL, spreadsheetID, e.apiKey,
	)
	body, err := e.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var parsed formattingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding sheet formatting: %w", err)
	}
	if len(parsed.Sheets) == 0 || len(parsed.Sheets[0].Data) == 0 {
		return nil, ErrEmptySource
	}

	var sheetData [][][]WordColor
	for _, row := range parsed.Sheets[0].Data[0].RowData {
		var rowData [][]WordColor
		for _, cell := range row.Values {
			rowData = append(rowData, splitFormatRuns(cell.EffectiveValue.StringValue, cell.TextFormatRuns))
		}
		sheetData = append(sheetData, rowData)
	}

	e.log.Info("Successfully fetched and processed word color data")
	return sheetData, nil
}

// splitFormatRuns splits a cell's text into words and assigns each word the
// color of the run that covers it. Text before, between, or after runs gets
// the zero color.
func splitFormatRuns(text string, runs []textFormatRun) []WordColor {
	var words []WordColor

	appendWords := func(s string, c Color) {
		for _, w := range strings.Fields(s) {
			words = append(words, WordColor{Text: w, Color: c})
		}
	}

	if len(runs) == 0 {
		appendWords(text, Color{})
		return words
	}

	lastIndex := 0
	for i, run := range runs {
		start := run.StartIndex
		end := len(text)
		if i+1 < len(runs) {
			end = runs[i+1].StartIndex
		}
		if start > len(text) {
			start = len(text)
		}
		if end > len(text) {
			end = len(text)
		}

		if start > lastIndex {
			appendWords(text[lastIndex:start], Color{})
		}
		appendWords(text[start:end], run.color())
		lastIndex = end
	}

	if lastIndex < len(text) {
		appendWords(text[lastIndex:], Color{})
	}

	return words
}

func (e *Extractor) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building sheets request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Errorf("Sheets request failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.log.Errorf("Sheets request returned status %d", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading sheets response: %w", err)
	}
	return body, nil
}
