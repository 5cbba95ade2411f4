// Package pages loads the catalogue of site paths simulated visitors navigate to.
package pages

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page is one navigable site path.
type Page struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// Default is the catalogue used when no file is configured.
var Default = []Page{
	{Path: "/about"},
	{Path: "/contact"},
	{Path: "/blog"},
	{Path: "/projects"},
	{Path: "/resume"},
}

// Load reads a catalogue from a CSV or JSON file, chosen by extension.
// An empty path returns Default.
func Load(path string) ([]Page, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return append([]Page(nil), Default...), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".json":
		return loadJSON(path)
	default:
		return nil, fmt.Errorf("pages file %q: unsupported extension (use .csv or .json)", path)
	}
}

// Paths returns the path of every page.
func Paths(catalogue []Page) []string {
	out := make([]string, 0, len(catalogue))
	for _, p := range catalogue {
		out = append(out, p.Path)
	}
	return out
}

// TitleFor derives a page title: the catalogue title when set, otherwise the
// capitalized last path segment, or "Home" for the root.
func TitleFor(catalogue []Page, path string) string {
	for _, p := range catalogue {
		if p.Path == path && p.Title != "" {
			return p.Title
		}
	}
	seg := strings.Trim(path, "/")
	if idx := strings.LastIndex(seg, "/"); idx != -1 {
		seg = seg[idx+1:]
	}
	if seg == "" {
		return "Home"
	}
	return strings.ToUpper(seg[:1]) + seg[1:]
}

func loadCSV(path string) ([]Page, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least one header row and one data row")
	}

	pathCol, titleCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "path":
			pathCol = i
		case "title":
			titleCol = i
		}
	}
	if pathCol == -1 {
		return nil, fmt.Errorf("CSV header must contain a 'path' column")
	}

	out := make([]Page, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if pathCol >= len(row) {
			return nil, fmt.Errorf("row %d has no path field", i+2)
		}
		p := Page{Path: normalize(row[pathCol])}
		if titleCol != -1 && titleCol < len(row) {
			p.Title = strings.TrimSpace(row[titleCol])
		}
		if p.Path == "" {
			return nil, fmt.Errorf("row %d: path is empty", i+2)
		}
		out = append(out, p)
	}
	return out, nil
}

func loadJSON(path string) ([]Page, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	defer file.Close()

	var raw []Page
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("JSON file contains empty array")
	}
	for i := range raw {
		raw[i].Path = normalize(raw[i].Path)
		if raw[i].Path == "" {
			return nil, fmt.Errorf("record %d: path is empty", i)
		}
	}
	return raw, nil
}

func normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
