// Package matching assigns categories to expense descriptions using curated
// provider and keyword tables.
package matching

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/spice-intake/internal/common"
)

// Provider is a known merchant with the aliases users write it as.
type Provider struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	ExpenseType string   `yaml:"expense_type"`
	Aliases     []string `yaml:"aliases"`
}

// Keyword is a token or phrase that implies a category on its own.
type Keyword struct {
	Token       string `yaml:"keyword"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
	ExpenseType string `yaml:"expense_type"`
}

// Tables holds both lookup tables in file order. Order is the tie-break.
type Tables struct {
	Providers []Provider
	Keywords  []Keyword
}

// Column names accepted in CSV headers. The first name is canonical.
var (
	colProviderName = []string{"provider_name", "name"}
	colAliases      = []string{"aliases", "alias"}
	colKeyword      = []string{"keyword", "token"}
	colCategory     = []string{"categoria_principal", "category"}
	colSubcategory  = []string{"subcategoria", "subcategory"}
	colExpenseType  = []string{"tipo_gasto_default", "expense_type"}
)

// Loader reads provider and keyword tables from CSV or YAML files, chosen by
// file extension. Missing files produce empty tables.
type Loader struct {
	logger        *slog.Logger
	ProvidersPath string
	KeywordsPath  string
}

// NewLoader creates a loader for the two table files.
func NewLoader(providersPath, keywordsPath string, logger *slog.Logger) *Loader {
	return &Loader{
		ProvidersPath: providersPath,
		KeywordsPath:  keywordsPath,
		logger:        common.OrDefault(logger),
	}
}

// Load reads both tables.
func (l *Loader) Load() (*Tables, error) {
	providers, err := l.loadProviders()
	if err != nil {
		return nil, err
	}
	keywords, err := l.loadKeywords()
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loaded match tables",
		"providers", len(providers),
		"keywords", len(keywords))

	return &Tables{Providers: providers, Keywords: keywords}, nil
}

func (l *Loader) loadProviders() ([]Provider, error) {
	data, ok, err := l.read(l.ProvidersPath, "providers")
	if err != nil || !ok {
		return nil, err
	}

	var providers []Provider
	if isYAML(l.ProvidersPath) {
		if err := yaml.Unmarshal(data, &providers); err != nil {
			return nil, fmt.Errorf("failed to parse providers %s: %w", l.ProvidersPath, err)
		}
	} else {
		providers, err = parseProvidersCSV(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse providers %s: %w", l.ProvidersPath, err)
		}
	}

	out := providers[:0]
	for _, p := range providers {
		p = normalizeProvider(p)
		if p.Name == "" {
			l.logger.Warn("Skipping provider without a name", "path", l.ProvidersPath)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (l *Loader) loadKeywords() ([]Keyword, error) {
	data, ok, err := l.read(l.KeywordsPath, "keywords")
	if err != nil || !ok {
		return nil, err
	}

	var keywords []Keyword
	if isYAML(l.KeywordsPath) {
		if err := yaml.Unmarshal(data, &keywords); err != nil {
			return nil, fmt.Errorf("failed to parse keywords %s: %w", l.KeywordsPath, err)
		}
	} else {
		keywords, err = parseKeywordsCSV(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse keywords %s: %w", l.KeywordsPath, err)
		}
	}

	out := keywords[:0]
	for _, k := range keywords {
		k.Token = normalize(k.Token)
		k.Category = strings.TrimSpace(k.Category)
		k.Subcategory = strings.TrimSpace(k.Subcategory)
		k.ExpenseType = strings.TrimSpace(k.ExpenseType)
		if k.Token == "" {
			l.logger.Warn("Skipping empty keyword", "path", l.KeywordsPath)
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// read returns ok=false when the path is unset or the file does not exist.
func (l *Loader) read(path, table string) ([]byte, bool, error) {
	if path == "" {
		l.logger.Warn("No match table configured", "table", table)
		return nil, false, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Match table not found, using an empty table", "table", table, "path", path)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s table: %w", table, err)
	}
	return data, true, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeProvider keeps the name's display case; aliases are lowercased.
func normalizeProvider(p Provider) Provider {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Subcategory = strings.TrimSpace(p.Subcategory)
	p.ExpenseType = strings.TrimSpace(p.ExpenseType)

	aliases := make([]string, 0, len(p.Aliases))
	for _, a := range p.Aliases {
		if a = normalize(a); a != "" {
			aliases = append(aliases, a)
		}
	}
	p.Aliases = aliases
	return p
}

// csvTable is a parsed CSV file addressed by column name.
type csvTable struct {
	index map[string]int
	rows  [][]string
}

func readCSV(data []byte) (*csvTable, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &csvTable{index: map[string]int{}}, nil
	}
	if err != nil {
		return nil, err
	}

	t := &csvTable{index: make(map[string]int, len(header))}
	for i, name := range header {
		t.index[normalize(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	t.rows, err = r.ReadAll()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *csvTable) column(names []string) (int, bool) {
	for _, name := range names {
		if i, ok := t.index[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func (t *csvTable) require(names []string) (int, error) {
	i, ok := t.column(names)
	if !ok {
		return 0, fmt.Errorf("missing column %q", names[0])
	}
	return i, nil
}

func cell(row []string, i int, ok bool) string {
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func parseProvidersCSV(data []byte) ([]Provider, error) {
	t, err := readCSV(data)
	if err != nil {
		return nil, err
	}
	if len(t.rows) == 0 {
		return nil, nil
	}

	nameCol, err := t.require(colProviderName)
	if err != nil {
		return nil, err
	}
	aliasCol, hasAlias := t.column(colAliases)
	catCol, hasCat := t.column(colCategory)
	subCol, hasSub := t.column(colSubcategory)
	typeCol, hasType := t.column(colExpenseType)

	providers := make([]Provider, 0, len(t.rows))
	for _, row := range t.rows {
		var aliases []string
		if raw := cell(row, aliasCol, hasAlias); raw != "" {
			aliases = strings.Split(raw, ",")
		}
		providers = append(providers, Provider{
			Name:        cell(row, nameCol, true),
			Aliases:     aliases,
			Category:    cell(row, catCol, hasCat),
			Subcategory: cell(row, subCol, hasSub),
			ExpenseType: cell(row, typeCol, hasType),
		})
	}
	return providers, nil
}

func parseKeywordsCSV(data []byte) ([]Keyword, error) {
	t, err := readCSV(data)
	if err != nil {
		return nil, err
	}
	if len(t.rows) == 0 {
		return nil, nil
	}

	tokenCol, err := t.require(colKeyword)
	if err != nil {
		return nil, err
	}
	catCol, hasCat := t.column(colCategory)
	subCol, hasSub := t.column(colSubcategory)
	typeCol, hasType := t.column(colExpenseType)

	keywords := make([]Keyword, 0, len(t.rows))
	for _, row := range t.rows {
		keywords = append(keywords, Keyword{
			Token:       cell(row, tokenCol, true),
			Category:    cell(row, catCol, hasCat),
			Subcategory: cell(row, subCol, hasSub),
			ExpenseType: cell(row, typeCol, hasType),
		})
	}
	return keywords, nil
}
