package validator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ReferenceSet is a read-only set of accepted values. An empty set disables
// the check that consults it.
type ReferenceSet map[string]struct{}

// NewReferenceSet builds a set from values, skipping blanks
func NewReferenceSet(values ...string) ReferenceSet {
	s := make(ReferenceSet, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Contains reports whether v is in the set
func (s ReferenceSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of values in the set
func (s ReferenceSet) Len() int {
	return len(s)
}

// ReferenceData holds the purchase order numbers and approved vendor names
// loaded at startup. Vendor names are stored lowercased.
type ReferenceData struct {
	PONumbers ReferenceSet
	Vendors   ReferenceSet
}

// NewReferenceData builds reference data from in-memory values
func NewReferenceData(poNumbers, vendors []string) *ReferenceData {
	lowered := make([]string, len(vendors))
	for i, v := range vendors {
		lowered[i] = normalizeVendor(v)
	}
	return &ReferenceData{
		PONumbers: NewReferenceSet(poNumbers...),
		Vendors:   NewReferenceSet(lowered...),
	}
}

// LoadReferenceData reads both reference files. A missing file yields an empty
// set; a file that exists but cannot be parsed is an error.
func LoadReferenceData(poNumbersFile, vendorsFile string) (*ReferenceData, error) {
	poNumbers, err := loadColumn(poNumbersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load PO numbers: %w", err)
	}
	vendors, err := loadColumn(vendorsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved vendors: %w", err)
	}

	ref := NewReferenceData(poNumbers, vendors)
	logrus.Infof("Loaded %d valid PO numbers and %d approved vendors", ref.PONumbers.Len(), ref.Vendors.Len())
	return ref, nil
}

// loadColumn returns the first column of a .csv or .xlsx file, header row skipped
func loadColumn(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.Warnf("Reference file not found: %s", path)
			return nil, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSXColumn(path)
	default:
		return loadCSVColumn(path)
	}
}

func loadCSVColumn(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var values []string
	header := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(row) > 0 {
			values = append(values, row[0])
		}
	}
	return values, nil
}

func loadXLSXColumn(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	var values []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		values = append(values, row[0])
	}
	return values, nil
}

func normalizeVendor(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
