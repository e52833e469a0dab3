package ingest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadCSV_DropsBlankRows(t *testing.T) {
	input := "Honda,Civic,2020,Blue,Used\n,,,,\n\"  \",\nToyota,Camry,2019,Red,New\n"

	got, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(got), got)
	}
	if got[1][0] != "Toyota" {
		t.Errorf("expected Toyota, got %q", got[1][0])
	}
}

func TestReadCSV_RaggedRows(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("a,b,c\nd\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got[0]) != 3 || len(got[1]) != 1 {
		t.Errorf("unexpected shapes: %v", got)
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	cells := map[string]string{
		"A1": "Honda", "B1": "Civic", "C1": "2020",
		"A3": "Toyota", "B3": "Camry", "C3": "2019",
	}
	for cell, v := range cells {
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			t.Fatalf("set cell: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	got, err := ReadXLSX(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(got), got)
	}
	if strings.Join(got[0], ",") != "Honda,Civic,2020" {
		t.Errorf("unexpected first row %v", got[0])
	}
	if got[1][1] != "Camry" {
		t.Errorf("expected Camry, got %q", got[1][1])
	}
}

func TestRead_UnsupportedFormat(t *testing.T) {
	_, err := Read("listing.json", strings.NewReader("{}"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRead_Empty(t *testing.T) {
	_, err := Read("empty.csv", strings.NewReader("\n,,\n"))
	if !errors.Is(err, ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cars.CSV")
	if err := os.WriteFile(path, []byte("Honda,Civic\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0][1] != "Civic" {
		t.Errorf("unexpected rows %v", got)
	}
}
