package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"

	"github.com/bets3435-dev/book-search-app/internal/config"
	"github.com/bets3435-dev/book-search-app/internal/models"
)

func newTestLoader(t *testing.T, cfg config.IngestConfig) *Loader {
	t.Helper()
	l, err := NewLoader(&cfg)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return l
}

const sampleCSV = "\ufefftitle,author,publisher,category,publish_date,description,price\n" +
	"Python Basics,Kim,Hanbit,004,2019-03-01,  intro   to  python ,\"18,000\"\n" +
	",,,,,,\n" +
	"Java Guide,Lee,Wiley,004,2020-01-01,,\n"

func TestReadCSV(t *testing.T) {
	l := newTestLoader(t, config.IngestConfig{})
	books, err := l.ReadCSV(context.Background(), strings.NewReader(sampleCSV), ',')
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("got %d books, want 2 (blank row skipped)", len(books))
	}
	b := books[0]
	if b.Title != "Python Basics" || b.Author != "Kim" || b.Category != "004" || b.PublishDate != "2019-03-01" {
		t.Errorf("book = %+v", b)
	}
	if b.Description != "intro   to  python" {
		t.Errorf("description = %q, want trimmed", b.Description)
	}
	if b.Extras[models.ExtraPrice] != "18,000" {
		t.Errorf("price extra = %q", b.Extras[models.ExtraPrice])
	}
	if books[1].Extras != nil {
		t.Errorf("empty extras should stay nil, got %v", books[1].Extras)
	}
}

func TestReadCSV_MissingColumnsListsAll(t *testing.T) {
	l := newTestLoader(t, config.IngestConfig{})
	_, err := l.ReadCSV(context.Background(), strings.NewReader("title,author,category\nA,B,C\n"), ',')
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("err = %v, want ErrMissingColumns", err)
	}
	var mce *MissingColumnsError
	if !errors.As(err, &mce) {
		t.Fatalf("err is not *MissingColumnsError: %T", err)
	}
	want := []string{"publisher", "publish_date", "description"}
	if strings.Join(mce.Columns, ",") != strings.Join(want, ",") {
		t.Errorf("missing = %v, want %v", mce.Columns, want)
	}
}

func TestReadCSV_CustomMappingAndDelimiter(t *testing.T) {
	cfg := config.IngestConfig{
		Delimiter: ";",
		Columns: config.ColumnMapping{
			Title:       "TITLE_NM",
			Author:      "AUTHR_NM",
			Publisher:   "PUBLISHER_NM",
			Category:    "KDC_NM",
			PublishDate: "PBLICTE_DE",
			Description: "",
		},
	}
	l := newTestLoader(t, cfg)
	data := "title_nm;authr_nm;publisher_nm;kdc_nm;pblicte_de\n데이터 과학;최;한빛;004;2022\n"
	books, err := l.ReadCSV(context.Background(), strings.NewReader(data), l.delimiter)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(books) != 1 || books[0].Title != "데이터 과학" || books[0].Description != "" {
		t.Errorf("books = %+v", books)
	}
}

func TestReadCSV_NFC(t *testing.T) {
	l := newTestLoader(t, config.IngestConfig{})
	data := "title,author,publisher,category,publish_date,description\n\u1100\u1161,,,,,\n"
	books, err := l.ReadCSV(context.Background(), strings.NewReader(data), ',')
	if err != nil {
		t.Fatal(err)
	}
	if books[0].Title != "\uac00" {
		t.Errorf("title = %q, want composed", books[0].Title)
	}
}

func TestReadCSV_Empty(t *testing.T) {
	l := newTestLoader(t, config.IngestConfig{})
	if _, err := l.ReadCSV(context.Background(), strings.NewReader(""), ','); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestNewLoader_BadDelimiter(t *testing.T) {
	if _, err := NewLoader(&config.IngestConfig{Delimiter: ";;"}); err == nil {
		t.Error("expected error for multi-character delimiter")
	}
}

func TestNewLoader_Encoding(t *testing.T) {
	for _, name := range []string{"", "utf-8", "UTF-8-SIG", "euc-kr", "CP949", "shift_jis"} {
		if _, err := NewLoader(&config.IngestConfig{Encoding: name}); err != nil {
			t.Errorf("NewLoader(encoding %q): %v", name, err)
		}
	}
	if _, err := NewLoader(&config.IngestConfig{Encoding: "klingon"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestLoad_EUCKR(t *testing.T) {
	text := "title,author,publisher,category,publish_date,description\n" +
		"파이썬 입문,김철수,한빛,005,2020-01-01,파이썬 기초\n"
	encoded, err := korean.EUCKR.NewEncoder().String(text)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "books.csv")
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		t.Fatal(err)
	}

	l := newTestLoader(t, config.IngestConfig{Encoding: "euc-kr"})
	books, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("books = %+v", books)
	}
	b := books[0]
	if b.Title != "파이썬 입문" || b.Author != "김철수" || b.Description != "파이썬 기초" {
		t.Errorf("book = %+v", b)
	}

	// Read as UTF-8 the same bytes are not the original text.
	books, err = newTestLoader(t, config.IngestConfig{}).Load(context.Background(), path)
	if err == nil && len(books) == 1 && books[0].Title == "파이썬 입문" {
		t.Error("EUC-KR bytes decoded as UTF-8 should not round-trip")
	}
}

func writeWorkbook(t *testing.T, path string, sheet string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
}

func TestLoad_Excel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.xlsx")
	writeWorkbook(t, path, "Sheet1", [][]any{
		{"title", "author", "publisher", "category", "publish_date", "description"},
		{"Go in Action", "Kennedy", "Manning", "004", "2015-11-01", "Go book"},
		{"Rust", "Klabnik", "No Starch", "004", "2018-06-01", ""},
	})

	l := newTestLoader(t, config.IngestConfig{})
	books, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(books) != 2 || books[0].Title != "Go in Action" || books[1].Author != "Klabnik" {
		t.Errorf("books = %+v", books)
	}
}

func TestLoad_ExcelNamedSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.xlsx")
	writeWorkbook(t, path, "catalog", [][]any{
		{"title", "author", "publisher", "category", "publish_date", "description"},
		{"Named", "", "", "", "", ""},
	})

	l := newTestLoader(t, config.IngestConfig{Sheet: "catalog"})
	books, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Named" {
		t.Errorf("books = %+v", books)
	}
}

func TestLoad_TSVAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	tsv := filepath.Join(dir, "books.tsv")
	data := "title\tauthor\tpublisher\tcategory\tpublish_date\tdescription\nA, B\tX\t\t\t\t\n"
	if err := os.WriteFile(tsv, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	l := newTestLoader(t, config.IngestConfig{})
	books, err := l.Load(context.Background(), tsv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(books) != 1 || books[0].Title != "A, B" {
		t.Errorf("books = %+v", books)
	}

	if _, err := l.Load(context.Background(), filepath.Join(dir, "books.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
	pdf := filepath.Join(dir, "real.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(context.Background(), pdf); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSupported(t *testing.T) {
	for path, want := range map[string]bool{
		"a.csv": true, "a.TSV": true, "a.xlsx": true, "a.txt": true, "a.pdf": false, "a.json": false,
	} {
		if got := Supported(path); got != want {
			t.Errorf("Supported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWriteCSV_RoundTripsThroughLoader(t *testing.T) {
	books := []*models.Book{
		{Title: "Python Basics", Author: "Kim", Publisher: "Hanbit", Category: "004", PublishDate: "2019",
			Extras: map[string]string{models.ExtraISBN: "8960", models.ExtraLink: "https://example.com/p/8960"}},
		{Title: "Quoted, \"Title\"", Description: "line one\nline two"},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, books, config.DefaultColumns()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	l := newTestLoader(t, config.IngestConfig{})
	got, err := l.ReadCSV(context.Background(), &buf, ',')
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d books", len(got))
	}
	if got[0].Extras[models.ExtraISBN] != "8960" || got[0].Extras[models.ExtraLink] != "https://example.com/p/8960" {
		t.Errorf("extras = %v", got[0].Extras)
	}
	if got[1].Title != books[1].Title || got[1].Description != books[1].Description {
		t.Errorf("book = %+v", got[1])
	}
}
