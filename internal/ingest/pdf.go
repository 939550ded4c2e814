// Package ingest expands uploaded documents into ordered page images.
// Scanned ballot PDFs carry one full-page scan image per page, so pulling
// the embedded images out of the PDF recovers the pages in order.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/krittin/tallyscan/internal/report"
)

// IsPDF reports whether the filename looks like a PDF upload.
func IsPDF(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// pageNumPattern matches the page number pdfcpu embeds in extracted image
// filenames (e.g. "scan_1_Im0.jpg" for page 1).
var pageNumPattern = regexp.MustCompile(`_(\d+)_`)

// ExpandPDF extracts the scan image of every page, in page order.
func ExpandPDF(data []byte, filename string) ([]report.PageImage, error) {
	tempDir, err := os.MkdirTemp("", "tallyscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	pdfPath := filepath.Join(tempDir, "upload.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to stage PDF: %w", err)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%s is not a readable PDF: %w", filename, err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%s contains no pages", filename)
	}

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	if err := api.ExtractImagesFile(pdfPath, outDir, nil, cfg); err != nil {
		return nil, fmt.Errorf("failed to extract page images from %s: %w", filename, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction dir: %w", err)
	}

	type extracted struct {
		page int
		name string
	}
	var found []extracted
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		found = append(found, extracted{
			page: pageNumber(entry.Name()),
			name: entry.Name(),
		})
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s has no extractable page images; upload page images directly", filename)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].page != found[j].page {
			return found[i].page < found[j].page
		}
		return found[i].name < found[j].name
	})

	pages := make([]report.PageImage, 0, len(found))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	for i, f := range found {
		data, err := os.ReadFile(filepath.Join(outDir, f.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read extracted image: %w", err)
		}
		pages = append(pages, report.PageImage{
			Data:     data,
			Filename: fmt.Sprintf("%s_page_%03d%s", base, i+1, filepath.Ext(f.name)),
		})
	}
	return pages, nil
}

func pageNumber(name string) int {
	m := pageNumPattern.FindStringSubmatch(name)
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
