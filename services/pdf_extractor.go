package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// PDFExtractorService extracts text content from downloaded term-sheet
// documents. pdfcpu works on files, so each document round-trips through a
// uniquely named temp file that is removed when extraction completes.
type PDFExtractorService struct {
	tempDir string
}

// NewPDFExtractorService creates a PDF text extraction service
func NewPDFExtractorService() *PDFExtractorService {
	tempDir := filepath.Join(os.TempDir(), "hkipo-pdf")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		logrus.WithField("component", "PDFExtractorService").WithError(err).Warn("Could not create temp directory, falling back to system temp")
		tempDir = os.TempDir()
	}
	return &PDFExtractorService{tempDir: tempDir}
}

// ExtractText extracts text from up to maxPages leading pages of the given
// PDF content. Truncated downloads may yield partial or no text; that is an
// accepted degradation, not an error the caller must handle specially.
func (e *PDFExtractorService) ExtractText(content []byte, maxPages int) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("pdf: empty document")
	}

	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("terms_%s.pdf", uuid.NewString()))
	if err := os.WriteFile(tempFile, content, 0o644); err != nil {
		return "", fmt.Errorf("pdf: write temp file: %w", err)
	}
	defer os.Remove(tempFile)

	pdfContext, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("pdf: read context: %w", err)
	}

	pageCount := pdfContext.PageCount
	if pageCount == 0 {
		return "", fmt.Errorf("pdf: document has no pages")
	}
	if maxPages > 0 && pageCount > maxPages {
		pageCount = maxPages
	}

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%s", uuid.NewString()))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("pdf: create page directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	selectedPages := []string{fmt.Sprintf("1-%d", pageCount)}
	if err := api.ExtractContentFile(tempFile, outDir, selectedPages, conf); err != nil {
		return "", fmt.Errorf("pdf: extract content: %w", err)
	}

	pageTexts := make(map[int]string)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("pdf: read page directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if readErr != nil {
			continue
		}
		var pageNum int
		if _, scanErr := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); scanErr != nil {
			if _, scanErr = fmt.Sscanf(entry.Name(), "page_%d", &pageNum); scanErr != nil {
				continue
			}
		}
		pageTexts[pageNum] = string(data)
	}

	pageNumbers := make([]int, 0, len(pageTexts))
	for pageNum := range pageTexts {
		if pageNum <= pageCount {
			pageNumbers = append(pageNumbers, pageNum)
		}
	}
	sort.Ints(pageNumbers)

	var builder strings.Builder
	for _, pageNum := range pageNumbers {
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(pageTexts[pageNum])
	}
	return builder.String(), nil
}
