package pdf

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dslipak/pdf"
)

// PageText is the searchable text content of one PDF page, fed to the
// text-analysis assistant. It shares no structures with the detection
// pipeline.
type PageText struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
	WordCount  int    `json:"word_count"`
}

// ExtractText extracts vector text from the given pages (1-indexed; empty
// means all). Pages without extractable text yield empty entries rather
// than errors.
func ExtractText(filename string, pages []int) ([]PageText, error) {
	reader, err := pdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}
	// dslipak/pdf readers do not need explicit closing.

	totalPages := reader.NumPage()
	toProcess := pages
	if len(toProcess) == 0 {
		toProcess = make([]int, 0, totalPages)
		for i := 1; i <= totalPages; i++ {
			toProcess = append(toProcess, i)
		}
	}

	results := make([]PageText, 0, len(toProcess))
	for _, pageNum := range toProcess {
		if pageNum < 1 || pageNum > totalPages {
			continue
		}
		text, err := extractPageText(reader, pageNum)
		if err != nil {
			slog.Warn("page text extraction failed", "page", pageNum, "error", err)
			text = ""
		}
		results = append(results, PageText{
			PageNumber: pageNum,
			Text:       text,
			WordCount:  len(strings.Fields(text)),
		})
	}
	return results, nil
}

func extractPageText(reader *pdf.Reader, pageNum int) (string, error) {
	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", pageNum)
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to get text for page %d: %w", pageNum, err)
	}
	return text, nil
}
