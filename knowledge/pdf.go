package knowledge

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText converts an uploaded file into plain text for ingestion.
// PDFs go through the pdf reader; everything else is treated as UTF-8 text.
func ExtractText(filename string, data []byte) (string, error) {
	if isPDF(filename, data) {
		return extractPDFText(data)
	}
	return string(data), nil
}

func isPDF(filename string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".pdf") {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("knowledge: open pdf: %w", err)
	}

	var builder strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the whole document.
			continue
		}
		builder.WriteString(text)
		builder.WriteRune('\n')
	}

	extracted := strings.TrimSpace(builder.String())
	if extracted == "" {
		return "", fmt.Errorf("knowledge: pdf contains no extractable text")
	}
	return extracted, nil
}
