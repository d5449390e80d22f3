package extractor

import (
	"fmt"
)

// Extract dispatches on the declared file type. fileType is the lowercased
// extension without the dot (pdf, docx, txt, html).
func Extract(fileType string, data []byte) (string, error) {
	switch fileType {
	case "pdf":
		return ExtractPDF(data)
	case "docx":
		return ExtractDOCX(data)
	case "txt":
		return ExtractTXT(data)
	case "html":
		return ExtractHTML(data)
	default:
		return "", fmt.Errorf("unsupported file type: %s", fileType)
	}
}
