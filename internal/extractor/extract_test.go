package extractor

import (
	"strings"
	"testing"
)

func TestExtractTXT(t *testing.T) {
	text, err := ExtractTXT([]byte("Hello world.\r\n\r\nSecond   line.\n"))
	if err != nil {
		t.Fatalf("ExtractTXT failed: %v", err)
	}
	if text != "Hello world.\nSecond   line." {
		t.Errorf("got %q", text)
	}
}

func TestExtractTXTUTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("with bom")...)
	text, err := ExtractTXT(data)
	if err != nil {
		t.Fatalf("ExtractTXT failed: %v", err)
	}
	if text != "with bom" {
		t.Errorf("got %q", text)
	}
}

func TestExtractTXTLatin1(t *testing.T) {
	// "café" in ISO-8859-1, invalid as UTF-8
	text, err := ExtractTXT([]byte{'c', 'a', 'f', 0xE9})
	if err != nil {
		t.Fatalf("ExtractTXT failed: %v", err)
	}
	if text != "café" {
		t.Errorf("got %q", text)
	}
}

func TestExtractTXTEmpty(t *testing.T) {
	if _, err := ExtractTXT(nil); err == nil {
		t.Error("expected error for empty file")
	}
	if _, err := ExtractTXT([]byte("   \n  \n")); err == nil {
		t.Error("expected error for whitespace-only file")
	}
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><title>skip</title><style>p{color:red}</style></head>
		<body><script>var skip = 1;</script><h1>Heading</h1><p>Body text.</p></body></html>`

	text, err := ExtractHTML([]byte(page))
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}
	if !strings.Contains(text, "Heading") || !strings.Contains(text, "Body text.") {
		t.Errorf("visible text missing: %q", text)
	}
	if strings.Contains(text, "skip") || strings.Contains(text, "color:red") {
		t.Errorf("non-visible content leaked: %q", text)
	}
}

func TestExtractDispatch(t *testing.T) {
	text, err := Extract("txt", []byte("plain"))
	if err != nil || text != "plain" {
		t.Errorf("Extract(txt) = %q, %v", text, err)
	}

	if _, err := Extract("exe", []byte("x")); err == nil {
		t.Error("expected error for unsupported type")
	}
}
