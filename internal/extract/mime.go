package extract

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DetectMimeType sniffs the content type from magic bytes. Office files are
// ZIP archives, so the file name decides between pptx, docx and plain zip.
// Formats without a signature (text, markdown, html) return "".
func DetectMimeType(data []byte, fileName string) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}):
		// Legacy binary Office (doc, ppt)
		return "application/msword"
	case bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}):
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".pptx":
			return mimePPTX
		case ".docx":
			return mimeDOCX
		}
		return "application/zip"
	}

	return ""
}

// expectedMime is the sniffed type each binary extension must carry.
var expectedMime = map[string]string{
	".pptx": mimePPTX,
	".docx": mimeDOCX,
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}
