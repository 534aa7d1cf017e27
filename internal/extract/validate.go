package extract

import (
	"path/filepath"
	"strings"

	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
)

// AllowedExtensions lists the upload types accepted by each variant
var AllowedExtensions = map[Variant][]string{
	VariantVisual:   {".pptx", ".png", ".jpg", ".jpeg", ".webp"},
	VariantGlossary: {".txt", ".md", ".markdown", ".html", ".htm", ".pdf", ".docx"},
}

// ParseVariant maps a job's variant tag to a Variant. Unknown tags are false.
func ParseVariant(s string) (Variant, bool) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantVisual:
		return VariantVisual, true
	case VariantGlossary:
		return VariantGlossary, true
	}
	return "", false
}

// ValidateUpload rejects uploads the pipeline cannot accept before any
// processing starts: wrong extension for the variant, empty, oversized, or
// content that does not match the extension.
func ValidateUpload(jobID, fileName string, data []byte, variant Variant, maxSize int64) error {
	allowed, ok := AllowedExtensions[variant]
	if !ok {
		var all []string
		for _, exts := range AllowedExtensions {
			all = append(all, exts...)
		}
		return apperrors.NewUnsupportedFormatError(jobID, fileName, all)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !contains(allowed, ext) {
		return apperrors.NewUnsupportedFormatError(jobID, fileName, allowed)
	}

	size := int64(len(data))
	if maxSize > 0 && size > maxSize {
		return apperrors.NewFileTooLargeError(jobID, size, maxSize)
	}
	if size == 0 {
		return apperrors.NewEmptyTextError(jobID, fileName)
	}

	if want, ok := expectedMime[ext]; ok && DetectMimeType(data, fileName) != want {
		return apperrors.NewUnsupportedFormatError(jobID, fileName, allowed)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
