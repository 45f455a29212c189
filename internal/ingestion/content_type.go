package ingestion

import (
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeJPEG = "image/jpeg"
	contentTypePNG  = "image/png"
)

var contentTypeByExtension = map[string]string{
	".pdf":  contentTypePDF,
	".jpg":  contentTypeJPEG,
	".jpeg": contentTypeJPEG,
	".png":  contentTypePNG,
}

// AllowedExtensions lists the accepted file extensions.
func AllowedExtensions() []string {
	return []string{".pdf", ".jpg", ".jpeg", ".png"}
}

// DetectContentType sniffs data and checks it agrees with the file's extension.
func DetectContentType(fileName string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(fileName))
	want, ok := contentTypeByExtension[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file type %q; allowed: %s", ext, strings.Join(AllowedExtensions(), ", "))
	}
	detected := mimetype.Detect(data)
	if !detected.Is(want) {
		return "", fmt.Errorf("file content is %s but the extension is %s", detected.String(), ext)
	}
	return want, nil
}

// CleanFileName reduces an uploaded name to its base name.
func CleanFileName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if name == "" || base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}
