package ui

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
)

// DefaultExportName is the file a bot reply is saved to when no path is given.
const DefaultExportName = "ESG_Report.md"

var writeClipboard = clipboard.WriteAll

func CopyToClipboard(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to copy")
	}
	if err := writeClipboard(text); err != nil {
		return errors.Wrap(err, "copy to clipboard")
	}
	return nil
}

// SaveMarkdown writes content to path, or DefaultExportName when path is
// empty, and returns the path written.
func SaveMarkdown(path string, content string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultExportName
	}
	if strings.TrimSpace(content) == "" {
		return "", errors.New("nothing to save")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}
