package actions

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/orisano/pixelmatch"
)

// PDFPreview extracts a page count and a short text preview from freshly
// captured PDF bytes, so a "pdf" step result is useful without the caller
// writing the artifact to disk first. pdf.Open requires a path, so data is
// spooled through a temp file and removed before returning.
func PDFPreview(data []byte) (pageCount int, textPreview string, err error) {
	tmp, err := os.CreateTemp("", "cdpskill-*.pdf")
	if err != nil {
		return 0, "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return 0, "", fmt.Errorf("spooling pdf to temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, "", err
	}

	f, r, err := pdf.Open(tmp.Name())
	if err != nil {
		return 0, "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pageCount = r.NumPage()
	if pageCount == 0 {
		return 0, "", nil
	}

	page := r.Page(1)
	if page.V.IsNull() {
		return pageCount, "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return pageCount, "", nil
	}
	text = strings.TrimSpace(text)
	if len(text) > 300 {
		text = text[:300]
	}
	return pageCount, text, nil
}

// VisualDiffRatio decodes two PNG captures and reports the fraction of
// pixels pixelmatch considers mismatched, for an "observe: visualDiff"
// hook on a visual step.
func VisualDiffRatio(beforePNG, afterPNG []byte) (float64, error) {
	img1, _, err := image.Decode(bytes.NewReader(beforePNG))
	if err != nil {
		return 0, fmt.Errorf("decoding before screenshot: %w", err)
	}
	img2, _, err := image.Decode(bytes.NewReader(afterPNG))
	if err != nil {
		return 0, fmt.Errorf("decoding after screenshot: %w", err)
	}

	diffPixels, err := pixelmatch.MatchPixel(img1, img2, pixelmatch.Threshold(0.1))
	if err != nil {
		return 0, err
	}

	bounds := img1.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0, nil
	}
	return float64(diffPixels) / float64(total), nil
}
