package document_parsing

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/gen2brain/go-fitz"
)

// Remove hardcoded base64 images in the format ![](data:image/...)
var embeddedImageRe = regexp.MustCompile(`!\[\]\(data:image/[^)]+\)`)

// PDFToMD renders each page of a PDF to HTML and converts it to markdown.
// Embedded base64 images are stripped to keep the output small enough to
// forward to the workflow service.
func PDFToMD(contents []byte) (string, error) {
	doc, err := fitz.NewFromMemory(contents)
	if err != nil {
		return "", fmt.Errorf("error opening pdf: %w", err)
	}
	defer doc.Close()

	converter := md.NewConverter("", true, nil)

	var out strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		html, err := doc.HTML(i, true)
		if err != nil {
			return "", fmt.Errorf("error rendering pdf page %d: %w", i, err)
		}

		text, err := converter.ConvertString(html)
		if err != nil {
			return "", fmt.Errorf("error converting pdf page %d to markdown: %w", i, err)
		}

		out.WriteString(embeddedImageRe.ReplaceAllString(text, ""))
		out.WriteString("\n\n")
	}

	return out.String(), nil
}

// MarkdownFileName derives the stored name for a converted document: the
// original extension is stripped and ".md" appended.
func MarkdownFileName(originalName string) string {
	base := filepath.Base(originalName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".md"
}
