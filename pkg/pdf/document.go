// Package pdf reads drawing set PDFs: per-page text extraction and page rasterization.
package pdf

import (
	"fmt"
	"os"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/apperrors"
)

// PageSource is a document whose pages can be read one at a time.
type PageSource interface {
	NumPages() int
	// PageText returns the text of 1-based page n. A non-nil error is a
	// page-level warning; the returned text is then empty.
	PageText(n int) (string, error)
	Close() error
}

// DocumentOpener opens a PageSource. Failures wrap apperrors.ErrDocumentOpen.
type DocumentOpener func(path string) (PageSource, error)

// Document is a PDF opened for text extraction.
type Document struct {
	file     *os.File
	reader   *lpdf.Reader
	numPages int
}

// Open opens the PDF at path and reads its page tree. A missing file, a
// corrupt container or a parser panic all yield apperrors.ErrDocumentOpen.
func Open(path string) (doc *Document, err error) {
	var file *os.File
	defer func() {
		if r := recover(); r != nil {
			if file != nil {
				_ = file.Close()
			}
			doc = nil
			err = fmt.Errorf("%w: %s: parser panic: %v", apperrors.ErrDocumentOpen, path, r)
		}
	}()

	file, reader, err := lpdf.Open(path)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrDocumentOpen, path, err)
	}

	return &Document{
		file:     file,
		reader:   reader,
		numPages: reader.NumPage(),
	}, nil
}

// OpenSource is a DocumentOpener backed by Open.
func OpenSource(path string) (PageSource, error) {
	doc, err := Open(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// NumPages returns the number of pages in the document.
func (d *Document) NumPages() int {
	return d.numPages
}

// PageText extracts the plain text of page n. It never panics: decode
// failures are returned as apperrors.ErrPageDecode with empty text.
func (d *Document) PageText(n int) (text string, err error) {
	if n < 1 || n > d.numPages {
		return "", fmt.Errorf("%w: page %d out of range 1..%d", apperrors.ErrPageDecode, n, d.numPages)
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: page %d: panic: %v", apperrors.ErrPageDecode, n, r)
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("%w: page %d has no page object", apperrors.ErrPageDecode, n)
	}

	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("%w: page %d: %v", apperrors.ErrPageDecode, n, err)
	}
	return text, nil
}

// Close releases the underlying file.
func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
