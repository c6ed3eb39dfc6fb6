// Package extract turns a PDF filing into plain text, page by page.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Extractor validates PDFs with pdfcpu in relaxed mode and reads their text
// with ledongthuc/pdf.
type Extractor struct {
	conf *model.Configuration
}

// Document is the result of a successful extraction.
type Document struct {
	Text      string
	PageCount int
}

// New returns an Extractor. pdfcpu's on-disk configuration directory is
// disabled so runs do not write outside the working directory.
func New() *Extractor {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Extractor{conf: conf}
}

// Extract returns the text of every page of the PDF at path, in page order.
// Page text includes Form XObjects and filled form field values. Pages without
// text are skipped; the rest are joined by a newline. Any unreadable page
// aborts the extraction.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	logCtx := slog.With("pdfPath", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %v", path, failure.ErrFileAccess, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %v", path, failure.ErrFileAccess, err)
	}

	pdfCtx, err := api.ReadValidateAndOptimize(f, e.conf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", path, failure.ErrParse, err)
	}
	logCtx.Debug("PDF validated.", "pageCount", pdfCtx.PageCount)

	reader, err := openReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", path, failure.ErrParse, err)
	}

	seenFields := make(map[string]bool)
	pages := make([]string, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(pageNr)
		if page.V.IsNull() {
			return nil, fmt.Errorf("page %d of %s: %w: page not found", pageNr, path, failure.ErrParse)
		}
		text, err := pageText(page, seenFields)
		if err != nil {
			return nil, fmt.Errorf("page %d of %s: %w: %v", pageNr, path, failure.ErrParse, err)
		}
		if text == "" {
			logCtx.Debug("Page has no text.", "page", pageNr)
			continue
		}
		pages = append(pages, text)
	}

	doc := &Document{
		Text:      strings.Join(pages, "\n"),
		PageCount: pdfCtx.PageCount,
	}
	logCtx.Info("Text extracted.", "pageCount", doc.PageCount, "chars", len(doc.Text))
	return doc, nil
}

// openReader wraps pdf.NewReader, which panics on some malformed trailers.
func openReader(r io.ReaderAt, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			reader, err = nil, fmt.Errorf("malformed PDF: %v", p)
		}
	}()
	return pdf.NewReader(r, size)
}
