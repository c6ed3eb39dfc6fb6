package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"

// pdfBuilder assembles a PDF in memory. Object 1 is the catalog and object 2
// the page tree; both are written by bytes.
type pdfBuilder struct {
	objects []string
}

func newPDFBuilder() *pdfBuilder {
	return &pdfBuilder{objects: []string{"", ""}}
}

// add appends an object and returns its number.
func (b *pdfBuilder) add(obj string) int {
	b.objects = append(b.objects, obj)
	return len(b.objects)
}

// reserve returns a number for an object written later with set.
func (b *pdfBuilder) reserve() int { return b.add("null") }

func (b *pdfBuilder) set(num int, obj string) { b.objects[num-1] = obj }

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

func ref(num int) string { return fmt.Sprintf("%d 0 R", num) }

// page returns a page object drawing content with the given resources.
func (b *pdfBuilder) page(resources, content, extra string) int {
	cs := b.add(stream("", content))
	return b.add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources %s /Contents %s %s >>", resources, ref(cs), extra))
}

func (b *pdfBuilder) bytes(pages []int, catalogExtra string) []byte {
	kids := make([]string, len(pages))
	for i, p := range pages {
		kids[i] = ref(p)
	}
	b.objects[0] = fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R %s >>", catalogExtra)
	b.objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(b.objects))
	for i, obj := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, xref)
	return buf.Bytes()
}

// buildPDF assembles a PDF with one page per content stream, each with
// Helvetica as /F1.
func buildPDF(contents ...string) []byte {
	b := newPDFBuilder()
	font := b.add(helvetica)
	pages := make([]int, len(contents))
	for i, c := range contents {
		pages[i] = b.page(fmt.Sprintf("<< /Font << /F1 %s >> >>", ref(font)), c, "")
	}
	return b.bytes(pages, "")
}

func saveFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ADT1.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writePDF(t *testing.T, contents ...string) string {
	t.Helper()
	return saveFile(t, buildPDF(contents...))
}

func extractText(t *testing.T, path string) string {
	t.Helper()
	doc, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	return doc.Text
}

func TestExtract_PagesInOrder(t *testing.T) {
	path := writePDF(t,
		"BT /F1 12 Tf 72 720 Td (Company: ABC Ltd, CIN: U12345) Tj ET",
		"BT /F1 12 Tf 72 720 Td (Auditor: XYZ & Co, Appointed: 01-04-2023) Tj ET",
	)

	doc, err := New().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, doc.PageCount)
	assert.Equal(t, "Company: ABC Ltd, CIN: U12345\nAuditor: XYZ & Co, Appointed: 01-04-2023", doc.Text)
}

func TestExtract_SkipsEmptyPages(t *testing.T) {
	path := writePDF(t,
		"BT /F1 12 Tf (first) Tj ET",
		"q Q",
		"BT /F1 12 Tf (third) Tj ET",
	)

	doc, err := New().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, "first\nthird", doc.Text)
}

func TestExtract_Deterministic(t *testing.T) {
	path := writePDF(t, "BT /F1 12 Tf (Form ADT-1) Tj 0 -14 Td (Notice of appointment of auditor) Tj ET")
	e := New()

	first, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := New().Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrFileAccess)
}

func TestExtract_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is plain text, not a PDF"), 0o644))

	_, err := New().Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrParse)
}

func TestExtract_UnreadablePageAbortsExtraction(t *testing.T) {
	b := newPDFBuilder()
	font := b.add(helvetica)
	resources := fmt.Sprintf("<< /Font << /F1 %s >> >>", ref(font))
	first := b.page(resources, "BT /F1 12 Tf (Company: ABC Ltd) Tj ET", "")
	corrupt := b.add(stream("/Filter /FlateDecode", "this is not a zlib stream"))
	second := b.add(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources %s /Contents %s >>", resources, ref(corrupt)))
	path := saveFile(t, b.bytes([]int{first, second}, ""))

	doc, err := New().Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrParse)
	assert.Nil(t, doc)
}

func TestExtract_CancelledContext(t *testing.T) {
	path := writePDF(t, "BT /F1 12 Tf (text) Tj ET")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Extract(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

const identityToUnicode = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def
/CMapName /Adobe-Identity-UCS def
/CMapType 2 def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
1 beginbfrange
<0024> <0026> <0041>
endbfrange
1 beginbfchar
<0003> <0020>
endbfchar
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

func TestExtract_IdentityHFontUsesToUnicode(t *testing.T) {
	b := newPDFBuilder()
	toUnicode := b.add(stream("", identityToUnicode))
	descriptor := b.add("<< /Type /FontDescriptor /FontName /AAAAAA+Arial /Flags 32 /FontBBox [0 -200 1000 900] /ItalicAngle 0 /Ascent 900 /Descent -200 /CapHeight 700 /StemV 80 >>")
	cidFont := b.add(fmt.Sprintf("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /AAAAAA+Arial /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> /FontDescriptor %s /DW 1000 >>", ref(descriptor)))
	type0 := b.add(fmt.Sprintf("<< /Type /Font /Subtype /Type0 /BaseFont /AAAAAA+Arial /Encoding /Identity-H /DescendantFonts [%s] /ToUnicode %s >>", ref(cidFont), ref(toUnicode)))
	pg := b.page(fmt.Sprintf("<< /Font << /F1 %s >> >>", ref(type0)), "BT /F1 12 Tf 72 720 Td <002400250026> Tj T* <0024000300260025> Tj ET", "")

	assert.Equal(t, "ABC\nA CB", extractText(t, saveFile(t, b.bytes([]int{pg}, ""))))
}

func TestExtract_WinAnsiEncoding(t *testing.T) {
	b := newPDFBuilder()
	font := b.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	pg := b.page(fmt.Sprintf("<< /Font << /F1 %s >> >>", ref(font)), `BT /F1 12 Tf (Auditor\222s consent \226 \200 5,000) Tj ET`, "")

	assert.Equal(t, "Auditor’s consent – € 5,000", extractText(t, saveFile(t, b.bytes([]int{pg}, ""))))
}

func TestExtract_FormXObjects(t *testing.T) {
	tests := []struct {
		name      string
		formDict  string
		formText  string
		pageFirst string
		want      string
	}{
		{
			name:     "inherits page resources",
			formText: "BT /F1 12 Tf 72 720 Td (CIN: U12345) Tj ET",
			want:     "CIN: U12345",
		},
		{
			name:      "text around the form stays in order",
			formText:  "BT /F1 12 Tf 72 700 Td (CIN: U12345) Tj ET",
			pageFirst: "BT /F1 12 Tf 72 720 Td (Form ADT-1) Tj ET ",
			want:      "Form ADT-1\nCIN: U12345",
		},
		{
			name:     "own resources",
			formDict: "/Resources << /Font << /F9 FONT >> >>",
			formText: "BT /F9 10 Tf (Auditor: XYZ & Co) Tj ET",
			want:     "Auditor: XYZ & Co",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newPDFBuilder()
			font := b.add(helvetica)
			formDict := strings.ReplaceAll(tt.formDict, "FONT", ref(font))
			form := b.add(stream("/Type /XObject /Subtype /Form /BBox [0 0 612 792] "+formDict, tt.formText))
			resources := fmt.Sprintf("<< /Font << /F1 %s >> /XObject << /X1 %s >> >>", ref(font), ref(form))
			pg := b.page(resources, tt.pageFirst+"q /X1 Do Q", "")

			assert.Equal(t, tt.want, extractText(t, saveFile(t, b.bytes([]int{pg}, ""))))
		})
	}
}

func TestExtract_FormFieldValues(t *testing.T) {
	b := newPDFBuilder()
	font := b.add(helvetica)
	pg := b.reserve()
	cin := b.add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /T (CIN) /V (U12345) /DA (/Helv 0 Tf 0 g) /Rect [72 700 300 720] /P %s >>", ref(pg)))
	companyWidget := b.reserve()
	company := b.add(fmt.Sprintf("<< /FT /Tx /T (Company) /V (ABC Ltd) /DA (/Helv 0 Tf 0 g) /Kids [%s] >>", ref(companyWidget)))
	b.set(companyWidget, fmt.Sprintf("<< /Type /Annot /Subtype /Widget /Parent %s /Rect [72 660 300 680] /P %s >>", ref(company), ref(pg)))
	empty := b.add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Tx /T (Email) /DA (/Helv 0 Tf 0 g) /Rect [72 620 300 640] /P %s >>", ref(pg)))
	check := b.add(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Btn /T (Casual) /V /Off /Rect [72 580 90 598] /P %s >>", ref(pg)))

	content := "BT /F1 12 Tf 72 740 Td (Form ADT-1) Tj ET"
	cs := b.add(stream("", content))
	b.set(pg, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 %s >> >> /Contents %s /Annots [%s %s %s %s] >>",
		ref(font), ref(cs), ref(cin), ref(companyWidget), ref(empty), ref(check)))
	acroForm := fmt.Sprintf("/AcroForm << /Fields [%s %s %s %s] /DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv %s >> >> >>",
		ref(cin), ref(company), ref(empty), ref(check), ref(font))

	text := extractText(t, saveFile(t, b.bytes([]int{pg}, acroForm)))
	assert.Equal(t, "Form ADT-1\nCIN: U12345\nCompany: ABC Ltd", text)
}
