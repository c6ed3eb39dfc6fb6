package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// tjSpaceThreshold is the TJ displacement (thousandths of an em) below which a
// gap is treated as a word break.
const tjSpaceThreshold = -200

// maxFormDepth bounds Form XObject nesting; self-referencing forms exist in the wild.
const maxFormDepth = 8

// pageText returns the text shown on page, including text drawn by Form
// XObjects, followed by the values of the page's filled form fields. Strings are
// decoded through each font's encoding or ToUnicode CMap. A malformed content
// stream is reported as an error.
func pageText(page pdf.Page, seenFields map[string]bool) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed content: %v", r)
		}
	}()

	w := &textWalker{}
	resources := page.V.Key("Resources")
	contents := page.V.Key("Contents")
	switch contents.Kind() {
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			w.walk(contents.Index(i), resources, 0)
		}
	case pdf.Stream:
		w.walk(contents, resources, 0)
	}

	parts := []string{strings.TrimSpace(w.b.String())}
	parts = append(parts, formFieldLines(page, seenFields)...)
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

type textWalker struct {
	b textBuilder
}

func (w *textWalker) walk(strm, resources pdf.Value, depth int) {
	fonts := resources.Key("Font")
	enc := fontEncoder(pdf.Value{})

	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "Tf":
			if len(args) > 0 {
				enc = fontEncoder(fonts.Key(args[0].Name()))
			}
		case "Tj":
			w.show(enc, args)
		case "'", "\"":
			w.b.newline()
			w.show(enc, args)
		case "TJ":
			if len(args) == 0 || args[len(args)-1].Kind() != pdf.Array {
				return
			}
			arr := args[len(args)-1]
			for i := 0; i < arr.Len(); i++ {
				item := arr.Index(i)
				switch item.Kind() {
				case pdf.String:
					w.b.write(enc.Decode(item.RawString()))
				case pdf.Integer, pdf.Real:
					if item.Float64() < tjSpaceThreshold {
						w.b.space()
					}
				}
			}
		case "Td", "TD":
			if len(args) >= 2 && args[1].Float64() != 0 {
				w.b.newline()
			}
		case "T*", "Tm", "ET":
			w.b.newline()
		case "Do":
			if len(args) == 0 || depth >= maxFormDepth {
				return
			}
			xobj := resources.Key("XObject").Key(args[0].Name())
			if xobj.Kind() != pdf.Stream || xobj.Key("Subtype").Name() != "Form" {
				return
			}
			formResources := xobj.Key("Resources")
			if formResources.IsNull() {
				formResources = resources
			}
			w.b.newline()
			w.walk(xobj, formResources, depth+1)
			w.b.newline()
		}
	})
}

// fontEncoder returns the decoder for a font dictionary. A missing font decodes
// as PDFDocEncoding.
func fontEncoder(fontDict pdf.Value) pdf.TextEncoding {
	f := pdf.Font{V: fontDict}
	return f.Encoder()
}

func (w *textWalker) show(enc pdf.TextEncoding, args []pdf.Value) {
	if len(args) == 0 || args[len(args)-1].Kind() != pdf.String {
		return
	}
	w.b.write(enc.Decode(args[len(args)-1].RawString()))
}

// formFieldLines lists "name: value" for each filled widget on page. Fields
// already listed on an earlier page (radio groups, repeated widgets) are skipped.
func formFieldLines(page pdf.Page, seen map[string]bool) []string {
	annots := page.V.Key("Annots")
	var lines []string
	for i := 0; i < annots.Len(); i++ {
		annot := annots.Index(i)
		if annot.Key("Subtype").Name() != "Widget" {
			continue
		}
		name, value := fieldNameValue(annot)
		if value == "" || seen[name] {
			continue
		}
		seen[name] = true
		lines = append(lines, name+": "+value)
	}
	return lines
}

// fieldNameValue walks from a widget up its Parent chain, building the fully
// qualified field name and picking up the inherited value.
func fieldNameValue(widget pdf.Value) (string, string) {
	var names []string
	value := ""
	for v, depth := widget, 0; !v.IsNull() && depth < maxFormDepth; v, depth = v.Key("Parent"), depth+1 {
		if t := v.Key("T"); t.Kind() == pdf.String {
			names = append([]string{t.Text()}, names...)
		}
		if value == "" {
			value = fieldValue(v.Key("V"))
		}
	}
	name := strings.Join(names, ".")
	if name == "" {
		name = "field"
	}
	return name, strings.TrimSpace(value)
}

func fieldValue(v pdf.Value) string {
	switch v.Kind() {
	case pdf.String:
		return v.Text()
	case pdf.Name:
		if v.Name() == "Off" {
			return ""
		}
		return v.Name()
	case pdf.Array:
		var parts []string
		for i := 0; i < v.Len(); i++ {
			if s := fieldValue(v.Index(i)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

type textBuilder struct {
	b    strings.Builder
	last rune
}

func (t *textBuilder) String() string { return t.b.String() }

// write drops C0 and C1 control characters; a font without a usable encoding
// otherwise leaks raw code bytes into the output.
func (t *textBuilder) write(s string) {
	for _, r := range s {
		if r == '\r' {
			r = '\n'
		}
		if r < 0x20 && r != '\n' && r != '\t' || r >= 0x7f && r <= 0x9f || r == '\uFFFD' {
			continue
		}
		t.b.WriteRune(r)
		t.last = r
	}
}

func (t *textBuilder) newline() {
	if t.b.Len() > 0 && t.last != '\n' {
		t.b.WriteByte('\n')
		t.last = '\n'
	}
}

func (t *textBuilder) space() {
	if t.b.Len() > 0 && t.last != ' ' && t.last != '\n' {
		t.b.WriteByte(' ')
		t.last = ' '
	}
}
