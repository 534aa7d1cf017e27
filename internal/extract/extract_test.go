package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"

	apperrors "github.com/adverant/nexus/segment-worker/internal/errors"
	"github.com/adverant/nexus/segment-worker/internal/layout"
)

const (
	nsP = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	nsA = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsR = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const titleAndBodySlide = `<p:sld ` + nsP + ` ` + nsA + `><p:cSld><p:spTree>
<p:sp>
  <p:nvSpPr><p:cNvPr id="2" name="Title"/><p:cNvSpPr/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>
  <p:spPr><a:xfrm><a:off x="952500" y="952500"/><a:ext cx="4762500" cy="952500"/></a:xfrm></p:spPr>
  <p:txBody><a:p><a:r><a:t>Quarterly Review</a:t></a:r></a:p></p:txBody>
</p:sp>
<p:sp>
  <p:nvSpPr><p:cNvPr id="3" name="Body"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>
  <p:spPr><a:xfrm><a:off x="952500" y="2857500"/><a:ext cx="4762500" cy="1905000"/></a:xfrm></p:spPr>
  <p:txBody>
    <a:p><a:pPr><a:buChar char="•"/></a:pPr><a:r><a:rPr sz="1800" b="1"><a:solidFill><a:srgbClr val="ff0000"/></a:solidFill><a:latin typeface="Arial"/></a:rPr><a:t>Revenue up</a:t></a:r></a:p>
    <a:p><a:endParaRPr sz="1800"/></a:p>
    <a:p><a:r><a:t>Costs </a:t></a:r><a:r><a:t>down</a:t></a:r></a:p>
  </p:txBody>
</p:sp>
<p:grpSp>
  <p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="1905000" cy="1905000"/><a:chOff x="0" y="0"/><a:chExt cx="952500" cy="952500"/></a:xfrm></p:grpSpPr>
  <p:sp>
    <p:nvSpPr><p:cNvPr id="5" name="Logo"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>
    <p:spPr><a:xfrm><a:off x="95250" y="95250"/><a:ext cx="95250" cy="95250"/></a:xfrm></p:spPr>
    <p:txBody><a:p><a:r><a:t>ACME</a:t></a:r></a:p></p:txBody>
  </p:sp>
</p:grpSp>
</p:spTree></p:cSld></p:sld>`

const tableSlide = `<p:sld ` + nsP + ` ` + nsA + `><p:cSld><p:spTree>
<p:graphicFrame>
  <p:nvGraphicFramePr><p:cNvPr id="4" name="Table"/></p:nvGraphicFramePr>
  <p:xfrm><a:off x="0" y="0"/><a:ext cx="2857500" cy="476250"/></p:xfrm>
  <a:graphic><a:graphicData><a:tbl>
    <a:tblGrid><a:gridCol w="952500"/><a:gridCol w="1905000"/></a:tblGrid>
    <a:tr h="476250">
      <a:tc><a:txBody><a:p><a:r><a:t>A</a:t></a:r></a:p></a:txBody></a:tc>
      <a:tc><a:txBody><a:p><a:r><a:t>B</a:t></a:r></a:p></a:txBody></a:tc>
    </a:tr>
  </a:tbl></a:graphicData></a:graphic>
</p:graphicFrame>
</p:spTree></p:cSld></p:sld>`

func samplePresentation(t *testing.T) []byte {
	return buildZip(t, map[string]string{
		"ppt/presentation.xml": `<p:presentation ` + nsP + ` ` + nsR + `><p:sldIdLst>` +
			`<p:sldId id="256" r:id="rId3"/><p:sldId id="257" r:id="rId2"/>` +
			`</p:sldIdLst><p:sldSz cx="9144000" cy="6858000"/></p:presentation>`,
		"ppt/_rels/presentation.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide1.xml"/>` +
			`<Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide2.xml"/>` +
			`</Relationships>`,
		"ppt/slides/slide1.xml": tableSlide,
		"ppt/slides/slide2.xml": titleAndBodySlide,
	})
}

func TestExtractPresentation(t *testing.T) {
	deck, err := ExtractPresentation("deck.pptx", samplePresentation(t))
	if err != nil {
		t.Fatalf("ExtractPresentation: %v", err)
	}

	if len(deck.Slides) != 2 {
		t.Fatalf("got %d slides, want 2", len(deck.Slides))
	}
	if deck.FragmentCount() != 6 {
		t.Errorf("FragmentCount = %d, want 6", deck.FragmentCount())
	}

	first := deck.Slides[0]
	if first.ID != "slide-1" || first.Width != 960 || first.Height != 720 {
		t.Errorf("first slide = %s %vx%v", first.ID, first.Width, first.Height)
	}

	want := []layout.TextFragment{
		{
			ID: "slide-1-el1", Text: "Quarterly Review",
			Box:   layout.BoundingBox{X: 100, Y: 100, Width: 500, Height: 100},
			Style: layout.StyleHints{FontSize: 44},
		},
		{
			ID: "slide-1-el2", Text: "• Revenue up",
			Box:   layout.BoundingBox{X: 100, Y: 300, Width: 500, Height: 100},
			Style: layout.StyleHints{FontSize: 18, Bold: true, Family: "Arial", Color: "#FF0000"},
		},
		{
			ID: "slide-1-el3", Text: "Costs down",
			Box:   layout.BoundingBox{X: 100, Y: 400, Width: 500, Height: 100},
			Style: layout.StyleHints{FontSize: 18},
		},
		{
			ID: "slide-1-el4", Text: "ACME",
			Box:   layout.BoundingBox{X: 20, Y: 20, Width: 20, Height: 20},
			Style: layout.StyleHints{FontSize: 18},
		},
	}
	if len(first.Fragments) != len(want) {
		t.Fatalf("first slide fragments = %+v", first.Fragments)
	}
	for i, w := range want {
		if got := first.Fragments[i]; got != w {
			t.Errorf("fragment %d = %+v, want %+v", i, got, w)
		}
	}

	second := deck.Slides[1]
	if second.ID != "slide-2" || len(second.Fragments) != 2 {
		t.Fatalf("second slide = %+v", second)
	}
	cellB := second.Fragments[1]
	if cellB.Text != "B" || cellB.Box != (layout.BoundingBox{X: 100, Y: 0, Width: 200, Height: 50}) {
		t.Errorf("table cell = %+v", cellB)
	}
}

func TestExtractPresentationKeepsShapeTreeOrder(t *testing.T) {
	shape := func(id, text string) string {
		return `<p:sp><p:nvSpPr><p:cNvPr id="` + id + `" name="s"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>` +
			`<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="952500" cy="95250"/></a:xfrm></p:spPr>` +
			`<p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp>`
	}
	slide := `<p:sld ` + nsP + ` ` + nsA + `><p:cSld><p:spTree>` +
		`<p:grpSp><p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="952500" cy="952500"/></a:xfrm></p:grpSpPr>` +
		shape("2", "grouped") + `</p:grpSp>` +
		`<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="3" name="t"/></p:nvGraphicFramePr>` +
		`<p:xfrm><a:off x="0" y="0"/><a:ext cx="952500" cy="95250"/></p:xfrm>` +
		`<a:graphic><a:graphicData><a:tbl><a:tblGrid><a:gridCol w="952500"/></a:tblGrid>` +
		`<a:tr h="95250"><a:tc><a:txBody><a:p><a:r><a:t>cell</a:t></a:r></a:p></a:txBody></a:tc></a:tr>` +
		`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>` +
		shape("4", "after") +
		`</p:spTree></p:cSld></p:sld>`

	data := buildZip(t, map[string]string{
		"ppt/presentation.xml":  `<p:presentation ` + nsP + `/>`,
		"ppt/slides/slide1.xml": slide,
	})
	deck, err := ExtractPresentation("deck.pptx", data)
	if err != nil {
		t.Fatalf("ExtractPresentation: %v", err)
	}

	var got []string
	for _, f := range deck.Slides[0].Fragments {
		got = append(got, f.ID+"="+f.Text)
	}
	want := "slide-1-el1=grouped slide-1-el2=cell slide-1-el3=after"
	if strings.Join(got, " ") != want {
		t.Errorf("fragments = %v, want %s", got, want)
	}
}

func TestExtractPresentationFallsBackToSlideNumbers(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld ` + nsP + ` ` + nsA + `><p:cSld><p:spTree><p:sp><p:nvSpPr><p:cNvPr id="2" name="x"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>` +
			`<p:spPr/><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	data := buildZip(t, map[string]string{
		"ppt/presentation.xml":   `<p:presentation ` + nsP + `/>`,
		"ppt/slides/slide10.xml": slide("ten"),
		"ppt/slides/slide2.xml":  slide("two"),
	})

	deck, err := ExtractPresentation("deck.pptx", data)
	if err != nil {
		t.Fatalf("ExtractPresentation: %v", err)
	}
	if len(deck.Slides) != 2 {
		t.Fatalf("got %d slides", len(deck.Slides))
	}
	if deck.Slides[0].Fragments[0].Text != "two" || deck.Slides[1].Fragments[0].Text != "ten" {
		t.Errorf("slide order wrong: %q then %q", deck.Slides[0].Fragments[0].Text, deck.Slides[1].Fragments[0].Text)
	}
	if deck.Slides[0].Width != 1280 || deck.Slides[0].Height != 720 {
		t.Errorf("default slide size = %vx%v", deck.Slides[0].Width, deck.Slides[0].Height)
	}
	// No xfrm: body placeholder default sits inside the slide.
	box := deck.Slides[0].Fragments[0].Box
	if box.Width <= 0 || box.X+box.Width > 1280 || box.Y+box.Height > 720 {
		t.Errorf("default placement = %+v", box)
	}
}

func TestExtractPresentationRejectsBrokenArchives(t *testing.T) {
	if _, err := ExtractPresentation("x.pptx", []byte("not a zip")); err == nil {
		t.Error("expected error for non-zip input")
	}
	empty := buildZip(t, map[string]string{"ppt/presentation.xml": `<p:presentation ` + nsP + `/>`})
	if _, err := ExtractPresentation("x.pptx", empty); err == nil {
		t.Error("expected error for presentation without slides")
	}
}

type stubRecognizer struct {
	lines []OCRLine
	err   error
}

func (s *stubRecognizer) Lines(ctx context.Context, data []byte) ([]OCRLine, error) {
	return s.lines, s.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestExtractImage(t *testing.T) {
	rec := &stubRecognizer{lines: []OCRLine{
		{Text: " Hello world \n", Box: image.Rect(10, 10, 110, 50), Confidence: 91},
		{Text: "|||", Box: image.Rect(0, 0, 5, 90), Confidence: 12},
		{Text: "  ", Box: image.Rect(0, 60, 50, 70), Confidence: 95},
	}}

	deck, err := ExtractImage(context.Background(), rec, "slide.png", pngBytes(t, 200, 100))
	if err != nil {
		t.Fatalf("ExtractImage: %v", err)
	}

	s := deck.Slides[0]
	if s.Width != 200 || s.Height != 100 {
		t.Errorf("slide size = %vx%v", s.Width, s.Height)
	}
	if len(s.Fragments) != 1 {
		t.Fatalf("fragments = %+v", s.Fragments)
	}
	f := s.Fragments[0]
	if f.ID != "slide-1-ocr1" || f.Text != "Hello world" {
		t.Errorf("fragment = %+v", f)
	}
	if f.Box != (layout.BoundingBox{X: 10, Y: 10, Width: 100, Height: 40}) || f.Style.FontSize != 30 {
		t.Errorf("fragment geometry = %+v %+v", f.Box, f.Style)
	}

	if _, err := ExtractImage(context.Background(), rec, "slide.png", []byte("nope")); err == nil {
		t.Error("expected decode error")
	}
}

func TestTextExtractor(t *testing.T) {
	docx := buildZip(t, map[string]string{
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Nexus</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>API</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
			`</w:body></w:document>`,
	})

	tests := []struct {
		name    string
		file    string
		data    []byte
		want    []string
		notWant []string
	}{
		{
			name: "plain text",
			file: "notes.txt",
			data: []byte("  Acme   Corp\r\n\r\n\r\n\r\nships\tWidgets  "),
			want: []string{"Acme Corp\n\nships Widgets"},
		},
		{
			name: "markdown",
			file: "readme.md",
			data: []byte("# Title\n\nSome *bold* text.\n\n```\ncode line\n```\n"),
			want: []string{"Title", "Some bold text.", "code line"},
		},
		{
			name:    "html",
			file:    "page.html",
			data:    []byte(`<html><head><style>p{color:red}</style><script>var x = 1;</script></head><body><h1>Hi</h1><p>There &amp; back</p></body></html>`),
			want:    []string{"Hi", "There & back"},
			notWant: []string{"var x", "color"},
		},
		{
			name:    "html self-closing script",
			file:    "page.html",
			data:    []byte(`<html><head><script src="app.js"/></head><body><p>Still here</p><script>var y = 2;</script><p>And here</p></body></html>`),
			want:    []string{"Still here", "And here"},
			notWant: []string{"var y", "<p>"},
		},
		{
			name: "docx",
			file: "brief.docx",
			data: docx,
			want: []string{"Hello world", "Nexus API"},
		},
	}

	e := &TextExtractor{TempDir: t.TempDir()}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Extract(tc.file, tc.data)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Errorf("output %q missing %q", got, w)
				}
			}
			for _, w := range tc.notWant {
				if strings.Contains(got, w) {
					t.Errorf("output %q should not contain %q", got, w)
				}
			}
		})
	}

	if _, err := e.Extract("deck.pptx", nil); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestPDFTempFileRemovedOnFailure(t *testing.T) {
	dir := t.TempDir()
	e := &TextExtractor{TempDir: dir}

	if _, err := e.Extract("broken.pdf", []byte("%PDF-1.4 garbage")); err == nil {
		t.Error("expected error for malformed PDF")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cafe\u0301", "Caf\u00e9"},
		{"a  b", "a b"},
		{"\uFEFFline\x00one\r\nline two", "lineone\nline two"},
		{"x\n\n\n\n\ny", "x\n\ny"},
		{"   ", ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDetectMimeType(t *testing.T) {
	zipData := buildZip(t, map[string]string{"a.txt": "a"})
	tests := []struct {
		name string
		data []byte
		file string
		want string
	}{
		{"pdf", []byte("%PDF-1.7"), "a.pdf", "application/pdf"},
		{"png", pngBytes(t, 1, 1), "a.png", "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "a.jpg", "image/jpeg"},
		{"pptx", zipData, "a.pptx", mimePPTX},
		{"docx", zipData, "a.DOCX", mimeDOCX},
		{"zip", zipData, "a.zip", "application/zip"},
		{"text", []byte("hello"), "a.txt", ""},
		{"short", []byte("ab"), "a.bin", ""},
	}
	for _, tc := range tests {
		if got := DetectMimeType(tc.data, tc.file); got != tc.want {
			t.Errorf("%s: DetectMimeType = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestValidateUpload(t *testing.T) {
	zipData := buildZip(t, map[string]string{"a.txt": "a"})
	tests := []struct {
		name    string
		file    string
		data    []byte
		variant Variant
		max     int64
		code    apperrors.ErrorCode
	}{
		{"pptx ok", "deck.pptx", zipData, VariantVisual, 1 << 20, ""},
		{"text ok", "notes.txt", []byte("hello"), VariantGlossary, 1 << 20, ""},
		{"text for visual", "notes.txt", []byte("hello"), VariantVisual, 1 << 20, apperrors.ErrorUnsupportedFormat},
		{"pptx for glossary", "deck.pptx", zipData, VariantGlossary, 1 << 20, apperrors.ErrorUnsupportedFormat},
		{"too large", "notes.txt", []byte("hello world"), VariantGlossary, 5, apperrors.ErrorFileTooLarge},
		{"empty", "notes.txt", nil, VariantGlossary, 1 << 20, apperrors.ErrorEmptyText},
		{"pdf with wrong content", "paper.pdf", []byte("plain text"), VariantGlossary, 1 << 20, apperrors.ErrorUnsupportedFormat},
		{"unknown variant", "notes.txt", []byte("hello"), Variant("audio"), 1 << 20, apperrors.ErrorUnsupportedFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUpload("job-1", tc.file, tc.data, tc.variant, tc.max)
			if got := apperrors.CodeOf(err); got != tc.code {
				t.Errorf("code = %q, want %q (err=%v)", got, tc.code, err)
			}
			if tc.code != "" && !apperrors.IsInputError(err) {
				t.Errorf("expected input error, got %v", err)
			}
		})
	}
}

func TestParseVariant(t *testing.T) {
	if v, ok := ParseVariant(" Visual "); !ok || v != VariantVisual {
		t.Errorf("ParseVariant(Visual) = %q, %v", v, ok)
	}
	if _, ok := ParseVariant("audio"); ok {
		t.Error("ParseVariant(audio) should fail")
	}
}

func TestExtractorRoutesByExtension(t *testing.T) {
	e := &Extractor{OCR: &stubRecognizer{}}
	if _, err := e.ExtractDeck(context.Background(), "deck.pptx", samplePresentation(t)); err != nil {
		t.Errorf("pptx: %v", err)
	}
	if _, err := e.ExtractDeck(context.Background(), "slide.png", pngBytes(t, 10, 10)); err != nil {
		t.Errorf("png: %v", err)
	}
	if _, err := e.ExtractDeck(context.Background(), "notes.txt", []byte("x")); err == nil {
		t.Error("expected error for txt deck")
	}
	if got, err := e.ExtractText("notes.txt", []byte(" hi ")); err != nil || got != "hi" {
		t.Errorf("ExtractText = %q, %v", got, err)
	}
}
