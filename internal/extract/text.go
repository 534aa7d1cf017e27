package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// TextExtractor pulls plain text out of glossary uploads
type TextExtractor struct {
	TempDir string
}

// Extract dispatches on the file extension and returns normalised text.
func (e *TextExtractor) Extract(fileName string, data []byte) (string, error) {
	var (
		raw string
		err error
	)

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt":
		raw = string(data)
	case ".md", ".markdown":
		raw = markdownText(data)
	case ".html", ".htm":
		raw, err = htmlText(data)
	case ".pdf":
		raw, err = e.pdfText(data)
	case ".docx":
		raw, err = docxText(data)
	default:
		return "", fmt.Errorf("no text extractor for %s", fileName)
	}
	if err != nil {
		return "", err
	}

	return Normalize(raw), nil
}

func markdownText(src []byte) string {
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(src))

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}

var htmlBlockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "table": true, "ul": true, "ol": true, "blockquote": true,
}

func htmlText(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))

	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return b.String(), nil
			}
			return "", fmt.Errorf("failed to parse HTML: %w", z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if htmlBlockTags[tag] {
				b.WriteString("\n")
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				// <script/> has no body and no end tag.
				z.NextIsNotRawText()
			}
			if htmlBlockTags[tag] {
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if htmlBlockTags[tag] {
				b.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// pdfText writes the upload to a private temp file because the reader
// works on files; the file is removed on every path.
func (e *TextExtractor) pdfText(data []byte) (text string, err error) {
	dir := e.TempDir
	if dir != "" {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return "", fmt.Errorf("failed to create temp dir: %w", mkErr)
		}
	}

	tmp, err := os.CreateTemp(dir, "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to read PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read PDF page %d: %w", i, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

type docxDocument struct {
	Paragraphs []docxParagraph `xml:"body>p"`
	Tables     []docxTable     `xml:"body>tbl"`
}

type docxParagraph struct {
	Runs []struct {
		Text []string `xml:"t"`
	} `xml:"r"`
}

type docxTable struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []docxParagraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func (p docxParagraph) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			b.WriteString(t)
		}
	}
	return b.String()
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening ZIP archive: %w", err)
	}

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	var doc docxDocument
	if err := readXMLPart(parts, "word/document.xml", &doc); err != nil {
		return "", fmt.Errorf("parsing document: %w", err)
	}

	var b strings.Builder
	for _, p := range doc.Paragraphs {
		b.WriteString(p.text())
		b.WriteString("\n")
	}
	for _, t := range doc.Tables {
		for _, row := range t.Rows {
			var cells []string
			for _, c := range row.Cells {
				var texts []string
				for _, p := range c.Paragraphs {
					texts = append(texts, p.text())
				}
				cells = append(cells, strings.Join(texts, " "))
			}
			b.WriteString(strings.Join(cells, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
