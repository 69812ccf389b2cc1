package research

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"rsc.io/pdf"
)

const (
	maxContextDocumentRunes = 16_000
	maxPDFScanRunes         = 200_000
)

var (
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrEmptyDocument       = errors.New("document has no readable text")
)

// ContextDocument is brand material reduced to plain text for planning.
type ContextDocument struct {
	Name      string
	MediaType string
	Title     string
	Text      string
	Truncated bool
}

// PlannerContext renders the document the way the planner prompt embeds it.
func (d ContextDocument) PlannerContext() string {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return d.Text
	}
	return title + "\n\n" + d.Text
}

var documentTypesByExtension = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".json":     "application/json",
	".html":     "text/html",
	".htm":      "text/html",
	".pdf":      "application/pdf",
}

// ExtractContext turns an uploaded or fetched document into bounded plain
// text. The declared content type wins; the filename extension is used when
// the type is missing or generic.
func ExtractContext(filename, contentType string, data []byte) (ContextDocument, error) {
	doc := ContextDocument{
		Name:      strings.TrimSpace(filename),
		MediaType: documentMediaType(filename, contentType),
	}

	var (
		text string
		err  error
	)
	switch doc.MediaType {
	case "text/html", "application/xhtml+xml":
		doc.Title, text, err = extractHTMLText(data)
	case "text/plain", "text/markdown":
		text = string(data)
	case "text/csv":
		text, err = extractCSVText(data)
	case "application/json":
		text, err = extractJSONText(data)
	case "application/pdf":
		text, err = extractPDFText(data)
	default:
		if !strings.HasPrefix(doc.MediaType, "text/") {
			return doc, fmt.Errorf("%w: %s", ErrUnsupportedDocument, doc.MediaType)
		}
		text = string(data)
	}
	if err != nil {
		return doc, fmt.Errorf("extract %s: %w", doc.MediaType, err)
	}

	text = normalizeExtractedText(text)
	if text == "" {
		return doc, ErrEmptyDocument
	}
	doc.Title = trimToRunes(strings.TrimSpace(doc.Title), maxTitleRunes)
	doc.Truncated = utf8.RuneCountInString(text) > maxContextDocumentRunes
	doc.Text = trimToRunes(text, maxContextDocumentRunes)
	return doc, nil
}

func documentMediaType(filename, contentType string) string {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	if mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	if byExt, ok := documentTypesByExtension[strings.ToLower(path.Ext(filename))]; ok {
		return byExt
	}
	if mediaType == "" {
		return "application/octet-stream"
	}
	return mediaType
}

// extractCSVText renders rows as pipe-separated lines. Ragged rows are kept.
func extractCSVText(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var b strings.Builder
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		b.WriteString(strings.Join(record, " | "))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func extractJSONText(data []byte) (string, error) {
	if !json.Valid(data) {
		return string(data), nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return "", err
	}
	return pretty.String(), nil
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	runes := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		for _, item := range page.Content().Text {
			chunk := strings.TrimSpace(item.S)
			if chunk == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(chunk)
			runes += utf8.RuneCountInString(chunk) + 1
			if runes >= maxPDFScanRunes {
				return b.String(), nil
			}
		}
	}
	return b.String(), nil
}

func extractHTMLText(data []byte) (title, text string, err error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	var b strings.Builder
	collectHTMLText(doc, false, &b)
	return findHTMLTitle(doc), b.String(), nil
}

func findHTMLTitle(node *html.Node) string {
	if node.Type == html.ElementNode && strings.EqualFold(node.Data, "title") {
		var b strings.Builder
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
		return strings.Join(strings.Fields(b.String()), " ")
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if title := findHTMLTitle(child); title != "" {
			return title
		}
	}
	return ""
}

func collectHTMLText(node *html.Node, skip bool, out *strings.Builder) {
	if node.Type == html.ElementNode {
		switch strings.ToLower(node.Data) {
		case "script", "style", "noscript", "svg", "iframe", "head", "nav", "footer":
			skip = true
		case "p", "div", "section", "article", "li", "h1", "h2", "h3", "h4", "h5", "h6", "br", "tr":
			out.WriteByte('\n')
		}
	}
	if node.Type == html.TextNode && !skip {
		if trimmed := strings.TrimSpace(node.Data); trimmed != "" {
			out.WriteString(trimmed)
			out.WriteByte(' ')
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectHTMLText(child, skip, out)
	}
}

// normalizeExtractedText drops blank lines and collapses runs of whitespace.
func normalizeExtractedText(raw string) string {
	raw = strings.ToValidUTF8(strings.ReplaceAll(raw, "\r\n", "\n"), "")
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			kept = append(kept, strings.Join(fields, " "))
		}
	}
	return strings.Join(kept, "\n")
}
