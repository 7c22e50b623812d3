// Package extract turns uploaded text-like files into plain text for ingestion
package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// Format is the extraction strategy selected by file extension
type Format string

const (
	FormatPlain    Format = "plain"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

var formats = map[string]Format{
	".txt":      FormatPlain,
	".text":     FormatPlain,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// Result is the text recovered from a file
type Result struct {
	Title  string
	Text   string
	Format Format
}

// Service extracts text from uploads
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new extract service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// FormatFor returns the format for filename and whether it is supported
func FormatFor(filename string) (Format, bool) {
	format, ok := formats[strings.ToLower(filepath.Ext(filename))]
	return format, ok
}

// Extract returns the text of a supported file. Invalid UTF-8 is rejected.
func (s *Service) Extract(filename string, data []byte) (*Result, error) {
	format, ok := FormatFor(filename)
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", filename)
	}

	result := &Result{Title: filename, Format: format}
	content := string(data)

	switch format {
	case FormatHTML:
		title, text, err := s.HTMLToText(content)
		if err != nil {
			return nil, err
		}
		if title != "" {
			result.Title = title
		}
		result.Text = text
	case FormatMarkdown:
		result.Text = MarkdownToText(content)
	default:
		result.Text = content
	}

	result.Text = strings.TrimSpace(result.Text)

	s.logger.Debug().
		Str("filename", filename).
		Str("format", string(format)).
		Int("input_length", len(data)).
		Int("text_length", len(result.Text)).
		Msg("Extracted text from upload")

	return result, nil
}

// HTMLToText reads the page title and converts the body to markdown.
// Scripts and styles are dropped before conversion.
func (s *Service) HTMLToText(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, head").Remove()

	body, err := doc.Html()
	if err != nil {
		return title, stripHTMLTags(html), nil
	}

	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(body)
	if err != nil || strings.TrimSpace(converted) == "" {
		s.logger.Warn().Err(err).Int("html_length", len(html)).Msg("HTML to markdown conversion failed, using fallback")
		return title, stripHTMLTags(body), nil
	}

	return title, converted, nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// stripHTMLTags removes tags and collapses whitespace
func stripHTMLTags(htmlStr string) string {
	cleaned := spacePattern.ReplaceAllString(tagPattern.ReplaceAllString(htmlStr, ""), " ")

	cleaned = strings.ReplaceAll(cleaned, "&amp;", "&")
	cleaned = strings.ReplaceAll(cleaned, "&lt;", "<")
	cleaned = strings.ReplaceAll(cleaned, "&gt;", ">")
	cleaned = strings.ReplaceAll(cleaned, "&quot;", "\"")
	cleaned = strings.ReplaceAll(cleaned, "&#39;", "'")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")

	return strings.TrimSpace(cleaned)
}

// Chunk splits text into pieces of at most size runes. Empty text yields no chunks.
func Chunk(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
