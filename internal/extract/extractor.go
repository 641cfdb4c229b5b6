// Package extract turns a document source (URL or local path) into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/thebtf/docenrich/internal/httpjson"
)

// Format is a supported document format.
type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatXLSX    Format = "xlsx"
	FormatText    Format = "text"
)

// DefaultMaxBytes caps how much of a source is read.
const DefaultMaxBytes int64 = 64 << 20

var (
	// ErrNoSource is returned for an empty source string.
	ErrNoSource = errors.New("extract: no source")
	// ErrUnsupportedFormat is returned when the format cannot be handled.
	ErrUnsupportedFormat = errors.New("extract: unsupported format")
	// ErrNoText is returned when a document has no extractable text layer.
	ErrNoText = errors.New("extract: no text")
	// ErrTooLarge is returned when a source exceeds the size cap.
	ErrTooLarge = errors.New("extract: source too large")
)

// Result is extracted text plus what was learned about the source.
type Result struct {
	Source      string `json:"source"`
	Text        string `json:"text"`
	Format      Format `json:"format"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Extractor fetches and parses documents.
type Extractor struct {
	client   *http.Client
	maxBytes int64
}

// New creates an Extractor whose remote fetches time out after timeout.
func New(timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Extractor{
		client:   &http.Client{Timeout: timeout},
		maxBytes: DefaultMaxBytes,
	}
}

// WithHTTPClient replaces the client used for remote sources.
func (e *Extractor) WithHTTPClient(c *http.Client) *Extractor {
	e.client = c
	return e
}

// WithMaxBytes changes the size cap.
func (e *Extractor) WithMaxBytes(n int64) *Extractor {
	if n > 0 {
		e.maxBytes = n
	}
	return e
}

// IsRemote reports whether source is fetched over HTTP.
func IsRemote(source string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Extract reads source and returns its text. The result text has CRLF line
// endings normalized and surrounding whitespace trimmed.
func (e *Extractor) Extract(ctx context.Context, source string) (Result, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Result{}, ErrNoSource
	}

	start := time.Now()
	data, contentType, err := e.read(ctx, source)
	if err != nil {
		return Result{}, err
	}

	format := Detect(nameOf(source), contentType, data)
	text, err := parse(format, data, contentType)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", source, err)
	}
	text = strings.TrimSpace(normalizeNewlines(text))
	if text == "" {
		return Result{}, fmt.Errorf("extract %s: %w", source, ErrNoText)
	}

	log.Debug().
		Str("source", source).
		Str("format", string(format)).
		Int("bytes", len(data)).
		Int("chars", len(text)).
		Dur("took", time.Since(start)).
		Msg("Extracted document")

	return Result{
		Source:      source,
		Text:        text,
		Format:      format,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

func (e *Extractor) read(ctx context.Context, source string) ([]byte, string, error) {
	if IsRemote(source) {
		return e.fetch(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, "", fmt.Errorf("extract: open %s: %w", source, err)
	}
	defer f.Close()

	data, err := e.readAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("extract: read %s: %w", source, err)
	}
	return data, "", nil
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("extract: build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("extract: GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("extract: %w", &httpjson.StatusError{
			Method:     http.MethodGet,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
		})
	}

	data, err := e.readAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("extract: read %s: %w", rawURL, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (e *Extractor) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// nameOf returns the file name part of a URL or path.
func nameOf(source string) string {
	if IsRemote(source) {
		if u, err := url.Parse(source); err == nil {
			return path.Base(u.Path)
		}
	}
	return filepath.Base(source)
}

var extFormats = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".xlsx":     FormatXLSX,
	".xlsm":     FormatXLSX,
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".csv":      FormatText,
}

// SupportedExtension reports whether a file name has an extension Extract
// understands without sniffing.
func SupportedExtension(name string) bool {
	_, found := extFormats[strings.ToLower(filepath.Ext(name))]
	return found
}

// Detect picks the format from the file extension, then the declared content
// type, then the content itself.
func Detect(name, contentType string, data []byte) Format {
	if f, found := extFormats[strings.ToLower(filepath.Ext(name))]; found {
		return f
	}
	if f := formatOfMIME(contentType); f != FormatUnknown {
		return f
	}
	if len(data) == 0 {
		return FormatUnknown
	}
	return formatOfMIME(mimetype.Detect(data).String())
}

func formatOfMIME(value string) Format {
	value = strings.TrimSpace(value)
	if value == "" {
		return FormatUnknown
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
	}

	switch {
	case mediaType == "application/pdf":
		return FormatPDF
	case mediaType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FormatDOCX
	case mediaType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX
	case strings.HasPrefix(mediaType, "text/"):
		return FormatText
	}
	return FormatUnknown
}

func parse(format Format, data []byte, contentType string) (string, error) {
	switch format {
	case FormatPDF:
		return pdfText(data)
	case FormatDOCX:
		return docxText(data)
	case FormatXLSX:
		return xlsxText(data)
	case FormatText:
		return decodeText(data, contentType)
	}
	return "", ErrUnsupportedFormat
}

// decodeText converts data to UTF-8 using the declared or sniffed charset.
func decodeText(data []byte, contentType string) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", errors.New("transcoded text is not valid utf-8")
	}
	return string(decoded), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
