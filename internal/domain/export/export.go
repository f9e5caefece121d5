// Package export renders a conversation transcript as a downloadable file.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/matiasleandrokruk/llmhub/internal/domain/chat"
	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown export format %q (want json, markdown or text)", e.Format)
}

// ParseFormat accepts the format names plus "md" and "txt". Empty means markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "text", "txt":
		return FormatText, nil
	}
	return "", &UnknownFormatError{Format: s}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatText:
		return "txt"
	default:
		return "md"
	}
}

type Options struct {
	Format          Format
	IncludeMetadata bool
	// Now stamps the export; zero means time.Now.
	Now time.Time
}

type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

const (
	dateTimeLayout = "2006-01-02 15:04:05 UTC"
	timeLayout     = "15:04:05"
)

// Render formats conv and its messages. Timestamps are rendered in UTC.
func Render(conv chat.Conversation, msgs []chat.Message, opts Options) (Document, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	var body []byte
	switch opts.Format {
	case FormatJSON:
		b, err := renderJSON(conv, msgs, now)
		if err != nil {
			return Document{}, err
		}
		body = b
	case FormatMarkdown, "":
		opts.Format = FormatMarkdown
		body = renderMarkdown(conv, msgs, opts.IncludeMetadata, now)
	case FormatText:
		body = renderText(conv, msgs, opts.IncludeMetadata, now)
	default:
		return Document{}, &UnknownFormatError{Format: string(opts.Format)}
	}

	return Document{
		Filename:    Filename(conv.Title, opts.Format),
		ContentType: opts.Format.ContentType(),
		Body:        body,
	}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Filename replaces every non-alphanumeric character of title with "_".
func Filename(title string, f Format) string {
	base := unsafeFilenameChars.ReplaceAllString(title, "_")
	if base == "" {
		base = "conversation"
	}
	return base + "." + f.Extension()
}

type jsonExport struct {
	Conversation chat.Conversation `json:"conversation"`
	Messages     []chat.Message    `json:"messages"`
	ExportedAt   string            `json:"exportedAt"`
}

func renderJSON(conv chat.Conversation, msgs []chat.Message, now time.Time) ([]byte, error) {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	b, err := json.MarshalIndent(jsonExport{
		Conversation: conv,
		Messages:     msgs,
		ExportedAt:   now.Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal json: %w", err)
	}
	return b, nil
}

func renderMarkdown(conv chat.Conversation, msgs []chat.Message, meta bool, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", conv.Title)
	if meta {
		fmt.Fprintf(&buf, "**Model:** %s - %s\n", conv.ModelProvider, conv.ModelName)
		fmt.Fprintf(&buf, "**Created:** %s\n", millis(conv.CreatedAt).Format(dateTimeLayout))
		fmt.Fprintf(&buf, "**Exported:** %s\n\n", now.Format(dateTimeLayout))
		buf.WriteString("---\n\n")
	}
	for _, m := range msgs {
		role := "**Assistant**"
		if m.Role == llm.RoleUser {
			role = "**You**"
		}
		ts := ""
		if meta {
			ts = " _(" + millis(m.Timestamp).Format(timeLayout) + ")_"
		}
		fmt.Fprintf(&buf, "%s%s:\n%s\n\n", role, ts, m.Content)
	}
	return buf.Bytes()
}

func renderText(conv chat.Conversation, msgs []chat.Message, meta bool, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n\n", conv.Title, strings.Repeat("=", len([]rune(conv.Title))))
	if meta {
		fmt.Fprintf(&buf, "Model: %s - %s\n", conv.ModelProvider, conv.ModelName)
		fmt.Fprintf(&buf, "Created: %s\n", millis(conv.CreatedAt).Format(dateTimeLayout))
		fmt.Fprintf(&buf, "Exported: %s\n\n", now.Format(dateTimeLayout))
	}
	for _, m := range msgs {
		role := "Assistant"
		if m.Role == llm.RoleUser {
			role = "You"
		}
		ts := ""
		if meta {
			ts = " (" + millis(m.Timestamp).Format(timeLayout) + ")"
		}
		fmt.Fprintf(&buf, "%s%s:\n%s\n\n", role, ts, m.Content)
	}
	return buf.Bytes()
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
