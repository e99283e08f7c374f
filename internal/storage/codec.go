package storage

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brandon/outlook-email/pkg/types"
)

const (
	headerDelimiter = "---\n"
	fence           = "```"
)

// Encode renders an email as YAML front matter, a subject heading and a
// fenced body block tagged with the body content type.
func Encode(email *types.Email) ([]byte, error) {
	header, err := yaml.Marshal(email)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(headerDelimiter)
	buf.Write(header)
	buf.WriteString(headerDelimiter)
	buf.WriteString("\n# ")
	buf.WriteString(strings.Join(strings.Fields(email.DisplaySubject()), " "))
	buf.WriteString("\n")

	if email.Body != nil {
		buf.WriteString("\n")
		buf.WriteString(fence)
		buf.WriteString(email.Body.ContentType)
		buf.WriteString("\n")
		buf.WriteString(email.Body.Content)
		buf.WriteString("\n")
		buf.WriteString(fence)
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// Decode parses a record file. A file may carry only the header, and the
// body section is optional.
func Decode(data []byte) (*types.Email, error) {
	text := string(data)
	if !strings.HasPrefix(text, headerDelimiter) {
		return nil, fmt.Errorf("%w: missing front matter", ErrMalformed)
	}
	rest := text[len(headerDelimiter):]

	var header, remainder string
	switch {
	case strings.HasPrefix(rest, headerDelimiter):
		remainder = rest[len(headerDelimiter):]
	case strings.Contains(rest, "\n"+headerDelimiter):
		end := strings.Index(rest, "\n"+headerDelimiter)
		header = rest[:end+1]
		remainder = rest[end+1+len(headerDelimiter):]
	case strings.HasSuffix(rest, "\n---"):
		header = rest[:len(rest)-len("---")]
	default:
		return nil, fmt.Errorf("%w: unterminated front matter", ErrMalformed)
	}

	email := &types.Email{}
	if err := yaml.Unmarshal([]byte(header), email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if contentType, content, ok := parseBody(remainder); ok {
		if contentType == "" && email.Body != nil {
			contentType = email.Body.ContentType
		}
		email.Body = &types.Body{ContentType: contentType, Content: content}
	}

	return email, nil
}

// parseBody extracts the first fenced block. The closing fence is the last
// one in the file so bodies that contain fences survive.
func parseBody(section string) (string, string, bool) {
	open := -1
	if strings.HasPrefix(section, fence) {
		open = 0
	} else if i := strings.Index(section, "\n"+fence); i >= 0 {
		open = i + 1
	}
	if open < 0 {
		return "", "", false
	}

	lineEnd := strings.Index(section[open:], "\n")
	if lineEnd < 0 {
		return "", "", false
	}
	contentType := strings.TrimSpace(section[open+len(fence) : open+lineEnd])
	block := section[open+lineEnd+1:]

	closing := strings.LastIndex(block, "\n"+fence)
	switch {
	case closing >= 0:
		return contentType, block[:closing], true
	case strings.HasPrefix(block, fence):
		return contentType, "", true
	default:
		return contentType, strings.TrimSuffix(block, "\n"), true
	}
}
