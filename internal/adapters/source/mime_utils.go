package source

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/utils"
	"golang.org/x/text/encoding/htmlindex"
)

// headerGetter is satisfied by both mail.Header and textproto.MIMEHeader
type headerGetter interface {
	Get(key string) string
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// ParseMessage reads an RFC 5322 message into an EmailInput. The id comes
// from the Message-ID header, or newID when the header is absent.
func ParseMessage(r io.Reader, newID func() string) (core.EmailInput, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return core.EmailInput{}, fmt.Errorf("failed to parse email message: %w", err)
	}

	body, err := extractText(msg.Header, msg.Body)
	if err != nil {
		return core.EmailInput{}, fmt.Errorf("failed to extract text content: %w", err)
	}

	if newID == nil {
		newID = uuid.NewString
	}
	id := strings.Trim(strings.TrimSpace(msg.Header.Get("Message-ID")), "<>")
	if id == "" {
		id = newID()
	}

	date := strings.TrimSpace(msg.Header.Get("Date"))
	if parsed, err := msg.Header.Date(); err == nil {
		date = parsed.UTC().Format(time.RFC3339)
	}

	return core.EmailInput{
		ID:      id,
		Date:    date,
		Subject: decodeHeader(msg.Header.Get("Subject")),
		Body:    body,
		Sender:  decodeHeader(msg.Header.Get("From")),
	}, nil
}

// decodeHeader decodes RFC 2047 encoded words, returning the raw value if decoding fails
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractText returns the readable text of a message or MIME part.
// For multipart content text/plain parts are preferred; text/html parts are
// only used, stripped of markup, when no plain part exists.
func extractText(header headerGetter, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	decoded := decodeTransfer(header.Get("Content-Transfer-Encoding"), body)

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return readText(decoded, params["charset"])
		}
		return extractMultipart(decoded, boundary)
	}

	text, err := readText(decoded, params["charset"])
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return utils.StripHTML(text), nil
	}
	return text, nil
}

func extractMultipart(r io.Reader, boundary string) (string, error) {
	mr := multipart.NewReader(r, boundary)

	var plain, html []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Keep what was readable before a broken boundary
			if len(plain) > 0 || len(html) > 0 {
				break
			}
			return "", fmt.Errorf("failed to read multipart body: %w", err)
		}

		if isAttachment(part) {
			continue
		}

		mediaType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			text, err := extractText(part.Header, part)
			if err == nil && strings.TrimSpace(text) != "" {
				plain = append(plain, text)
			}
		case mediaType == "text/plain":
			text, err := extractText(part.Header, part)
			if err == nil {
				plain = append(plain, text)
			}
		case mediaType == "text/html":
			text, err := extractText(part.Header, part)
			if err == nil {
				html = append(html, text)
			}
		}
	}

	if len(plain) > 0 {
		return strings.Join(plain, "\n"), nil
	}
	return strings.Join(html, "\n"), nil
}

func isAttachment(part *multipart.Part) bool {
	disposition, _, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	return err == nil && disposition == "attachment"
}

// decodeTransfer undoes the Content-Transfer-Encoding. multipart.Reader already
// decodes quoted-printable parts and hides the header.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func readText(r io.Reader, charset string) (string, error) {
	if charset != "" {
		decoded, err := charsetReader(charset, r)
		if err == nil {
			r = decoded
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
