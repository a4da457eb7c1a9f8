package mail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

const (
	// MaxAttachmentSize caps the decoded size of an attached document.
	MaxAttachmentSize = 10 << 20

	// 57 input bytes encode to exactly one 76 column base64 line.
	lineBytes  = 57
	lineWidth  = 76
	chunkBytes = lineBytes * 1024
)

// ErrAttachmentTooLarge is returned when an attachment exceeds MaxAttachmentSize.
var ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")

// Message is a plain text email with an optional attachment.
type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// Validate rejects messages that can never be delivered.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient address is missing", apperrors.ErrPermanent)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: invalid recipient %q", apperrors.ErrPermanent, m.To)
	}
	if _, err := mail.ParseAddress(m.From); err != nil {
		return fmt.Errorf("%w: invalid sender %q", apperrors.ErrPermanent, m.From)
	}
	return nil
}

// Build renders the message as RFC 5322 bytes.
func (m *Message) Build(now time.Time) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", m.From)
	writeHeader(&buf, "To", m.To)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader(&buf, "Date", now.UTC().Format(time.RFC1123Z))
	writeHeader(&buf, "MIME-Version", "1.0")

	if m.Attachment == nil {
		writeHeader(&buf, "Content-Type", "text/plain; charset=UTF-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuotedPrintable(&buf, m.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeQuotedPrintable(part, m.Body); err != nil {
		return nil, err
	}

	contentType := m.Attachment.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	filename := m.Attachment.Filename
	if filename == "" {
		filename = "invoice.pdf"
	}
	part, err = mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": filename})},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": filename})},
	})
	if err != nil {
		return nil, err
	}
	if err := EncodeBase64Lines(part, m.Attachment.Content, MaxAttachmentSize); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBase64Lines streams src as base64 in 76 column CRLF terminated lines,
// reading at most limit bytes in fixed size chunks.
func EncodeBase64Lines(dst io.Writer, src io.Reader, limit int64) error {
	chunk := make([]byte, chunkBytes)
	encoded := make([]byte, base64.StdEncoding.EncodedLen(chunkBytes))
	var total int64

	for {
		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return ErrAttachmentTooLarge
			}
			base64.StdEncoding.Encode(encoded, chunk[:n])
			if werr := writeLines(dst, encoded[:base64.StdEncoding.EncodedLen(n)]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
	}
}

func writeLines(dst io.Writer, encoded []byte) error {
	for len(encoded) > 0 {
		n := min(lineWidth, len(encoded))
		if _, err := dst.Write(encoded[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(dst, "\r\n"); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func writeQuotedPrintable(dst io.Writer, body string) error {
	qp := quotedprintable.NewWriter(dst)
	if _, err := io.WriteString(qp, body); err != nil {
		return err
	}
	return qp.Close()
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	// header values never carry line breaks
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}
