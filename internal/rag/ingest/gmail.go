package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"strings"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/pkg/logger_i"
)

var errEmptyMessage = errors.New("message has no text body")

// GmailExport reads a Google Takeout .mbox file. Each message becomes one
// document; messages without a text body are skipped.
func GmailExport(ctx context.Context, path string) ([]commonModels.Document, []Skipped, error) {
	log := logger_i.NewLogger("Ingest").WithTrace(ctx).With("mbox", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var docs []commonModels.Document
	var skipped []Skipped
	n := 0
	err = splitMbox(f, func(raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		doc, err := parseMessage(bytes.NewReader(raw))
		if err != nil {
			skipped = append(skipped, Skipped{Path: fmt.Sprintf("%s#%d", path, n), Reason: err.Error()})
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("mailbox read", "messages", n, "documents", len(docs), "skipped", len(skipped))
	return docs, skipped, nil
}

// splitMbox calls fn with each message of an mboxo/mboxrd stream.
func splitMbox(r io.Reader, fn func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64<<20)
	var msg bytes.Buffer
	started := false
	flush := func() error {
		if !started || msg.Len() == 0 {
			return nil
		}
		defer msg.Reset()
		return fn(bytes.Clone(msg.Bytes()))
	}
	for sc.Scan() {
		line := sc.Bytes()
		if bytes.HasPrefix(line, []byte("From ")) {
			if err := flush(); err != nil {
				return err
			}
			started = true
			continue
		}
		// mboxrd quoting: ">From " lines had one ">" added
		if bytes.HasPrefix(bytes.TrimLeft(line, ">"), []byte("From ")) && line[0] == '>' {
			line = line[1:]
		}
		msg.Write(line)
		msg.WriteString("\r\n")
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}

func parseMessage(r io.Reader) (commonModels.Document, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return commonModels.Document{}, fmt.Errorf("parsing message: %w", err)
	}
	subject := decodeHeader(msg.Header.Get("Subject"))
	from := decodeHeader(msg.Header.Get("From"))
	date := msg.Header.Get("Date")

	body, err := messageBody(msg.Header, msg.Body)
	if err != nil {
		return commonModels.Document{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return commonModels.Document{}, errEmptyMessage
	}

	var sb strings.Builder
	if subject != "" {
		sb.WriteString("Subject: " + subject + "\n")
	}
	if from != "" {
		sb.WriteString("From: " + from + "\n")
	}
	if date != "" {
		sb.WriteString("Date: " + date + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString(body)

	id := strings.Trim(msg.Header.Get("Message-Id"), "<> ")
	if id == "" {
		id = subject
	}
	return commonModels.Document{SourceID: "gmail:" + id, Text: sb.String(), DocType: commonModels.EMAIL}, nil
}

type partHeader interface {
	Get(key string) string
}

// messageBody prefers text/plain parts over HTML ones, recursing into
// nested multiparts.
func messageBody(h partHeader, r io.Reader) (string, error) {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if params["boundary"] == "" {
			return "", nil
		}
		mr := multipart.NewReader(r, params["boundary"])
		var plain, html []string
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			ct, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if strings.HasPrefix(part.Header.Get("Content-Disposition"), "attachment") {
				part.Close()
				continue
			}
			text, err := messageBody(part.Header, part)
			part.Close()
			if err != nil || strings.TrimSpace(text) == "" {
				continue
			}
			if ct == "text/html" {
				html = append(html, text)
			} else {
				plain = append(plain, text)
			}
		}
		if len(plain) > 0 {
			return strings.Join(plain, "\n"), nil
		}
		return strings.Join(html, "\n"), nil
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return "", nil
	}
	data, err := io.ReadAll(decodeTransfer(h.Get("Content-Transfer-Encoding"), r))
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmlToText(string(data)), nil
	}
	return string(data), nil
}

// multipart.Reader already undoes quoted-printable for parts; this covers
// single-part bodies and base64.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, &newlineStripper{r: r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

type newlineStripper struct {
	r io.Reader
}

func (n *newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		out := p[:0]
		for _, b := range p[:c] {
			if b != '\r' && b != '\n' {
				out = append(out, b)
			}
		}
		if len(out) > 0 || err != nil {
			return len(out), err
		}
	}
}

func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}
