package bluray

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/charmap"
)

// ReplyStatus classifies a response from the player
type ReplyStatus int

const (
	// ReplyOK means the first line carried the "00" success code
	ReplyOK ReplyStatus = iota
	// ReplyError means the player answered but rejected the request
	ReplyError
	// ReplyOff means the player could not be reached at all
	ReplyOff
)

func (s ReplyStatus) String() string {
	switch s {
	case ReplyOK:
		return "ok"
	case ReplyError:
		return "error"
	case ReplyOff:
		return "off"
	default:
		return fmt.Sprintf("ReplyStatus(%d)", int(s))
	}
}

// Reply is a decoded player response. Fields holds the comma-split second
// line and is nil when the reply had no data line.
type Reply struct {
	Status ReplyStatus
	Fields []string
}

var gzipMagic = []byte{0x1f, 0x8b}

var errBadGzip = errors.New("bad gzip body")

// decodeBody turns raw response bytes into text, undoing optional gzip and
// falling back to Latin-1 when the payload is not valid UTF-8.
func decodeBody(raw []byte) (string, error) {
	if bytes.HasPrefix(raw, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("%w: %v", errBadGzip, err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(zr)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errBadGzip, err)
		}
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return string(text), nil
}

// ParseReply parses the two-line reply text
func ParseReply(text string) Reply {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Status: ReplyError}
	}

	lines := strings.Split(text, "\r\n")
	code := strings.TrimSpace(strings.Split(lines[0], ",")[0])
	if strings.HasPrefix(code, "FE") || code != "00" {
		return Reply{Status: ReplyError}
	}

	if len(lines) > 1 {
		return Reply{Status: ReplyOK, Fields: strings.Split(lines[1], ",")}
	}
	return Reply{Status: ReplyOK}
}
