// Package postcodec defines the byte encodings of posts: the canonical form that gets
// signed and verified, and the JSON document stored in the content-addressed store.
package postcodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"ipfs-social/go-backend/pkg/models"
)

var ErrDecode = errors.New("post decode failed")

// DecodeError describes why stored bytes are not a signed post.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "post decode failed: " + e.Reason
	}
	return fmt.Sprintf("post decode failed: %s: %s", e.Field, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

type canonicalPost struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

type wirePost struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// CanonicalBytes is the message that gets signed: a compact UTF-8 JSON object with the
// fields in the order content, author, timestamp and no HTML escaping.
func CanonicalBytes(post models.Post) []byte {
	out, err := encodeCompact(canonicalPost{
		Content:   post.Content,
		Author:    post.Author,
		Timestamp: post.Timestamp,
	})
	if err != nil {
		// Strings and integers always encode.
		panic(err)
	}
	return out
}

func Marshal(sp models.SignedPost) ([]byte, error) {
	return encodeCompact(wirePost{
		Content:   sp.Content,
		Author:    sp.Author,
		Timestamp: sp.Timestamp,
		Signature: base64.StdEncoding.EncodeToString(sp.Signature),
	})
}

// Unmarshal parses a stored post. Every failure is a *DecodeError; fields beyond the four
// known ones are ignored.
func Unmarshal(data []byte) (models.SignedPost, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return models.SignedPost{}, &DecodeError{Reason: "malformed json: " + err.Error()}
	}
	if fields == nil {
		return models.SignedPost{}, &DecodeError{Reason: "expected an object"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.SignedPost{}, &DecodeError{Reason: "trailing data after object"}
	}

	var out models.SignedPost
	var err error
	if out.Content, err = stringField(fields, "content"); err != nil {
		return models.SignedPost{}, err
	}
	if out.Author, err = stringField(fields, "author"); err != nil {
		return models.SignedPost{}, err
	}
	if out.Timestamp, err = integerField(fields, "timestamp"); err != nil {
		return models.SignedPost{}, err
	}
	sig, err := stringField(fields, "signature")
	if err != nil {
		return models.SignedPost{}, err
	}
	if out.Signature, err = base64.StdEncoding.DecodeString(sig); err != nil {
		return models.SignedPost{}, &DecodeError{Field: "signature", Reason: "invalid base64"}
	}
	return out, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", &DecodeError{Field: name, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", &DecodeError{Field: name, Reason: "expected a string"}
	}
	return s, nil
}

func integerField(fields map[string]json.RawMessage, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, &DecodeError{Field: name, Reason: "missing"}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || (trimmed[0] != '-' && (trimmed[0] < '0' || trimmed[0] > '9')) {
		return 0, &DecodeError{Field: name, Reason: "expected a number"}
	}
	v, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return 0, &DecodeError{Field: name, Reason: "expected an integer"}
	}
	return v, nil
}

func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
