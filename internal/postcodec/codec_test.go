package postcodec

import (
	"errors"
	"reflect"
	"testing"

	"ipfs-social/go-backend/pkg/models"
)

func TestCanonicalBytesFixedOrderAndEncoding(t *testing.T) {
	got := string(CanonicalBytes(models.Post{
		Content:   `hi <b>&</b> "quoted" ünïcode`,
		Author:    "8VfYpGfsw3sbyWv6tVxHqLTfBEZc2NNfBKzi4ydVeVHB",
		Timestamp: 1000,
	}))
	want := `{"content":"hi <b>&</b> \"quoted\" ünïcode","author":"8VfYpGfsw3sbyWv6tVxHqLTfBEZc2NNfBKzi4ydVeVHB","timestamp":1000}`
	if got != want {
		t.Fatalf("unexpected canonical bytes:\n got %s\nwant %s", got, want)
	}
}

func TestCanonicalBytesDeterministic(t *testing.T) {
	p := models.Post{Content: "same", Author: "a", Timestamp: 42}
	if string(CanonicalBytes(p)) != string(CanonicalBytes(p)) {
		t.Fatal("canonical bytes are not deterministic")
	}
	q := p
	q.Timestamp = 43
	if string(CanonicalBytes(p)) == string(CanonicalBytes(q)) {
		t.Fatal("different posts produced equal canonical bytes")
	}
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	in := models.SignedPost{
		Post: models.Post{
			Content:   "line one\nline two\t<tag>",
			Author:    "8VfYpGfsw3sbyWv6tVxHqLTfBEZc2NNfBKzi4ydVeVHB",
			Timestamp: 1_700_000_000_123,
		},
		Signature: []byte{0, 1, 2, 3, 250, 251, 252, 253},
	}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip mismatch:\n in %#v\nout %#v", in, out)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data := []byte(`{"content":"hi","author":"A","timestamp":1000,"signature":"AAEC","client":"web"}`)
	sp, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if sp.Content != "hi" || sp.Author != "A" || sp.Timestamp != 1000 || len(sp.Signature) != 3 {
		t.Fatalf("unexpected post: %#v", sp)
	}
}

func TestUnmarshalRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":             ``,
		"not json":          `hello`,
		"array":             `[1,2]`,
		"null":              `null`,
		"trailing data":     `{"content":"hi","author":"A","timestamp":1,"signature":""} {}`,
		"missing content":   `{"author":"A","timestamp":1,"signature":""}`,
		"missing author":    `{"content":"hi","timestamp":1,"signature":""}`,
		"missing timestamp": `{"content":"hi","author":"A","signature":""}`,
		"missing signature": `{"content":"hi","author":"A","timestamp":1}`,
		"content number":    `{"content":5,"author":"A","timestamp":1,"signature":""}`,
		"author null":       `{"content":"hi","author":null,"timestamp":1,"signature":""}`,
		"timestamp string":  `{"content":"hi","author":"A","timestamp":"1","signature":""}`,
		"timestamp float":   `{"content":"hi","author":"A","timestamp":1.5,"signature":""}`,
		"signature base64":  `{"content":"hi","author":"A","timestamp":1,"signature":"***"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			sp, err := Unmarshal([]byte(raw))
			if err == nil {
				t.Fatalf("expected decode error, got %#v", sp)
			}
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if !reflect.DeepEqual(sp, models.SignedPost{}) {
				t.Fatalf("partial object returned: %#v", sp)
			}
		})
	}
}
