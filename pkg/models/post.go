package models

// Address is the opaque identifier a content-addressed store returns for stored bytes.
type Address string

func (a Address) String() string {
	return string(a)
}

// Post is the signed portion of a message. Author is the text-encoded public key of the
// producer and Timestamp is milliseconds since the Unix epoch, assigned by the producer.
type Post struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

type SignedPost struct {
	Post
	Signature []byte `json:"signature"`
}

// TimelineEntry is a verified post together with the address it was fetched from.
type TimelineEntry struct {
	SignedPost
	Address Address `json:"address"`
}

func CloneSignedPost(in SignedPost) SignedPost {
	out := in
	if in.Signature != nil {
		out.Signature = append([]byte(nil), in.Signature...)
	}
	return out
}
