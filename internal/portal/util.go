package portal

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// randomTaggedAddress mirrors the reference implementation's
// Address::random_tagged: a human-readable prefix plus a random suffix,
// unique enough that two workers never collide in the router's registry.
func randomTaggedAddress(tag string) string {
	return fmt.Sprintf("%s_%s", tag, uuid.NewString())
}

func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
