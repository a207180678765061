package history

import "github.com/goccy/go-json"

// MarshalJSON encodes the buffer as its samples ordered oldest to newest.
func (b *Buffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Values())
}
