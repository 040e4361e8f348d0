package bundle

import "fmt"

// Message type values carried in the "msg_type" key.
const (
	TypePositionUpdate   = "POSITION_UPDATE"
	TypeSatellitesUpdate = "SATELLITES_UPDATE"
)

// KeyType is the bundle key holding the message type.
const KeyType = "msg_type"

// Bundle is a flat string-keyed message delivered to the remote consumer.
// All values are stringified; the consumer parses them back on its side.
type Bundle map[string]string

// New creates a bundle pre-tagged with the given message type.
func New(msgType string) Bundle {
	return Bundle{KeyType: msgType}
}

// Type returns the message type, or "" if the bundle is untagged.
func (b Bundle) Type() string {
	return b[KeyType]
}

// Set stores a string value.
func (b Bundle) Set(key, value string) {
	b[key] = value
}

// SetFloat stores a float using fixed 6-decimal notation, the format the
// remote consumer expects for coordinate fields.
func (b Bundle) SetFloat(key string, value float64) {
	b[key] = fmt.Sprintf("%f", value)
}

// SetInt stores an integer value.
func (b Bundle) SetInt(key string, value int) {
	b[key] = fmt.Sprintf("%d", value)
}
