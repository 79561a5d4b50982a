// Package wire defines the JSON frames exchanged with button units and the
// absolute-timestamp format the on-device gateway expects.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the wall-clock format the excluded on-device gateway parses
// ("%Y-%m-%d %H:%M:%S.%f" in Python strftime terms), microsecond precision.
const TimeLayout = "2006-01-02 15:04:05.000000"

// FormatAt renders t in the gateway's expected absolute-timestamp layout.
func FormatAt(t time.Time) string {
	return t.Format(TimeLayout)
}

// Inbound message type tags, one JSON object per frame.
const (
	TypeRegister        = "REGISTER"
	TypeButtonPressed    = "BUTTON_PRESSED"
	TypeButtonReleased   = "BUTTON_RELEASED"
	TypeUnregister       = "UNREGISTER"
	TypePing             = "PING"
	TypePong             = "PONG"
)

// Outbound message type tags.
const (
	TypeButtonLED = "BUTTON_LED"
	TypeMatrixLED = "MATRIX_LED"
	TypeSound     = "SOUND"
)

const (
	ValueStart = "START"
	ValueOff   = "OFF"
	ValueStop  = "STOP"
)

// InboundEnvelope is used only to sniff the "type" discriminator before
// decoding into a concrete inbound message.
type InboundEnvelope struct {
	Type string `json:"type"`
}

// Register is the first frame on a fresh connection, binding it to a unit_id.
type Register struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Ping/Pong carry an application-level nonce since golang.org/x/net/websocket
// does not expose control-frame RTT the way a draft-compliant client would.
type Ping struct {
	Type   string `json:"type"`
	Nonce  int64  `json:"nonce"`
	SentAt string `json:"sent_at"`
}

type Pong struct {
	Type  string `json:"type"`
	Nonce int64  `json:"nonce"`
}

// ButtonLED is the BUTTON_LED / MATRIX_LED actuator command. Pattern holds
// either a named pattern string or a marshalled [R,G,B] triple; callers pick
// the right constructor rather than setting both fields.
type ButtonLED struct {
	Type    string          `json:"type"`
	Value   string          `json:"value"`
	Pattern json.RawMessage `json:"pattern,omitempty"`
	At      string          `json:"at,omitempty"`
}

// NamedPattern marshals a named LED pattern (e.g. "colorscroll", "flash_red").
func NamedPattern(name string) json.RawMessage {
	b, _ := json.Marshal(name)
	return b
}

// RGBPattern marshals an explicit [R,G,B] triple, each 0..255.
func RGBPattern(r, g, b uint8) json.RawMessage {
	raw, _ := json.Marshal([3]uint8{r, g, b})
	return raw
}

// Sound is the SOUND actuator command.
type Sound struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Filename string `json:"filename,omitempty"`
	At       string `json:"at,omitempty"`
}

// NewButtonLEDStart builds a BUTTON_LED START command for delivery at t.
func NewButtonLEDStart(pattern json.RawMessage, t time.Time) ButtonLED {
	return ButtonLED{Type: TypeButtonLED, Value: ValueStart, Pattern: pattern, At: FormatAt(t)}
}

// NewButtonLEDOff builds a BUTTON_LED OFF command for delivery at t.
func NewButtonLEDOff(t time.Time) ButtonLED {
	return ButtonLED{Type: TypeButtonLED, Value: ValueOff, At: FormatAt(t)}
}

// NewMatrixLEDStart builds a MATRIX_LED START command for delivery at t.
func NewMatrixLEDStart(pattern json.RawMessage, t time.Time) ButtonLED {
	return ButtonLED{Type: TypeMatrixLED, Value: ValueStart, Pattern: pattern, At: FormatAt(t)}
}

// NewMatrixLEDOff builds a MATRIX_LED OFF command for delivery at t.
func NewMatrixLEDOff(t time.Time) ButtonLED {
	return ButtonLED{Type: TypeMatrixLED, Value: ValueOff, At: FormatAt(t)}
}

// NewSoundStart builds a SOUND START command for delivery at t.
func NewSoundStart(filename string, t time.Time) Sound {
	return Sound{Type: TypeSound, Value: ValueStart, Filename: filename, At: FormatAt(t)}
}

// NewSoundStop builds a SOUND STOP command for delivery at t.
func NewSoundStop(t time.Time) Sound {
	return Sound{Type: TypeSound, Value: ValueStop, At: FormatAt(t)}
}

// GMFail is the peer-to-peer notification an outgoing active coordinator
// sends to the best waiting candidate before stepping down.
type GMFail struct {
	Type string `json:"type"`
}

func NewGMFail() GMFail { return GMFail{Type: "GM_FAIL"} }

// ParseUnitID decodes the hex-string unit_id carried by REGISTER, with or
// without a leading "0x".
func ParseUnitID(hex string) (uint64, error) {
	s := hex
	if len(s) > 1 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return 0, fmt.Errorf("wire: invalid unit id %q: %w", hex, err)
	}
	return v, nil
}

// FormatUnitID renders a unit_id back to the hex-string form units expect.
func FormatUnitID(id uint64) string {
	return fmt.Sprintf("0x%x", id)
}
