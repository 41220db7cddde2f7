// Package protocol defines the wire messages exchanged over the
// Palace websocket connection: the inbound command envelope, the
// outbound response/event envelope, and the 128-bit identifiers used
// to name players and lobbies.
package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PlayerId and LobbyId are 128-bit tokens rendered as lowercase hex on
// the wire, with no padding or prefix.
type PlayerId [16]byte
type LobbyId [16]byte

func newID() [16]byte {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		panic("protocol: failed to read random bytes: " + err.Error())
	}
	return id
}

// NewPlayerId generates a fresh random player identifier.
func NewPlayerId() PlayerId { return PlayerId(newID()) }

// NewLobbyId generates a fresh random lobby identifier.
func NewLobbyId() LobbyId { return LobbyId(newID()) }

func (id PlayerId) String() string { return hex.EncodeToString(id[:]) }
func (id LobbyId) String() string  { return hex.EncodeToString(id[:]) }

func (id PlayerId) MarshalJSON() ([]byte, error) { return marshalHex(id[:]) }
func (id LobbyId) MarshalJSON() ([]byte, error)  { return marshalHex(id[:]) }

func (id *PlayerId) UnmarshalJSON(data []byte) error { return unmarshalHex(data, id[:]) }
func (id *LobbyId) UnmarshalJSON(data []byte) error  { return unmarshalHex(data, id[:]) }

func marshalHex(b []byte) ([]byte, error) {
	out := make([]byte, 0, len(b)*2+2)
	out = append(out, '"')
	out = append(out, []byte(hex.EncodeToString(b))...)
	out = append(out, '"')
	return out, nil
}

func unmarshalHex(data []byte, dst []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("protocol: expected JSON string, got %q", data)
	}
	decoded, err := hex.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return fmt.Errorf("protocol: invalid hex id: %w", err)
	}
	if len(decoded) != len(dst) {
		return fmt.Errorf("protocol: expected %d id bytes, got %d", len(dst), len(decoded))
	}
	copy(dst, decoded)
	return nil
}
