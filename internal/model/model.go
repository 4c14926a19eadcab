package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

type RoomCode string

const EmptyRoomCode RoomCode = ""

// ClientID identifies one browser/bot session. Assigned per session,
// never persisted.
type ClientID string

// NewClientID mints a session id in the "user-<n>" form the presence
// fallback naming relies on.
func NewClientID() ClientID {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return ClientID(fmt.Sprintf("user-%d", n.Int64()))
}

// Suffix returns the part after the last '-', used for fallback
// display names.
func (id ClientID) Suffix() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (id ClientID) String() string {
	return string(id)
}
