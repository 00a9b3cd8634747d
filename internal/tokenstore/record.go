package tokenstore

import (
	"encoding/json"
	"errors"

	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
)

// StorageKey is the fixed key the session is persisted under.
const StorageKey = "auth-storage"

const recordVersion = 0

// record is the persisted envelope: {"state": {...}, "version": 0}.
// isAuthenticated is written for readers of the raw record but never trusted
// on load.
type record struct {
	State struct {
		User            *loyaltysdk.UserProfile `json:"user"`
		Token           *string                 `json:"token"`
		RefreshToken    *string                 `json:"refreshToken"`
		IsAuthenticated bool                    `json:"isAuthenticated"`
	} `json:"state"`
	Version int `json:"version"`
}

func encodeState(s State) ([]byte, error) {
	var r record
	r.Version = recordVersion
	r.State.User = s.User
	r.State.Token = nonEmpty(s.AccessToken)
	r.State.RefreshToken = nonEmpty(s.RefreshToken)
	r.State.IsAuthenticated = s.IsAuthenticated()
	return json.Marshal(r)
}

func decodeState(raw []byte) (State, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return State{}, errors.Join(ErrCorrupt, err)
	}

	var s State
	s.User = r.State.User
	if r.State.Token != nil {
		s.AccessToken = *r.State.Token
	}
	if r.State.RefreshToken != nil {
		s.RefreshToken = *r.State.RefreshToken
	}
	return s, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
