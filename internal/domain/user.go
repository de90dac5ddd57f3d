// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 64
	MaxNicknameLen = 36
)

var (
	ErrUserIDEmpty     = errors.New("userId empty")
	ErrUserIDTooLong   = errors.New("userId too long")
	ErrNicknameEmpty   = errors.New("nickname empty")
	ErrNicknameTooLong = errors.New("nickname too long")
)

// UserID is stable across reconnects; it comes from the client handshake.
type UserID string

type User struct {
	ID       UserID `json:"userId"`
	Nickname string `json:"nickname"`
}

// NewUser validates handshake identity. Both values are trimmed.
func NewUser(id, nickname string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &User{ID: UserID(id)}
	if err := u.SetNickname(nickname); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetNickname(nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return ErrNicknameEmpty
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLen {
		return ErrNicknameTooLong
	}
	u.Nickname = nickname
	return nil
}
