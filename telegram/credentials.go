// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"fmt"
	"os"
	"slices"
)

type Secrets struct {
	BotToken string `json:"token"`

	// OwnerID and OtherIDs are the telegram user names allowed to use the bot
	// commands. All of them receive the notifications.
	OwnerID string `json:"owner"`

	OtherIDs []string `json:"others"`
}

func (v *Secrets) Check() error {
	if len(v.BotToken) == 0 {
		return fmt.Errorf("bot token cannot be empty: %w", os.ErrInvalid)
	}
	if len(v.OwnerID) == 0 {
		return fmt.Errorf("owner id cannot be empty: %w", os.ErrInvalid)
	}
	if slices.Contains(v.OtherIDs, "") {
		return fmt.Errorf("empty string in other ids is not a valid id: %w", os.ErrInvalid)
	}
	if slices.Contains(v.OtherIDs, v.OwnerID) {
		return fmt.Errorf("owner id should not be repeated in other ids: %w", os.ErrInvalid)
	}
	return nil
}

func (v *Secrets) Clone() *Secrets {
	return &Secrets{
		BotToken: v.BotToken,
		OwnerID:  v.OwnerID,
		OtherIDs: slices.Clone(v.OtherIDs),
	}
}

func (v *Secrets) isValidUser(user string) bool {
	return len(user) != 0 && (user == v.OwnerID || slices.Contains(v.OtherIDs, user))
}
