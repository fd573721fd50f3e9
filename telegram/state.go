// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// State holds the chat ids learned from the messages of authorized users. Bot
// can only send notifications to users that have messaged the bot before.
type State struct {
	UserChatIDMap map[string]int64
}

// loadState reads the state from a json file. Missing file is an empty state.
func loadState(fpath string) (*State, error) {
	state := &State{UserChatIDMap: make(map[string]int64)}
	if len(fpath) == 0 {
		return state, nil
	}
	data, err := os.ReadFile(fpath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("could not decode telegram state from %q: %w", fpath, err)
	}
	if state.UserChatIDMap == nil {
		state.UserChatIDMap = make(map[string]int64)
	}
	return state, nil
}

// saveState writes the state to a temporary file and renames it to the
// destination.
func saveState(fpath string, state *State) error {
	if len(fpath) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(fpath), filepath.Base(fpath)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fpath)
}
