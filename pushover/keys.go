// Copyright (c) 2023 BVK Chaitanya

package pushover

import (
	"fmt"
	"os"
)

type Keys struct {
	ApplicationKey string `json:"application_key"`
	UserKey        string `json:"user_key"`
}

func (v *Keys) Check() error {
	if len(v.ApplicationKey) == 0 {
		return fmt.Errorf("pushover application key cannot be empty: %w", os.ErrInvalid)
	}
	if len(v.UserKey) == 0 {
		return fmt.Errorf("pushover user key cannot be empty: %w", os.ErrInvalid)
	}
	return nil
}
