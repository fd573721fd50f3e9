// Copyright (c) 2025 BVK Chaitanya

package envfile

import "regexp"

type Option interface {
	apply(*options) error
}

type optionFunc func(*options) error

func (v optionFunc) apply(opts *options) error {
	return v(opts)
}

// SearchCurrentDir option if present will search for the environment file in
// the current directory instead of the home directory. If the input parameter
// is true, envfile search will include the ancestor directories up to the root
// directory and the first file found is used.
func SearchCurrentDir(searchParentDirs bool) Option {
	return optionFunc(func(opts *options) error {
		opts.searchCurrentDirectory = true
		opts.scanParentDirectories = searchParentDirs
		return nil
	})
}

var nameRe = regexp.MustCompile("^[a-zA-Z_][0-9a-zA-Z_]*$")

// OverwriteIfExists options allows to overwrite or not-overwrite the current
// value for an environment variable that already has a non-empty value.
func OverwriteIfExists(overwrite bool) Option {
	return optionFunc(func(opts *options) error {
		opts.overwriteIfExists = overwrite
		return nil
	})
}
