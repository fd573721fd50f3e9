// Copyright (c) 2025 BVK Chaitanya

// Package envfile loads KEY=VALUE assignments from a dotenv style file into
// the process environment.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

type options struct {
	searchCurrentDirectory bool

	scanParentDirectories bool

	overwriteIfExists bool
}

// Variable is a single assignment from an env file.
type Variable struct {
	Name  string
	Value string
	Line  int
}

// UpdateEnv updates current process's environment with the values read from
// the first env file found in the search path. By default, only the user's
// home directory is searched. Variables that already have a non-empty value in
// the environment are not modified unless OverwriteIfExists option is given.
//
// It is not an error if the env file doesn't exist. Path of the env file used
// is returned, which is empty when no file is found.
func UpdateEnv(filename string, opts ...Option) (string, error) {
	if len(filename) == 0 || strings.ContainsRune(filename, os.PathSeparator) {
		return "", fmt.Errorf("env file name %q is empty or contains path separator: %w", filename, os.ErrInvalid)
	}
	var fopts options
	for _, v := range opts {
		if err := v.apply(&fopts); err != nil {
			return "", err
		}
	}
	fpaths, err := searchPaths(filename, &fopts)
	if err != nil {
		return "", err
	}
	for _, fpath := range fpaths {
		vars, err := ParseFile(fpath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", err
		}
		for _, v := range vars {
			if len(os.Getenv(v.Name)) != 0 && !fopts.overwriteIfExists {
				continue
			}
			if err := os.Setenv(v.Name, v.Value); err != nil {
				return "", fmt.Errorf("could not set env variable %q from %s:%d: %w", v.Name, fpath, v.Line, err)
			}
		}
		return fpath, nil
	}
	return "", nil
}

func searchPaths(filename string, fopts *options) ([]string, error) {
	var fpaths []string
	if fopts.searchCurrentDirectory {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		fpaths = append(fpaths, filepath.Join(cwd, filename))
		if fopts.scanParentDirectories {
			last, dir := cwd, filepath.Dir(cwd)
			for dir != last {
				fpaths = append(fpaths, filepath.Join(dir, filename))
				last, dir = dir, filepath.Dir(dir)
			}
		}
	}
	if len(fpaths) == 0 {
		user, err := user.Current()
		if err != nil {
			return nil, err
		}
		if len(user.HomeDir) == 0 {
			return nil, fmt.Errorf("could not determine current user's home directory")
		}
		fpaths = []string{filepath.Join(user.HomeDir, filename)}
	}
	return fpaths, nil
}

// ParseFile reads all variable assignments from the file.
func ParseFile(fpath string) ([]*Variable, error) {
	fp, err := os.Open(fpath)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	vars, err := Parse(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fpath, err)
	}
	return vars, nil
}

// Parse reads variable assignments from the input. Blank lines and lines
// starting with # are ignored and an optional "export " prefix is accepted.
// Values can be single or double quoted; double quoted values are unquoted
// with Go string literal rules. Unquoted values end at the first " #".
func Parse(r io.Reader) ([]*Variable, error) {
	var vars []*Variable
	scanner := bufio.NewScanner(r)
	for i := 1; scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid/unrecognized variable assignment on line %d: %w", i, os.ErrInvalid)
		}
		key = strings.TrimSpace(key)
		if !nameRe.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable name %q on line %d: %w", key, i, os.ErrInvalid)
		}
		v, err := parseValue(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid value for variable %q on line %d: %w", key, i, err)
		}
		vars = append(vars, &Variable{Name: key, Value: v, Line: i})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

func parseValue(s string) (string, error) {
	if len(s) == 0 {
		return "", nil
	}
	switch q := s[0]; q {
	case '"', '\'':
		end := strings.LastIndexByte(s, q)
		if end == 0 {
			return "", fmt.Errorf("unterminated quoted value: %w", os.ErrInvalid)
		}
		if rest := strings.TrimSpace(s[end+1:]); len(rest) != 0 && rest[0] != '#' {
			return "", fmt.Errorf("unexpected text after quoted value: %w", os.ErrInvalid)
		}
		if q == '\'' {
			return s[1:end], nil
		}
		v, err := strconv.Unquote(s[:end+1])
		if err != nil {
			return "", fmt.Errorf("could not unquote value: %w", errors.Join(os.ErrInvalid, err))
		}
		return v, nil
	}
	if p := strings.Index(s, " #"); p != -1 {
		s = strings.TrimSpace(s[:p])
	}
	return s, nil
}
