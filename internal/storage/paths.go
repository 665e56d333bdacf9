package storage

import (
	"errors"
	"path/filepath"
	"strings"
)

// IsPlainName reports whether name is a bare file name: no directory
// components, no parent references and no NUL bytes.
func IsPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return filepath.Base(name) == name
}

// JoinWithinRoot returns the absolute path of rel under root. It rejects
// results that escape root.
func JoinWithinRoot(rootAbs string, rel string) (string, error) {
	if strings.Contains(rel, "\x00") {
		return "", errors.New("invalid path")
	}
	abs := filepath.Clean(filepath.Join(rootAbs, filepath.FromSlash(rel)))
	root := filepath.Clean(rootAbs)
	if abs == root || !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", errors.New("path escape")
	}
	return abs, nil
}

// Ext returns the lowercased extension of filename including the dot, or
// fallback when there is none. Surrounding whitespace is ignored.
func Ext(filename, fallback string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if ext == "" || ext == "." {
		return fallback
	}
	return ext
}
