package blobstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Key prefixes. Every object lives at <prefix>/<owner uuid>/<file>.
const (
	PrefixNurseCredentials = "nurse-credentials"
	PrefixVisitDocuments   = "visit-documents"
)

var knownPrefixes = map[string]bool{
	PrefixNurseCredentials: true,
	PrefixVisitDocuments:   true,
}

const maxFileNameLength = 200

// CredentialKey returns the object key for a nurse credential document.
func CredentialKey(nurseID uuid.UUID, fileName string) (string, error) {
	return buildKey(PrefixNurseCredentials, nurseID, fileName)
}

// VisitDocumentKey returns the object key for a visit documentation file.
func VisitDocumentKey(visitID uuid.UUID, fileName string) (string, error) {
	return buildKey(PrefixVisitDocuments, visitID, fileName)
}

func buildKey(prefix string, owner uuid.UUID, fileName string) (string, error) {
	if owner == uuid.Nil {
		return "", fmt.Errorf("%w: owner id is required", ErrInvalidKey)
	}
	name, err := SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return prefix + "/" + owner.String() + "/" + name, nil
}

// ParseKey splits a key into its prefix, owner id and file name.
func ParseKey(key string) (prefix string, owner uuid.UUID, file string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return "", uuid.Nil, "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if !knownPrefixes[parts[0]] {
		return "", uuid.Nil, "", fmt.Errorf("%w: unknown prefix %q", ErrInvalidKey, parts[0])
	}
	owner, err = uuid.Parse(parts[1])
	if err != nil {
		return "", uuid.Nil, "", fmt.Errorf("%w: bad owner id %q", ErrInvalidKey, parts[1])
	}
	if clean, cerr := SanitizeFileName(parts[2]); cerr != nil || clean != parts[2] {
		return "", uuid.Nil, "", fmt.Errorf("%w: bad file name %q", ErrInvalidKey, parts[2])
	}
	return parts[0], owner, parts[2], nil
}

// ValidateKey reports whether key follows the storage layout.
func ValidateKey(key string) error {
	_, _, _, err := ParseKey(key)
	return err
}

// SanitizeFileName reduces an uploaded file name to a single safe path
// segment. Characters outside [A-Za-z0-9._-] become underscores.
func SanitizeFileName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrMissingFileName
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "", ErrMissingFileName
	}
	if len(out) > maxFileNameLength {
		out = out[len(out)-maxFileNameLength:]
	}
	return out, nil
}
