package blobstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCredentialKey(t *testing.T) {
	id := uuid.MustParse("11111111-2222-4333-8444-555555555555")
	key, err := CredentialKey(id, "RN License (front).pdf")
	require.NoError(t, err)
	require.Equal(t, "nurse-credentials/11111111-2222-4333-8444-555555555555/RN_License__front_.pdf", key)

	_, err = CredentialKey(uuid.Nil, "a.pdf")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestVisitDocumentKey(t *testing.T) {
	id := uuid.New()
	key, err := VisitDocumentKey(id, "../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, "visit-documents/"+id.String()+"/passwd", key)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"scan.pdf", "scan.pdf", false},
		{`C:\Users\nurse\bls.png`, "bls.png", false},
		{"  ", "", true},
		{"..", "", true},
		{".hidden", "hidden", false},
		{"ünïcode.txt", "_n_code.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SanitizeFileName(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseKey(t *testing.T) {
	id := uuid.New()
	prefix, owner, file, err := ParseKey("visit-documents/" + id.String() + "/note.txt")
	require.NoError(t, err)
	require.Equal(t, PrefixVisitDocuments, prefix)
	require.Equal(t, id, owner)
	require.Equal(t, "note.txt", file)

	for _, bad := range []string{
		"",
		"visit-documents/" + id.String(),
		"other/" + id.String() + "/a.txt",
		"visit-documents/not-a-uuid/a.txt",
		"visit-documents/" + id.String() + "/a b.txt",
	} {
		_, _, _, err := ParseKey(bad)
		require.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}
