package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arrayStore(items ...keyring.Item) *Store {
	ring := keyring.NewArrayKeyring(items)
	return &Store{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func TestAccountKey(t *testing.T) {
	assert.Equal(t, "alice@imap.example.com", AccountKey("alice", "imap.example.com"))
	assert.Equal(t, "bob@example.com@mail.example.com", AccountKey("bob@example.com", "mail.example.com"))
}

func TestPasswordRoundTrip(t *testing.T) {
	s := arrayStore()
	require.NoError(t, s.SetPassword("alice", "imap.example.com", "secret"))

	password, err := s.Password("alice", "imap.example.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", password)

	require.NoError(t, s.SetPassword("alice", "imap.example.com", "rotated"))
	password, err = s.Password("alice", "imap.example.com")
	require.NoError(t, err)
	assert.Equal(t, "rotated", password)
}

func TestPasswordNotFound(t *testing.T) {
	s := arrayStore(keyring.Item{Key: "bob@imap.example.com", Data: []byte("x")})

	_, err := s.Password("alice", "imap.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice@imap.example.com")
}

func TestOpenFailure(t *testing.T) {
	calls := 0
	s := &Store{open: func() (keyring.Keyring, error) {
		calls++
		return nil, errors.New("no backend")
	}}

	_, err := s.Password("alice", "imap.example.com")
	assert.Error(t, err)
	assert.Error(t, s.SetPassword("alice", "imap.example.com", "secret"))
	assert.Equal(t, 2, calls, "a failed open is retried")
}

func TestNewStoreFileBackend(t *testing.T) {
	env := map[string]string{
		EnvBackend:    string(keyring.FileBackend),
		EnvFileDir:    t.TempDir(),
		EnvPassphrase: "correct horse",
	}
	s := NewStore(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	require.NoError(t, s.SetPassword("alice", "imap.example.com", "secret"))

	// A second store reading the same directory sees the password
	other := NewStore(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	password, err := other.Password("alice", "imap.example.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", password)
}
