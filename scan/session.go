package scan

import "github.com/yzzyx/imap-fingerprint/imap"

// Session is the part of an IMAP session the enumerator needs
type Session interface {
	ListFolders() ([]imap.Folder, error)
	Select(name string) (Mailbox, error)
}

// Mailbox is a selected folder
type Mailbox interface {
	SearchAll() ([]uint32, error)
	FetchEnvelopes(uids []uint32) ([]imap.Message, error)
}

type imapSession struct {
	s *imap.Session
}

// FromIMAP adapts an open imap.Session to the Session interface
func FromIMAP(s *imap.Session) Session {
	return imapSession{s: s}
}

func (a imapSession) ListFolders() ([]imap.Folder, error) {
	return a.s.ListFolders()
}

func (a imapSession) Select(name string) (Mailbox, error) {
	f, err := a.s.Select(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}
