package imap

import (
	"errors"
	"strings"

	"github.com/emersion/go-imap"
)

const nonExistentAttr = "\\NonExistent"

// Folder is a mailbox as reported by LIST
type Folder struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// Selectable reports whether the folder can be selected, based on its LIST attributes
func (f Folder) Selectable() bool {
	for _, attr := range f.Attributes {
		if strings.EqualFold(attr, imap.NoSelectAttr) || strings.EqualFold(attr, nonExistentAttr) {
			return false
		}
	}
	return true
}

// ListFolders returns every folder on the server, at any depth of the hierarchy
func (s *Session) ListFolders() ([]Folder, error) {
	if s.closed {
		return nil, newError(KindFolderList, "list", errors.New("session closed"))
	}

	mboxChan := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "*", mboxChan)
	}()

	var folders []Folder
	for mb := range mboxChan {
		if mb == nil {
			continue
		}
		s.log.Debug("found folder", "name", mb.Name, "delimiter", mb.Delimiter, "attributes", mb.Attributes)
		folders = append(folders, Folder{
			Name:       mb.Name,
			Delimiter:  mb.Delimiter,
			Attributes: mb.Attributes,
		})
	}

	// Check if an error occurred while listing
	if err := <-done; err != nil {
		return nil, newError(KindFolderList, "list", err)
	}
	return folders, nil
}
