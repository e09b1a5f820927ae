package imap

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
)

// ErrFolderNotSelected is returned when a SelectedFolder is used after
// another folder has been selected, or after the session was closed
var ErrFolderNotSelected = errors.New("folder is no longer selected")

// Envelope holds the header fields we use from a message.
// Date and MessageID are the raw header values, unparsed.
// An empty value means the header is absent.
type Envelope struct {
	Date      string
	MessageID string
	Subject   string // decoded, for logging only
}

// Message is a fetched message. Envelope is nil if the server did not return
// the header section, or it could not be read.
type Message struct {
	UID      uint32
	Envelope *Envelope
}

// BODY.PEEK[HEADER.FIELDS (DATE MESSAGE-ID SUBJECT)], which leaves \Seen untouched
var headerSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    []string{"DATE", "MESSAGE-ID", "SUBJECT"},
	},
	Peek: true,
}

// Only lightweight metadata, never the body
var envelopeFetchItems = []imap.FetchItem{
	imap.FetchUid,
	headerSection.FetchItem(),
}

// SelectedFolder is the folder currently selected on a Session.
// Folder scoped commands can only be issued through it.
type SelectedFolder struct {
	Name        string
	Messages    uint32
	UIDValidity uint32

	session *Session
}

// Select opens the named folder read-only (EXAMINE), so nothing on the server is modified.
// Any previously returned SelectedFolder is invalidated.
func (s *Session) Select(name string) (*SelectedFolder, error) {
	s.selected = nil
	if s.closed {
		return nil, newError(KindSelect, "select "+name, errors.New("session closed"))
	}

	status, err := s.client.Select(name, true)
	if err != nil {
		return nil, newError(KindSelect, "select "+name, err)
	}

	f := &SelectedFolder{
		Name:        name,
		Messages:    status.Messages,
		UIDValidity: status.UidValidity,
		session:     s,
	}
	s.selected = f
	s.log.Debug("selected folder", "folder", name, "messages", status.Messages, "uidvalidity", status.UidValidity)
	return f, nil
}

func (f *SelectedFolder) check(op string) error {
	if f.session == nil || f.session.closed || f.session.selected != f {
		return newError(KindFetch, op+" "+f.Name, ErrFolderNotSelected)
	}
	return nil
}

// SearchAll returns the UIDs of every message in the folder
func (f *SelectedFolder) SearchAll() ([]uint32, error) {
	if err := f.check("search"); err != nil {
		return nil, err
	}

	// An empty criteria matches ALL
	uids, err := f.session.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, newError(KindFetch, "search "+f.Name, err)
	}
	return uids, nil
}

// FetchEnvelopes retrieves the envelopes of all given UIDs in a single UID FETCH
func (f *SelectedFolder) FetchEnvelopes(uids []uint32) ([]Message, error) {
	if err := f.check("fetch"); err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	messages := make(chan *imap.Message, 100)
	done := make(chan error, 1)
	go func() {
		done <- f.session.client.UidFetch(uidSet(uids), envelopeFetchItems, messages)
	}()

	result := make([]Message, 0, len(uids))
	for msg := range messages {
		if msg == nil {
			continue
		}
		result = append(result, convertMessage(msg))
	}

	// Check if an error occurred while fetching data
	if err := <-done; err != nil {
		return nil, newError(KindFetch, "fetch "+f.Name, err)
	}
	return result, nil
}

func uidSet(uids []uint32) *imap.SeqSet {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	return seqSet
}

func convertMessage(msg *imap.Message) Message {
	m := Message{UID: msg.Uid}
	lit := headerLiteral(msg)
	if lit == nil {
		return m
	}
	env, err := parseEnvelope(lit)
	if err == nil {
		m.Envelope = env
	}
	return m
}

func headerLiteral(msg *imap.Message) imap.Literal {
	if lit := msg.GetBody(headerSection); lit != nil {
		return lit
	}
	// Only one section is requested, so whatever the server named it is ours
	for _, lit := range msg.Body {
		return lit
	}
	return nil
}

// parseEnvelope reads the raw header fields returned for headerSection
func parseEnvelope(r io.Reader) (*Envelope, error) {
	// Servers may omit the blank line terminating the header section
	br := bufio.NewReader(io.MultiReader(r, strings.NewReader("\r\n")))
	h, err := textproto.ReadHeader(br)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	env := &Envelope{
		Date:      strings.TrimSpace(h.Get("Date")),
		MessageID: strings.TrimSpace(h.Get("Message-Id")),
	}
	mh := message.Header{Header: h}
	env.Subject, err = mh.Text("Subject")
	if err != nil {
		env.Subject = h.Get("Subject")
	}
	return env, nil
}
