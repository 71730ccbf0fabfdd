// Package imapsource feeds the messages of an IMAP mailbox to an
// ingester.
package imapsource

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/gwd/patchwork/ingest"
)

const stride = uint32(50)

type MailboxInfo struct {
	MailboxName string // Defaults to INBOX
	Hostname    string // Required
	Username    string
	Password    string
	Port        int  // Defaults to 993
	Insecure    bool // Plain TCP rather than TLS
}

// MsgidChecker reports whether a message has already been stored.
type MsgidChecker interface {
	IsMsgidPresent(msgid string) (bool, error)
}

type ImapSource struct {
	mailbox MailboxInfo
	client  *client.Client
}

func NewImapSource(info MailboxInfo) *ImapSource {
	return &ImapSource{mailbox: info}
}

func (src *ImapSource) Close() {
	if src.client != nil {
		src.client.Logout()
		src.client = nil
	}
}

func (src *ImapSource) Connect() error {
	info := &src.mailbox

	if info.Hostname == "" {
		return fmt.Errorf("IMAP dial info not set up")
	}

	if src.client != nil {
		// Reuse the connection if it's still alive
		if err := src.client.Noop(); err == nil {
			return nil
		}
		src.client = nil
	}

	port := info.Port
	if port == 0 {
		port = 993
	}

	tgt := fmt.Sprintf("%s:%d", info.Hostname, port)
	log.Printf("Dialing %s", tgt)

	var c *client.Client
	var err error
	if info.Insecure {
		c, err = client.Dial(tgt)
	} else {
		c, err = client.DialTLS(tgt, nil)
	}
	if err != nil {
		return fmt.Errorf("Attempting to connect to IMAP server: %w", err)
	}

	log.Printf("Logging in...")
	if err = c.Login(info.Username, info.Password); err != nil {
		c.Logout()
		return fmt.Errorf("Logging in to IMAP server: %w", err)
	}

	src.client = c

	return nil
}

// fetch runs one FETCH command, collecting the results in sequence
// order.  The client delivers messages on a channel which must be
// drained while the command runs.
func (src *ImapSource) fetch(seqset *imap.SeqSet, items []imap.FetchItem) ([]*imap.Message, error) {
	messages := make(chan *imap.Message, stride)
	done := make(chan error, 1)

	go func() {
		done <- src.client.Fetch(seqset, items, messages)
	}()

	var out []*imap.Message
	for msg := range messages {
		out = append(out, msg)
	}

	if err := <-done; err != nil {
		return out, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })

	return out, nil
}

// newMessages returns the sequence numbers of messages whose msgid is
// not yet known, checking envelopes in batches.
func (src *ImapSource) newMessages(count uint32, known MsgidChecker) ([]uint32, int, error) {
	var seqnums []uint32
	present := 0

	for from := uint32(1); from <= count; from += stride {
		to := from + stride - 1
		if to > count {
			to = count
		}

		seqset := new(imap.SeqSet)
		seqset.AddRange(from, to)

		envs, err := src.fetch(seqset, []imap.FetchItem{imap.FetchEnvelope})
		if err != nil {
			return nil, 0, fmt.Errorf("Fetching envelopes %d-%d: %w", from, to, err)
		}

		for _, msg := range envs {
			if msg.Envelope != nil {
				msgid := strings.TrimSpace(msg.Envelope.MessageId)
				prs, err := known.IsMsgidPresent(msgid)
				if err != nil {
					return nil, 0, fmt.Errorf("Checking message presence in database: %w", err)
				}
				if prs {
					present++
					continue
				}
			}
			seqnums = append(seqnums, msg.SeqNum)
		}
	}

	return seqnums, present, nil
}

// Fetch hands every message in the mailbox which isn't already known
// to ing, oldest first.  Bodies are fetched with BODY.PEEK so the
// server's \Seen flags are left alone.  Failures to ingest a single
// message are logged and counted; errors are returned only for
// connection and database trouble.
func (src *ImapSource) Fetch(ing *ingest.Ingester, known MsgidChecker) (*ingest.Tally, error) {
	if err := src.Connect(); err != nil {
		return nil, err
	}

	name := src.mailbox.MailboxName
	if name == "" {
		name = "INBOX"
	}

	status, err := src.client.Select(name, true)
	if err != nil {
		return nil, fmt.Errorf("Selecting mailbox %s: %w", name, err)
	}

	log.Printf("Mailbox %s contains %d messages", name, status.Messages)

	seqnums, present, err := src.newMessages(status.Messages, known)
	if err != nil {
		return nil, err
	}

	log.Printf("%d messages already present, fetching %d", present, len(seqnums))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	tally := &ingest.Tally{}

	for i := 0; i < len(seqnums); i += int(stride) {
		batch := seqnums[i:]
		if len(batch) > int(stride) {
			batch = batch[:stride]
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(batch...)

		msgs, err := src.fetch(seqset, items)
		if err != nil {
			return tally, fmt.Errorf("Fetching message bodies: %w", err)
		}

		for _, msg := range msgs {
			body := msg.GetBody(section)
			if body == nil {
				log.Printf("Message %d: no literals in message body", msg.SeqNum)
				tally.Failed++
				continue
			}

			res, err := ing.Ingest(body)
			if err != nil {
				log.Printf("Message %d: %v", msg.SeqNum, err)
			}
			tally.Add(res, err)
		}
	}

	log.Printf("Done: %v", tally)

	return tally, nil
}
