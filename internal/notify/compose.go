package notify

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-vcard"
)

// Attachment is a file carried alongside the text body.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// compose builds a complete RFC 5322 message with a text/plain body and
// any attachments in a multipart/mixed structure.
func compose(from, to string, m Message) ([]byte, error) {
	var buf bytes.Buffer
	var h mail.Header

	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(m.Subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parse to address %q: %w", to, err)
	}
	h.SetAddressList("To", []*mail.Address{toAddr})

	if m.ReplyTo != "" {
		if rt, err := mail.ParseAddress(m.ReplyTo); err == nil {
			h.SetAddressList("Reply-To", []*mail.Address{rt})
		}
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(tw, m.Body); err != nil {
		return nil, fmt.Errorf("write text: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close text part: %w", err)
	}

	for _, a := range m.Attachments {
		var ah mail.AttachmentHeader
		ah.Set("Content-Type", a.ContentType)
		ah.SetFilename(a.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("create attachment %s: %w", a.Filename, err)
		}
		if _, err := aw.Write(a.Data); err != nil {
			return nil, fmt.Errorf("write attachment %s: %w", a.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return nil, fmt.Errorf("close attachment %s: %w", a.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Contact is a visitor's details as captured in chat.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Notes   string
}

// ContactCard encodes c as a vCard 4.0 attachment.
func ContactCard(c Contact) (Attachment, error) {
	card := make(vcard.Card)

	fn := c.Name
	if fn == "" {
		fn = c.Email
	}
	card.SetValue(vcard.FieldFormattedName, fn)
	card.AddValue(vcard.FieldEmail, c.Email)
	if c.Phone != "" {
		card.AddValue(vcard.FieldTelephone, c.Phone)
	}
	if c.Company != "" {
		card.SetValue(vcard.FieldOrganization, c.Company)
	}
	if c.Notes != "" {
		card.SetValue(vcard.FieldNote, c.Notes)
	}
	vcard.ToV4(card)

	var buf bytes.Buffer
	if err := vcard.NewEncoder(&buf).Encode(card); err != nil {
		return Attachment{}, fmt.Errorf("encode vcard: %w", err)
	}

	return Attachment{
		Filename:    "contact.vcf",
		ContentType: "text/vcard; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}
