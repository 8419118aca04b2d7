package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/envoy/internal/notify"
)

// notProvided marks an optional contact field the visitor left out.
const notProvided = "(not provided)"

// RegisterContactTools adds capture_contact, which forwards a visitor's
// details to the owner through sender.
func (r *Registry) RegisterContactTools(persona string, sender notify.Sender) error {
	if sender == nil {
		return fmt.Errorf("register %s: nil sender", CaptureContact)
	}

	return r.Register(&Tool{
		ID:          CaptureContact,
		Description: "Record that a visitor wants to be in touch and provided an email address. Call this as soon as the visitor shares their email.",
		Parameters: map[string]Param{
			"email":   {Type: "string", Description: "The visitor's email address"},
			"name":    {Type: "string", Description: "The visitor's name, if they provided it"},
			"phone":   {Type: "string", Description: "The visitor's phone number, if they provided it"},
			"company": {Type: "string", Description: "The visitor's company or organization, if they provided it"},
			"notes":   {Type: "string", Description: "Anything else about the conversation worth recording to give context"},
		},
		Required: []string{"email"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			c := notify.Contact{
				Name:    stringArg(args, "name"),
				Email:   stringArg(args, "email"),
				Phone:   stringArg(args, "phone"),
				Company: stringArg(args, "company"),
				Notes:   stringArg(args, "notes"),
			}
			if c.Email == "" {
				return nil, errors.New("email is required")
			}
			if !strings.Contains(c.Email, "@") {
				return nil, fmt.Errorf("email %q is not an email address", c.Email)
			}

			msg := notify.Message{
				Subject: ContactSubject(persona, c),
				Body:    ContactBody(persona, c),
				ReplyTo: c.Email,
			}
			if card, err := notify.ContactCard(c); err != nil {
				r.logger.Warn("contact card not attached", "error", err)
			} else {
				msg.Attachments = append(msg.Attachments, card)
			}

			out := sender.Send(ctx, msg)
			r.logger.Info("contact captured",
				"conversation_id", ConversationIDFromContext(ctx),
				"email", c.Email,
				"sent", out.Sent,
				"reason", out.Reason,
			)
			return out, nil
		},
	})
}

// ContactSubject returns the notification subject for a captured contact.
func ContactSubject(persona string, c notify.Contact) string {
	who := c.Name
	if who == "" {
		who = c.Email
	}
	return fmt.Sprintf("New contact from %s chat: %s", persona, who)
}

// ContactBody lists every contact field, marking omitted ones.
func ContactBody(persona string, c notify.Contact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A visitor on the %s chat shared their contact details.\n\n", persona)
	fmt.Fprintf(&b, "Name:    %s\n", orNotProvided(c.Name))
	fmt.Fprintf(&b, "Email:   %s\n", orNotProvided(c.Email))
	fmt.Fprintf(&b, "Phone:   %s\n", orNotProvided(c.Phone))
	fmt.Fprintf(&b, "Company: %s\n", orNotProvided(c.Company))
	fmt.Fprintf(&b, "Notes:   %s\n", orNotProvided(c.Notes))
	return b.String()
}

func orNotProvided(s string) string {
	if s == "" {
		return notProvided
	}
	return s
}
