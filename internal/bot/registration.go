package bot

import (
	"context"
	"fmt"

	"librarian/internal/account"
	"librarian/internal/models"
	"librarian/internal/process"
)

const registerProcessType = "register"

const (
	stepUsername = "username"
	stepEmail    = "email"
)

// registrationDefinition declares the sign-up dialog: the bot collects
// a username and an email, then creates the account with the chat id as
// the telegram identity and links the contact to it.
func (b *Bot) registrationDefinition() process.Definition {
	return process.Definition{
		Steps: []string{stepUsername, stepEmail},
		Prompts: map[string]string{
			stepUsername: "Pick a username:",
			stepEmail:    "And your email address (or \"-\" to skip):",
		},
		Finisher: func(ctx context.Context, contact models.Contact, fields map[string]string) (string, error) {
			email := fields[stepEmail]
			if email == "-" {
				email = ""
			}
			claim, err := b.accounts.Register(ctx, account.UserInfo{
				Username:   fields[stepUsername],
				Email:      email,
				TelegramID: contact.ChatID,
			})
			if err != nil {
				return "", err
			}

			// Link the contact to the new account so later
			// conversations know who is talking.
			contact.Username = claim.Username
			if err := b.store.UpsertContact(ctx, contact); err != nil {
				return "", err
			}
			return fmt.Sprintf("Welcome, %s! You are registered and can now browse and borrow books with /books.", claim.Username), nil
		},
	}
}
