package offer

import (
	"context"
	"fmt"

	"librarian/internal/models"
	"librarian/internal/process"
)

// ProcessType identifies the offer-a-book conversation.
const ProcessType = "offer_book"

// Step names double as the field keys the finisher reads back.
const (
	StepTitle        = "title"
	StepTopic        = "topic"
	StepAuthor       = "author"
	StepPublisher    = "publisher"
	StepPurchaseLink = "purchase_link"
)

// ProcessDefinition declares the offer-a-book dialog: one prompt per
// bibliographic field, finished by submitting the offer with the
// contact's username as proposer.
func (s *Service) ProcessDefinition() process.Definition {
	return process.Definition{
		Steps: []string{StepTitle, StepTopic, StepAuthor, StepPublisher, StepPurchaseLink},
		Prompts: map[string]string{
			StepTitle:        "What is the title of the book you'd like to offer?",
			StepTopic:        "What topic does it cover?",
			StepAuthor:       "Who is the author?",
			StepPublisher:    "Who is the publisher?",
			StepPurchaseLink: "Where can it be purchased? Send a link (or \"-\" to skip).",
		},
		Finisher: func(ctx context.Context, contact models.Contact, fields map[string]string) (string, error) {
			link := fields[StepPurchaseLink]
			if link == "-" {
				link = ""
			}
			created, err := s.AddOffer(ctx, Request{
				Title:        fields[StepTitle],
				Topic:        fields[StepTopic],
				Author:       fields[StepAuthor],
				Publisher:    fields[StepPublisher],
				Proposer:     contact.Username,
				PurchaseLink: link,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Thanks! Your offer for %q has been recorded. We'll let you know once it's purchased.", created.Title), nil
		},
	}
}
