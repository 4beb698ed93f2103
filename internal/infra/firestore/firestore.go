// Package firestore holds the persistence layer. Documents are laid out per
// user and card:
//
//	users/{userID}
//	users/{userID}/tokens/gmail
//	users/{userID}/creditCards/{cardID}/transactions/{transactionID}
//	users/{userID}/creditCards/{cardID}/transactions/{transactionID}/quotas/{quotaID}
//	users/{userID}/creditCards/{cardID}/billingPeriods/{periodID}
//
// Transaction document IDs are the Gmail message IDs for email-sourced
// transactions, which is what makes batched imports idempotent.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

const (
	usersCollection        = "users"
	tokensCollection       = "tokens"
	cardsCollection        = "creditCards"
	transactionsCollection = "transactions"
	quotasCollection       = "quotas"
	periodsCollection      = "billingPeriods"

	gmailTokenDoc = "gmail"
)

// NewClient opens a Firestore client for the project.
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewClient: firestore client: %w", err)
	}
	return client, nil
}

func cardDoc(client *firestore.Client, userID, creditCardID string) *firestore.DocumentRef {
	return client.Collection(usersCollection).Doc(userID).
		Collection(cardsCollection).Doc(creditCardID)
}

func transactionsCol(client *firestore.Client, userID, creditCardID string) *firestore.CollectionRef {
	return cardDoc(client, userID, creditCardID).Collection(transactionsCollection)
}

func quotasCol(client *firestore.Client, userID, creditCardID, transactionID string) *firestore.CollectionRef {
	return transactionsCol(client, userID, creditCardID).Doc(transactionID).Collection(quotasCollection)
}

func periodsCol(client *firestore.Client, userID, creditCardID string) *firestore.CollectionRef {
	return cardDoc(client, userID, creditCardID).Collection(periodsCollection)
}

func tokenDoc(client *firestore.Client, userID string) *firestore.DocumentRef {
	return client.Collection(usersCollection).Doc(userID).
		Collection(tokensCollection).Doc(gmailTokenDoc)
}
