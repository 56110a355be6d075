package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

type firestorePaymentLogRepository struct {
	client *firestore.Client
}

// NewFirestorePaymentLogRepository creates a new instance of firestorePaymentLogRepository.
func NewFirestorePaymentLogRepository(client *firestore.Client) PaymentLogRepository {
	if client == nil {
		panic("Firestore client is not initialized for PaymentLogRepository")
	}
	return &firestorePaymentLogRepository{client: client}
}

// Create appends a callback record with an auto-generated ID.
func (r *firestorePaymentLogRepository) Create(ctx context.Context, entry *models.PaymentLog) error {
	ref, _, err := r.client.Collection(paymentLogsCollection).Add(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to write payment log for '%s': %w", entry.MerchantRef, err)
	}
	entry.ID = ref.ID
	return nil
}
