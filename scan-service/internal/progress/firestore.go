package progress

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

type firestoreDocument struct {
	Payload   string    `firestore:"payload"`
	Level     int       `firestore:"level"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type firestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestoreStore stores one document per user in the reward.StorageKey collection.
func NewFirestoreStore(client *firestore.Client) Store {
	return &firestoreStore{client: client, now: time.Now}
}

func (s *firestoreStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(reward.StorageKey).Doc(userID)
}

func (s *firestoreStore) Load(ctx context.Context, userID string) (reward.UserProgress, bool, error) {
	if err := checkUserID(userID); err != nil {
		return reward.UserProgress{}, false, err
	}
	snap, err := s.doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return reward.UserProgress{}, false, nil
	}
	if err != nil {
		return reward.UserProgress{}, false, err
	}

	var doc firestoreDocument
	if err := snap.DataTo(&doc); err != nil {
		return reward.UserProgress{}, true, fmt.Errorf("%w: %v", reward.ErrCorruptProgress, err)
	}
	p, err := reward.Decode([]byte(doc.Payload))
	if err != nil {
		return reward.UserProgress{}, true, err
	}
	return p, true, nil
}

func (s *firestoreStore) Save(ctx context.Context, userID string, p reward.UserProgress) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	data, err := reward.Encode(p)
	if err != nil {
		return err
	}
	_, err = s.doc(userID).Set(ctx, firestoreDocument{
		Payload:   string(data),
		Level:     p.Level,
		UpdatedAt: s.now().UTC(),
	})
	return err
}

func (s *firestoreStore) Delete(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	_, err := s.doc(userID).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *firestoreStore) Close() error {
	return s.client.Close()
}
