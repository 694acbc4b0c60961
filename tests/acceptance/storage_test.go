package acceptance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prperemyshlev/photo-enhancer/internal/repository"
)

// insertAnonymousJob stores an ownerless job with an explicit creation time
func (s *Suite) insertAnonymousJob(createdAt time.Time) string {
	id := uuid.NewString()
	_, err := s.Postgres.DB.ExecContext(context.Background(), `
		INSERT INTO photo_jobs (id, original_filename, original_path, enhanced_filename, enhanced_path, created_at)
		VALUES ($1, 'room.png', 'originals/room.png', 'room_enhanced.png', 'enhanced/room.png', $2)`,
		id, createdAt)
	s.Require().NoError(err)
	return id
}

func (s *Suite) ownerOf(photoID string) string {
	var owner *string
	err := s.Postgres.DB.QueryRowContext(context.Background(),
		`SELECT user_id FROM photo_jobs WHERE id = $1`, photoID).Scan(&owner)
	s.Require().NoError(err)
	if owner == nil {
		return ""
	}
	return *owner
}

func (s *Suite) TestClaimGraceWindowBoundary() {
	ctx := context.Background()
	photos := repository.NewPhotoRepository(s.Postgres)
	userID, _ := s.signup("boundary")

	// Postgres keeps microseconds
	base := time.Now().UTC().Truncate(time.Microsecond)
	cutoff := base.Add(-time.Hour)

	inside := s.insertAnonymousJob(base.Add(-59 * time.Minute))
	atCutoff := s.insertAnonymousJob(cutoff)
	outside := s.insertAnonymousJob(base.Add(-61 * time.Minute))

	claimed, err := photos.ClaimRecent(ctx, userID, []string{inside, atCutoff, outside}, cutoff)
	s.Require().NoError(err)
	s.EqualValues(2, claimed)

	s.Equal(userID, s.ownerOf(inside))
	s.Equal(userID, s.ownerOf(atCutoff))
	s.Empty(s.ownerOf(outside))

	// claimed jobs are not claimed again, and the stale one stays out of reach
	otherID, _ := s.signup("latecomer")
	claimed, err = photos.ClaimAllRecent(ctx, otherID, cutoff)
	s.Require().NoError(err)
	s.Zero(claimed)
	s.Equal(userID, s.ownerOf(inside))
	s.Empty(s.ownerOf(outside))
}

func (s *Suite) TestConcurrentCompletionHasOneWinner() {
	ctx := context.Background()
	payments := repository.NewPaymentRepository(s.Postgres)

	_, token := s.signup("contended")
	photoID := s.upload("/api/enhance", token)
	sessionID := s.openCheckout(token, photoID)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		errs    []error
	)
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			paymentID := "pi_worker_" + uuid.NewString()[:8]
			changed, err := payments.MarkCompleted(ctx, sessionID, &paymentID, time.Now().Add(time.Duration(i)*time.Second))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if changed {
				winners++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	s.Empty(errs)
	s.Equal(1, winners)

	intent, err := payments.GetBySessionID(ctx, sessionID)
	s.Require().NoError(err)
	s.Require().NotNil(intent.CompletedAt)
	s.Require().NotNil(intent.ProviderPaymentID)
	completedAt := *intent.CompletedAt

	// a terminal intent ignores later transitions of any kind
	changed, err := payments.MarkCancelled(ctx, sessionID)
	s.Require().NoError(err)
	s.False(changed)
	changed, err = payments.MarkFailed(ctx, sessionID)
	s.Require().NoError(err)
	s.False(changed)

	again, err := payments.GetBySessionID(ctx, sessionID)
	s.Require().NoError(err)
	s.Equal("completed", string(again.Status))
	s.True(completedAt.Equal(*again.CompletedAt))
}
