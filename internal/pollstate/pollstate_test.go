package pollstate

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/oadrvtn/internal/models"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{"memory": NewMemory()}

	addr := strings.TrimSpace(os.Getenv("OADR_TEST_REDIS_ADDR"))
	if addr != "" {
		r, err := NewRedis(addr, "", 0, "oadrvtn-test-"+uuid.NewString())
		require.NoError(t, err)
		require.NoError(t, r.Ping(context.Background()))
		t.Cleanup(func() { r.Close() })
		out["redis"] = r
	}
	return out
}

func TestEventsUpdatedFlag(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			updated, err := s.TakeEventsUpdated(ctx, "ven_001")
			require.NoError(t, err)
			assert.False(t, updated)

			require.NoError(t, s.MarkEventsUpdated(ctx, "ven_001"))
			require.NoError(t, s.MarkEventsUpdated(ctx, "ven_001"))

			updated, err = s.TakeEventsUpdated(ctx, "ven_002")
			require.NoError(t, err)
			assert.False(t, updated, "flags are per VEN")

			updated, err = s.TakeEventsUpdated(ctx, "ven_001")
			require.NoError(t, err)
			assert.True(t, updated)

			updated, err = s.TakeEventsUpdated(ctx, "ven_001")
			require.NoError(t, err)
			assert.False(t, updated, "taking clears the flag")
		})
	}
}

func TestReportRequestQueue(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			reqs, err := s.TakeReportRequests(ctx, "ven_001")
			require.NoError(t, err)
			assert.Empty(t, reqs)

			for _, id := range []string{"rr-1", "rr-2"} {
				require.NoError(t, s.PushReportRequest(ctx, "ven_001", models.ReportRequest{
					ReportRequestID:   id,
					ReportSpecifierID: "spec-1",
					Granularity:       time.Minute,
					RIDs:              []string{"voltage"},
				}))
			}

			reqs, err = s.TakeReportRequests(ctx, "ven_001")
			require.NoError(t, err)
			require.Len(t, reqs, 2)
			assert.Equal(t, "rr-1", reqs[0].ReportRequestID)
			assert.Equal(t, time.Minute, reqs[1].Granularity)

			reqs, err = s.TakeReportRequests(ctx, "ven_001")
			require.NoError(t, err)
			assert.Empty(t, reqs)
		})
	}
}

func TestConcurrentMarkAndTakeNeverLosesUpdate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	const rounds = 500
	var wg sync.WaitGroup
	seen := 0

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = s.MarkEventsUpdated(ctx, "ven_001")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if ok, _ := s.TakeEventsUpdated(ctx, "ven_001"); ok {
				seen++
			}
		}
	}()
	wg.Wait()

	// Whatever the interleaving, the last mark is observed by some take
	last, _ := s.TakeEventsUpdated(ctx, "ven_001")
	assert.True(t, seen > 0 || last)
}
