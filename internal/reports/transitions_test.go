package reports

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitdb/sitdb/internal/platform/httpx"
)

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusVerified, StatusInProgress, StatusRejected},
		StatusVerified:   {StatusInProgress, StatusResolved, StatusRejected},
		StatusInProgress: {StatusResolved, StatusRejected},
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	for _, to := range Statuses {
		assert.False(t, CanTransition(StatusResolved, to))
		assert.False(t, CanTransition(StatusRejected, to))
	}
}

func TestTxErrorMapsSerializationFailure(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := txError(fmt.Errorf("platform/db: commit tx: %w", &pgconn.PgError{Code: code}))
		assert.ErrorIs(t, err, ErrConcurrentUpdate)
		assert.Equal(t, http.StatusConflict, httpx.StatusFor(err))
	}

	other := errors.New("boom")
	assert.Same(t, other, txError(other))
	assert.NoError(t, txError(nil))
	assert.Equal(t, pgx.ReadCommitted, txOptions.IsoLevel)
}

func TestCheckTransitionErrors(t *testing.T) {
	err := checkTransition(StatusResolved, StatusPending, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, http.StatusConflict, httpx.StatusFor(err))
	assert.EqualError(t, err, "Status tidak dapat diubah dari RESOLVED ke PENDING")

	err = checkTransition(StatusVerified, StatusVerified, true)
	assert.EqualError(t, err, "Status laporan sudah VERIFIED")

	assert.NoError(t, checkTransition(StatusResolved, StatusVerified, false))
	assert.NoError(t, checkTransition(StatusVerified, StatusVerified, false))
	assert.NoError(t, checkTransition(StatusResolved, StatusInProgress, false))
	assert.ErrorIs(t, checkTransition(StatusVerified, StatusPending, false), ErrInvalidTransition)
}

func TestSeverityRank(t *testing.T) {
	assert.Equal(t, 1, SeverityRingan.Rank())
	assert.Equal(t, 4, SeverityKritis.Rank())
	assert.Less(t, SeveritySedang.Rank(), SeverityBerat.Rank())
	assert.Zero(t, Severity("EKSTREM").Rank())
}

func TestCheckMedia(t *testing.T) {
	ok := MediaInput{URL: "https://x/y.mp4", Type: MediaVideo, ContentType: "video/mp4", SizeBytes: MaxMediaSize}
	assert.NoError(t, checkMedia(ok))

	upper := ok
	upper.ContentType = "VIDEO/WEBM"
	assert.NoError(t, checkMedia(upper))

	for _, ct := range []string{"image/bmp", "application/pdf", "video/quicktime", ""} {
		in := ok
		in.ContentType = ct
		assert.Error(t, checkMedia(in), ct)
	}
	assert.Equal(t, "15.00 MB", formatSize(15*1024*1024))
	assert.Equal(t, "512 Bytes", formatSize(512))
}
