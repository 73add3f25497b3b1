package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

func TestSerializeCookies_ForwardsAll(t *testing.T) {
	cookies := []*network.Cookie{
		{Name: "__cf_bm", Value: "bm"},
		{Name: "cf_clearance", Value: "clear"},
		{Name: "session", Value: "s1"},
	}
	got, err := SerializeCookies(cookies, "cf_clearance")
	require.NoError(t, err)
	require.Equal(t, "__cf_bm=bm; cf_clearance=clear; session=s1", got)
}

func TestSerializeCookies_MissingClearance(t *testing.T) {
	cookies := []*network.Cookie{{Name: "__cf_bm", Value: "bm"}, nil}
	_, err := SerializeCookies(cookies, "cf_clearance")
	require.ErrorIs(t, err, ErrCredentialMissing)

	_, err = SerializeCookies(nil, "cf_clearance")
	require.ErrorIs(t, err, ErrCredentialMissing)
}

func TestTarget(t *testing.T) {
	s := NewBrowserSolver(Config{})
	host, entry, err := s.target("https://media.daft.ie/img/1.jpg?x=1")
	require.NoError(t, err)
	require.Equal(t, "media.daft.ie", host)
	require.Equal(t, "https://media.daft.ie/", entry)

	s = NewBrowserSolver(Config{EntryURL: "https://www.daft.ie/"})
	host, entry, err = s.target("https://media.daft.ie/img/1.jpg")
	require.NoError(t, err)
	require.Equal(t, "media.daft.ie", host)
	require.Equal(t, "https://www.daft.ie/", entry)

	_, _, err = s.target("not a url")
	require.Error(t, err)
}

func TestTimeoutOr(t *testing.T) {
	err := timeoutOr("navigate", context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrChallengeTimeout)
	require.Equal(t, fault.KindTransient, fault.KindOf(err))

	err = timeoutOr("navigate", errors.New("net::ERR_NAME_NOT_RESOLVED"))
	require.False(t, errors.Is(err, ErrChallengeTimeout))
	require.Equal(t, fault.KindTransient, fault.KindOf(err))
}

func TestIdleTracker(t *testing.T) {
	tr := newIdleTracker()
	tr.observe(&network.EventRequestWillBeSent{RequestID: "1"})
	tr.observe(&network.EventRequestWillBeSent{RequestID: "2"})

	ctx := context.Background()
	require.ErrorIs(t, tr.wait(ctx, 150*time.Millisecond), context.DeadlineExceeded)

	tr.observe(&network.EventLoadingFinished{RequestID: "1"})
	tr.observe(&network.EventLoadingFailed{RequestID: "2"})
	require.NoError(t, tr.wait(ctx, 2*time.Second))
}

func TestSolverFunc(t *testing.T) {
	var s Solver = SolverFunc(func(ctx context.Context, originURL string) (models.Credential, error) {
		return models.Credential{Cookie: "cf_clearance=x", Host: "h"}, nil
	})
	cred, err := s.Solve(context.Background(), "https://h/")
	require.NoError(t, err)
	require.Equal(t, "cf_clearance=x", cred.Cookie)
}
