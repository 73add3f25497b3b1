package pipeline

import (
	"context"
	"log/slog"

	"prop-crawler/internal/fault"
	"prop-crawler/pkg/models"
)

// Credentials is what the pipeline needs from the credential cache.
type Credentials interface {
	Get(ctx context.Context, rawURL string) (models.Credential, error)
	Reject(ctx context.Context, cred models.Credential) error
}

// Attempt runs handle for item until it succeeds, fails for good, or uses
// up maxAttempts. A refused credential is rejected before the retry so the
// next Get solves a fresh one.
func Attempt[T Item](ctx context.Context, creds Credentials, maxAttempts int, item T, handle Handler[T]) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	origin := item.OriginURL()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var cred models.Credential
		if creds != nil && origin != "" {
			cred, err = creds.Get(ctx, origin)
			if err != nil {
				if fault.KindOf(err) == fault.KindTransient && attempt < maxAttempts {
					slog.WarnContext(ctx, "credential unavailable, retrying", "item", item.ItemKey(), "attempt", attempt, "err", err)
					continue
				}
				return err
			}
		}

		err = handle(ctx, item, cred)
		if err == nil {
			return nil
		}

		switch fault.KindOf(err) {
		case fault.KindAuthExpired:
			if creds != nil {
				if rejErr := creds.Reject(ctx, cred); rejErr != nil {
					return rejErr
				}
			}
		case fault.KindTransient:
		default:
			return err
		}

		if attempt < maxAttempts {
			slog.WarnContext(ctx, "retrying item", "item", item.ItemKey(), "attempt", attempt, "kind", fault.KindOf(err), "err", err)
		}
	}
	return err
}
