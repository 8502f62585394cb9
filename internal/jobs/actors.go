package jobs

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/lounge-reconciler/internal/docstore"
	"github.com/example/lounge-reconciler/internal/domain"
)

// ActorGetter is the read side of the store used to resolve profiles.
type ActorGetter interface {
	Get(ctx context.Context, collection, id string) (docstore.Document, error)
}

// loadActors fetches every distinct profile concurrently. Profiles that could
// not be read are returned in the error map keyed by id; a missing profile
// maps to docstore.ErrNotFound.
func loadActors(ctx context.Context, store ActorGetter, ids []string, limit int) (map[string]domain.ActorProfile, map[string]error) {
	var (
		mu      sync.Mutex
		actors  = make(map[string]domain.ActorProfile, len(ids))
		missing = make(map[string]error)
		seen    = make(map[string]struct{}, len(ids))
	)

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g.Go(func() error {
			doc, err := store.Get(ctx, domain.CollectionUsers, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				missing[id] = err
				return nil
			}
			actors[id] = domain.DecodeActor(doc)
			return nil
		})
	}
	_ = g.Wait()
	return actors, missing
}

func lookupReason(err error) string {
	if errors.Is(err, docstore.ErrNotFound) {
		return ReasonActorNotFound
	}
	return ReasonActorLookup
}
