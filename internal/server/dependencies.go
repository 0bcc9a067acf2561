package server

import (
	"context"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/accountcache"
	"github.com/jutuon/afrodite-backend-sub001/internal/adminreport"
	"github.com/jutuon/afrodite-backend-sub001/internal/discovery"
	"github.com/jutuon/afrodite-backend-sub001/internal/eventrouter"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/interaction"
	"github.com/jutuon/afrodite-backend-sub001/internal/mediastore"
	"github.com/jutuon/afrodite-backend-sub001/internal/messagequeue"
	"github.com/jutuon/afrodite-backend-sub001/internal/moderation"
	"github.com/jutuon/afrodite-backend-sub001/internal/profile"
	"github.com/jutuon/afrodite-backend-sub001/internal/realtime"
	"github.com/jutuon/afrodite-backend-sub001/internal/syncversion"
)

// domain bundles every C1-C10 component the router and background workers
// need, constructed once at boot (grounded in the teacher's
// internal/server/dependencies.go repositoryBundle/serviceBundle split).
type domain struct {
	identityRepo    *identity.Repository
	publicKeys      *identity.PublicKeyStore
	identitySvc     *identity.Service
	versions        *syncversion.Store
	cache           *accountcache.Cache
	interactions    *interaction.Store
	discoveryIndex  *discovery.Index
	messages        *messagequeue.Queue
	moderationQueue *moderation.Queue
	profiles        *profile.Store
	reports         *adminreport.Store
	hub             *realtime.Hub
	events          *eventrouter.Router
	media           *mediastore.Store
}

func (a *Application) buildDomain() (*domain, error) {
	cfg := a.cfg
	d := &domain{}

	d.identityRepo = identity.NewRepository(a.db)
	d.publicKeys = identity.NewPublicKeyStore(a.db)
	d.versions = syncversion.NewStore(a.db)

	// identity.Service needs a ChannelCloser up front but the concrete
	// closer (the realtime Hub) needs identity.Service as its Authenticator;
	// break the cycle with SetCloser after both exist.
	d.identitySvc = identity.NewService(d.identityRepo, a.redisClient, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, nil)

	d.cache = accountcache.New(cfg.AccountCacheCeiling, func(id identity.InternalAccountID) (*accountcache.Entry, error) {
		acc, err := d.identityRepo.FindByInternalID(a.ctx, id)
		if err != nil {
			return &accountcache.Entry{InternalID: id}, nil
		}
		return &accountcache.Entry{InternalID: id, Capabilities: acc.Permissions}, nil
	})

	d.hub = realtime.NewHub(d.identitySvc, a.bootID)
	d.identitySvc.SetCloser(d.hub)

	d.events = eventrouter.New(d.hub, d.cache, cfg.KafkaBrokers, cfg.EventsTopic, a.redisClient, cfg.DeadLetterTTL)

	d.interactions = interaction.NewStore(a.db, d.versions, a.redisClient, d.events, cfg.DailyLikeCap)
	if err := d.interactions.EnsureIndexes(a.ctx); err != nil {
		return nil, err
	}

	d.moderationQueue = moderation.NewQueue(a.db, d.versions, d.identitySvc, d.events)
	if err := d.moderationQueue.EnsureIndexes(a.ctx); err != nil {
		return nil, err
	}

	media, err := mediastore.New(cfg)
	if err != nil {
		return nil, err
	}
	d.media = media

	d.profiles = profile.NewStore(a.db, d.versions, d.moderationQueue, true)
	if err := d.profiles.EnsureIndexes(a.ctx); err != nil {
		return nil, err
	}
	d.moderationQueue.SetProfileEffects(d.profiles)

	d.discoveryIndex = discovery.New(a.redisClient, profile.ProviderAdapter{Store: d.profiles}, d.interactions, cfg.DiscoveryBucketRadiusKM, a.bootID, cfg.DiscoveryIteratorTTL)

	d.reports = adminreport.NewStore(a.db, d.identitySvc, d.events)
	if err := d.reports.EnsureIndexes(a.ctx); err != nil {
		return nil, err
	}

	if a.cassandra != nil {
		d.messages = messagequeue.NewQueue(a.cassandra, d.interactions, d.events)
	}

	return d, nil
}

// sweepModerationLeases runs the lease-expiry sweep on a ticker, grounded in
// the teacher's startBackgroundWorkers pattern (internal/server/application.go).
func sweepModerationLeases(ctx context.Context, queue *moderation.Queue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = queue.SweepExpiredLeases(ctx)
		}
	}
}
