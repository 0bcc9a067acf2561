// Package server's route table, grounded in the teacher's
// internal/server/router.go registerXRoutes split (health/auth/API/
// websocket groups) and gin-contrib/cors config, generalized to this
// service's account_api/profile_api/chat_api/media_api/admin_api/
// common_api groups (SPEC_FULL.md §6).
package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jutuon/afrodite-backend-sub001/internal/adminreport"
	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/discovery"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/moderation"
	"github.com/jutuon/afrodite-backend-sub001/internal/observability"
	"github.com/jutuon/afrodite-backend-sub001/internal/perf"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/authmiddleware"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/ratelimit"
	"github.com/jutuon/afrodite-backend-sub001/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (a *Application) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.MetricsMiddleware())
	router.Use(ratelimit.Middleware(a.cfg))

	corsConfig := cors.Config{
		AllowOrigins:     a.cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	a.registerHealthRoutes(router)
	a.registerAccountRoutes(router)

	authed := router.Group("/")
	authed.Use(authmiddleware.Middleware(a.domain.identitySvc))
	a.registerChatRoutes(authed)
	a.registerProfileRoutes(authed)
	a.registerInteractionRoutes(authed)
	a.registerDiscoveryRoutes(authed)
	a.registerMediaRoutes(authed)
	a.registerAdminRoutes(authed)

	router.GET("/common_api/connect", func(c *gin.Context) {
		realtime.ServeWs(c, a.domain.hub, a.domain.identitySvc)
	})

	return router
}

func (a *Application) registerHealthRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := gin.H{"status": "ready"}
		code := http.StatusOK

		if err := a.mongoClient.Ping(ctx, nil); err != nil {
			status["mongo"] = "unavailable"
			code = http.StatusServiceUnavailable
		} else {
			status["mongo"] = "available"
		}

		if !a.redisClient.IsAvailable(ctx) {
			status["redis"] = "unavailable"
			code = http.StatusServiceUnavailable
		} else {
			status["redis"] = "available"
		}

		c.JSON(code, status)
	})
}

// writeError translates an apierr.Error (or an opaque error) into the HTTP
// response shape §7 specifies; every handler below funnels its error
// return through this single path.
func writeError(c *gin.Context, err error) {
	if apiErr, ok := apierr.As(err); ok {
		c.JSON(apiErr.HTTPStatus(), gin.H{"code": apiErr.Code, "message": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": apierr.CodeInternal, "message": "internal error"})
}

// setRefreshCookie mirrors the refresh token into an httpOnly cookie
// alongside the JSON body, so a browser client can rely on the cookie for
// silent refresh while a mobile/API client uses the body value directly.
// Grounded in the teacher's own dual cookie+body token delivery on
// login/refresh.
func (a *Application) setRefreshCookie(c *gin.Context, token string, maxAge time.Duration) {
	c.SetCookie(a.cfg.RefreshCookieName, token, int(maxAge.Seconds()), "/", a.cfg.CookieDomain, a.cfg.CookieSecure, true)
}

func internalAccountID(c *gin.Context) identity.InternalAccountID {
	v, _ := c.Get("internalAccountID")
	id, _ := v.(identity.InternalAccountID)
	return id
}

func parseObjectID(hex string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(hex)
}

// --- account_api ---

func (a *Application) registerAccountRoutes(router *gin.Engine) {
	g := router.Group("/account_api")
	svc := a.domain.identitySvc

	g.POST("/register", func(c *gin.Context) {
		var req struct {
			Email string `json:"email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		id, pair, err := svc.Register(c.Request.Context(), req.Email)
		if err != nil {
			writeError(c, err)
			return
		}
		a.setRefreshCookie(c, pair.RefreshToken, a.cfg.RefreshTokenTTL)
		c.JSON(http.StatusOK, gin.H{"account_id": id.String(), "access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
	})

	g.POST("/login", func(c *gin.Context) {
		var req struct {
			AccountID string `json:"account_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		id, err := identity.ParseAccountID(req.AccountID)
		if err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid account_id"))
			return
		}
		pair, err := svc.Login(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		a.setRefreshCookie(c, pair.RefreshToken, a.cfg.RefreshTokenTTL)
		c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
	})

	g.POST("/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		pair, err := svc.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			writeError(c, err)
			return
		}
		a.setRefreshCookie(c, pair.RefreshToken, a.cfg.RefreshTokenTTL)
		c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
	})

	// demo_login issues a token pair for a freshly registered throwaway
	// account without any prior credential, gated on cfg.DemoModeEnabled so
	// it never exists in a production deployment. Grounded in the teacher's
	// demo/seed-account login shortcuts used for its own staging
	// environments.
	if a.cfg.DemoModeEnabled {
		g.POST("/demo_login", func(c *gin.Context) {
			if c.GetHeader("X-Demo-Token") != a.cfg.DemoModeToken || a.cfg.DemoModeToken == "" {
				writeError(c, apierr.New(apierr.CodeUnauthorized, "invalid demo token"))
				return
			}
			id, pair, err := svc.Register(c.Request.Context(), "")
			if err != nil {
				writeError(c, err)
				return
			}
			a.setRefreshCookie(c, pair.RefreshToken, a.cfg.RefreshTokenTTL)
			c.JSON(http.StatusOK, gin.H{"account_id": id.String(), "access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
		})
	}

	authed := g.Group("/")
	authed.Use(authmiddleware.Middleware(svc))
	authed.POST("/logout", func(c *gin.Context) {
		if err := svc.Logout(c.Request.Context(), internalAccountID(c)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
}

// --- chat_api/public_key ---

func (a *Application) registerChatRoutes(g *gin.RouterGroup) {
	keys := a.domain.publicKeys
	chat := g.Group("/chat_api")

	chat.POST("/public_key", func(c *gin.Context) {
		var req struct {
			Data    []byte `json:"data"`
			Version int32  `json:"version"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		if !identity.SupportedPublicKeyVersion(req.Version) {
			c.JSON(http.StatusNotAcceptable, gin.H{"message": "unsupported public key version"})
			return
		}
		id, err := keys.Set(c.Request.Context(), internalAccountID(c), req.Data, req.Version)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	chat.GET("/public_key/current", func(c *gin.Context) {
		key, err := keys.Current(c.Request.Context(), internalAccountID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": key.ID, "version": key.Version, "data": key.Data})
	})

	chat.GET("/public_key/:account/:id/:version", func(c *gin.Context) {
		accountRaw, _ := strconv.ParseInt(c.Param("account"), 10, 64)
		keyID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
		versionRaw, _ := strconv.ParseInt(c.Param("version"), 10, 32)
		key, err := keys.Get(c.Request.Context(), identity.InternalAccountID(accountRaw), keyID, int32(versionRaw))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": key.ID, "version": key.Version, "data": key.Data})
	})

	chat.POST("/send_message", ratelimit.ActionLimiter(a.redisClient, ratelimit.MessageActionLimit), func(c *gin.Context) {
		if a.domain.messages == nil {
			writeError(c, apierr.New(apierr.CodeUnavailable, "message queue unavailable"))
			return
		}
		var req struct {
			Receiver          int64  `json:"receiver"`
			ClientLocalID     int64  `json:"client_local_id"`
			Payload           []byte `json:"payload"`
			SenderPublicKeyID int64  `json:"sender_public_key_id"`
			Signature         []byte `json:"signature"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		clientID, createdAt, err := a.domain.messages.Send(c.Request.Context(), internalAccountID(c), identity.InternalAccountID(req.Receiver), req.ClientLocalID, req.Payload, req.SenderPublicKeyID, req.Signature)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"client_id": clientID, "created_at": createdAt})
	})

	chat.GET("/receive_messages", func(c *gin.Context) {
		if a.domain.messages == nil {
			writeError(c, apierr.New(apierr.CodeUnavailable, "message queue unavailable"))
			return
		}
		msgs, err := a.domain.messages.Receive(c.Request.Context(), internalAccountID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	})
}

// --- profile_api ---

func (a *Application) registerProfileRoutes(g *gin.RouterGroup) {
	profiles := a.domain.profiles
	p := g.Group("/profile_api")

	p.GET("/profile", func(c *gin.Context) {
		prof, err := profiles.Get(c.Request.Context(), internalAccountID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, prof)
	})

	p.POST("/name", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		if err := profiles.SetName(c.Request.Context(), internalAccountID(c), req.Name); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	p.POST("/text", func(c *gin.Context) {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		if err := profiles.SetText(c.Request.Context(), internalAccountID(c), req.Text); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	p.POST("/search_preferences", func(c *gin.Context) {
		var req struct {
			AgeMin  int      `json:"age_min"`
			AgeMax  int      `json:"age_max"`
			Genders []string `json:"genders"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		genders := make([]discovery.Gender, len(req.Genders))
		for i, gstr := range req.Genders {
			genders[i] = discovery.Gender(gstr)
		}
		if err := profiles.SetSearchPreferences(c.Request.Context(), internalAccountID(c), req.AgeMin, req.AgeMax, genders); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	p.POST("/visibility", func(c *gin.Context) {
		var req struct {
			Visible bool `json:"visible"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		if err := profiles.SetVisibility(c.Request.Context(), internalAccountID(c), req.Visible); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	p.POST("/location", func(c *gin.Context) {
		var req struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		account := internalAccountID(c)
		if err := profiles.SetLocation(c.Request.Context(), account, req.Lat, req.Lon); err != nil {
			writeError(c, err)
			return
		}
		if err := a.domain.discoveryIndex.UpdateLocation(c.Request.Context(), account, req.Lat, req.Lon); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// --- C4 interaction endpoints, spread under profile_api per spec.md §6 ---

func (a *Application) registerInteractionRoutes(g *gin.RouterGroup) {
	interactions := a.domain.interactions
	i := g.Group("/profile_api")
	i.Use(ratelimit.ActionLimiter(a.redisClient, ratelimit.LikeActionLimit))

	i.POST("/like/:target", func(c *gin.Context) {
		target, _ := strconv.ParseInt(c.Param("target"), 10, 64)
		account := internalAccountID(c)
		prof, err := a.domain.profiles.Get(c.Request.Context(), account)
		unlimited := err == nil && prof.UnlimitedLikes
		if err := interactions.Like(c.Request.Context(), account, identity.InternalAccountID(target), unlimited); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	i.POST("/unlike/:target", func(c *gin.Context) {
		target, _ := strconv.ParseInt(c.Param("target"), 10, 64)
		if err := interactions.Unlike(c.Request.Context(), internalAccountID(c), identity.InternalAccountID(target)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	i.POST("/block/:target", func(c *gin.Context) {
		target, _ := strconv.ParseInt(c.Param("target"), 10, 64)
		if err := interactions.Block(c.Request.Context(), internalAccountID(c), identity.InternalAccountID(target)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	listHandler := func(fn func(ctx context.Context, account identity.InternalAccountID, limit, skip int64) ([]identity.InternalAccountID, int64, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
			skip, _ := strconv.ParseInt(c.DefaultQuery("skip", "0"), 10, 64)
			ids, version, err := fn(c.Request.Context(), internalAccountID(c), limit, skip)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"accounts": ids, "version": version})
		}
	}
	i.GET("/sent_likes", listHandler(interactions.SentLikes))
	i.GET("/received_likes", listHandler(interactions.ReceivedLikes))
	i.GET("/matches", listHandler(interactions.Matches))
	i.GET("/received_blocks", listHandler(interactions.ReceivedBlocks))

	i.POST("/received_likes/iterator/reset", func(c *gin.Context) {
		session, err := interactions.ResetReceivedLikesIterator(c.Request.Context(), internalAccountID(c), a.bootID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session})
	})
}

// --- C5 discovery ---

func (a *Application) registerDiscoveryRoutes(g *gin.RouterGroup) {
	idx := a.domain.discoveryIndex
	d := g.Group("/profile_api")
	d.Use(ratelimit.ActionLimiter(a.redisClient, ratelimit.DiscoveryActionLimit))

	d.POST("/discovery/iterator/reset", func(c *gin.Context) {
		var req struct {
			Lat              float64  `json:"lat"`
			Lon              float64  `json:"lon"`
			MaxDistanceKM    float64  `json:"max_distance_km"`
			AgeMin           int      `json:"age_min"`
			AgeMax           int      `json:"age_max"`
			LastSeenFilter   int64    `json:"last_seen_filter"`
			SelfAge          int      `json:"self_age"`
			SelfGender       string   `json:"self_gender"`
			SelfInterestedIn []string `json:"self_interested_in"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		interestedIn := make([]discovery.Gender, len(req.SelfInterestedIn))
		for i, gstr := range req.SelfInterestedIn {
			interestedIn[i] = discovery.Gender(gstr)
		}
		session, err := idx.ResetProfileIterator(c.Request.Context(), internalAccountID(c), discovery.Criteria{
			Lat: req.Lat, Lon: req.Lon, MaxDistanceKM: req.MaxDistanceKM,
			AgeMin: req.AgeMin, AgeMax: req.AgeMax, LastSeenFilter: req.LastSeenFilter,
			SelfAge: req.SelfAge, SelfGender: discovery.Gender(req.SelfGender), SelfInterestedIn: interestedIn,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session})
	})

	d.GET("/discovery/iterator/next", func(c *gin.Context) {
		session := c.Query("session")
		n, _ := strconv.Atoi(c.DefaultQuery("n", "25"))
		ids, err := idx.NextPage(c.Request.Context(), session, n)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": ids})
	})
}

// --- media_api: moderation submission + moderator claim/decide ---

func (a *Application) registerMediaRoutes(g *gin.RouterGroup) {
	media := a.domain.media
	queue := a.domain.moderationQueue
	m := g.Group("/media_api")

	m.POST("/upload", func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "file required"))
			return
		}
		defer file.Close()
		ext := ""
		if idx := lastDot(header.Filename); idx >= 0 {
			ext = header.Filename[idx+1:]
		}
		reference, err := media.PutMedia(c.Request.Context(), ext, header.Header.Get("Content-Type"), file, header.Size)
		if err != nil {
			writeError(c, err)
			return
		}
		account := internalAccountID(c)
		item, err := queue.Enqueue(c.Request.Context(), moderation.QueueMedia, account, reference)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reference": reference, "item_id": item.ID.Hex()})
	})

	m.GET("/:reference", func(c *gin.Context) {
		rc, err := media.GetMedia(c.Request.Context(), c.Param("reference"))
		if err != nil {
			writeError(c, err)
			return
		}
		defer rc.Close()
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, rc)
	})

	moderation_ := m.Group("/moderation")
	moderation_.POST("/:queue/claim", func(c *gin.Context) {
		item, err := queue.Next(c.Request.Context(), moderation.QueueKind(c.Param("queue")), internalAccountID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	moderation_.POST("/:item_id/decide", func(c *gin.Context) {
		itemID, err := parseObjectID(c.Param("item_id"))
		if err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid item id"))
			return
		}
		var req struct {
			Accept         bool   `json:"accept"`
			RejectCategory string `json:"reject_category"`
			RejectDetails  string `json:"reject_details"`
			MoveToHuman    bool   `json:"move_to_human"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		moderator := internalAccountID(c)
		hasMaintenance := false
		if entry, err := a.domain.cache.Get(moderator); err == nil {
			hasMaintenance = entry.HasCapability(identity.PermAdminMaintenanceModeration)
		}
		if err := queue.Moderate(c.Request.Context(), itemID, moderator, req.Accept, req.RejectCategory, req.RejectDetails, req.MoveToHuman, hasMaintenance); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// --- admin_api: reports, bans ---

func (a *Application) registerAdminRoutes(g *gin.RouterGroup) {
	reports := a.domain.reports
	admin := g.Group("/admin_api")

	admin.POST("/report", ratelimit.ActionLimiter(a.redisClient, ratelimit.ReportActionLimit), func(c *gin.Context) {
		var req struct {
			Target  int64  `json:"target"`
			Kind    string `json:"kind"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		if err := reports.Report(c.Request.Context(), internalAccountID(c), identity.InternalAccountID(req.Target), adminreport.ReportKind(req.Kind), req.Content); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.GET("/reports", func(c *gin.Context) {
		kinds := []adminreport.ReportKind{adminreport.ReportKindProfileContent, adminreport.ReportKindChatMessage}
		waiting, err := reports.WaitingReports(c.Request.Context(), kinds)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": waiting})
	})

	admin.POST("/ban/:target", func(c *gin.Context) {
		target, _ := strconv.ParseInt(c.Param("target"), 10, 64)
		if err := reports.Ban(c.Request.Context(), identity.InternalAccountID(target), nil); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.POST("/unban/:target", func(c *gin.Context) {
		target, _ := strconv.ParseInt(c.Param("target"), 10, 64)
		if err := reports.Unban(c.Request.Context(), identity.InternalAccountID(target)); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.POST("/process_report", func(c *gin.Context) {
		var req struct {
			Target  int64  `json:"target"`
			Kind    string `json:"kind"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		if err := reports.ProcessReport(c.Request.Context(), identity.InternalAccountID(req.Target), adminreport.ReportKind(req.Kind), req.Content); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.POST("/news", a.requireCapability(identity.PermAdminEditNews), func(c *gin.Context) {
		var req struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		item, err := reports.PublishNews(c.Request.Context(), internalAccountID(c), req.Title, req.Body)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	admin.PUT("/news/:id", a.requireCapability(identity.PermAdminEditNews), func(c *gin.Context) {
		id, err := parseObjectID(c.Param("id"))
		if err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid news id"))
			return
		}
		var req struct {
			Title           string `json:"title"`
			Body            string `json:"body"`
			ExpectedVersion int64  `json:"expected_version"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid body"))
			return
		}
		if err := reports.EditNews(c.Request.Context(), internalAccountID(c), id, req.ExpectedVersion, req.Title, req.Body); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.GET("/perf", func(c *gin.Context) {
		metricName := c.DefaultQuery("metric", "http_request_duration_seconds")
		percentile, err := strconv.ParseFloat(c.DefaultQuery("percentile", "0.99"), 64)
		if err != nil || percentile <= 0 || percentile > 1 {
			writeError(c, apierr.New(apierr.CodeBadRequest, "invalid percentile"))
			return
		}
		granularity := perf.Granularity(c.DefaultQuery("granularity", string(perf.GranularityMinutes)))
		value, err := perf.QueryPerf(prometheus.DefaultGatherer, perf.MetricQuery{
			MetricName: metricName, Percentile: percentile, Granularity: granularity,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"live_channels": a.domain.hub.LiveChannelCount(), "metric": value})
	})
}

// requireCapability gates an admin_api route on the caller's cached
// capability bitmask (SPEC_FULL.md §3's admin permission bitmask), 403ing
// callers who lack the named permission.
func (a *Application) requireCapability(p identity.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := a.domain.cache.Get(internalAccountID(c))
		if err != nil || !entry.HasCapability(p) {
			writeError(c, apierr.Forbidden("missing required admin capability"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
