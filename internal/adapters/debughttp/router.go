// Package debughttp exposes the runtime's state over a local HTTP
// surface: health, session snapshot, stage and participant listings,
// plus a small control group for driving the coordinator.
package debughttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/adapters/chat"
	"github.com/stagekit/stagecast/internal/app/alerts"
	"github.com/stagekit/stagecast/internal/app/coord"
	"github.com/stagekit/stagecast/internal/app/feed"
	"github.com/stagekit/stagecast/internal/app/roster"
	"github.com/stagekit/stagecast/internal/config"
	"github.com/stagekit/stagecast/internal/domain"
)

// snapshotTimeout bounds the roundtrip through the coordinator loop.
const snapshotTimeout = 2 * time.Second

type Deps struct {
	Coordinator *coord.Coordinator
	Feed        *feed.Feed
	Roster      *roster.Roster
	Alerts      *alerts.Board
	Chat        *chat.Channel
}

func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	dbg := r.Group("/debug")

	dbg.GET("/session", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
		defer cancel()
		snap, err := d.Coordinator.Snapshot(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	dbg.GET("/stages", func(c *gin.Context) {
		stages := d.Feed.Snapshot()
		out := make([]gin.H, 0, len(stages))
		for _, s := range stages {
			out = append(out, gin.H{
				"id":        s.ID,
				"hostId":    s.HostID,
				"type":      s.Type,
				"mode":      s.Mode,
				"status":    s.Status,
				"joined":    s.Joined,
				"seats":     s.AudioSeats,
				"isPadding": s.IsCopy(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"stages": out})
	})

	dbg.GET("/participants", func(c *gin.Context) {
		participants := d.Roster.Snapshot()
		out := make([]gin.H, 0, len(participants))
		for _, p := range participants {
			entry := gin.H{
				"username":      p.Username,
				"participantId": p.ParticipantID,
				"isLocal":       p.IsLocal,
				"onStage":       p.OnStage,
				"publishState":  p.PublishState,
				"audioMuted":    p.AudioMuted,
				"videoMuted":    p.VideoMuted,
				"speaking":      p.Speaking,
				"audioOnly":     p.AudioOnly(),
				"streams":       len(p.Streams),
			}
			if p.SeatIndex != nil {
				entry["seatIndex"] = *p.SeatIndex
			}
			out = append(out, entry)
		}
		c.JSON(http.StatusOK, gin.H{"participants": out})
	})

	dbg.GET("/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alerts": d.Alerts.Messages()})
	})

	dbg.GET("/chat", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"messages": d.Chat.History()})
	})

	ctl := r.Group("/control")

	ctl.POST("/autojoin", func(c *gin.Context) {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d.Coordinator.SetAutoJoin(body.Enabled)
		c.Status(http.StatusNoContent)
	})

	ctl.POST("/scroll", func(c *gin.Context) {
		var body struct {
			Direction string `json:"direction"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		switch body.Direction {
		case "up":
			d.Coordinator.Scroll(feed.Up)
		case "down":
			d.Coordinator.Scroll(feed.Down)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be up or down"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	ctl.POST("/vote", func(c *gin.Context) {
		var body struct {
			Username string `json:"username"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
			return
		}
		d.Coordinator.CastVote(body.Username)
		c.Status(http.StatusNoContent)
	})

	ctl.POST("/disconnect", func(c *gin.Context) {
		var body struct {
			ParticipantID string `json:"participantId"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.ParticipantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participantId required"})
			return
		}
		d.Coordinator.DisconnectParticipant(domain.ParticipantID(body.ParticipantID))
		c.Status(http.StatusNoContent)
	})

	ctl.POST("/message", func(c *gin.Context) {
		var body struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content required"})
			return
		}
		if err := d.Coordinator.SendMessage(body.Content); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	ctl.POST("/reaction", func(c *gin.Context) {
		var body struct {
			Reaction string `json:"reaction"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Reaction == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reaction required"})
			return
		}
		if err := d.Coordinator.SendReaction(body.Reaction); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	log.Info().Str("module", "adapters.debughttp").Msg("router setup")
	return r
}
