package http

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/rs/zerolog"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/common/logger"
	"github.com/open-builders/adkamai/internal/common/middleware"
	botmodels "github.com/open-builders/adkamai/internal/features/bot/models"
	"github.com/open-builders/adkamai/internal/features/bot/router"
	"github.com/open-builders/adkamai/internal/features/ledger"
	"github.com/open-builders/adkamai/internal/features/reward/models"
)

//go:embed ad.html
var adPageSource string

var adPage = template.Must(template.New("ad").Parse(adPageSource))

const notifyTimeout = 5 * time.Second

// RewardHandler serves the ad page and the reward confirmation callback.
type RewardHandler struct {
	ledger   ledger.Service
	notifier router.Sender
	appName  string
	now      func() time.Time
	log      zerolog.Logger
}

// NewRewardHandler builds the handler. notifier may be nil.
func NewRewardHandler(svc ledger.Service, notifier router.Sender, appName string) *RewardHandler {
	return &RewardHandler{
		ledger:   svc,
		notifier: notifier,
		appName:  appName,
		now:      time.Now,
		log:      logger.Component("reward"),
	}
}

// RegisterRoutes mounts /reward behind auth and the public /ad page.
func (h *RewardHandler) RegisterRoutes(r gin.IRouter, auth ...gin.HandlerFunc) {
	r.GET("/reward", append(auth, h.Reward)...)
	r.GET("/ad", h.AdPage)
}

// @Summary Confirm an ad view
// @Description Credits one ad view to the user if the daily limit and the cooldown allow it.
// @Tags reward
// @Produce json
// @Param user query int true "Telegram user id"
// @Security TelegramInitData
// @Success 200 {object} models.RewardResponse "Credited"
// @Failure 400 {object} middleware.ErrorResponse "Missing or invalid user"
// @Failure 403 {object} middleware.ErrorResponse "Init data belongs to another user"
// @Failure 404 {object} middleware.ErrorResponse "Unknown user"
// @Failure 429 {object} models.RejectionResponse "daily_limit_reached or too_soon"
// @Failure 500 {object} middleware.ErrorResponse "Storage failure"
// @Router /reward [get]
func (h *RewardHandler) Reward(c *gin.Context) {
	userID, ok := parseUserID(c.Query("user"))
	if !ok {
		middleware.RespondError(c, apperrors.NewValidationError("user", "must be a positive integer"))
		return
	}
	if signed := middleware.GetUserID(c); signed != 0 && signed != userID {
		middleware.RespondError(c, apperrors.NewForbiddenError("init data user does not match").WithUserID(signed))
		return
	}

	balance, err := h.ledger.CreditAdView(c.Request.Context(), userID, h.now())
	if err != nil {
		if rej, ok := ledger.AsRejection(err); ok {
			h.log.Debug().Int64("user_id", userID).Str("reason", string(rej.Reason)).Msg("Ad credit refused")
			c.JSON(http.StatusTooManyRequests, models.RejectionResponse{Status: "rejected", Reason: string(rej.Reason)})
			return
		}
		if errors.Is(err, ledger.ErrUnknownAccount) {
			middleware.RespondError(c, apperrors.NewAccountNotFoundError(userID))
			return
		}
		middleware.RespondError(c, err)
		return
	}

	h.notify(c.Request.Context(), userID, balance)
	c.JSON(http.StatusOK, models.RewardResponse{Status: "ok", Balance: balance})
}

// @Summary Ad viewing page
// @Description HTML page that shows the ad and calls /reward when the viewing time has elapsed.
// @Tags reward
// @Produce html
// @Param user query int true "Telegram user id"
// @Success 200 {string} string "HTML page"
// @Failure 400 {object} middleware.ErrorResponse "Missing or invalid user"
// @Router /ad [get]
func (h *RewardHandler) AdPage(c *gin.Context) {
	userID, ok := parseUserID(c.Query("user"))
	if !ok {
		middleware.RespondError(c, apperrors.NewValidationError("user", "must be a positive integer"))
		return
	}

	p := h.ledger.Policy()
	seconds := p.MinSecondsBetweenAds
	if seconds < 1 {
		seconds = 1
	}

	c.Render(http.StatusOK, render.HTML{
		Template: adPage,
		Data: gin.H{
			"AppName": h.appName,
			"UserID":  userID,
			"Reward":  p.AdReward,
			"Seconds": seconds,
		},
	})
}

// notify tells the user about the credit without delaying the response.
func (h *RewardHandler) notify(ctx context.Context, userID, balance int64) {
	if h.notifier == nil {
		return
	}
	reward := h.ledger.Policy().AdReward
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer cancel()
		_, err := h.notifier.Send(ctx, userID, botmodels.Message{
			Text: router.RewardNotice(reward, balance),
			Menu: router.MainMenu(),
		})
		if err != nil {
			h.log.Debug().Err(err).Int64("user_id", userID).Msg("Failed to send reward notice")
		}
	}()
}

func parseUserID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
