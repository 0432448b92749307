package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/open-builders/adkamai/internal/common/errors"
)

const InitDataHeader = "X-Telegram-Init-Data"

// TelegramInitData validates Mini App launch parameters from the
// X-Telegram-Init-Data header or the init_data query value and stores the
// signed user id in the context. When required is false, requests without
// init data pass through untouched; present but invalid data is always refused.
func TelegramInitData(botToken string, maxAge time.Duration, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(InitDataHeader)
		if raw == "" {
			raw = c.Query("init_data")
		}
		if raw == "" {
			if required {
				RespondError(c, errors.NewUnauthorizedError("telegram init data required"))
				return
			}
			c.Next()
			return
		}

		if err := initdata.Validate(raw, botToken, maxAge); err != nil {
			RespondError(c, errors.Wrap(err, errors.ErrCodeUnauthorized, "Invalid init data"))
			return
		}

		parsed, err := initdata.Parse(raw)
		if err != nil {
			RespondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "Failed to parse init data"))
			return
		}
		if parsed.User.ID == 0 {
			RespondError(c, errors.NewUnauthorizedError("init data carries no user"))
			return
		}

		c.Set(userIDKey, parsed.User.ID)
		c.Next()
	}
}
