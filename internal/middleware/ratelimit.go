package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const writeRatePrefix = "rl:write:"

// WalletWriteRateLimit caps balance-changing requests per wallet in fixed
// one-minute windows counted in Redis. It is a no-op without Redis or when
// maxPerMin is not positive, and fails open on cache errors. It must be mounted
// on routes that declare :walletId.
func WalletWriteRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		walletID := c.Params("walletId")
		if walletID == "" {
			return c.Next()
		}

		window := time.Now().UTC().Truncate(time.Minute).Unix()
		key := writeRatePrefix + walletID + ":" + strconv.FormatInt(window, 10)

		ctx := c.UserContext()
		pipe := cache.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Minute)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("write rate limit unavailable", slog.String("wallet_id", walletID), slog.Any("error", err))
			return c.Next()
		}

		if incr.Val() > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "Too many requests for this wallet, try again later")
		}
		return c.Next()
	}
}
