package messaging

import (
	"context"
	"time"

	"keepsake-server/internal/engine"

	"go.uber.org/zap"
)

// ResultForwarder возвращает подписчика движка, который пересылает каждый
// результат в publisher. Ошибки публикации только логируются.
func ResultForwarder(publisher ResultPublisher, playerID string, logger *zap.Logger) func(engine.Result) {
	log := logger.Named("ResultForwarder").With(zap.String("playerID", playerID))
	return func(res engine.Result) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		notification := ProgressionNotification{
			PlayerID:    playerID,
			EventType:   string(res.EventType),
			Result:      res,
			PublishedAt: time.Now().UTC(),
		}
		if err := publisher.PublishProgressionResult(ctx, notification); err != nil {
			log.Error("Не удалось опубликовать результат",
				zap.String("eventType", string(res.EventType)),
				zap.Error(err),
			)
		}
	}
}
