package scheduler

import (
	"context"
	"time"

	"authflow/internal/auth"
)

// PurgeJobName - имя задачи очистки просроченных токенов.
const PurgeJobName = "purge-expired"

// Purger удаляет просроченные сессии и токены сброса пароля.
type Purger interface {
	PurgeExpired(ctx context.Context) (auth.PurgeResult, error)
}

// PurgeJob возвращает задачу очистки. observe получает результат каждого
// успешного запуска и может быть nil.
func PurgeJob(p Purger, schedule string, observe func(auth.PurgeResult)) Job {
	return Job{
		Name:     PurgeJobName,
		Schedule: schedule,
		Timeout:  time.Minute,
		Overlap:  SkipIfRunning,
		Run: func(ctx context.Context) error {
			res, err := p.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			if observe != nil {
				observe(res)
			}
			return nil
		},
	}
}
