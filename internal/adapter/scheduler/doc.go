// Package scheduler запускает фоновые задачи по cron-расписанию
// (github.com/robfig/cron/v3).
//
// Основная задача сервиса - очистка просроченных сессий и токенов сброса
// пароля:
//
//	s := scheduler.New(ctx, scheduler.WithLogger(log))
//	if err := s.Add(scheduler.PurgeJob(svc, "@every 10m", m.ObservePurge)); err != nil {
//		return err
//	}
//	s.Start()
//	defer s.Stop(shutdownCtx)
//
// Гарантии:
//   - запуски одной задачи по умолчанию не перекрываются (SkipIfRunning);
//   - паника в задаче перехватывается и логируется как ошибка;
//   - ошибка задачи не останавливает планировщик;
//   - Stop ждет идущие запуски не дольше дедлайна контекста.
package scheduler
