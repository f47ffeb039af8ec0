// Package scheduler периодически ставит пересчёт статистики меню.
//
// По cron-выражению Scheduler получает список активных ресторанов
// и ставит analytics.recompute_restaurant_stats для каждого.
//
// Структура:
//   - scheduler.go — Scheduler (Start, Stop, Tick)
//   - cron.go      — парсинг cron-выражений и вычисление следующего запуска
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Sessions: sessions,
//	    Enqueuer: dispatcher,
//	    Locker:   pgSessions.AdvisoryLock(lockKey), // опционально
//	    CronExpr: "0 3 * * *",
//	    Timezone: "Europe/Moscow",
//	    Logger:   logger,
//	})
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
//
// Leader Election:
//
// Если экземпляров несколько, тик выполняет только тот, кто держит
// pg_advisory_lock. Для sqlite Locker не задаётся.
package scheduler
