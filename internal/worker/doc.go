// Package worker выполняет task из очереди.
//
// # Обзор
//
// Pool держит несколько слотов. Каждый слот подписывается на брокер
// со своим prefetch и обрабатывает доставки по одной:
//
//  1. Загрузка записи из Result Store. Финальное состояние — повторная
//     доставка, ack без выполнения.
//  2. Перевод в STARTED, Attempts++.
//  3. Выполнение executor'а с soft и hard time limit.
//  4. Успех → SUCCESS с результатом, ack.
//  5. Hard limit → nack с возвратом в очередь, запись остаётся STARTED.
//  6. Permanent-ошибка → FAILURE сразу, сообщение в DLQ.
//  7. Ошибка при retry_count < MaxRetries → RETRY и копия сообщения
//     с retry_count+1 через Backoff(retry_count).
//  8. Иначе FAILURE с последней ошибкой, сообщение в DLQ.
//
// Ack всегда после записи в Result Store. Если воркер упал раньше,
// брокер доставит сообщение повторно, поэтому executor'ы идемпотентны.
//
// # Time limits
//
// Оба лимита отсчитываются от момента, когда слот взял сообщение.
// Soft limit executor видит через SoftLimit(ctx) и может свернуться,
// вернув ErrSoftTimeLimit. По hard limit ctx executor'а отменяется,
// а слот перестаёт его ждать.
//
// # Retry
//
// Повтор идёт через брокер, а не в процессе: слот освобождается,
// а задержка переживает рестарт воркера.
//
//	delay = min(BackoffBase * 2^retry_count, BackoffMax)
//
// Прерывания по hard limit не расходуют retry_count. Чтобы task,
// который всегда упирается в hard limit, не крутился вечно, после
// MaxRedeliveries таких прерываний он уходит в FAILURE.
package worker
