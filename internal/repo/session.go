package repo

import "context"

// MenuTotals — агрегаты меню ресторана в целых центах.
type MenuTotals struct {
	// Count — количество позиций меню.
	Count int64

	// SumCents — сумма цен, каждая цена округлена до цента.
	SumCents int64
}

// Session — соединение с хранилищем, взятое на одну попытку task.
//
// Сессия не разделяется между параллельными попытками.
// Release обязателен на любом пути выхода и идемпотентен.
type Session interface {
	// MenuTotals возвращает количество и сумму цен позиций меню ресторана.
	// Для ресторана без меню — нули, не ошибка.
	MenuTotals(ctx context.Context, restaurantID int64) (MenuTotals, error)

	// RestaurantIDs возвращает идентификаторы активных ресторанов.
	RestaurantIDs(ctx context.Context) ([]int64, error)

	// Release возвращает соединение в пул.
	Release()
}

// SessionProvider выдаёт сессии. Явно создаётся в main и передаётся
// executor'у, глобального состояния нет.
type SessionProvider interface {
	// Acquire берёт соединение из пула.
	Acquire(ctx context.Context) (Session, error)

	// Close закрывает пул.
	Close()
}
