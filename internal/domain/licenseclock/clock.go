// Пакет licenseclock — календарная арифметика лицензирования:
// номер дня в нумерации электронных таблиц (используется в именах
// файлов выгрузок и в скользящем окне токенов) и сроки жизни наборов данных.
//
// Пакет не хранит состояния, все функции чистые.
package licenseclock

import (
	"fmt"
	"time"
)

// excelOffset — смещение нумерации: 1900-01-01 считается днём 1,
// плюс фиктивное 29 февраля 1900 года, унаследованное от таблиц.
const excelOffset = 2

const secondsPerDay = 24 * 60 * 60

// epoch — 1900-01-01 в UTC. Сравнение идёт по календарным датам,
// поэтому часовой пояс эпохи значения не имеет.
var epoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ExcelDayNumber возвращает количество дней от 1900-01-01 до календарной
// даты t (в часовом поясе самого t) плюс 2.
// Пример: 2024-01-01 → 45292.
func ExcelDayNumber(t time.Time) int {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	// Через Unix-секунды: time.Duration ограничен ~292 годами.
	return int((day.Unix()-epoch.Unix())/secondsPerDay) + excelOffset
}

// IsPast сообщает, что момент ts уже наступил относительно now.
// Нормализация часовых поясов не выполняется.
func IsPast(ts, now time.Time) bool {
	return now.After(ts)
}

// AddDays сдвигает t на n календарных дней с сохранением времени суток.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// TokenInput формирует строку "<код учреждения>-<номер дня>",
// из которой удалённый сервис вычисляет токен дня.
func TokenInput(institutionCode string, t time.Time) string {
	return fmt.Sprintf("%s-%d", institutionCode, ExcelDayNumber(t))
}

// Window возвращает три даты окна токенов: сегодня, вчера, позавчера.
func Window(now time.Time) [3]time.Time {
	return [3]time.Time{now, AddDays(now, -1), AddDays(now, -2)}
}
