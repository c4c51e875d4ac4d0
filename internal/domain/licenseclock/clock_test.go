package licenseclock

import (
	"testing"
	"time"
)

// TestExcelDayNumber проверяет опорные значения нумерации дней.
func TestExcelDayNumber(t *testing.T) {
	tests := []struct {
		date time.Time
		want int
	}{
		{time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 45292},
		{time.Date(2024, time.January, 1, 23, 59, 59, 0, time.UTC), 45292},
		{time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), 45352},
		{time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC), 109575},
		{time.Date(2500, time.June, 30, 18, 0, 0, 0, time.UTC), 219328},
	}

	for _, tt := range tests {
		if got := ExcelDayNumber(tt.date); got != tt.want {
			t.Errorf("ExcelDayNumber(%s): ожидалось %d, получено %d",
				tt.date.Format(time.DateTime), tt.want, got)
		}
	}
}

// TestExcelDayNumber_ConsecutiveDays проверяет, что соседние дни отличаются ровно на 1.
func TestExcelDayNumber_ConsecutiveDays(t *testing.T) {
	d1 := ExcelDayNumber(time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC))
	d2 := ExcelDayNumber(time.Date(2024, time.January, 2, 12, 0, 0, 0, time.UTC))

	if d2-d1 != 1 {
		t.Errorf("разница между 2024-01-02 и 2024-01-01: ожидалось 1, получено %d", d2-d1)
	}
}

// TestExcelDayNumber_FarFuture проверяет, что номер дня растёт и после
// предела time.Duration (~292 года от эпохи).
func TestExcelDayNumber_FarFuture(t *testing.T) {
	d1 := ExcelDayNumber(time.Date(2300, time.January, 1, 0, 0, 0, 0, time.UTC))
	d2 := ExcelDayNumber(time.Date(2300, time.January, 2, 0, 0, 0, 0, time.UTC))

	if d2-d1 != 1 {
		t.Errorf("разница между 2300-01-02 и 2300-01-01: ожидалось 1, получено %d", d2-d1)
	}
}

// TestExcelDayNumber_LocalDate проверяет, что используется календарная дата
// в часовом поясе самого момента времени.
func TestExcelDayNumber_LocalDate(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	// 2024-01-01 22:00 в UTC-5 — это уже 2024-01-02 в UTC
	local := time.Date(2024, time.January, 1, 22, 0, 0, 0, bogota)

	if got := ExcelDayNumber(local); got != 45292 {
		t.Errorf("ожидался день 45292 по местной дате, получено %d", got)
	}
}

// TestIsPast проверяет сравнение момента времени с текущим.
func TestIsPast(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)

	if !IsPast(now.Add(-time.Second), now) {
		t.Error("момент секундой ранее должен считаться прошедшим")
	}
	if IsPast(now.Add(time.Hour), now) {
		t.Error("будущий момент не должен считаться прошедшим")
	}
	if IsPast(now, now) {
		t.Error("равный момент не должен считаться прошедшим")
	}
}

// TestTokenInput проверяет формат строки для хэширования.
func TestTokenInput(t *testing.T) {
	got := TokenInput("IPS01", time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC))
	if got != "IPS01-45292" {
		t.Errorf("ожидалось %q, получено %q", "IPS01-45292", got)
	}
}

// TestWindow проверяет порядок и состав окна дат.
func TestWindow(t *testing.T) {
	now := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	w := Window(now)

	want := []int{45352, 45351, 45350}
	for i, d := range w {
		if got := ExcelDayNumber(d); got != want[i] {
			t.Errorf("окно[%d]: ожидался день %d, получен %d", i, want[i], got)
		}
	}
}
