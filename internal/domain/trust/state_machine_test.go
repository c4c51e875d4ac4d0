package trust

import (
	"errors"
	"sync"
	"testing"
)

// TestNewStateMachine проверяет создание автомата.
func TestNewStateMachine(t *testing.T) {
	tests := []struct {
		state   State
		wantErr bool
	}{
		{StateUnregistered, false},
		{StateRegistered, false},
		{StateValidated, false},
		{StateExpired, false},
		{State("revoked"), true},
		{State(""), true},
	}

	for _, tt := range tests {
		sm, err := NewStateMachine(tt.state)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NewStateMachine(%q): ожидалась ошибка", tt.state)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewStateMachine(%q): неожиданная ошибка: %v", tt.state, err)
			continue
		}
		if sm.Current() != tt.state {
			t.Errorf("Current(): ожидалось %q, получено %q", tt.state, sm.Current())
		}
	}
}

// TestTransitions_HappyPath проверяет штатный жизненный цикл.
func TestTransitions_HappyPath(t *testing.T) {
	sm, _ := NewStateMachine(StateUnregistered)

	steps := []struct {
		target  State
		trigger Trigger
	}{
		{StateRegistered, TriggerRegister},
		{StateValidated, TriggerValidate},
		{StateExpired, TriggerClock},
		{StateValidated, TriggerClock},
	}

	for _, s := range steps {
		if err := sm.TransitionTo(s.target, s.trigger); err != nil {
			t.Fatalf("переход в %s (%s): неожиданная ошибка: %v", s.target, s.trigger, err)
		}
	}

	if sm.Current() != StateValidated {
		t.Errorf("ожидалось состояние validated, получено %q", sm.Current())
	}
	if len(sm.History()) != len(steps) {
		t.Errorf("история: ожидалось %d записей, получено %d", len(steps), len(sm.History()))
	}
}

// TestTransitions_UnregisteredCannotValidate проверяет, что валидация
// до регистрации недопустима.
func TestTransitions_UnregisteredCannotValidate(t *testing.T) {
	sm, _ := NewStateMachine(StateUnregistered)

	err := sm.TransitionTo(StateValidated, TriggerValidate)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("ожидалась TransitionError, получена %v", err)
	}
	if te.Code != "INVALID_TRANSITION" {
		t.Errorf("ожидался код INVALID_TRANSITION, получен %q", te.Code)
	}
	if sm.Current() != StateUnregistered {
		t.Errorf("состояние не должно меняться, получено %q", sm.Current())
	}
}

// TestTransitions_ExpiredOnlyByClock проверяет, что expired
// достигается только по времени.
func TestTransitions_ExpiredOnlyByClock(t *testing.T) {
	sm, _ := NewStateMachine(StateValidated)

	err := sm.TransitionTo(StateExpired, TriggerValidate)
	var te *TransitionError
	if !errors.As(err, &te) || te.Code != "INVALID_TRIGGER" {
		t.Fatalf("ожидалась ошибка INVALID_TRIGGER, получена %v", err)
	}

	if err := sm.TransitionTo(StateExpired, TriggerClock); err != nil {
		t.Fatalf("validated → expired по времени: неожиданная ошибка: %v", err)
	}
}

// TestTransitions_ReRegister проверяет повторную регистрацию из любого
// зарегистрированного состояния.
func TestTransitions_ReRegister(t *testing.T) {
	for _, from := range []State{StateRegistered, StateValidated, StateExpired} {
		sm, _ := NewStateMachine(from)
		if err := sm.TransitionTo(StateRegistered, TriggerRegister); err != nil {
			t.Errorf("%s → registered: неожиданная ошибка: %v", from, err)
		}
	}
}

// TestRestore проверяет прямую установку состояния при старте.
func TestRestore(t *testing.T) {
	sm, _ := NewStateMachine(StateUnregistered)
	sm.Restore(StateExpired)

	if sm.Current() != StateExpired {
		t.Errorf("ожидалось состояние expired, получено %q", sm.Current())
	}
	h := sm.History()
	if len(h) != 1 || h[0].Trigger != TriggerRestore {
		t.Errorf("ожидалась одна запись restore в истории, получено %+v", h)
	}

	sm.Restore(StateExpired)
	if len(sm.History()) != 1 {
		t.Error("повторное восстановление того же состояния не должно попадать в историю")
	}
}

// TestGrantsAccess проверяет доступ к данным по состояниям.
func TestGrantsAccess(t *testing.T) {
	want := map[State]bool{
		StateUnregistered: false,
		StateRegistered:   false,
		StateValidated:    true,
		StateExpired:      true,
	}
	for s, w := range want {
		if GrantsAccess(s) != w {
			t.Errorf("GrantsAccess(%s): ожидалось %v", s, w)
		}
	}
}

// TestParseState проверяет разбор строки состояния.
func TestParseState(t *testing.T) {
	if s, err := ParseState("validated"); err != nil || s != StateValidated {
		t.Errorf("ParseState(validated): получено %q, %v", s, err)
	}
	if _, err := ParseState("VALIDATED"); err == nil {
		t.Error("ParseState чувствителен к регистру, ожидалась ошибка")
	}
}

// TestConcurrentAccess проверяет отсутствие гонок при параллельном чтении.
func TestConcurrentAccess(t *testing.T) {
	sm, _ := NewStateMachine(StateValidated)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sm.Current()
			_ = sm.CanTransitionTo(StateExpired)
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = sm.TransitionTo(StateExpired, TriggerClock)
			} else {
				_ = sm.TransitionTo(StateValidated, TriggerClock)
			}
		}(i)
	}
	wg.Wait()
}
