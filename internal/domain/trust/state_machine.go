// Пакет trust — конечный автомат доверия к устройству.
//
// Жизненный цикл:
//   - unregistered → registered → validated → expired
//   - повторная регистрация допустима из любого зарегистрированного состояния
//   - validated ↔ expired меняются только по времени (сроки наборов данных)
//
// Потокобезопасен через sync.RWMutex.
package trust

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние доверия к устройству.
type State string

const (
	// StateUnregistered — устройство не зарегистрировано
	StateUnregistered State = "unregistered"
	// StateRegistered — ключ регистрации получен, ожидается валидация
	StateRegistered State = "registered"
	// StateValidated — устройство подтверждено, данные доступны
	StateValidated State = "validated"
	// StateExpired — оба набора данных просрочены
	StateExpired State = "expired"
)

// Trigger — причина перехода.
type Trigger string

const (
	TriggerRegister Trigger = "register"
	TriggerValidate Trigger = "validate"
	TriggerClock    Trigger = "clock"
	TriggerRestore  Trigger = "restore"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Trigger   Trigger   `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMachine — конечный автомат состояний устройства.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateUnregistered: {StateRegistered: true},
	StateRegistered:   {StateRegistered: true, StateValidated: true},
	StateValidated:    {StateRegistered: true, StateValidated: true, StateExpired: true},
	StateExpired:      {StateRegistered: true, StateValidated: true},
}

// allowedTriggers — какие причины могут вести в целевое состояние.
// Expired достигается только по времени.
var allowedTriggers = map[State]map[Trigger]bool{
	StateRegistered: {TriggerRegister: true},
	StateValidated:  {TriggerValidate: true, TriggerClock: true},
	StateExpired:    {TriggerClock: true},
}

// NewStateMachine создаёт автомат с начальным состоянием.
func NewStateMachine(initial State) (*StateMachine, error) {
	if !isValidState(initial) {
		return nil, fmt.Errorf("недопустимое начальное состояние: %q", initial)
	}

	return &StateMachine{
		current: initial,
		history: make([]TransitionRecord, 0),
	}, nil
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (sm *StateMachine) CanTransitionTo(target State) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return validTransitions[sm.current][target]
}

// TransitionTo выполняет переход.
//
// Ошибки:
//   - INVALID_TRANSITION — переход недопустим из текущего состояния
//   - INVALID_TRIGGER — в целевое состояние нельзя попасть по этой причине
func (sm *StateMachine) TransitionTo(target State, trigger Trigger) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidState(target) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("недопустимое целевое состояние: %q", target),
		}
	}

	if !validTransitions[sm.current][target] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", sm.current, target),
		}
	}

	if !allowedTriggers[target][trigger] {
		return &TransitionError{
			Code:    "INVALID_TRIGGER",
			Message: fmt.Sprintf("переход в %s по причине %q недопустим", target, trigger),
		}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Trigger:   trigger,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target

	return nil
}

// Restore устанавливает состояние напрямую без проверки переходов.
// Используется при старте, когда состояние восстанавливается из хранилища.
func (sm *StateMachine) Restore(target State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current == target {
		return
	}
	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Trigger:   TriggerRestore,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
}

// History возвращает историю переходов (копия).
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// GrantsAccess сообщает, разрешён ли доступ к данным в состоянии s.
// Просроченное устройство по-прежнему читает данные, но с сигналом устаревания.
func GrantsAccess(s State) bool {
	return s == StateValidated || s == StateExpired
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // INVALID_TRANSITION, INVALID_TRIGGER
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func isValidState(s State) bool {
	switch s {
	case StateUnregistered, StateRegistered, StateValidated, StateExpired:
		return true
	default:
		return false
	}
}

// ParseState преобразует строку в State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !isValidState(st) {
		return "", fmt.Errorf("недопустимое состояние: %q, допустимые: unregistered, registered, validated, expired", s)
	}
	return st, nil
}
