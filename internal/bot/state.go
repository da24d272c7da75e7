package bot

import (
	"sync"

	"bookflow/internal/booking"
)

type inputStep string

const (
	inputNone  inputStep = "none"
	inputName  inputStep = "name"
	inputEmail inputStep = "email"
	inputPhone inputStep = "phone"
	inputReady inputStep = "ready"
)

// userState is what the bot collects outside the wizard: the dialog field
// being typed and the viewer's timezone choice.
type userState struct {
	Step      inputStep
	Contact   booking.Contact
	Timezone  string
	MessageID int
}

type stateStore struct {
	mu sync.Mutex
	m  map[int64]*userState
}

func newStateStore() *stateStore {
	return &stateStore{m: make(map[int64]*userState)}
}

func (s *stateStore) get(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		st = &userState{Step: inputNone}
		s.m[userID] = st
	}
	return st
}

// reset drops collected input but keeps the timezone choice.
func (s *stateStore) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		return
	}
	s.m[userID] = &userState{Step: inputNone, Timezone: st.Timezone}
}
