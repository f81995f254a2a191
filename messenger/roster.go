package messenger

import (
	"sync"
)

// memberSet is an order-preserving set of users, safe for concurrent reads
// against the handler goroutines that mutate it.
type memberSet struct {
	mu    sync.Mutex
	users []*User
}

func (s *memberSet) add(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = append(s.users, u)
}

func (s *memberSet) remove(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.users {
		if existing == u {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return
		}
	}
}

func (s *memberSet) contains(u *User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing == u {
			return true
		}
	}

	return false
}

func (s *memberSet) snapshot() []*User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*User, len(s.users))
	copy(out, s.users)

	return out
}

func (s *memberSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}
