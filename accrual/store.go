package accrual

import "context"

// Store persists the singleton accrual record. GetAccrualState returns a
// zero State when nothing has been written yet.
type Store interface {
	GetAccrualState(ctx context.Context) (*State, error)
	PutAccrualState(ctx context.Context, s *State) error
}
