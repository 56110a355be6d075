package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockResetter struct {
	mock.Mock
}

func (m *mockResetter) ResetUsage(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestScheduler_StartStop(t *testing.T) {
	r := &mockResetter{}
	s := NewScheduler(r, "@daily", zap.NewNop())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	r.AssertNotCalled(t, "ResetUsage", mock.Anything)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(&mockResetter{}, "every now and then", zap.NewNop())
	assert.Error(t, s.Start())
}

func TestScheduler_RunReset(t *testing.T) {
	r := &mockResetter{}
	r.On("ResetUsage", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline
	})).Return(3, nil).Once()
	r.On("ResetUsage", mock.Anything).Return(0, errors.New("firestore unavailable")).Once()

	s := NewScheduler(r, "@daily", zap.NewNop())
	s.runReset()
	assert.NotPanics(t, s.runReset)
	r.AssertNumberOfCalls(t, "ResetUsage", 2)
	r.AssertExpectations(t)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	called := make(chan struct{}, 1)
	r := &mockResetter{}
	r.On("ResetUsage", mock.Anything).Return(1, nil).Run(func(mock.Arguments) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	s := NewScheduler(r, "@every 1s", zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	select {
	case <-called:
	case <-time.After(3 * time.Second):
		t.Fatal("usage reset did not run on schedule")
	}
}
