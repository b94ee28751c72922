package jobs

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) SweepSessions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSessionSweepJob_Run(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("SweepSessions", mock.Anything).Return(3, nil).Once()
	sweeper.On("SweepSessions", mock.Anything).Return(0, errors.New("store down")).Once()

	job := NewSessionSweepJob(sweeper, "@every 1h", quietLogger())
	job.Run()
	job.Run()

	sweeper.AssertNumberOfCalls(t, "SweepSessions", 2)
}

func TestSessionSweepJob_StartRejectsBadSchedule(t *testing.T) {
	job := NewSessionSweepJob(new(MockSweeper), "every now and then", quietLogger())
	assert.Error(t, job.Start())
}

func TestSessionSweepJob_StartStop(t *testing.T) {
	job := NewSessionSweepJob(new(MockSweeper), "@every 1h", quietLogger())
	assert.NoError(t, job.Start())
	assert.Len(t, job.cron.Entries(), 1)
	job.Stop()
}
