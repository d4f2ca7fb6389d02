package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateMachineLifecycle(t *testing.T) {
	t.Run("plain dispatch completes", func(t *testing.T) {
		s := NewStateMachine()

		action, err := s.Handling()
		require.NoError(t, err)
		require.Equal(t, ActionDispatch, action)

		require.Equal(t, ActionComplete, s.Unhandle())

		require.False(t, s.Completed(nil))
		require.Equal(t, ActionTerminated, s.Unhandle())
	})

	t.Run("held exchange refuses a second handler", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)

		_, err = s.Handling()
		require.ErrorIs(t, err, ErrHeld)
	})

	t.Run("terminated produces nothing until recycle", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.Equal(t, ActionComplete, s.Unhandle())
		s.Completed(nil)
		require.Equal(t, ActionTerminated, s.Unhandle())

		_, err = s.Handling()
		require.Error(t, err)

		s.Recycle()
		action, err := s.Handling()
		require.NoError(t, err)
		require.Equal(t, ActionDispatch, action)
	})
}

func TestStateMachineAsync(t *testing.T) {
	t.Run("startAsync suspends the exchange", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.NoError(t, s.StartAsync())
		require.Equal(t, ActionWait, s.Unhandle())
	})

	t.Run("startAsync outside of dispatch fails", func(t *testing.T) {
		s := NewStateMachine()
		require.Error(t, s.StartAsync())
	})

	t.Run("dispatch resumes a suspended exchange", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.NoError(t, s.StartAsync())
		require.Equal(t, ActionWait, s.Unhandle())

		reschedule, err := s.AsyncDispatch()
		require.NoError(t, err)
		require.True(t, reschedule)

		action, err := s.Handling()
		require.NoError(t, err)
		require.Equal(t, ActionAsyncDispatch, action)
		require.Equal(t, ActionComplete, s.Unhandle())
	})

	t.Run("complete finishes without a dispatch", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.NoError(t, s.StartAsync())
		require.Equal(t, ActionWait, s.Unhandle())

		reschedule, err := s.AsyncComplete()
		require.NoError(t, err)
		require.True(t, reschedule)

		action, err := s.Handling()
		require.NoError(t, err)
		require.Equal(t, ActionComplete, action)
	})

	t.Run("resume while still handling needs no reschedule", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.NoError(t, s.StartAsync())

		reschedule, err := s.AsyncDispatch()
		require.NoError(t, err)
		require.False(t, reschedule)

		require.Equal(t, ActionAsyncDispatch, s.Unhandle())
	})

	t.Run("cooperative timeout", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.NoError(t, s.StartAsync())
		require.Equal(t, ActionWait, s.Unhandle())

		require.True(t, s.OnTimeoutFired())

		action, err := s.Handling()
		require.NoError(t, err)
		require.Equal(t, ActionAsyncTimeout, action)

		// nobody resolved the expiry
		require.True(t, s.AfterTimeout())
		require.False(t, s.AfterTimeout())
	})

	t.Run("timeout fired after resolution is dropped", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.NoError(t, s.StartAsync())
		require.Equal(t, ActionWait, s.Unhandle())

		_, err = s.AsyncComplete()
		require.NoError(t, err)
		require.False(t, s.OnTimeoutFired())
	})
}

func TestStateMachineOutput(t *testing.T) {
	t.Run("commit happens exactly once", func(t *testing.T) {
		s := NewStateMachine()

		require.True(t, s.CommitResponse())
		require.False(t, s.CommitResponse())
		require.True(t, s.IsResponseCommitted())
	})

	t.Run("partial response reopens the output", func(t *testing.T) {
		s := NewStateMachine()

		require.True(t, s.CommitResponse())
		require.True(t, s.PartialResponse())
		require.False(t, s.IsResponseCommitted())
		require.True(t, s.CommitResponse())
	})

	t.Run("complete requires a commit", func(t *testing.T) {
		s := NewStateMachine()

		require.False(t, s.CompleteResponse())
		require.True(t, s.CommitResponse())
		require.True(t, s.CompleteResponse())
		require.False(t, s.CompleteResponse())
	})

	t.Run("abort is idempotent", func(t *testing.T) {
		s := NewStateMachine()

		require.True(t, s.AbortResponse())
		require.False(t, s.AbortResponse())
		require.True(t, s.IsAborted())
	})

	t.Run("sendError refused once committed", func(t *testing.T) {
		s := NewStateMachine()

		require.True(t, s.CommitResponse())
		require.Error(t, s.SendError())

		_, err := s.OnError()
		require.Error(t, err)
	})
}

func TestStateMachineErrorPath(t *testing.T) {
	t.Run("error during dispatch schedules SEND_ERROR", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)

		reschedule, err := s.OnError()
		require.NoError(t, err)
		require.False(t, reschedule)

		require.Equal(t, ActionSendError, s.Unhandle())
		require.Equal(t, ActionComplete, s.Unhandle())
	})

	t.Run("error while suspended delivers ASYNC_ERROR", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)
		require.NoError(t, s.StartAsync())
		require.Equal(t, ActionWait, s.Unhandle())

		reschedule, err := s.OnError()
		require.NoError(t, err)
		require.True(t, reschedule)

		action, err := s.Handling()
		require.NoError(t, err)
		require.Equal(t, ActionAsyncError, action)
	})

	t.Run("pending error evaporates after commit", func(t *testing.T) {
		s := NewStateMachine()

		_, err := s.Handling()
		require.NoError(t, err)

		_, err = s.OnError()
		require.NoError(t, err)

		require.True(t, s.CommitResponse())
		require.Equal(t, ActionComplete, s.Unhandle())
	})
}
