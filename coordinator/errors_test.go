package coordinator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("wrapped: %w", ErrCollaborationNotFound), KindNotFound},
		{ErrParticipantNotRegistered, KindNotFound},
		{ErrRecordNotFound, KindNotFound},
		{ErrProcessingNotFinished, KindConflict},
		{ErrAlreadyUploaded, KindConflict},
		{ErrDuplicateParticipant, KindAlreadyReported},
		{fmt.Errorf("%w: bad", ErrInvalidCollaboration), KindUnprocessable},
		{ErrInvalidUpload, KindUnprocessable},
		{&ExecutionFailedError{Message: "boom"}, KindExecutionFailed},
		{errors.New("disk on fire"), KindInternal},
	} {
		require.Equal(t, tc.want, KindOf(tc.err), "error %v", tc.err)
	}
}

func TestExecutionFailedErrorMessage(t *testing.T) {
	err := &ExecutionFailedError{Message: "boom"}
	require.Equal(t, "MPC execution failed: boom", err.Error())
}
