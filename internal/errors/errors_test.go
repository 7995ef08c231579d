package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	slerrors "stageline.dev/stageline/internal/errors"
)

func TestKindOf(t *testing.T) {
	t.Run("typed error reports its kind", func(t *testing.T) {
		err := slerrors.New(slerrors.KindPreconditionFailed, "stage", "revision %d is not current", 2)
		require.Equal(t, slerrors.KindPreconditionFailed, slerrors.KindOf(err))
		require.ErrorIs(t, err, slerrors.ErrPreconditionFailed)
		require.NotErrorIs(t, err, slerrors.ErrStatusConflict)
		require.Equal(t, "stage: revision 2 is not current", err.Error())
	})

	t.Run("kind survives wrapping", func(t *testing.T) {
		inner := slerrors.New(slerrors.KindConcurrentBranchMove, "approve", "branch moved")
		err := fmt.Errorf("approve build b1: %w", inner)
		require.Equal(t, slerrors.KindConcurrentBranchMove, slerrors.KindOf(err))
	})

	t.Run("detail errors map through sentinels", func(t *testing.T) {
		conflict := slerrors.NewMergeConflictError("aaaa", "bbbb", []string{"a.txt"})
		require.Equal(t, slerrors.KindMergeConflict, slerrors.KindOf(conflict))

		status := slerrors.NewStatusConflictError(7, "MERGED", "STAGED")
		require.Equal(t, slerrors.KindStatusConflict, slerrors.KindOf(status))
		require.Contains(t, status.Error(), "change 7 is MERGED")

		missing := slerrors.NewRefNotFoundError("refs/staging/main")
		require.Equal(t, slerrors.KindInvalidReference, slerrors.KindOf(missing))
	})

	t.Run("foreign errors are unknown", func(t *testing.T) {
		require.Equal(t, slerrors.KindUnknown, slerrors.KindOf(errors.New("boom")))
		require.Equal(t, slerrors.KindUnknown, slerrors.KindOf(nil))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := slerrors.NewMergeConflictError("1111", "2222", nil)
	err := slerrors.Wrap(slerrors.KindMergeConflict, "stage", cause, "cannot stage change %d", 3)

	var detail *slerrors.MergeConflictError
	require.ErrorAs(t, err, &detail)
	require.Equal(t, "1111", detail.Source)
	require.Equal(t, "MergeConflict", slerrors.KindOf(err).String())
}
