package verr

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := Errorf(ErrNotFound, "get", "notes.txt", "version %d out of range", 9)
	assert.Equal(t, "get notes.txt: not found: version 9 out of range", err.Error())

	assert.Equal(t, "storage error", E(ErrStorage, "", "", nil).Error())
	assert.Equal(t, "add: invalid input", E(ErrInvalidInput, "add", "", nil).Error())
}

func TestKindAndCauseReachable(t *testing.T) {
	err := error(E(ErrStorage, "add", "f", os.ErrPermission))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestKindOfOutermostWins(t *testing.T) {
	inner := E(ErrNotFound, "blob", "abc", nil)
	outer := E(ErrCorruption, "get", "f", errors.Wrap(inner, "missing blob"))
	assert.Equal(t, ErrCorruption, KindOf(outer))
	assert.Equal(t, ErrNotFound, KindOf(inner))
	assert.Equal(t, ErrCorruption, KindOf(errors.Wrap(outer, "context")))

	assert.Equal(t, ErrValidation, KindOf(errors.Wrap(ErrValidation, "plain")))
	assert.Nil(t, KindOf(errors.New("other")))
	assert.Nil(t, KindOf(nil))
}

func TestExitCode(t *testing.T) {
	cases := map[error]int{
		nil:                              ExitOK,
		E(ErrAlreadyExists, "", "", nil): ExitOK,
		E(ErrInvalidInput, "", "", nil):  ExitInvalidInput,
		E(ErrNotFound, "", "", nil):      ExitNotFound,
		E(ErrStorage, "", "", nil):       ExitStorage,
		E(ErrCorruption, "", "", nil):    ExitCorruption,
		E(ErrValidation, "", "", nil):    ExitValidation,
		errors.New("something else"):     ExitFailure,
	}
	for err, want := range cases {
		assert.Equal(t, want, ExitCode(err), "%v", err)
	}
}
