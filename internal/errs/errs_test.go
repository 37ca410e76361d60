package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veloclimat/veloclimat/internal/errs"
)

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("relation does not exist")
	err := errs.Storage("replace results", "veloclimat.results", cause)

	assert.ErrorIs(t, err, errs.ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, errs.ErrInvalidParameter)
	assert.Equal(t, "replace results: storage error (table veloclimat.results): relation does not exist", err.Error())
}

func TestError_WrappedStillCategorized(t *testing.T) {
	err := fmt.Errorf("run target bikes: %w", errs.New(errs.ErrDegenerateGeometry, "plane", "triangle 4", nil))

	assert.ErrorIs(t, err, errs.ErrDegenerateGeometry)
	assert.Equal(t, errs.ErrDegenerateGeometry, errs.KindOf(err))
}

func TestInvalid(t *testing.T) {
	err := errs.Invalid("land cover", "radius", -5.0)

	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "radius=-5")
}

func TestKindOf_Uncategorized(t *testing.T) {
	assert.Nil(t, errs.KindOf(errors.New("boom")))
	assert.Nil(t, errs.KindOf(nil))
}
