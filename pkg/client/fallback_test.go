package client

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractErr    = &FetchError{Class: ClassContract, Attempts: 1, Err: &ContractError{Detail: "fields changed"}}
	unavailableErr = &FetchError{Class: ClassServer, Attempts: 3, Exhausted: true, StatusCode: 503}
	clientErr      = &FetchError{Class: ClassClient, Attempts: 1, StatusCode: 400}
	cancelledErr   = &FetchError{Class: ClassCancelled, Attempts: 1, Err: context.Canceled}
)

type stage struct {
	calls  int
	result []string
	err    error
	hook   func()
}

func (s *stage) run(ctx context.Context) ([]string, error) {
	s.calls++
	if s.hook != nil {
		s.hook()
	}
	return s.result, s.err
}

func search(primary, secondary *stage) *FallbackSearch[[]string] {
	return NewFallbackSearch[[]string]("test", primary.run, secondary.run, zerolog.Nop())
}

func TestFallbackSearch_PrimarySucceeds(t *testing.T) {
	primary := &stage{result: []string{"Ceres"}}
	secondary := &stage{}

	got, outcome, err := search(primary, secondary).Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ceres"}, got)
	assert.Equal(t, OutcomePrimary, outcome)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackSearch_FallsBack(t *testing.T) {
	for name, primaryErr := range map[string]error{
		"contract mismatch":    contractErr,
		"upstream unavailable": unavailableErr,
		"breaker open":         &FetchError{Class: ClassBreakerOpen},
	} {
		t.Run(name, func(t *testing.T) {
			primary := &stage{err: primaryErr}
			secondary := &stage{result: []string{"1 Ceres"}}

			got, outcome, err := search(primary, secondary).Search(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"1 Ceres"}, got)
			assert.Equal(t, OutcomeSecondary, outcome)
			assert.Equal(t, 1, secondary.calls)
		})
	}
}

func TestFallbackSearch_BothContractMismatchDegradesToEmpty(t *testing.T) {
	primary := &stage{err: contractErr}
	secondary := &stage{err: contractErr}

	got, outcome, err := search(primary, secondary).Search(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, OutcomeDegraded, outcome)
}

func TestFallbackSearch_SecondaryFailureReportsPrimaryError(t *testing.T) {
	primary := &stage{err: contractErr}
	secondary := &stage{err: unavailableErr}

	_, _, err := search(primary, secondary).Search(context.Background())
	assert.Same(t, contractErr, err)
}

func TestFallbackSearch_NoFallbackForOtherErrors(t *testing.T) {
	primary := &stage{err: clientErr}
	secondary := &stage{}

	_, _, err := search(primary, secondary).Search(context.Background())
	assert.Same(t, clientErr, err)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackSearch_Cancellation(t *testing.T) {
	t.Run("primary cancelled", func(t *testing.T) {
		primary := &stage{err: cancelledErr}
		secondary := &stage{}

		_, _, err := search(primary, secondary).Search(context.Background())
		assert.True(t, errors.Is(err, ErrCancelled))
		assert.Equal(t, 0, secondary.calls)
	})

	t.Run("context cancelled while primary fails with contract error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		primary := &stage{err: contractErr, hook: cancel}
		secondary := &stage{}

		_, _, err := search(primary, secondary).Search(ctx)
		assert.Error(t, err)
		assert.Equal(t, 0, secondary.calls)
	})

	t.Run("secondary cancelled", func(t *testing.T) {
		primary := &stage{err: unavailableErr}
		secondary := &stage{err: cancelledErr}

		_, _, err := search(primary, secondary).Search(context.Background())
		assert.True(t, errors.Is(err, ErrCancelled))
	})
}
