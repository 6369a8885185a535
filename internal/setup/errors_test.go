package setup

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	cause := errors.New("cause")
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{cause, 1},
		{stepErr(StepSummary, KindInternal, cause), 1},
		{stepErr(StepAuthenticate, KindCredential, cause), 2},
		{stepErr(StepReconcileDNS, KindDNS, cause), 3},
		{stepErr(StepCheckRuntime, KindRuntime, cause), 4},
		{stepErr(StepConfigureProxy, KindContainer, cause), 5},
		{fmt.Errorf("wrapped: %w", stepErr(StepCheckRuntime, KindRuntime, cause)), 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExitCode(tc.err), "%v", tc.err)
	}
}

func TestStepError(t *testing.T) {
	cause := errors.New("status 401")
	err := stepErr(StepAuthenticate, KindCredential, cause)

	assert.Equal(t, "Authenticate: status 401", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "credential", KindCredential.String())
}

func TestAllSteps_Order(t *testing.T) {
	var ids []StepID
	for _, s := range AllSteps() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []StepID{
		StepAuthenticate, StepDiscoverNetwork, StepCheckRuntime, StepSelectDomains,
		StepReconcileDNS, StepEnsurePlaceholder, StepConfigureProxy, StepSummary,
	}, ids)
}
