package cmd

import (
	"bytes"
	"errors"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
)

func TestReportFatal(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		var out bytes.Buffer
		status := reportFatal(&out, foundry.ExitConfigInvalid, "Invalid configuration", errors.New("security.api_key.key is required"))

		assert.Equal(t, int(foundry.ExitConfigInvalid), status)
		assert.Contains(t, out.String(), "FATAL: Invalid configuration: security.api_key.key is required\n")
		assert.Contains(t, out.String(), "Exit Code: ")
	})

	t.Run("envelope", func(t *testing.T) {
		var out bytes.Buffer
		env := gferrors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "redis unreachable").WithCorrelationID("corr-1")
		reportFatal(&out, foundry.ExitExternalServiceUnavailable, "Startup failed", env)

		assert.Contains(t, out.String(), "FATAL: Startup failed [SERVICE_UNAVAILABLE]: redis unreachable (correlation: corr-1)")
	})

	t.Run("no error", func(t *testing.T) {
		var out bytes.Buffer
		reportFatal(&out, foundry.ExitFailure, "Command execution failed", nil)
		assert.Contains(t, out.String(), "FATAL: Command execution failed\n")
	})
}

func TestErrorFields(t *testing.T) {
	assert.Len(t, errorFields(errors.New("boom")), 1)

	env := gferrors.NewErrorEnvelope("CONFIG_INVALID", "bad").WithCorrelationID("corr-2")
	assert.Len(t, errorFields(env), 4)
}
