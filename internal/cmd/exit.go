package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// ExitWithCode logs msg with the foundry exit code metadata and terminates
// the process. Without a logger the report goes to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, known := foundry.GetExitCodeInfo(exitCode)
	if logger == nil || !known {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	logger.Error(msg, append(fields, errorFields(err)...)...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr reports a fatal error on stderr and exits. Commands use
// it before the CLI logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	os.Exit(reportFatal(os.Stderr, exitCode, msg, err))
}

// reportFatal writes the stderr report and returns the process status.
func reportFatal(out io.Writer, exitCode foundry.ExitCode, msg string, err error) int {
	switch envelope, isEnvelope := err.(*errors.ErrorEnvelope); {
	case isEnvelope:
		fmt.Fprintf(out, "FATAL: %s [%s]: %s (correlation: %s)\n",
			msg, envelope.Code, envelope.Message, envelope.CorrelationID)
	case err != nil:
		fmt.Fprintf(out, "FATAL: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(out, "FATAL: %s\n", msg)
	}

	info, known := foundry.GetExitCodeInfo(exitCode)
	if !known {
		fmt.Fprintf(out, "Exit Code: %d\n", exitCode)
		return int(exitCode)
	}
	fmt.Fprintf(out, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	return info.Code
}

// errorFields flattens an envelope into log fields and logs its original
// error in place of the envelope.
func errorFields(err error) []zap.Field {
	var fields []zap.Field
	if envelope, ok := err.(*errors.ErrorEnvelope); ok {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original, ok := envelope.Original.(error); ok {
			err = original
		}
	}
	return append(fields, zap.Error(err))
}
