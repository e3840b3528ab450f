package judge

import "errors"

var (
	// ErrTransport wraps failures to reach a judge or read its response.
	ErrTransport = errors.New("judge transport failed")

	// ErrSchema reports a judge response that does not match the judge's schema,
	// even after repair.
	ErrSchema = errors.New("judge response failed schema validation")

	// ErrJudgeReported wraps an error the judge capability itself returned.
	ErrJudgeReported = errors.New("judge reported an error")

	// ErrUnhealthy reports a failed reachability check.
	ErrUnhealthy = errors.New("judge endpoint unhealthy")
)
