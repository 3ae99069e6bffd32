package result

type ErrorCode int

const (
	CodeOK ErrorCode = 0

	CodeGenericError       ErrorCode = 10000
	CodeInvalidTransaction ErrorCode = 10001
	CodeInvalidNonce       ErrorCode = 10002
	CodeInvalidAppeal      ErrorCode = 10003

	// Fault taxonomy of the consensus core.

	// CodeExecutionFault indicates the sandbox could not produce a candidate result.
	CodeExecutionFault ErrorCode = 20001
	// CodeCapabilityFault indicates an external capability provider error.
	CodeCapabilityFault ErrorCode = 20002
	// CodeDivergenceFault indicates the evaluator found a divergent block with no retry available.
	CodeDivergenceFault ErrorCode = 20003
	// CodeValidatorFault indicates a deterministic-portion mismatch from a committee member.
	CodeValidatorFault ErrorCode = 20004
	// CodeTimeoutFault indicates an unresponsive leader or quorum.
	CodeTimeoutFault ErrorCode = 20005
)
