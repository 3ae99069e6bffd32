package result

import "fmt"

// Result represents the result of a function execution
type Result struct {
	Code    ErrorCode
	Message string
}

// IsOK indicates if the execution succeeded
func (res Result) IsOK() bool {
	return res.Code == CodeOK
}

// IsError indicates if the execution results in an error
func (res Result) IsError() bool {
	return res.Code != CodeOK
}

// String returns the string representation of the result
func (res Result) String() string {
	return fmt.Sprintf("Result{code:%v, message:%v}", res.Code, res.Message)
}

// WithErrorCode attach the error code to the result
func (res Result) WithErrorCode(code ErrorCode) Result {
	res.Code = code
	return res
}

// -------------- Constructors -------------- //

// OK represents the success result
var OK = Result{Code: CodeOK}

// OKWith returns a success result carrying a message
func OKWith(msgFormat string, a ...interface{}) Result {
	return Result{
		Code:    CodeOK,
		Message: fmt.Sprintf(msgFormat, a...),
	}
}

// Error returns an error result
func Error(msgFormat string, a ...interface{}) Result {
	return Result{
		Code:    CodeGenericError,
		Message: fmt.Sprintf(msgFormat, a...),
	}
}

// ExecutionFault returns a result indicating the sandbox failed to produce a candidate.
func ExecutionFault(msgFormat string, a ...interface{}) Result {
	return Error(msgFormat, a...).WithErrorCode(CodeExecutionFault)
}

// CapabilityFault returns a result indicating an external provider failure.
func CapabilityFault(msgFormat string, a ...interface{}) Result {
	return Error(msgFormat, a...).WithErrorCode(CodeCapabilityFault)
}

// DivergenceFault returns a result indicating a divergent non-deterministic block.
func DivergenceFault(msgFormat string, a ...interface{}) Result {
	return Error(msgFormat, a...).WithErrorCode(CodeDivergenceFault)
}

// ValidatorFault returns a result indicating a deterministic-portion mismatch.
func ValidatorFault(msgFormat string, a ...interface{}) Result {
	return Error(msgFormat, a...).WithErrorCode(CodeValidatorFault)
}

// TimeoutFault returns a result indicating an unresponsive leader or quorum.
func TimeoutFault(msgFormat string, a ...interface{}) Result {
	return Error(msgFormat, a...).WithErrorCode(CodeTimeoutFault)
}
