package flow

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// OptinFunc is a named side-effect computation: given the captured input
// values declared on the step, it returns result keys used for template
// substitution and branch keying.
type OptinFunc func(inputs map[string]string) map[string]string

// OptinRegistry maps optin method names to their handlers. The registry is a
// closed dispatch table: handlers are registered during bootstrap and the
// graph is checked against it at load time.
type OptinRegistry struct {
	handlers map[string]OptinFunc
}

// NewOptinRegistry creates a registry preloaded with the builtin methods.
func NewOptinRegistry() *OptinRegistry {
	r := &OptinRegistry{handlers: make(map[string]OptinFunc)}
	r.Register("calculateSum", calculateSum)
	r.Register("greetUser", greetUser)
	r.Register("validateCPF", validateCPF)
	return r
}

// Register associates a method name with a handler.
func (r *OptinRegistry) Register(method string, fn OptinFunc) {
	r.handlers[method] = fn
}

// Get retrieves the handler for a method name.
func (r *OptinRegistry) Get(method string) (OptinFunc, bool) {
	fn, ok := r.handlers[method]
	return fn, ok
}

// Dispatch runs the named method. An unknown method is logged and yields an
// empty result; the flow continues.
func (r *OptinRegistry) Dispatch(method string, inputs map[string]string) map[string]string {
	fn, ok := r.handlers[method]
	if !ok {
		slog.Warn("Unknown optin method", "method", method)
		return map[string]string{}
	}
	result := fn(inputs)
	slog.Debug("Optin method dispatched", "method", method, "result_keys", len(result))
	if result == nil {
		return map[string]string{}
	}
	return result
}

// firstInput returns the value of the first declared input, in whatever
// order the step listed them. Builtin methods take a single input.
func firstInput(inputs map[string]string) string {
	for _, v := range inputs {
		return v
	}
	return ""
}

func calculateSum(inputs map[string]string) map[string]string {
	num, err := strconv.Atoi(strings.TrimSpace(firstInput(inputs)))
	if err != nil {
		num = 0
	}
	return map[string]string{"sum_result": strconv.Itoa(num + 10)}
}

func greetUser(inputs map[string]string) map[string]string {
	return map[string]string{"greeting": fmt.Sprintf("Olá, você digitou: %s", firstInput(inputs))}
}

func validateCPF(inputs map[string]string) map[string]string {
	cpf := firstInput(inputs)
	allSame := cpf != ""
	for i := 1; i < len(cpf); i++ {
		if cpf[i] != cpf[0] {
			allSame = false
			break
		}
	}
	result := "CPF válido"
	if allSame {
		result = "CPF inválido (todos os dígitos são iguais)"
	}
	return map[string]string{"cpf_validation_result": result}
}
