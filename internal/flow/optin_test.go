package flow

import (
	"testing"
)

func TestOptinCalculateSum(t *testing.T) {
	r := NewOptinRegistry()
	result := r.Dispatch("calculateSum", map[string]string{"ask_number": "5"})
	if result["sum_result"] != "15" {
		t.Errorf("expected 15, got %q", result["sum_result"])
	}

	result = r.Dispatch("calculateSum", map[string]string{"ask_number": "abc"})
	if result["sum_result"] != "10" {
		t.Errorf("expected non-numeric input to count as zero, got %q", result["sum_result"])
	}
}

func TestOptinGreetUser(t *testing.T) {
	r := NewOptinRegistry()
	result := r.Dispatch("greetUser", map[string]string{"ask_text": "bom dia"})
	if result["greeting"] != "Olá, você digitou: bom dia" {
		t.Errorf("unexpected greeting %q", result["greeting"])
	}
}

func TestOptinValidateCPF(t *testing.T) {
	r := NewOptinRegistry()

	result := r.Dispatch("validateCPF", map[string]string{"ask_cpf": "12345678909"})
	if result["cpf_validation_result"] != "CPF válido" {
		t.Errorf("unexpected result %q", result["cpf_validation_result"])
	}

	result = r.Dispatch("validateCPF", map[string]string{"ask_cpf": "11111111111"})
	if result["cpf_validation_result"] != "CPF inválido (todos os dígitos são iguais)" {
		t.Errorf("unexpected result %q", result["cpf_validation_result"])
	}
}

func TestOptinUnknownMethod(t *testing.T) {
	r := NewOptinRegistry()
	result := r.Dispatch("doesNotExist", map[string]string{"x": "y"})
	if len(result) != 0 {
		t.Errorf("expected empty result for unknown method, got %v", result)
	}
}

func TestOptinRegisterCustom(t *testing.T) {
	r := NewOptinRegistry()
	r.Register("echo", func(inputs map[string]string) map[string]string {
		return map[string]string{"echo": inputs["value"]}
	})
	if _, ok := r.Get("echo"); !ok {
		t.Fatal("expected custom method to be registered")
	}
	result := r.Dispatch("echo", map[string]string{"value": "oi"})
	if result["echo"] != "oi" {
		t.Errorf("unexpected result %q", result["echo"])
	}
}
