package flow

// User-facing notices. Texts are kept in Portuguese, matching the deployed
// flow definitions.
const (
	msgSessionExpired  = "Sua sessão expirou. Por favor, comece novamente."
	msgCancelled       = "Retornando ao início."
	msgTooManyAttempts = "Muitas tentativas incorretas. Retornando ao início."
	msgInvalidCPF      = "CPF inválido. Por favor, insira um CPF válido de 11 dígitos."
	msgMediaError      = "Erro ao processar a mídia."

	// welcomeBackFormat greets a returning user linking a new channel.
	welcomeBackFormat = "Bem-vindo de volta, %s! Sua conta foi atualizada."
	// welcomeNewFormat greets a freshly registered user.
	welcomeNewFormat = "Cadastro concluído! Bem-vindo, %s!"

	// defaultUserName substitutes {name} for sessions without an identity.
	defaultUserName = "Usuário"
)
