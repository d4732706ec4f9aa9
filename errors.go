package main

import (
	"errors"
	"fmt"
	"strings"
)

// ==== Erros ====

var (
	// ErrInputMissing indica que falta uma das planilhas de entrada.
	ErrInputMissing = errors.New("planilha não informada")

	// ErrSchema indica que falta uma coluna obrigatória numa planilha.
	ErrSchema = errors.New("coluna obrigatória ausente")

	// ErrMailConfig indica configuração SMTP incompleta.
	ErrMailConfig = errors.New("configuração SMTP incompleta")

	// ErrMailAuth indica falha de autenticação no servidor SMTP.
	ErrMailAuth = errors.New("falha na autenticação SMTP")

	// ErrMailTransport indica qualquer outra falha no envio.
	ErrMailTransport = errors.New("falha no envio do e-mail")

	// ErrRunExpired indica que o resultado já não está no cache.
	ErrRunExpired = errors.New("execução expirada")
)

// InputError descreve uma planilha ausente ou ilegível.
type InputError struct {
	Tabela string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planilha %s: %v", e.Tabela, e.Err)
	}
	return fmt.Sprintf("planilha %s não informada", e.Tabela)
}

func (e *InputError) Unwrap() error { return e.Err }

// Is: sem erro de leitura subjacente, a planilha simplesmente não veio.
func (e *InputError) Is(target error) bool {
	return target == ErrInputMissing && e.Err == nil
}

// SchemaError aponta a tabela e a coluna que faltam.
type SchemaError struct {
	Tabela string
	Coluna string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("coluna '%s' não encontrada na planilha %s", e.Coluna, e.Tabela)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ConfigError lista as chaves SMTP faltando.
type ConfigError struct {
	Faltando []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuração SMTP incompleta: faltam %s", strings.Join(e.Faltando, ", "))
}

func (e *ConfigError) Is(target error) bool { return target == ErrMailConfig }

// MailError separa falhas de autenticação das restantes falhas de transporte.
type MailError struct {
	Auth bool
	Op   string
	Err  error
}

func (e *MailError) Error() string {
	if e.Auth {
		return fmt.Sprintf("%v: %v", ErrMailAuth, e.Err)
	}
	return fmt.Sprintf("%v (%s): %v", ErrMailTransport, e.Op, e.Err)
}

func (e *MailError) Unwrap() error { return e.Err }

func (e *MailError) Is(target error) bool {
	if e.Auth {
		return target == ErrMailAuth
	}
	return target == ErrMailTransport
}

// userMessage converte um erro numa mensagem para o usuário.
func userMessage(err error) string {
	var schemaErr *SchemaError
	var inputErr *InputError
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &schemaErr):
		return "ERRO: " + schemaErr.Error() + ". Verifique se os nomes das colunas estão corretos."
	case errors.Is(err, ErrInputMissing):
		return "Por favor, carregue ambas as planilhas para iniciar a verificação."
	case errors.As(err, &inputErr):
		return "ERRO ao ler a " + inputErr.Error()
	case errors.As(err, &cfgErr):
		return "ERRO: " + cfgErr.Error() + ". O envio de e-mail está desativado."
	case errors.Is(err, ErrMailAuth):
		return "Falha na autenticação SMTP. Verifique a Senha de Aplicativo (App Password)."
	case errors.Is(err, ErrMailTransport):
		return "Erro ao enviar o e-mail: " + err.Error()
	case errors.Is(err, errNothingToSend):
		return "Nenhuma inconsistência (Cancelado/Normal) para enviar."
	case errors.Is(err, ErrRunExpired):
		return "O resultado desta verificação expirou. Carregue as planilhas novamente."
	default:
		return "Ocorreu um erro inesperado: " + err.Error()
	}
}
