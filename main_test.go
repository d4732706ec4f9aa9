package main

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// prefTable monta uma planilha da Prefeitura com as colunas padrão.
func prefTable(rows ...[]string) Table {
	return Table{Header: []string{"Número", "Situação Documento", "Data Emissão"}, Rows: rows}
}

// uauTable monta uma planilha UAU com as colunas padrão.
func uauTable(rows ...[]string) Table {
	return Table{Header: []string{"NumNfAux_nf", "Status_nf", "Empresa_nf"}, Rows: rows}
}
