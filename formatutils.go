package main

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/unicode/norm"
)

// ==== utilidades ====

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

func quoteIdent(id string) string {
	// minimal: wrap with double quotes and escape existing quotes
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// stripMarks elimina os diacríticos: "Situação" -> "Situacao".
func stripMarks(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// asciiFold elimina diacríticos e passa a minúsculas.
func asciiFold(s string) string {
	return strings.ToLower(stripMarks(s))
}

// sameHeader compara cabeçalhos ignorando acentos, caixa e espaços nas pontas.
func sameHeader(a, b string) bool {
	return asciiFold(strings.TrimSpace(a)) == asciiFold(strings.TrimSpace(b))
}

// pickColumn devolve o índice da primeira coluna que casa com algum candidato, ou -1.
func pickColumn(header []string, candidates ...string) int {
	for _, want := range candidates {
		if strings.TrimSpace(want) == "" {
			continue
		}
		for i, h := range header {
			if sameHeader(h, want) {
				return i
			}
		}
	}
	return -1
}

// normalizeDocNumber devolve a forma canônica (texto) do número da nota.
// Números inteiros escritos como "100", "100.0" ou "00100" ficam "100";
// o resto é comparado tal como vem, sem espaços nas pontas.
func normalizeDocNumber(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return s
}

// parseStatusCode lê o código de status do UAU; ok=false quando vazio ou não numérico.
func parseStatusCode(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// formatCount formata inteiros à brasileira: 1234 -> "1.234".
func formatCount(n int) string {
	return ptBR.Sprintf("%d", n)
}

func safeFile(s string) string {
	s = stripMarks(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, s)
	if s == "" {
		s = "export"
	}
	return s
}
