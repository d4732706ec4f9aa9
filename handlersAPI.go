package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func tableJSON(t Table) map[string]any {
	rows := t.Rows
	if rows == nil {
		rows = [][]string{}
	}
	return map[string]any{"columns": t.Header, "rows": rows, "total": t.Len()}
}

// /api/resultado?id=... devolve as duas tabelas e as contagens da execução.
func (s *server) handleAPIResultado(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Lookup(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusGone, map[string]any{"error": userMessage(err)})
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{
		"id":              res.ID,
		"vazio":           res.Empty,
		"total":           res.Total(),
		"encontrados":     res.Encontrados,
		"naoEncontrados":  res.NaoEncontrados,
		"naoMapeados":     res.NaoMapeados,
		"completo":        tableJSON(filterRows(res.Completo, q)),
		"inconsistencias": tableJSON(res.Inconsistencias),
		"q":               q,
	})
}

// /api/historico?q=&page= lista as execuções gravadas no diário.
func (s *server) handleAPIHistorico(w http.ResponseWriter, r *http.Request) {
	if s.svc.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "diário desativado"})
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	runs, total, err := s.svc.journal.History(r.Context(), q, page, s.perPage)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execucoes": runs,
		"total":     total,
		"page":      page,
		"pages":     max(1, (total+s.perPage-1)/s.perPage),
		"perPage":   s.perPage,
		"q":         q,
	})
}
