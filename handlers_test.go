package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mail MailConfig, withJournal bool) (*server, http.Handler) {
	t.Helper()
	srv, err := newServer(newTestService(t, mail, withJournal), zerolog.Nop())
	require.NoError(t, err)
	return srv, srv.handler(false)
}

func uploadRequest(t *testing.T, files map[string]Upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, up := range files {
		fw, err := mw.CreateFormFile(field, up.Name)
		require.NoError(t, err)
		_, err = fw.Write(up.Data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/conciliar", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// conciliar envia as planilhas do cenário e devolve o id do resultado.
func conciliar(t *testing.T, h http.Handler) string {
	t.Helper()
	pref, uau := scenarioUploads(t)
	rec := do(h, uploadRequest(t, map[string]Upload{"prefeitura": pref, "uau": uau}))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/resultado", loc.Path)
	id := loc.Query().Get("id")
	require.NotEmpty(t, id)
	return id
}

func TestHandlers_Index(t *testing.T) {
	_, h := newTestServer(t, MailConfig{}, false)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="prefeitura"`)
	assert.Contains(t, rec.Body.String(), `name="uau"`)
	assert.Contains(t, rec.Body.String(), "O envio de e-mail está desativado")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/nada", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_ConciliarAndResultado(t *testing.T) {
	_, h := newTestServer(t, testMailConfig(), false)
	id := conciliar(t, h)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/resultado?id="+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Análise completa para 3 documentos cancelados!")
	assert.Contains(t, body, "Empresa B")
	assert.Contains(t, body, "/export/xlsx?id="+id)
	assert.NotContains(t, body, "disabled")

	// filtro sem acentos sobre o relatório completo
	rec = do(h, httptest.NewRequest(http.MethodGet, "/resultado?id="+id+"&q=nao+encontrado", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "03/02/2024")
	assert.NotContains(t, rec.Body.String(), "Empresa A")
}

func TestHandlers_ConciliarErrors(t *testing.T) {
	_, h := newTestServer(t, MailConfig{}, false)
	pref, _ := scenarioUploads(t)

	rec := do(h, uploadRequest(t, map[string]Upload{"prefeitura": pref}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Por favor, carregue ambas as planilhas")

	bad := xlsxUpload(t, "uau.xlsx", Table{Header: []string{"Documento"}, Rows: [][]string{{"1"}}})
	rec = do(h, uploadRequest(t, map[string]Upload{"prefeitura": pref, "uau": bad}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "NumNfAux_nf")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/conciliar", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/resultado?id=expirado", nil))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "expirou")
}

func TestHandlers_Export(t *testing.T) {
	_, h := newTestServer(t, MailConfig{}, false)
	id := conciliar(t, h)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/export/xlsx?id="+id+"&tabela=inconsistencias", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxMIME, rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=relatorio_inconsistencias.xlsx", rec.Header().Get("Content-Disposition"))
	tb, err := readTable("x.xlsx", rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, reportHeader, tb.Header)
	assert.Equal(t, [][]string{{"200", "Cancelado", "02/02/2024", "ENCONTRADO", "Normal", "Empresa B"}}, tb.Rows)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/export/csv?id="+id+"&tabela=completo", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=relatorio_cancelados_verificados_completo.csv", rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), utf8BOM+"Número NF,"))

	rec = do(h, httptest.NewRequest(http.MethodGet, "/export/csv?id="+id+"&tabela=outra", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/export/xlsx?id=velho", nil))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestHandlers_Email(t *testing.T) {
	srv, h := newTestServer(t, testMailConfig(), false)
	fake := &fakeSMTP{}
	srv.svc.mailer.dial = fake.dialer(t)
	id := conciliar(t, h)

	form := url.Values{"id": {id}}
	req := httptest.NewRequest(http.MethodPost, "/email", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "E-mail enviado com sucesso")
	_, rcpts, _, _ := fake.snapshot()
	assert.Len(t, rcpts, 2)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/email?id="+id, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlers_EmailDisabled(t *testing.T) {
	_, h := newTestServer(t, MailConfig{}, false)
	id := conciliar(t, h)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/resultado?id="+id, nil))
	assert.Contains(t, rec.Body.String(), "disabled")

	req := httptest.NewRequest(http.MethodPost, "/email?id="+id, nil)
	rec = do(h, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Falha ao enviar e-mail")
	assert.Contains(t, rec.Body.String(), "smtp.servidor")
}

func TestHandlers_API(t *testing.T) {
	_, h := newTestServer(t, MailConfig{}, true)
	id := conciliar(t, h)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/resultado?id="+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		ID              string `json:"id"`
		Total           int    `json:"total"`
		NaoEncontrados  int    `json:"naoEncontrados"`
		Inconsistencias struct {
			Columns []string   `json:"columns"`
			Rows    [][]string `json:"rows"`
		} `json:"inconsistencias"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, id, out.ID)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 1, out.NaoEncontrados)
	assert.Equal(t, reportHeader, out.Inconsistencias.Columns)
	assert.Len(t, out.Inconsistencias.Rows, 1)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/historico", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Execucoes []RunRecord `json:"execucoes"`
		Total     int         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Equal(t, 1, hist.Total)
	assert.Equal(t, id, hist.Execucoes[0].Chave)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/historico?q=prefeitura", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prefeitura.xlsx")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/resultado?id=x", nil))
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestHandlers_HistoricoWithoutJournal(t *testing.T) {
	_, h := newTestServer(t, MailConfig{}, false)
	assert.Equal(t, http.StatusNotFound, do(h, httptest.NewRequest(http.MethodGet, "/historico", nil)).Code)
	assert.Equal(t, http.StatusNotFound, do(h, httptest.NewRequest(http.MethodGet, "/api/historico", nil)).Code)
}

func TestHandlers_Metrics(t *testing.T) {
	_, h := newTestServer(t, MailConfig{}, false)
	conciliar(t, h)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nfcancelados_conciliacoes_total{resultado="ok"} 1`)
}

func TestFilterRows(t *testing.T) {
	tb := Table{Header: []string{"a", "b"}, Rows: [][]string{{"1", "São Paulo"}, {"2", "Rio"}}}
	assert.Equal(t, tb, filterRows(tb, "  "))
	assert.Equal(t, [][]string{{"1", "São Paulo"}}, filterRows(tb, "SAO").Rows)
	assert.Empty(t, filterRows(tb, "xyz").Rows)
}
