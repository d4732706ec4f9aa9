package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxUploadBytes = 64 << 20

type server struct {
	svc     *service
	log     zerolog.Logger
	tpl     *template.Template
	perPage int
}

func newServer(svc *service, log zerolog.Logger) (*server, error) {
	tpl, err := template.New("").
		Funcs(template.FuncMap{
			"count": formatCount, // 1234 -> 1.234
			"date":  func(t time.Time) string { return t.Local().Format("02/01/2006 15:04") },
			"short": func(s string) string {
				if len(s) > 12 {
					return s[:12]
				}
				return s
			},
		}).
		ParseFS(tplFS,
			"templates/*.gohtml",
			"templates/partials/*.gohtml",
		)
	if err != nil {
		return nil, err
	}
	return &server{svc: svc, log: log, tpl: tpl, perPage: 25}, nil
}

func (s *server) handler(debug bool) http.Handler {
	mux := http.NewServeMux()
	assets, err := fs.Sub(webFS, "webstatic")
	if err == nil {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(assets))))
	}
	mux.HandleFunc("/", s.withLogging(debug, s.handleIndex))
	mux.HandleFunc("/conciliar", s.withLogging(debug, s.handleConciliar))
	mux.HandleFunc("/resultado", s.withLogging(debug, s.handleResultado))
	mux.HandleFunc("/export/xlsx", s.withLogging(debug, s.handleExportXLSX))
	mux.HandleFunc("/export/csv", s.withLogging(debug, s.handleExportCSV))
	mux.HandleFunc("/email", s.withLogging(debug, s.handleEmail))
	mux.HandleFunc("/historico", s.withLogging(debug, s.handleHistorico))
	mux.HandleFunc("/api/resultado", s.withLogging(debug, s.handleAPIResultado))
	mux.HandleFunc("/api/historico", s.withLogging(debug, s.handleAPIHistorico))
	mux.Handle("/metrics", s.svc.metrics.handler())
	return mux
}

func (s *server) listen(ctx context.Context, addr string, debug bool) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.handler(debug),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	s.log.Info().Msgf("Web UI em http://%s", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// middleware de debug para os handlers
func (s *server) withLogging(debug bool, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if debug {
			start := time.Now()
			s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Str("query", r.URL.RawQuery).Msg("→")
			defer func() {
				s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("duracao", time.Since(start)).Msg("←")
			}()
		}
		h(w, r)
	}
}

// ==== páginas ====

type indexPage struct {
	Erro     string
	Aviso    string
	MailErro string
	Historia bool
}

func (s *server) renderIndex(w http.ResponseWriter, status int, p indexPage) {
	p.MailErro = userMessage(s.svc.MailStatus())
	p.Historia = s.svc.journal != nil
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tpl.ExecuteTemplate(w, "index.gohtml", p); err != nil {
		s.log.Error().Err(err).Msg("render index")
	}
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderIndex(w, http.StatusOK, indexPage{})
}

func (s *server) handleConciliar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.renderIndex(w, http.StatusBadRequest, indexPage{Erro: "ERRO ao receber as planilhas: " + err.Error()})
		return
	}

	pref, err := formUpload(r, "prefeitura")
	if err != nil {
		s.renderIndex(w, http.StatusBadRequest, indexPage{Erro: userMessage(err)})
		return
	}
	uau, err := formUpload(r, "uau")
	if err != nil {
		s.renderIndex(w, http.StatusBadRequest, indexPage{Erro: userMessage(err)})
		return
	}

	res, err := s.svc.Run(r.Context(), origemWeb, pref, uau)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, ErrInputMissing) {
			status = http.StatusBadRequest
		}
		s.renderIndex(w, status, indexPage{Erro: userMessage(err)})
		return
	}
	http.Redirect(w, r, "/resultado?id="+res.ID, http.StatusSeeOther)
}

// formUpload lê um arquivo do formulário; ausente devolve Upload vazio.
func formUpload(r *http.Request, field string) (Upload, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return Upload{}, nil
	}
	if err != nil {
		return Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, err
	}
	return Upload{Name: hdr.Filename, Data: data}, nil
}

type resultPage struct {
	Res      *Result
	Completo Table
	Q        string
	MailErro string
	Flash    string
	FlashErr string
}

func (s *server) renderResult(w http.ResponseWriter, status int, p resultPage) {
	p.MailErro = userMessage(s.svc.MailStatus())
	p.Completo = filterRows(p.Res.Completo, p.Q)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tpl.ExecuteTemplate(w, "result.gohtml", p); err != nil {
		s.log.Error().Err(err).Msg("render resultado")
	}
}

func (s *server) handleResultado(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Lookup(r.URL.Query().Get("id"))
	if err != nil {
		s.renderIndex(w, http.StatusGone, indexPage{Aviso: userMessage(err)})
		return
	}
	s.renderResult(w, http.StatusOK, resultPage{Res: res, Q: strings.TrimSpace(r.URL.Query().Get("q"))})
}

func (s *server) handleEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "método não permitido", http.StatusMethodNotAllowed)
		return
	}
	res, err := s.svc.Lookup(r.FormValue("id"))
	if err != nil {
		s.renderIndex(w, http.StatusGone, indexPage{Aviso: userMessage(err)})
		return
	}
	if err := s.svc.Notify(r.Context(), res); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrMailConfig) || errors.Is(err, errNothingToSend) {
			status = http.StatusConflict
		}
		s.renderResult(w, status, resultPage{Res: res, FlashErr: "Falha ao enviar e-mail: " + userMessage(err)})
		return
	}
	s.renderResult(w, http.StatusOK, resultPage{Res: res, Flash: "E-mail enviado com sucesso para todos os destinatários!"})
}

// filterRows filtra as linhas que contêm q em alguma célula, sem olhar a acentos.
func filterRows(t Table, q string) Table {
	q = asciiFold(strings.TrimSpace(q))
	if q == "" {
		return t
	}
	out := Table{Header: t.Header}
	for _, r := range t.Rows {
		for _, c := range r {
			if strings.Contains(asciiFold(c), q) {
				out.Rows = append(out.Rows, r)
				break
			}
		}
	}
	return out
}

// ==== exportação ====

// exportTable escolhe a tabela pedida (?tabela=inconsistencias|completo).
func (s *server) exportTable(w http.ResponseWriter, r *http.Request) (Table, string, string, bool) {
	res, err := s.svc.Lookup(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, userMessage(err), http.StatusGone)
		return Table{}, "", "", false
	}
	switch r.URL.Query().Get("tabela") {
	case "inconsistencias":
		return res.Inconsistencias, arquivoInconsistencias, "Inconsistências", true
	case "completo", "":
		return res.Completo, arquivoCompleto, "Completo", true
	default:
		http.Error(w, "tabela desconhecida", http.StatusBadRequest)
		return Table{}, "", "", false
	}
}

func (s *server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	t, name, sheet, ok := s.exportTable(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", safeFile(name)))
	if err := writeXLSX(w, sheet, t); err != nil {
		s.log.Error().Err(err).Msg("exportar xlsx")
	}
}

func (s *server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	t, name, _, ok := s.exportTable(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", safeFile(name)))
	if err := writeCSV(w, t); err != nil {
		s.log.Error().Err(err).Msg("exportar csv")
	}
}

// ==== histórico ====

func (s *server) handleHistorico(w http.ResponseWriter, r *http.Request) {
	if s.svc.journal == nil {
		http.Error(w, "diário desativado: inicie com --db", http.StatusNotFound)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	runs, total, err := s.svc.journal.History(r.Context(), q, page, s.perPage)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	pages := max(1, (total+s.perPage-1)/s.perPage)
	prev := 1
	if page > 1 {
		prev = page - 1
	}
	next := pages
	if page < pages {
		next = page + 1
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = s.tpl.ExecuteTemplate(w, "history.gohtml", map[string]any{
		"Runs":  runs,
		"Q":     q,
		"Page":  page,
		"Pages": pages,
		"Total": total,
		"Prev":  prev,
		"Next":  next,
	})
}
