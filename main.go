// main.go
// Build/run:
//
//	go run . web --addr 127.0.0.1:8080            # UI web
//	go run . tui                                  # UI TUI (terminal)
//	go run . conciliar --prefeitura prefeitura.xlsx --uau uau.xlsx --saida ./relatorios [--email]
//
// Notas:
// - Configuração SMTP em secrets.toml (. ou .streamlit/), .env ou variáveis NFC_*.
//   Sem SMTP configurado a conciliação funciona; só o envio fica desativado.
// - --db grava um diário das execuções e envios em SQLite (opcional).
// - Entradas .xlsx ou .csv (UTF-8 ou ISO-8859-1, separador ';' ou ',').

package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//go:embed webstatic/*
var webFS embed.FS

//go:embed templates/*.gohtml templates/partials/*.gohtml templates/email/*.gohtml
var tplFS embed.FS

const (
	arquivoCompleto        = "relatorio_cancelados_verificados_completo"
	arquivoInconsistencias = "relatorio_inconsistencias"
)

type app struct {
	v       *viper.Viper
	cfg     *Config
	log     zerolog.Logger
	journal *journal
	svc     *service
}

func (a *app) setup(configFile string) error {
	cfg, err := loadConfig(a.v, configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.Debug)

	if cfg.ConfigFile != "" {
		a.log.Debug().Str("arquivo", cfg.ConfigFile).Msg("configuração carregada")
	}
	if err := cfg.Mail.Validate(); err != nil {
		a.log.Warn().Err(err).Msg("envio de e-mail desativado")
	}

	if cfg.DBPath != "" {
		j, err := openJournal(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("abrir diário %s: %w", cfg.DBPath, err)
		}
		a.journal = j
	}
	a.svc = newService(cfg, a.log, a.journal, newMetrics())
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var configFile string

	root := &cobra.Command{
		Use:           "nfcancelados",
		Short:         "Validação de documentos cancelados (Prefeitura vs. UAU)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(configFile)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.journal.Close()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "arquivo de configuração (padrão secrets.toml)")
	pf.String("db", "", "arquivo SQLite para o diário de execuções")
	pf.String("log-level", "info", "nível de log (debug|info|warn|error)")
	pf.Bool("debug", false, "log de depuração e de cada pedido HTTP")
	_ = a.v.BindPFlag("db", pf.Lookup("db"))
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("debug", pf.Lookup("debug"))

	root.AddCommand(newWebCmd(a), newTUICmd(a), newConciliarCmd(a))
	return root
}

func newWebCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "web",
		Short: "UI web para carregar as planilhas e ver o resultado",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(a.svc, a.log)
			if err != nil {
				return err
			}
			return srv.listen(cmd.Context(), a.cfg.Addr, a.cfg.Debug)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "endereço para o modo web")
	_ = a.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "UI no terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			// o log iria por cima da tela do bubbletea
			a.svc.log = zerolog.Nop()
			p := tea.NewProgram(initialTUI(cmd.Context(), a.svc), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}

func newConciliarCmd(a *app) *cobra.Command {
	var prefPath, uauPath, saida string
	var email bool
	cmd := &cobra.Command{
		Use:   "conciliar",
		Short: "Concilia duas planilhas e grava os relatórios",
		RunE: func(cmd *cobra.Command, args []string) error {
			pref, err := readUpload(prefPath)
			if err != nil {
				return err
			}
			uau, err := readUpload(uauPath)
			if err != nil {
				return err
			}
			res, err := a.svc.Run(cmd.Context(), origemCLI, pref, uau)
			if err != nil {
				return fmt.Errorf("%s", userMessage(err))
			}
			out := cmd.OutOrStdout()
			if res.Empty {
				fmt.Fprintln(out, "Nenhum documento cancelado foi encontrado na planilha da Prefeitura.")
				return nil
			}

			if err := os.MkdirAll(saida, 0o755); err != nil {
				return err
			}
			for _, o := range []struct {
				name, sheet string
				t           Table
			}{
				{arquivoCompleto, "Completo", res.Completo},
				{arquivoInconsistencias, "Inconsistências", res.Inconsistencias},
			} {
				fn := filepath.Join(saida, o.name+".xlsx")
				if err := writeXLSXFile(fn, o.sheet, o.t); err != nil {
					return err
				}
				fmt.Fprintf(out, "Exportado %s\n", fn)
			}
			fmt.Fprintf(out, "Análise completa para %s documentos cancelados; %s inconsistências.\n",
				formatCount(res.Total()), formatCount(res.Inconsistencias.Len()))

			if email && res.Inconsistencias.Len() > 0 {
				if err := a.svc.Notify(cmd.Context(), res); err != nil {
					return fmt.Errorf("%s", userMessage(err))
				}
				fmt.Fprintln(out, "E-mail enviado com sucesso para todos os destinatários!")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefPath, "prefeitura", "", "planilha da Prefeitura (.xlsx ou .csv)")
	cmd.Flags().StringVar(&uauPath, "uau", "", "planilha UAU (.xlsx ou .csv)")
	cmd.Flags().StringVar(&saida, "saida", ".", "pasta onde gravar os relatórios")
	cmd.Flags().BoolVar(&email, "email", false, "enviar as inconsistências por e-mail")
	return cmd
}

// readUpload lê um arquivo local; caminho vazio vira Upload vazio (planilha não informada).
func readUpload(path string) (Upload, error) {
	if path == "" {
		return Upload{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Upload{}, err
	}
	return Upload{Name: filepath.Base(path), Data: data}, nil
}

func writeXLSXFile(fn, sheet string, t Table) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := writeXLSX(f, sheet, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ==== main ====
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
