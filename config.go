package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ==== Configuração ====
//
// Ordem de precedência: flags > variáveis NFC_* > .env/.env.local > arquivo
// (--config, ou secrets.toml em . ou .streamlit/) > valores padrão.

// Config é passada explicitamente a quem precisa dela.
type Config struct {
	ConfigFile   string
	DBPath       string
	Addr         string
	Debug        bool
	LogLevel     string
	LogFormat    string
	CacheEntries int
	Columns      InputColumns
	Mail         MailConfig
}

// MailConfig são os dados de envio SMTP.
type MailConfig struct {
	Servidor      string
	Porta         int
	Remetente     string
	Senha         string
	Destinatarios []string
	ResponderPara string
	Timeout       time.Duration
}

// Validate devolve *ConfigError com todas as chaves faltando.
func (m MailConfig) Validate() error {
	var faltando []string
	if strings.TrimSpace(m.Servidor) == "" {
		faltando = append(faltando, "smtp.servidor")
	}
	if m.Porta <= 0 {
		faltando = append(faltando, "smtp.porta")
	}
	if strings.TrimSpace(m.Remetente) == "" {
		faltando = append(faltando, "smtp.email_remetente")
	}
	if m.Senha == "" {
		faltando = append(faltando, "smtp.senha_app")
	}
	if len(m.Destinatarios) == 0 {
		faltando = append(faltando, "smtp.destinatarios")
	}
	if len(faltando) > 0 {
		return &ConfigError{Faltando: faltando}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultColumns()
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("cache.entradas", 32)
	v.SetDefault("smtp.porta", 587)
	v.SetDefault("smtp.timeout", 30*time.Second)
	v.SetDefault("colunas.prefeitura.numero", def.PrefNumero)
	v.SetDefault("colunas.prefeitura.situacao", def.PrefSituacao)
	v.SetDefault("colunas.prefeitura.data", def.PrefData)
	v.SetDefault("colunas.uau.numero", def.UAUNumero)
	v.SetDefault("colunas.uau.status", def.UAUStatus)
	v.SetDefault("colunas.uau.empresa", def.UAUEmpresa)
}

// loadConfig lê a configuração. Um arquivo indicado e inexistente é erro;
// o secrets.toml procurado por padrão é opcional.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	loadEnvFiles()
	setDefaults(v)

	v.SetEnvPrefix("NFC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ler configuração %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("secrets")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath(".streamlit")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("ler secrets.toml: %w", err)
			}
		}
	}

	return &Config{
		ConfigFile:   v.ConfigFileUsed(),
		DBPath:       v.GetString("db"),
		Addr:         v.GetString("addr"),
		Debug:        v.GetBool("debug"),
		LogLevel:     v.GetString("log.level"),
		LogFormat:    v.GetString("log.format"),
		CacheEntries: v.GetInt("cache.entradas"),
		Columns: InputColumns{
			PrefNumero:   v.GetString("colunas.prefeitura.numero"),
			PrefSituacao: v.GetString("colunas.prefeitura.situacao"),
			PrefData:     v.GetString("colunas.prefeitura.data"),
			UAUNumero:    v.GetString("colunas.uau.numero"),
			UAUStatus:    v.GetString("colunas.uau.status"),
			UAUEmpresa:   v.GetString("colunas.uau.empresa"),
		},
		Mail: MailConfig{
			Servidor:      v.GetString("smtp.servidor"),
			Porta:         v.GetInt("smtp.porta"),
			Remetente:     v.GetString("smtp.email_remetente"),
			Senha:         v.GetString("smtp.senha_app"),
			Destinatarios: splitList(v.GetStringSlice("smtp.destinatarios")),
			ResponderPara: v.GetString("smtp.responder_para"),
			Timeout:       v.GetDuration("smtp.timeout"),
		},
	}, nil
}

// splitList aceita tanto listas do arquivo como "a@x, b@y" vindo do ambiente.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// loadEnvFiles carrega .env e .env.local, se existirem.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
