package commands

import (
	"thsr-receipts/lib/configutil"
	configlibsql "thsr-receipts/lib/configutil/libsql"
	"thsr-receipts/lib/mailer"
	"thsr-receipts/lib/receipts"
	"thsr-receipts/lib/thsr"
)

type Config struct {
	BaseUrl    string         `json:"base_url"`
	DateLayout string         `json:"date_layout"`
	Selectors  thsr.Selectors `json:"selectors"`
	// Downloads is the root of the receipt folders.
	Downloads string `json:"downloads"`
	// Folder is the category folder receipts are filed under.
	Folder string `json:"folder"`
	// Index defaults to receipts.db inside Downloads.
	Index  configlibsql.Struct `json:"index"`
	Smtp   mailer.SmtpConfig   `json:"smtp"`
	MailTo string              `json:"mail_to"`
}

func defaultConfig() Config {
	return Config{
		BaseUrl:    thsr.DefaultBaseUrl,
		DateLayout: thsr.DefaultDateLayout,
		Selectors:  thsr.DefaultSelectors,
		Downloads:  receipts.DefaultRoot,
		Folder:     receipts.DefaultFolder,
	}
}

func loadConfig(path string) (Config, error) {
	return configutil.ReadConfigWithDefaults(path, defaultConfig())
}
