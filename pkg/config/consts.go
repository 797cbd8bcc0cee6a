package config

// EnvPrefix is passed to envconfig; variable names are spelled out in full on
// the struct tags, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "DEV"
	AppEnvProd = "PROD"
)

const (
	EnvDBDSN  = "EDUPAY_DB_DSN"
	EnvDBHost = "EDUPAY_DB_HOST"
	EnvDBUser = "EDUPAY_DB_USER"
	EnvDBName = "EDUPAY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
