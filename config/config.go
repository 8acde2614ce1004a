package config

import (
	"time"
)

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST,required"`
	Port            string `env:"POSTGRES_PORT,required"`
	User            string `env:"POSTGRES_USER,required"`
	DBName          string `env:"POSTGRES_DB_NAME,required"`
	Password        string `env:"POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"require"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type CloudflareConfig struct {
	Url       string `env:"CLOUDFLARE_URL" envDefault:"https://api.cloudflare.com/client/v4" validate:"required"`
	AccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	ApiToken  string `env:"CLOUDFLARE_API_TOKEN"`
}

type MailDirectoryConfig struct {
	Url      string `env:"MAIL_DIRECTORY_URL" envDefault:"https://admin.a.hostedemail.com/api"`
	ApiKey   string `env:"MAIL_DIRECTORY_API_KEY"`
	Username string `env:"MAIL_DIRECTORY_USERNAME"`
}

type ProvisioningConfig struct {
	ExpectedNameserverSuffix string        `env:"EXPECTED_NAMESERVER_SUFFIX" envDefault:"cloudflare.com"`
	SpfInclude               string        `env:"SPF_INCLUDE" envDefault:"_spf.hostedemail.com"`
	MxHosts                  []string      `env:"MX_HOSTS" envDefault:"10:mx.hostedemail.com"`
	DkimSelector             string        `env:"DKIM_SELECTOR" envDefault:"dkim"`
	TrackingSubdomain        string        `env:"TRACKING_SUBDOMAIN" envDefault:"track"`
	TrackingTarget           string        `env:"TRACKING_TARGET" envDefault:"custosmetrics.com"`
	DmarcRua                 string        `env:"DMARC_RUA" envDefault:"dmarc@customeros.ai"`
	DefaultTTL               int           `env:"DNS_DEFAULT_TTL" envDefault:"3600"`
	DmarcDelay               time.Duration `env:"DMARC_DELAY" envDefault:"48h"`
	ProviderTimeout          time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"15s"`
	MinDomainAgeDays         int           `env:"MIN_DOMAIN_AGE_DAYS" envDefault:"30"`
}

type PropagationConfig struct {
	Resolvers      []string      `env:"PROPAGATION_RESOLVERS" envDefault:"1.1.1.1:53,8.8.8.8:53,9.9.9.9:53,208.67.222.222:53"`
	NSResolver     string        `env:"NAMESERVER_RESOLVER" envDefault:"1.1.1.1:53"`
	QueryTimeout   time.Duration `env:"DNS_QUERY_TIMEOUT" envDefault:"5s"`
	MaxSessionAge  time.Duration `env:"PROPAGATION_MAX_SESSION_AGE" envDefault:"4h"`
	TickLockTTL    time.Duration `env:"PROPAGATION_TICK_LOCK_TTL" envDefault:"2m"`
	ProgressEvents bool          `env:"PROPAGATION_PROGRESS_EVENTS" envDefault:"true"`
}
