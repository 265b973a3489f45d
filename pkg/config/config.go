package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable read by Load.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CHAINSIGHT_DB_DSN"
	EnvDBHost = "CHAINSIGHT_DB_HOST"
	EnvDBUser = "CHAINSIGHT_DB_USER"
	EnvDBName = "CHAINSIGHT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	BigQuery  BigQueryConfig
	Analytics AnalyticsConfig
	KPI       KPIConfig
	Segment   SegmentConfig
	Eventing  EventingConfig
	Ops       OpsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Segment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CHAINSIGHT_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"CHAINSIGHT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHAINSIGHT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CHAINSIGHT_SERVICE_KIND" default:"analytics-run"`
}

type DBConfig struct {
	DSN    string `envconfig:"CHAINSIGHT_DB_DSN"`
	Driver string `envconfig:"CHAINSIGHT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHAINSIGHT_DB_HOST"`
	LegacyPort     int    `envconfig:"CHAINSIGHT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHAINSIGHT_DB_USER"`
	LegacyPassword string `envconfig:"CHAINSIGHT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHAINSIGHT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHAINSIGHT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHAINSIGHT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHAINSIGHT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHAINSIGHT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHAINSIGHT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHAINSIGHT_REDIS_URL"`
	Address      string        `envconfig:"CHAINSIGHT_REDIS_ADDR"`
	Password     string        `envconfig:"CHAINSIGHT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHAINSIGHT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHAINSIGHT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHAINSIGHT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHAINSIGHT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHAINSIGHT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHAINSIGHT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CHAINSIGHT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CHAINSIGHT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CHAINSIGHT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	RunsTopic        string `envconfig:"CHAINSIGHT_PUBSUB_RUNS_TOPIC" default:"cs-analytics-runs"`
	RunsSubscription string `envconfig:"CHAINSIGHT_PUBSUB_RUNS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"CHAINSIGHT_BIGQUERY_DATASET" default:"chainsight"`
	PatternsTable    string `envconfig:"CHAINSIGHT_BIGQUERY_PATTERNS_TABLE" default:"demand_patterns"`
	KPIsTable        string `envconfig:"CHAINSIGHT_BIGQUERY_KPIS_TABLE" default:"demand_kpis"`
	AssignmentsTable string `envconfig:"CHAINSIGHT_BIGQUERY_ASSIGNMENTS_TABLE" default:"cluster_assignments"`
	CentroidsTable   string `envconfig:"CHAINSIGHT_BIGQUERY_CENTROIDS_TABLE" default:"cluster_centroids"`
}

// AnalyticsConfig carries the tunable thresholds used by feature extraction
// and the demand-pattern decision table. Defaults follow the Syntetos & Boylan
// intermittency cutoffs plus the house seasonality/trend gates.
type AnalyticsConfig struct {
	MinHistoryDays       int     `envconfig:"CHAINSIGHT_ANALYTICS_MIN_HISTORY_DAYS" default:"90"`
	RevenueWindowDays    int     `envconfig:"CHAINSIGHT_ANALYTICS_REVENUE_WINDOW_DAYS" default:"365"`
	SeasonalityThreshold float64 `envconfig:"CHAINSIGHT_ANALYTICS_SEASONALITY_THRESHOLD" default:"0.30"`
	TrendR2Threshold     float64 `envconfig:"CHAINSIGHT_ANALYTICS_TREND_R2_THRESHOLD" default:"0.30"`
	CVThreshold          float64 `envconfig:"CHAINSIGHT_ANALYTICS_CV_THRESHOLD" default:"1.0"`
	ADIThreshold         float64 `envconfig:"CHAINSIGHT_ANALYTICS_ADI_THRESHOLD" default:"1.32"`
	Workers              int     `envconfig:"CHAINSIGHT_ANALYTICS_WORKERS" default:"8"`
}

// KPIConfig holds the categorical band boundaries. Lower bounds are inclusive
// and evaluated high-to-low, first match wins.
type KPIConfig struct {
	MAPEExcellent float64 `envconfig:"CHAINSIGHT_KPI_MAPE_EXCELLENT" default:"0.10"`
	MAPEGood      float64 `envconfig:"CHAINSIGHT_KPI_MAPE_GOOD" default:"0.15"`
	MAPEFair      float64 `envconfig:"CHAINSIGHT_KPI_MAPE_FAIR" default:"0.25"`

	BiasNeutralBand float64 `envconfig:"CHAINSIGHT_KPI_BIAS_NEUTRAL_BAND" default:"0.05"`

	ServiceExcellent float64 `envconfig:"CHAINSIGHT_KPI_SERVICE_EXCELLENT" default:"0.98"`
	ServiceGood      float64 `envconfig:"CHAINSIGHT_KPI_SERVICE_GOOD" default:"0.95"`
	ServiceFair      float64 `envconfig:"CHAINSIGHT_KPI_SERVICE_FAIR" default:"0.90"`

	XYZXMax float64 `envconfig:"CHAINSIGHT_KPI_XYZ_X_MAX" default:"0.5"`
	XYZYMax float64 `envconfig:"CHAINSIGHT_KPI_XYZ_Y_MAX" default:"1.0"`

	ABCAShare float64 `envconfig:"CHAINSIGHT_KPI_ABC_A_SHARE" default:"0.80"`
	ABCBShare float64 `envconfig:"CHAINSIGHT_KPI_ABC_B_SHARE" default:"0.95"`
}

type SegmentConfig struct {
	Clusters             int     `envconfig:"CHAINSIGHT_SEGMENT_CLUSTERS" default:"8"`
	Seed                 int64   `envconfig:"CHAINSIGHT_SEGMENT_SEED" default:"42"`
	MaxIterations        int     `envconfig:"CHAINSIGHT_SEGMENT_MAX_ITERATIONS" default:"300"`
	ConvergenceTolerance float64 `envconfig:"CHAINSIGHT_SEGMENT_CONVERGENCE_TOLERANCE" default:"0.0001"`
	ArchetypeCloseness   float64 `envconfig:"CHAINSIGHT_SEGMENT_ARCHETYPE_CLOSENESS" default:"2.5"`
	Workers              int     `envconfig:"CHAINSIGHT_SEGMENT_WORKERS" default:"8"`
}

const (
	minClusters = 8
	maxClusters = 12
)

func (s SegmentConfig) validate() error {
	if s.Clusters < minClusters || s.Clusters > maxClusters {
		return fmt.Errorf("segment clusters must be within [%d,%d], got %d", minClusters, maxClusters, s.Clusters)
	}
	if s.MaxIterations <= 0 {
		return fmt.Errorf("segment max iterations must be positive, got %d", s.MaxIterations)
	}
	if s.ConvergenceTolerance <= 0 {
		return fmt.Errorf("segment convergence tolerance must be positive, got %f", s.ConvergenceTolerance)
	}
	return nil
}

type EventingConfig struct {
	RunIdempotencyTTL time.Duration `envconfig:"CHAINSIGHT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OpsConfig struct {
	Port string `envconfig:"CHAINSIGHT_OPS_PORT" default:"9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
