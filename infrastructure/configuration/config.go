package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"linkhealth/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App         App             `json:"app"`
	Database    Database        `json:"database"`
	Store       Store           `json:"store"`
	Queue       Queue           `json:"queue"`
	RedisClient RedisClient     `json:"redisClient"`
	Cache       Cache           `json:"cache"`
	Aws         Aws             `json:"aws"`
	YouTube     YouTube         `json:"youtube"`
	Scan        Scan            `json:"scan"`
	Plans       map[string]Plan `json:"plans"`
	Logger      Logger          `json:"logger"`
}

type App struct {
	Port           int      `json:"port"`
	SecretKey      string   `json:"secretKey"`
	TLSEnabled     bool     `json:"tlsEnabled"`
	TLSCertFile    string   `json:"tlsCertFile"`
	TLSKeyFile     string   `json:"tlsKeyFile"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

type Database struct {
	Psql  Db `json:"psql"`
	MySql Db `json:"mysql"`
	Mongo Db `json:"mongo"`
	Mssql Db `json:"mssql"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	// URI overrides the individual fields when set (mongo only).
	URI string `json:"uri"`
}

// Store selects the document store backing scan sessions, jobs and reports.
type Store struct {
	Driver      string `json:"driver"` // memory | mongo | postgres | mssql | mysql | dynamodb
	DynamoTable string `json:"dynamoTable"`
}

// Queue selects the work queue transport and its redelivery policy.
type Queue struct {
	Driver       string        `json:"driver"` // memory | pubsub | servicebus | nats | sqs
	ProjectID    string        `json:"projectId"`
	Topic        string        `json:"topic"`
	Subscription string        `json:"subscription"`
	Namespace    string        `json:"namespace"`
	QueueName    string        `json:"queueName"`
	NatsURL      string        `json:"natsUrl"`
	Stream       string        `json:"stream"`
	Subject      string        `json:"subject"`
	Durable      string        `json:"durable"`
	SqsURL       string        `json:"sqsUrl"`
	Buffer       int           `json:"buffer"`
	MaxAttempts  int           `json:"maxAttempts"`
	BackoffBase  time.Duration `json:"backoffBase"`
}

type RedisClient struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Password     string `json:"password"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
}

// Cache configures the video metadata cache.
type Cache struct {
	Driver string        `json:"driver"` // redis | postgres | none
	TTL    time.Duration `json:"ttl"`
}

type Aws struct {
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
}

type YouTube struct {
	APIKey       string `json:"apiKey"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectURI"`
}

// Scan holds the link verification tunables.
type Scan struct {
	ProbeTimeout    time.Duration `json:"probeTimeout"`
	MaxRetries      int           `json:"maxRetries"`
	RetryDelay      time.Duration `json:"retryDelay"`
	MaxRedirects    int           `json:"maxRedirects"`
	UserAgent       string        `json:"userAgent"`
	TolerantDomains []string      `json:"tolerantDomains"`
	Concurrency     int           `json:"concurrency"`
	RatePerSecond   float64       `json:"ratePerSecond"`
	Burst           int           `json:"burst"`
	InterVideoPause time.Duration `json:"interVideoPause"`
	SyncVideoLimit  int           `json:"syncVideoLimit"`
	DefaultMode     string        `json:"defaultMode"`
	DefaultPlan     string        `json:"defaultPlan"`
}

type Plan struct {
	MaxVideos int `json:"maxVideos"`
}

type Logger struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

var C Config

func init() {
	LoadEnvFromFile("config.env", ".env")
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initInfra(&C)
	if C.Logger.Level != "" && os.Getenv("LOG_LEVEL") == "" {
		logger.SetLevel(C.Logger.Level)
	}
}

func setDefaults() {
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.dynamoTable", "linkhealth_documents")
	viper.SetDefault("queue.driver", "memory")
	viper.SetDefault("queue.topic", "link-scan-jobs")
	viper.SetDefault("queue.subscription", "link-scan-workers")
	viper.SetDefault("queue.queueName", "link-scan-jobs")
	viper.SetDefault("queue.natsUrl", "nats://127.0.0.1:4222")
	viper.SetDefault("queue.stream", "LINKSCAN")
	viper.SetDefault("queue.subject", "linkscan.jobs")
	viper.SetDefault("queue.durable", "linkscan-workers")
	viper.SetDefault("queue.buffer", 100)
	viper.SetDefault("queue.maxAttempts", 3)
	viper.SetDefault("queue.backoffBase", "5s")
	viper.SetDefault("cache.driver", "none")
	viper.SetDefault("cache.ttl", "10m")
	viper.SetDefault("scan.probeTimeout", "15s")
	viper.SetDefault("scan.maxRetries", 2)
	viper.SetDefault("scan.retryDelay", "2s")
	viper.SetDefault("scan.maxRedirects", 10)
	viper.SetDefault("scan.concurrency", 5)
	viper.SetDefault("scan.burst", 5)
	viper.SetDefault("scan.syncVideoLimit", 10)
	viper.SetDefault("scan.defaultPlan", "free")
	viper.SetDefault("plans", map[string]any{
		"free":     map[string]any{"maxVideos": 25},
		"pro":      map[string]any{"maxVideos": 500},
		"business": map[string]any{"maxVideos": 5000},
	})
}

func LoadConfig() {
	name := getConfig()
	setDefaults()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

// PlanLimit returns the max videos per scan for plan, falling back to the default plan.
func (c *Config) PlanLimit(plan string) int {
	if p, ok := c.Plans[strings.ToLower(plan)]; ok {
		return p.MaxVideos
	}
	if p, ok := c.Plans[strings.ToLower(c.Scan.DefaultPlan)]; ok {
		return p.MaxVideos
	}
	return 0
}

func initDatabase(C *Config) {
	setIfEmpty(&C.Database.Psql.Name, "DB_NAME")
	setIfEmpty(&C.Database.Psql.Host, "DB_HOST")
	setIfEmpty(&C.Database.Psql.User, "DB_USER")
	setIfEmpty(&C.Database.Psql.Password, "DB_PASSWORD")
	setIfEmpty(&C.Database.Psql.Port, "DB_PORT")

	setIfEmpty(&C.Database.Mssql.Name, "MSSQL_DB_NAME")
	setIfEmpty(&C.Database.Mssql.Host, "MSSQL_HOST")
	setIfEmpty(&C.Database.Mssql.User, "MSSQL_USER")
	setIfEmpty(&C.Database.Mssql.Password, "MSSQL_PASSWORD")
	setIfEmpty(&C.Database.Mssql.Port, "MSSQL_PORT")
	if C.Database.Mssql.Port == "" {
		C.Database.Mssql.Port = "1433"
	}

	setIfEmpty(&C.Database.MySql.Name, "MYSQL_DB_NAME")
	setIfEmpty(&C.Database.MySql.Host, "MYSQL_HOST")
	setIfEmpty(&C.Database.MySql.User, "MYSQL_USER")
	setIfEmpty(&C.Database.MySql.Password, "MYSQL_PASSWORD")
	setIfEmpty(&C.Database.MySql.Port, "MYSQL_PORT")

	setIfEmpty(&C.Database.Mongo.URI, "MONGO_URI")
	setIfEmpty(&C.Database.Mongo.Name, "MONGO_DB_NAME")
	if C.Database.Mongo.Name == "" {
		C.Database.Mongo.Name = "linkhealth"
	}
}

func initApp(C *Config) {
	// SECRET_KEY from the environment overrides the config file
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order: APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	setIfEmpty(&C.App.TLSCertFile, "TLS_CERT_FILE")
	setIfEmpty(&C.App.TLSKeyFile, "TLS_KEY_FILE")
	if len(C.App.AllowedOrigins) == 0 {
		C.App.AllowedOrigins = []string{"http://localhost:4200", "http://localhost:4201"}
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
}

func initInfra(C *Config) {
	overrideFromEnv(&C.Store.Driver, "STORE_DRIVER")
	overrideFromEnv(&C.Queue.Driver, "QUEUE_DRIVER")
	setIfEmpty(&C.Queue.ProjectID, "PUBSUB_PROJECT_ID")
	setIfEmpty(&C.Queue.Namespace, "SERVICEBUS_NAMESPACE")
	overrideFromEnv(&C.Queue.NatsURL, "NATS_URL")
	setIfEmpty(&C.Queue.SqsURL, "SQS_QUEUE_URL")
	setIfEmpty(&C.Aws.Region, "AWS_REGION")
	setIfEmpty(&C.Aws.Endpoint, "AWS_ENDPOINT_URL")
	overrideFromEnv(&C.Cache.Driver, "CACHE_DRIVER")
	setIfEmpty(&C.RedisClient.Host, "REDIS_HOST")
	setIfEmpty(&C.RedisClient.Port, "REDIS_PORT")
	setIfEmpty(&C.RedisClient.Password, "REDIS_PASSWORD")
	setIfEmpty(&C.YouTube.APIKey, "YOUTUBE_API_KEY")
	if C.Queue.MaxAttempts <= 0 {
		C.Queue.MaxAttempts = 3
	}
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*field = v
	}
}

func overrideFromEnv(field *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*field = v
	}
}
